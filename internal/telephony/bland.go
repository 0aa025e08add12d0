package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBlandBaseURL = "https://api.bland.ai"
	defaultTimeout      = 30 * time.Second
	maxResponseBytes    = 4 << 20
)

// BlandClient talks to the Bland AI REST API.
type BlandClient struct {
	BaseURL      string
	APIKey       string
	EncryptedKey string
	HTTPClient   *http.Client
}

type Option func(*BlandClient)

func WithBaseURL(u string) Option {
	return func(c *BlandClient) {
		if u != "" {
			c.BaseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *BlandClient) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *BlandClient) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

func NewBlandClient(apiKey, encryptedKey string, opts ...Option) *BlandClient {
	c := &BlandClient{
		BaseURL:      DefaultBlandBaseURL,
		APIKey:       apiKey,
		EncryptedKey: encryptedKey,
		HTTPClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BlandClient) Name() string { return "bland" }

func (c *BlandClient) PlaceCall(ctx context.Context, req CallRequest) (CallResponse, error) {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return CallResponse{}, errors.New("telephony: phone_number is required")
	}
	body, err := c.do(ctx, http.MethodPost, "/call", req)
	if err != nil {
		return CallResponse{}, err
	}
	var out CallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return CallResponse{}, fmt.Errorf("telephony: decode call response: %w", err)
	}
	if out.CallID == "" {
		return CallResponse{}, fmt.Errorf("telephony: provider accepted call without call_id (status=%q message=%q)", out.Status, out.Message)
	}
	return out, nil
}

func (c *BlandClient) GetCall(ctx context.Context, callID string) (CallDetail, error) {
	body, err := c.get(ctx, "/v1/calls/", callID)
	if err != nil {
		return CallDetail{}, err
	}
	var out CallDetail
	if err := json.Unmarshal(body, &out); err != nil {
		return CallDetail{}, fmt.Errorf("telephony: decode call detail: %w", err)
	}
	return out, nil
}

func (c *BlandClient) GetTranscript(ctx context.Context, callID string) (json.RawMessage, error) {
	body, err := c.get(ctx, "/calls/", callID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("telephony: decode transcript: %w", err)
	}
	if len(out.Transcript) == 0 {
		return json.RawMessage("null"), nil
	}
	return out.Transcript, nil
}

func (c *BlandClient) CallMedia(ctx context.Context, callID string) (json.RawMessage, error) {
	return c.raw(ctx, "/call/", callID)
}

func (c *BlandClient) CheckCall(ctx context.Context, callID string) (json.RawMessage, error) {
	return c.raw(ctx, "/v1/calls/", callID)
}

func (c *BlandClient) raw(ctx context.Context, prefix, callID string) (json.RawMessage, error) {
	body, err := c.get(ctx, prefix, callID)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("telephony: provider returned a non-JSON body")
	}
	return json.RawMessage(body), nil
}

func (c *BlandClient) get(ctx context.Context, prefix, callID string) ([]byte, error) {
	if strings.TrimSpace(callID) == "" {
		return nil, errors.New("telephony: call id is required")
	}
	return c.do(ctx, http.MethodGet, prefix+url.PathEscape(callID), nil)
}

func (c *BlandClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telephony: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.EncryptedKey != "" {
		req.Header.Set("X-Bland-Encrypted-Key", c.EncryptedKey)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("telephony: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

var _ Provider = (*BlandClient)(nil)
