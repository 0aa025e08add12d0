package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Provider is the voice-AI boundary used by business logic.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic; raw payloads are only
//   surfaced by the proxy methods (CallMedia, CheckCall).
type Provider interface {
	Name() string

	// PlaceCall asks the provider to dial out and returns its call id.
	PlaceCall(ctx context.Context, req CallRequest) (CallResponse, error)

	// GetCall returns the parsed call detail used by reconciliation.
	GetCall(ctx context.Context, callID string) (CallDetail, error)

	// GetTranscript returns the provider's "transcript" field as-is.
	GetTranscript(ctx context.Context, callID string) (json.RawMessage, error)

	// CallMedia and CheckCall return the provider body verbatim.
	CallMedia(ctx context.Context, callID string) (json.RawMessage, error)
	CheckCall(ctx context.Context, callID string) (json.RawMessage, error)
}

// CallRequest are the outbound call parameters.
type CallRequest struct {
	PhoneNumber         string  `json:"phone_number"`
	Task                string  `json:"task"`
	VoiceID             int     `json:"voice_id"`
	ReduceLatency       bool    `json:"reduce_latency"`
	TransferPhoneNumber string  `json:"transfer_phone_number,omitempty"`
	Language            string  `json:"language,omitempty"`
	Record              bool    `json:"record"`
	Temperature         float64 `json:"temperature"`
	FirstMessage        string  `json:"first_message,omitempty"`
	Webhook             string  `json:"webhook,omitempty"`
}

type CallResponse struct {
	CallID  string `json:"call_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Turn is one utterance in a structured transcript.
type Turn struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// CallDetail is the subset of the provider's call detail we reconcile from.
type CallDetail struct {
	CallID                 string          `json:"call_id"`
	Status                 string          `json:"status"`
	ConcatenatedTranscript string          `json:"concatenated_transcript"`
	Transcripts            []Turn          `json:"transcripts"`
	RecordingURL           *string         `json:"recording_url"`
	CorrectedDuration      json.RawMessage `json:"corrected_duration"`
}

// Duration parses corrected_duration, which the provider sends either as a
// number or as a numeric string. Anything unparseable or negative yields 0.
func (d CallDetail) Duration() float64 {
	raw := strings.TrimSpace(string(d.CorrectedDuration))
	if raw == "" || raw == "null" {
		return 0
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f, err = strconv.ParseFloat(leadingNumber(raw), 64)
	}
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// leadingNumber keeps the decimal prefix of s ("12.5s" -> "12.5", "1e3ms" -> "1e3").
func leadingNumber(s string) string {
	end := 0
	seenDot, seenExp := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			end = i + 1
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == '-' || c == '+') && i == 0:
		case (c == 'e' || c == 'E') && !seenExp && end > 0:
			seenExp = true
			if i+1 < len(s) && (s[i+1] == '-' || s[i+1] == '+') {
				i++
			}
		default:
			return s[:end]
		}
	}
	return s[:end]
}

// APIError is returned for non-2xx provider responses.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("telephony: provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("telephony: provider returned %d: %s", e.StatusCode, body)
}

// Details returns the body as JSON when it is valid JSON, otherwise as a string.
func (e *APIError) Details() any {
	if json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	if len(e.Body) == 0 {
		return nil
	}
	return string(e.Body)
}
