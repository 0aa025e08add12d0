package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrWebhookMissingCallID     = errors.New("telephony: webhook call_id is required")
	ErrWebhookMissingTranscript = errors.New("telephony: webhook transcript is required")
)

const maxWebhookBytes = 1 << 20

// WebhookPayload is the subset of the provider's completion callback we consume.
type WebhookPayload struct {
	CallID     string `json:"call_id"`
	Transcript string `json:"transcript"`
	Status     string `json:"status,omitempty"`
}

// ParseWebhook decodes and validates a completion callback body.
// The transcript may arrive either as a string or as structured turns; turns
// are flattened into "role: text" lines.
func ParseWebhook(r io.Reader) (WebhookPayload, error) {
	var raw struct {
		CallID                 string          `json:"call_id"`
		Transcript             json.RawMessage `json:"transcript"`
		ConcatenatedTranscript string          `json:"concatenated_transcript"`
		Status                 string          `json:"status"`
	}
	dec := json.NewDecoder(io.LimitReader(r, maxWebhookBytes))
	if err := dec.Decode(&raw); err != nil {
		return WebhookPayload{}, fmt.Errorf("telephony: decode webhook: %w", err)
	}

	p := WebhookPayload{
		CallID: strings.TrimSpace(raw.CallID),
		Status: raw.Status,
	}
	p.Transcript = transcriptText(raw.Transcript)
	if p.Transcript == "" {
		p.Transcript = raw.ConcatenatedTranscript
	}

	if p.CallID == "" {
		return p, ErrWebhookMissingCallID
	}
	if strings.TrimSpace(p.Transcript) == "" {
		return p, ErrWebhookMissingTranscript
	}
	return p, nil
}

func transcriptText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err == nil {
		lines := make([]string, 0, len(turns))
		for _, t := range turns {
			lines = append(lines, t.User+": "+t.Text)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}
