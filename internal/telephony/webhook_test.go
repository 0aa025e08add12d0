package telephony

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	p, err := ParseWebhook(strings.NewReader(`{"call_id":" c-1 ","transcript":"user: hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "c-1", p.CallID)
	assert.Equal(t, "user: hi", p.Transcript)
}

func TestParseWebhook_StructuredTurns(t *testing.T) {
	p, err := ParseWebhook(strings.NewReader(`{"call_id":"c-1","transcript":[{"user":"assistant","text":"Hi"},{"user":"user","text":"Yo"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "assistant: Hi\nuser: Yo", p.Transcript)
}

func TestParseWebhook_FallsBackToConcatenated(t *testing.T) {
	p, err := ParseWebhook(strings.NewReader(`{"call_id":"c-1","concatenated_transcript":"assistant: Hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "assistant: Hi", p.Transcript)
}

func TestParseWebhook_Errors(t *testing.T) {
	_, err := ParseWebhook(strings.NewReader(`{"transcript":"x"}`))
	assert.ErrorIs(t, err, ErrWebhookMissingCallID)

	_, err = ParseWebhook(strings.NewReader(`{"call_id":"c-1","transcript":"  "}`))
	assert.ErrorIs(t, err, ErrWebhookMissingTranscript)

	_, err = ParseWebhook(strings.NewReader(`not json`))
	assert.Error(t, err)
}
