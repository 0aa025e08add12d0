package calls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileStatus_Terminal(t *testing.T) {
	assert.False(t, ReconcilePending.Terminal())
	for _, s := range []ReconcileStatus{ReconcileCompleted, ReconcileFailed, ReconcileExhausted} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestCall_HasTranscript(t *testing.T) {
	assert.False(t, Call{}.HasTranscript())
	assert.False(t, Call{Transcript: strPtr("")}.HasTranscript())
	assert.True(t, Call{Transcript: strPtr("x")}.HasTranscript())
}

func TestCall_ExternalID(t *testing.T) {
	assert.Equal(t, "", Call{}.ExternalID())
	assert.Equal(t, "c-1", Call{CallID: strPtr("c-1")}.ExternalID())
}
