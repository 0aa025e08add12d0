package calls

// Mutation edits a freshly read Call in place and reports whether anything
// changed. It may run more than once when a concurrent writer wins the race,
// so it must be a pure function of the Call it is given.
type Mutation func(c *Call) bool

// Snapshot is what one provider poll observed.
type Snapshot struct {
	Status       string
	Transcript   string
	RecordingURL *string
	Duration     float64
	// Attempt is the 1-based poll number that produced the snapshot.
	Attempt int
}

// ApplyCompleted records a terminal provider snapshot. An empty transcript
// never replaces a stored one.
func ApplyCompleted(s Snapshot) Mutation {
	return func(c *Call) bool {
		if s.Transcript != "" {
			c.Transcript = strPtr(s.Transcript)
		}
		c.RecordingURL = s.RecordingURL
		c.CallStatus = strPtr(s.Status)
		c.Duration = nonNegative(s.Duration)
		c.ReconcileStatus = ReconcileCompleted
		c.ReconcileAttempts = s.Attempt
		c.ReconcileError = nil
		return true
	}
}

// ApplyProgress records a non-terminal snapshot. The partial transcript is only
// written while nothing is stored yet (first write wins).
func ApplyProgress(s Snapshot) Mutation {
	return func(c *Call) bool {
		changed := false
		if s.Transcript != "" && !c.HasTranscript() {
			c.Transcript = strPtr(s.Transcript)
			changed = true
		}
		if s.Status != "" && (c.CallStatus == nil || *c.CallStatus != s.Status) {
			c.CallStatus = strPtr(s.Status)
			changed = true
		}
		if c.ReconcileAttempts != s.Attempt {
			c.ReconcileAttempts = s.Attempt
			changed = true
		}
		// A restarted chain reopens a failed or exhausted record.
		if c.ReconcileStatus == ReconcileFailed || c.ReconcileStatus == ReconcileExhausted {
			c.ReconcileStatus = ReconcilePending
			c.ReconcileError = nil
			changed = true
		}
		return changed
	}
}

// ApplyWebhookTranscript stores a pushed transcript. The write always happens so
// updated_at is touched even when the text is unchanged.
func ApplyWebhookTranscript(text string) Mutation {
	return func(c *Call) bool {
		if text == "" {
			return false
		}
		c.Transcript = strPtr(text)
		return true
	}
}

// MarkReconcileStopped records why the poller gave up. Calls that already
// completed are left alone.
func MarkReconcileStopped(status ReconcileStatus, reason string, attempt int) Mutation {
	return func(c *Call) bool {
		if c.ReconcileStatus == ReconcileCompleted {
			return false
		}
		c.ReconcileStatus = status
		c.ReconcileAttempts = attempt
		if reason != "" {
			c.ReconcileError = strPtr(reason)
		}
		return true
	}
}

func nonNegative(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	return f
}

func strPtr(s string) *string { return &s }
