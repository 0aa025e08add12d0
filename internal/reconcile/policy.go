package reconcile

import (
	"math"
	"time"
)

// Policy bounds a reconciliation chain.
//
// The first poll waits InitialDelay. Each following poll waits Interval,
// multiplied by Backoff per retry and capped at MaxInterval. After MaxAttempts
// polls without a terminal status the chain stops as exhausted. A single poll
// (provider fetch plus store) is cut off after StepTimeout.
type Policy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxInterval  time.Duration
	Backoff      float64
	MaxAttempts  int
	StepTimeout  time.Duration
}

// DefaultPolicy polls every 30 seconds for up to an hour.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 30 * time.Second,
		Interval:     30 * time.Second,
		MaxInterval:  5 * time.Minute,
		Backoff:      1.0,
		MaxAttempts:  120,
		StepTimeout:  time.Minute,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Backoff < 1 || math.IsNaN(p.Backoff) || math.IsInf(p.Backoff, 0) {
		p.Backoff = 1
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.StepTimeout <= 0 {
		p.StepTimeout = d.StepTimeout
	}
	return p
}

// Delay returns how long to wait before the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 1 {
		return p.InitialDelay
	}
	d := float64(p.Interval) * math.Pow(p.Backoff, float64(attempt-2))
	if d >= float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// Budget is the total time a chain that never completes spends waiting.
func (p Policy) Budget() time.Duration {
	p = p.normalized()
	var total time.Duration
	for i := 1; i <= p.MaxAttempts; i++ {
		total += p.Delay(i)
	}
	return total
}

// Lease is how long a chain must hold its lock to wait delay and then poll once.
func (p Policy) Lease(delay time.Duration) time.Duration {
	p = p.normalized()
	if delay < 0 {
		delay = 0
	}
	return delay + p.StepTimeout + leaseSlack
}
