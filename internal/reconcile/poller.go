package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/internal/transcript"
	"lead-qualifier/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	ErrLocked = errors.New("reconcile: a chain is already running for this call")
	ErrClosed = errors.New("reconcile: poller is shut down")
)

// leaseSlack pads every lock lease past the sleep and step it covers.
const leaseSlack = time.Minute

// Outcome is the result of one poll.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "continue"
	}
}

// CallFetcher is the provider capability the poller needs.
type CallFetcher interface {
	GetCall(ctx context.Context, callID string) (telephony.CallDetail, error)
}

// EventRecorder receives lifecycle events. *audit.Service implements it.
type EventRecorder interface {
	Record(ctx context.Context, callRef string, typ audit.EventType, message string, metadata map[string]any) error
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options wires a Poller. Provider and Calls are required; the rest default.
type Options struct {
	Provider  CallFetcher
	Calls     *calls.Service
	Audit     EventRecorder
	Formatter transcript.Formatter
	Locker    Locker
	Policy    Policy
	Logger    *slog.Logger
	Sleep     Sleeper
}

// Poller drives per-call reconciliation chains against the provider until the
// call completes, the attempt budget runs out, or an error stops the chain.
type Poller struct {
	provider  CallFetcher
	calls     *calls.Service
	audit     EventRecorder
	formatter transcript.Formatter
	locker    Locker
	policy    Policy
	log       *slog.Logger
	sleep     Sleeper

	root  context.Context
	wg    sync.WaitGroup
	group singleflight.Group
}

// New builds a Poller whose chains live until root is cancelled.
func New(root context.Context, opts Options) (*Poller, error) {
	if opts.Provider == nil {
		return nil, errors.New("reconcile: provider is required")
	}
	if opts.Calls == nil {
		return nil, errors.New("reconcile: calls service is required")
	}
	p := &Poller{
		provider:  opts.Provider,
		calls:     opts.Calls,
		audit:     opts.Audit,
		formatter: opts.Formatter,
		locker:    opts.Locker,
		policy:    opts.Policy.normalized(),
		log:       opts.Logger,
		sleep:     opts.Sleep,
		root:      root,
	}
	if p.formatter == (transcript.Formatter{}) {
		p.formatter = transcript.New("")
	}
	if p.locker == nil {
		p.locker = NewMemoryLocker()
	}
	if p.log == nil {
		p.log = logger.Discard()
	}
	if p.sleep == nil {
		p.sleep = timerSleep
	}
	return p, nil
}

// Schedule starts a chain whose first poll happens after the initial delay.
func (p *Poller) Schedule(callID string) error {
	return p.start(callID, p.policy.InitialDelay)
}

// Trigger starts a chain that polls immediately.
func (p *Poller) Trigger(callID string) error {
	return p.start(callID, 0)
}

// Wait blocks until every chain has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func lockKey(callID string) string { return "reconcile:" + callID }

func (p *Poller) start(callID string, firstDelay time.Duration) error {
	if callID == "" {
		return calls.ErrInvalidArgument
	}
	if p.root.Err() != nil {
		return ErrClosed
	}

	token := uuid.NewString()
	ok, err := p.locker.TryLock(p.root, lockKey(callID), token, p.policy.Lease(firstDelay))
	if err != nil {
		return fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	p.record(p.root, callID, audit.EventReconcileScheduled, "reconciliation scheduled", map[string]any{
		"first_delay_ms": firstDelay.Milliseconds(),
		"max_attempts":   p.policy.MaxAttempts,
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.unlock(callID, token)
		p.run(callID, token, firstDelay)
	}()
	return nil
}

func (p *Poller) unlock(callID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.locker.Unlock(ctx, lockKey(callID), token); err != nil {
		p.log.Warn("reconcile unlock failed", "call_id", callID, "err", err)
	}
}

func (p *Poller) run(callID, token string, firstDelay time.Duration) {
	ctx := p.root
	log := p.log.With("call_id", callID)

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		delay := p.policy.Delay(attempt)
		if attempt == 1 {
			delay = firstDelay
		} else {
			held, err := p.locker.Refresh(ctx, lockKey(callID), token, p.policy.Lease(delay))
			switch {
			case ctx.Err() != nil:
				log.Debug("reconcile chain cancelled", "attempt", attempt)
				return
			case err != nil:
				log.Error("reconcile lease refresh failed", "attempt", attempt, "err", err)
				p.stop(callID, calls.ReconcileFailed, "lock refresh: "+err.Error(), attempt-1)
				return
			case !held:
				log.Warn("reconcile lease lost; leaving the call to its new owner", "attempt", attempt)
				return
			}
		}
		if err := p.sleep(ctx, delay); err != nil {
			log.Debug("reconcile chain cancelled", "attempt", attempt)
			return
		}

		outcome, err := p.Step(ctx, callID, attempt)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				log.Debug("reconcile chain cancelled", "attempt", attempt)
				return
			}
			log.Error("reconcile step failed", "attempt", attempt, "err", err)
			p.stop(callID, calls.ReconcileFailed, err.Error(), attempt)
			return
		case outcome == OutcomeCompleted:
			log.Info("call reconciled", "attempt", attempt)
			return
		default:
			log.Debug("call not completed yet", "attempt", attempt)
		}
	}

	reason := fmt.Sprintf("no terminal status after %d attempts", p.policy.MaxAttempts)
	log.Warn("reconcile attempts exhausted", "max_attempts", p.policy.MaxAttempts)
	p.stop(callID, calls.ReconcileExhausted, reason, p.policy.MaxAttempts)
}

// Step performs a single poll and writes what it observed, bounded by the
// policy's StepTimeout. Concurrent Steps for the same call share one
// provider round-trip.
func (p *Poller) Step(ctx context.Context, callID string, attempt int) (Outcome, error) {
	v, err, _ := p.group.Do(callID, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.policy.StepTimeout)
		defer cancel()
		return p.step(ctx, callID, attempt)
	})
	if err != nil {
		return OutcomeFailed, err
	}
	return v.(Outcome), nil
}

func (p *Poller) step(ctx context.Context, callID string, attempt int) (Outcome, error) {
	detail, err := p.provider.GetCall(ctx, callID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch call detail: %w", err)
	}

	snap := calls.Snapshot{
		Status:       detail.Status,
		Transcript:   p.displayTranscript(detail),
		RecordingURL: detail.RecordingURL,
		Duration:     detail.Duration(),
		Attempt:      attempt,
	}

	if detail.Status == calls.StatusCompleted {
		if _, err := p.calls.MutateByCallID(ctx, callID, calls.ApplyCompleted(snap)); err != nil {
			return OutcomeFailed, fmt.Errorf("store completed call: %w", err)
		}
		p.record(ctx, callID, audit.EventReconcileCompleted, "call details stored", map[string]any{
			"attempt":  attempt,
			"duration": snap.Duration,
		})
		return OutcomeCompleted, nil
	}

	if _, err := p.calls.MutateByCallID(ctx, callID, calls.ApplyProgress(snap)); err != nil {
		return OutcomeFailed, fmt.Errorf("store call progress: %w", err)
	}
	return OutcomeContinue, nil
}

// displayTranscript prefers the concatenated transcript and falls back to the
// structured turns.
func (p *Poller) displayTranscript(d telephony.CallDetail) string {
	if d.ConcatenatedTranscript != "" {
		return p.formatter.Format(d.ConcatenatedTranscript)
	}
	if len(d.Transcripts) == 0 {
		return ""
	}
	turns := make([]transcript.Turn, 0, len(d.Transcripts))
	for _, t := range d.Transcripts {
		turns = append(turns, transcript.Turn{Role: t.User, Text: t.Text})
	}
	return p.formatter.FromTurns(turns)
}

func (p *Poller) stop(callID string, status calls.ReconcileStatus, reason string, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.calls.MutateByCallID(ctx, callID, calls.MarkReconcileStopped(status, reason, attempt)); err != nil {
		p.log.Error("record reconcile stop failed", "call_id", callID, "status", status, "err", err)
	}

	typ := audit.EventReconcileFailed
	if status == calls.ReconcileExhausted {
		typ = audit.EventReconcileExhausted
	}
	p.record(ctx, callID, typ, reason, map[string]any{"attempt": attempt})
}

func (p *Poller) record(ctx context.Context, callID string, typ audit.EventType, msg string, meta map[string]any) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Record(ctx, callID, typ, msg, meta); err != nil {
		p.log.Warn("audit record failed", "call_id", callID, "type", typ, "err", err)
	}
}
