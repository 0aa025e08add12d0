package qualify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/pkg/logger"
)

var (
	ErrInvalidLead   = errors.New("qualify: name and phone number are required")
	ErrRequestFailed = errors.New("qualify: request failed")
)

// Lead is what the demo request form captures.
type Lead struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	CompanyName string `json:"companyName"`
	Role        string `json:"role"`
	UseCase     string `json:"useCase"`
}

func (l Lead) normalized() Lead {
	l.Name = strings.TrimSpace(l.Name)
	l.PhoneNumber = strings.TrimSpace(l.PhoneNumber)
	l.CompanyName = strings.TrimSpace(l.CompanyName)
	l.Role = strings.TrimSpace(l.Role)
	l.UseCase = strings.TrimSpace(l.UseCase)
	return l
}

func (l Lead) Validate() error {
	if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.PhoneNumber) == "" {
		return ErrInvalidLead
	}
	return nil
}

// CallPlacer is the provider capability the initiator needs.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResponse, error)
}

// Scheduler starts reconciliation for a placed call.
type Scheduler interface {
	Schedule(callID string) error
}

type EventRecorder interface {
	Record(ctx context.Context, callRef string, typ audit.EventType, message string, metadata map[string]any) error
}

// Initiator turns a demo request into a stored call record and an outbound call.
type Initiator struct {
	repo      calls.Repository
	provider  CallPlacer
	scheduler Scheduler
	audit     EventRecorder
	profile   Profile
	log       *slog.Logger
}

// Options wires an Initiator. Repo and Provider are required.
type Options struct {
	Repo      calls.Repository
	Provider  CallPlacer
	Scheduler Scheduler
	Audit     EventRecorder
	Profile   Profile
	Logger    *slog.Logger
}

// NewInitiator validates opts and returns a ready Initiator.
func NewInitiator(opts Options) (*Initiator, error) {
	if opts.Repo == nil {
		return nil, errors.New("qualify: calls repository is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("qualify: provider is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Initiator{
		repo:      opts.Repo,
		provider:  opts.Provider,
		scheduler: opts.Scheduler,
		audit:     opts.Audit,
		profile:   opts.Profile,
		log:       log,
	}, nil
}

// BuildRequest renders the provider call parameters for a lead.
func (i *Initiator) BuildRequest(lead Lead) (telephony.CallRequest, error) {
	task, err := Script(i.profile, lead)
	if err != nil {
		return telephony.CallRequest{}, err
	}
	first, err := FirstMessage(i.profile, lead)
	if err != nil {
		return telephony.CallRequest{}, err
	}
	return telephony.CallRequest{
		PhoneNumber:         lead.PhoneNumber,
		Task:                task,
		VoiceID:             i.profile.VoiceID,
		ReduceLatency:       false,
		TransferPhoneNumber: i.profile.TransferPhoneNumber,
		Language:            i.profile.Language,
		Record:              true,
		Temperature:         i.profile.Temperature,
		FirstMessage:        first,
		Webhook:             i.profile.WebhookURL,
	}, nil
}

// Start stores the lead, places the call and schedules reconciliation.
//
// The row is inserted before the provider is called. When the provider fails
// the row keeps a NULL call_id and the failure is written to the audit trail.
func (i *Initiator) Start(ctx context.Context, lead Lead) (calls.Call, error) {
	lead = lead.normalized()
	if err := lead.Validate(); err != nil {
		return calls.Call{}, err
	}

	req, err := i.BuildRequest(lead)
	if err != nil {
		return calls.Call{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	row, err := i.repo.Create(ctx, calls.NewCall{
		CustomerName: lead.Name,
		CompanyName:  lead.CompanyName,
		PhoneNumber:  lead.PhoneNumber,
		Role:         lead.Role,
		UseCase:      lead.UseCase,
	})
	if err != nil {
		return calls.Call{}, fmt.Errorf("%w: store call: %v", ErrRequestFailed, err)
	}
	ref := audit.CallRef("", row.ID)
	i.record(ctx, ref, audit.EventCallRequested, "demo requested", map[string]any{"id": row.ID})

	resp, err := i.provider.PlaceCall(ctx, req)
	if err != nil {
		i.log.Error("place call failed", "id", row.ID, "err", err)
		i.record(ctx, ref, audit.EventCallFailed, err.Error(), map[string]any{"id": row.ID})
		return row, fmt.Errorf("%w: place call: %v", ErrRequestFailed, err)
	}

	placed, err := i.repo.AssignCallID(ctx, row.ID, resp.CallID)
	if err != nil {
		i.log.Error("assign call id failed", "id", row.ID, "call_id", resp.CallID, "err", err)
		return row, fmt.Errorf("%w: assign call id: %v", ErrRequestFailed, err)
	}
	row = placed
	i.record(ctx, resp.CallID, audit.EventCallPlaced, "call initiated", map[string]any{
		"id":     row.ID,
		"status": resp.Status,
	})
	i.log.Info("call initiated", "id", row.ID, "call_id", resp.CallID)

	if i.scheduler != nil {
		if err := i.scheduler.Schedule(resp.CallID); err != nil {
			i.log.Warn("schedule reconciliation failed", "call_id", resp.CallID, "err", err)
		}
	}
	return row, nil
}

func (i *Initiator) record(ctx context.Context, ref string, typ audit.EventType, msg string, meta map[string]any) {
	if i.audit == nil {
		return
	}
	if err := i.audit.Record(ctx, ref, typ, msg, meta); err != nil {
		i.log.Warn("audit record failed", "call_ref", ref, "type", typ, "err", err)
	}
}
