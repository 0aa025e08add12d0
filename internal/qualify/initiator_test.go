package qualify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	got  []telephony.CallRequest
	resp telephony.CallResponse
	err  error
}

func (f *fakePlacer) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResponse, error) {
	f.got = append(f.got, req)
	return f.resp, f.err
}

type fakeScheduler struct {
	ids []string
	err error
}

func (f *fakeScheduler) Schedule(callID string) error {
	f.ids = append(f.ids, callID)
	return f.err
}

func testProfile() Profile {
	return Profile{
		AgentName:           "Jonathan",
		Company:             "Babou Cooperations",
		TransferPhoneNumber: "+18506084580",
		VoiceID:             1,
		Language:            "en",
		Temperature:         0.7,
	}
}

func newInitiator(t *testing.T, placer *fakePlacer, sched *fakeScheduler) (*Initiator, *calls.MemoryRepo, *audit.MemoryRepo) {
	t.Helper()
	repo := calls.NewMemoryRepo()
	events := audit.NewMemoryRepo()
	opts := Options{
		Repo:     repo,
		Provider: placer,
		Audit:    audit.NewService(events),
		Profile:  testProfile(),
	}
	if sched != nil {
		opts.Scheduler = sched
	}
	in, err := NewInitiator(opts)
	require.NoError(t, err)
	return in, repo, events
}

var lead = Lead{Name: "Ada", PhoneNumber: "+15550001", CompanyName: "Analytical Engines", Role: "CTO", UseCase: "ads"}

func TestInitiator_Start(t *testing.T) {
	placer := &fakePlacer{resp: telephony.CallResponse{CallID: "c-1", Status: "success"}}
	sched := &fakeScheduler{}
	in, repo, events := newInitiator(t, placer, sched)

	row, err := in.Start(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, "c-1", row.ExternalID())
	assert.Equal(t, []string{"c-1"}, sched.ids)

	stored, err := repo.GetByCallID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.CustomerName)
	assert.Equal(t, "CTO", stored.Role)

	require.Len(t, placer.got, 1)
	req := placer.got[0]
	assert.Equal(t, "+15550001", req.PhoneNumber)
	assert.Equal(t, 1, req.VoiceID)
	assert.False(t, req.ReduceLatency)
	assert.True(t, req.Record)
	assert.Equal(t, "+18506084580", req.TransferPhoneNumber)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, "Hello Ada, this is Jonathan from Babou Cooperations. I noticed you recently submitted an inquiry about our services - is this a good time to talk?", req.FirstMessage)
	assert.Empty(t, req.Webhook)

	types := []audit.EventType{}
	for _, e := range events.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []audit.EventType{audit.EventCallRequested, audit.EventCallPlaced}, types)
}

func TestInitiator_ProviderFailureLeavesOrphan(t *testing.T) {
	placer := &fakePlacer{err: &telephony.APIError{StatusCode: 400, Body: []byte(`{"message":"bad number"}`)}}
	sched := &fakeScheduler{}
	in, repo, events := newInitiator(t, placer, sched)

	_, err := in.Start(context.Background(), lead)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Empty(t, sched.ids)

	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].CallID)

	evs := events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, audit.EventCallFailed, evs[1].Type)
	assert.Equal(t, "#1", evs[1].CallRef)
}

func TestInitiator_SchedulerErrorDoesNotFailRequest(t *testing.T) {
	placer := &fakePlacer{resp: telephony.CallResponse{CallID: "c-1"}}
	in, _, _ := newInitiator(t, placer, &fakeScheduler{err: errors.New("locked")})

	_, err := in.Start(context.Background(), lead)
	assert.NoError(t, err)
}

func TestInitiator_RejectsIncompleteLead(t *testing.T) {
	placer := &fakePlacer{}
	in, repo, _ := newInitiator(t, placer, nil)

	_, err := in.Start(context.Background(), Lead{Name: "  ", PhoneNumber: "+1"})
	assert.ErrorIs(t, err, ErrInvalidLead)
	_, err = in.Start(context.Background(), Lead{Name: "Ada"})
	assert.ErrorIs(t, err, ErrInvalidLead)

	rows, _ := repo.List(context.Background())
	assert.Empty(t, rows)
	assert.Empty(t, placer.got)
}

func TestInitiator_WebhookURLIsPassedThrough(t *testing.T) {
	placer := &fakePlacer{resp: telephony.CallResponse{CallID: "c-1"}}
	in, _, _ := newInitiator(t, placer, nil)
	in.profile.WebhookURL = "https://leads.example.com/webhook"

	_, err := in.Start(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, "https://leads.example.com/webhook", placer.got[0].Webhook)
}

func TestScript_InterpolatesLead(t *testing.T) {
	s, err := Script(testProfile(), lead)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "GENERAL INFORMATION:\nYou are Jonathan from the Babou Cooperations GTM (Go-to-Market) team."))
	for _, want := range []string{
		"* Name: Ada",
		"* Company: Analytical Engines",
		"* Role: CTO",
		"* Initial Interest: ads",
		"TRANSFER INFORMATION:",
		"IMPORTANT GUIDELINES:",
	} {
		assert.Contains(t, s, want)
	}
}

func TestScript_CompanyNameReadsNaturally(t *testing.T) {
	p := testProfile()
	p.Company = "Acme"
	s, err := Script(p, lead)
	require.NoError(t, err)
	assert.Contains(t, s, "You are Jonathan from the Acme GTM (Go-to-Market) team.")
	assert.NotContains(t, s, "Acme'")
}
