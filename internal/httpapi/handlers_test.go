package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/qualify"
	"lead-qualifier/internal/reconcile"
	"lead-qualifier/internal/reporting"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/internal/transcript"
	"lead-qualifier/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	placeErr error
	rawErr   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResponse, error) {
	if f.placeErr != nil {
		return telephony.CallResponse{}, f.placeErr
	}
	return telephony.CallResponse{CallID: "c-new", Status: "success"}, nil
}

func (f *fakeProvider) GetCall(ctx context.Context, callID string) (telephony.CallDetail, error) {
	return telephony.CallDetail{Status: "queued"}, f.rawErr
}

func (f *fakeProvider) GetTranscript(ctx context.Context, callID string) (json.RawMessage, error) {
	if f.rawErr != nil {
		return nil, f.rawErr
	}
	return json.RawMessage(`"user: hi"`), nil
}

func (f *fakeProvider) CallMedia(ctx context.Context, callID string) (json.RawMessage, error) {
	if f.rawErr != nil {
		return nil, f.rawErr
	}
	return json.RawMessage(`{"call_id":"` + callID + `","recording_url":"https://r.example/a.mp3"}`), nil
}

func (f *fakeProvider) CheckCall(ctx context.Context, callID string) (json.RawMessage, error) {
	if f.rawErr != nil {
		return nil, f.rawErr
	}
	return json.RawMessage(`{"status":"queued"}`), nil
}

type fakeTrigger struct {
	ids []string
	err error
}

func (f *fakeTrigger) Trigger(callID string) error {
	f.ids = append(f.ids, callID)
	return f.err
}

type env struct {
	router   *gin.Engine
	repo     *calls.MemoryRepo
	events   *audit.MemoryRepo
	provider *fakeProvider
	trigger  *fakeTrigger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := calls.NewMemoryRepo()
	events := audit.NewMemoryRepo()
	auditSvc := audit.NewService(events)
	provider := &fakeProvider{}
	trigger := &fakeTrigger{}

	initiator, err := qualify.NewInitiator(qualify.Options{
		Repo:     repo,
		Provider: provider,
		Audit:    auditSvc,
		Profile:  qualify.Profile{AgentName: "Jonathan", Company: "Babou Cooperations", VoiceID: 1},
	})
	require.NoError(t, err)

	h := Handlers{
		Calls:     repo,
		Mutator:   calls.NewService(repo),
		Initiator: initiator,
		Provider:  provider,
		Poller:    trigger,
		Reporting: reporting.NewService(repo),
		Audit:     auditSvc,
		Formatter: transcript.New("Jonathan"),
		Ping:      func(context.Context) error { return nil },
	}
	r := gin.New()
	r.Use(logger.Middleware(logger.Discard()))
	h.Register(r)

	return &env{router: r, repo: repo, events: events, provider: provider, trigger: trigger}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) seed(t *testing.T, callID string, transcriptText *string) calls.Call {
	t.Helper()
	ctx := context.Background()
	c, err := e.repo.Create(ctx, calls.NewCall{CustomerName: "Ada", CompanyName: "Analytical", PhoneNumber: "+15550001"})
	require.NoError(t, err)
	if callID == "" {
		return c
	}
	c, err = e.repo.AssignCallID(ctx, c.ID, callID)
	require.NoError(t, err)
	if transcriptText != nil {
		c, err = calls.NewService(e.repo).Mutate(ctx, c.ID, calls.ApplyWebhookTranscript(*transcriptText))
		require.NoError(t, err)
	}
	return c
}

func str(s string) *string { return &s }

func TestRequestDemo(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/request-demo", `{"name":"Ada","phoneNumber":"+15550001","companyName":"Analytical","role":"CTO","useCase":"ads"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Call initiated successfully","call_id":"c-new"}`, w.Body.String())

	row, err := e.repo.GetByCallID(context.Background(), "c-new")
	require.NoError(t, err)
	assert.Equal(t, "Ada", row.CustomerName)
	assert.NotEmpty(t, w.Header().Get(logger.HeaderRequestID))
}

func TestRequestDemo_MissingFields(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/request-demo", `{"name":"Ada"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/request-demo", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestDemo_ProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.provider.placeErr = errors.New("boom")

	w := e.do(http.MethodPost, "/request-demo", `{"name":"Ada","phoneNumber":"+15550001"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to process request"}`, w.Body.String())

	rows, _ := e.repo.List(context.Background())
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].CallID)
}

func TestWebhook(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "c-1", nil)

	w := e.do(http.MethodPost, "/webhook", `{"call_id":"c-1","transcript":"user: hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())

	row, _ := e.repo.GetByCallID(context.Background(), "c-1")
	assert.Equal(t, "user: hello", *row.Transcript)

	evs := e.events.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, audit.EventWebhookTranscript, evs[len(evs)-1].Type)
}

func TestWebhook_UnknownAndInvalid(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/webhook", `{"call_id":"nope","transcript":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"error"}`, w.Body.String())

	w = e.do(http.MethodPost, "/webhook", `{"call_id":"c-1","transcript":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCalls(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/calls", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	e.seed(t, "c-1", str("hi"))
	e.seed(t, "c-2", nil)

	w = e.do(http.MethodGet, "/calls", "")
	var rows []calls.Call
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "c-2", rows[0].ExternalID())

	w = e.do(http.MethodGet, "/calls-with-media", "")
	require.Equal(t, http.StatusOK, w.Code)
	var media []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &media))
	require.Len(t, media, 2)
	assert.ElementsMatch(t, []string{"customer_name", "transcript", "recording_url", "created_at", "call_status"}, keys(media[0]))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestGetCall(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t, "c-1", nil)

	w := e.do(http.MethodGet, "/call/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got calls.Call
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, c.ID, got.ID)

	for _, path := range []string{"/call/99", "/call/abc"} {
		w = e.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.JSONEq(t, `{"error":"Call not found"}`, w.Body.String())
	}
}

func TestCallEvents(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/request-demo", `{"name":"Ada","phoneNumber":"+15550001"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/call/1/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	var evs []audit.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &evs))
	require.Len(t, evs, 2)
	assert.Equal(t, audit.EventCallRequested, evs[0].Type)
	assert.Equal(t, audit.EventCallPlaced, evs[1].Type)
}

func TestFormattedTranscript(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "c-1", str("assistant: Hi there\nuser: I'm interested"))
	e.seed(t, "c-2", nil)

	w := e.do(http.MethodGet, "/formatted-transcript/c-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "👨‍💼 Jonathan: Hi there\n👤 Customer: I'm interested", got["formatted_transcript"])
	assert.Equal(t, "assistant: Hi there\nuser: I'm interested", got["raw_transcript"])

	for _, id := range []string{"c-2", "missing"} {
		w = e.do(http.MethodGet, "/formatted-transcript/"+id, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"message":"Transcript not found"}`, w.Body.String())
	}
}

func TestProviderProxies(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/get-transcript/c-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transcript":"user: hi"}`, w.Body.String())

	w = e.do(http.MethodGet, "/call-media/c-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"call_id":"c-1","recording_url":"https://r.example/a.mp3"}`, w.Body.String())

	w = e.do(http.MethodGet, "/check-call/c-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"queued"}`, w.Body.String())
}

func TestProviderProxies_Errors(t *testing.T) {
	e := newEnv(t)
	e.provider.rawErr = &telephony.APIError{StatusCode: 404, Body: []byte(`{"message":"not found"}`)}

	w := e.do(http.MethodGet, "/get-transcript/c-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Error fetching transcript","status":"error"}`, w.Body.String())

	w = e.do(http.MethodGet, "/call-media/c-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to fetch call media")

	w = e.do(http.MethodGet, "/check-call/c-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, map[string]any{"message": "not found"}, got["details"])
}

func TestReconcileTrigger(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "c-1", nil)

	w := e.do(http.MethodPost, "/reconcile/c-1", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"c-1"}, e.trigger.ids)

	e.trigger.err = reconcile.ErrLocked
	w = e.do(http.MethodPost, "/reconcile/c-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/reconcile/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallsSummary(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "c-1", str("hi"))

	w := e.do(http.MethodGet, "/calls/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got reporting.CallsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalCalls)
	assert.Equal(t, 1, got.TranscribedCalls)

	w = e.do(http.MethodGet, "/calls/summary?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/calls/summary?from=2025-02-01T00:00:00Z&to=2025-01-01T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":"up"}`, w.Body.String())
}
