package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/qualify"
	"lead-qualifier/internal/reconcile"
	"lead-qualifier/internal/reporting"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/internal/transcript"
	"lead-qualifier/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Starter places an outbound qualification call for a lead.
type Starter interface {
	Start(ctx context.Context, lead qualify.Lead) (calls.Call, error)
}

// Trigger starts an immediate reconciliation chain.
type Trigger interface {
	Trigger(callID string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     calls.Repository
	Mutator   *calls.Service
	Initiator Starter
	Provider  telephony.Provider
	Poller    Trigger
	Reporting *reporting.Service
	Audit     *audit.Service
	Formatter transcript.Formatter

	// Ping checks the database for /healthz.
	Ping func(ctx context.Context) error
}

// --- Demo requests ---

func (h Handlers) RequestDemo(c *gin.Context) {
	log := logger.FromGin(c)

	var lead qualify.Lead
	if err := c.ShouldBindJSON(&lead); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	row, err := h.Initiator.Start(c.Request.Context(), lead)
	if errors.Is(err, qualify.ErrInvalidLead) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Name and phone number are required"})
		return
	}
	if err != nil {
		log.Error("request demo failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Call initiated successfully", "call_id": row.ExternalID()})
}

// --- Provider webhook ---

func (h Handlers) Webhook(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := telephony.ParseWebhook(c.Request.Body)
	if err != nil {
		log.Warn("webhook rejected", "call_id", payload.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	_, err = h.Mutator.MutateByCallID(c.Request.Context(), payload.CallID, calls.ApplyWebhookTranscript(payload.Transcript))
	if errors.Is(err, calls.ErrNotFound) {
		log.Warn("webhook for unknown call", "call_id", payload.CallID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"status": "error"})
		return
	}
	if err != nil {
		log.Error("saving webhook transcript failed", "call_id", payload.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	if h.Audit != nil {
		if err := h.Audit.Record(c.Request.Context(), payload.CallID, audit.EventWebhookTranscript, "transcript received", map[string]any{
			"status": payload.Status,
			"chars":  len(payload.Transcript),
		}); err != nil {
			log.Warn("audit record failed", "call_id", payload.CallID, "err", err)
		}
	}
	log.Info("webhook transcript saved", "call_id", payload.CallID)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// --- Stored records ---

func (h Handlers) ListCalls(c *gin.Context) {
	rows, err := h.Calls.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch calls"})
		return
	}
	if rows == nil {
		rows = []calls.Call{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h Handlers) ListCallsWithMedia(c *gin.Context) {
	rows, err := h.Calls.ListMedia(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("list calls with media failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch calls"})
		return
	}
	if rows == nil {
		rows = []calls.MediaView{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h Handlers) GetCall(c *gin.Context) {
	row, ok := h.loadCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, row)
}

// CallEvents returns the audit trail of one call, including events recorded
// before the provider assigned its id.
func (h Handlers) CallEvents(c *gin.Context) {
	row, ok := h.loadCall(c)
	if !ok {
		return
	}
	if h.Audit == nil {
		c.JSON(http.StatusOK, []audit.Event{})
		return
	}

	ctx := c.Request.Context()
	out, err := h.Audit.History(ctx, audit.CallRef("", row.ID))
	if err == nil && row.ExternalID() != "" {
		var placed []audit.Event
		placed, err = h.Audit.History(ctx, row.ExternalID())
		out = append(out, placed...)
	}
	if err != nil {
		logger.FromGin(c).Error("list call events failed", "id", row.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch call events"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) loadCall(c *gin.Context) (calls.Call, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return calls.Call{}, false
	}
	row, err := h.Calls.Get(c.Request.Context(), id)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return calls.Call{}, false
	}
	if err != nil {
		logger.FromGin(c).Error("get call failed", "id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch call"})
		return calls.Call{}, false
	}
	return row, true
}

func (h Handlers) FormattedTranscript(c *gin.Context) {
	row, err := h.Calls.GetByCallID(c.Request.Context(), c.Param("callId"))
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		logger.FromGin(c).Error("get transcript failed", "call_id", c.Param("callId"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transcript"})
		return
	}
	if err != nil || !row.HasTranscript() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Transcript not found"})
		return
	}
	raw := *row.Transcript
	c.JSON(http.StatusOK, gin.H{
		"formatted_transcript": h.Formatter.Format(raw),
		"raw_transcript":       raw,
	})
}

func (h Handlers) CallsSummary(c *gin.Context) {
	var req reporting.CallsSummaryRequest
	for key, dst := range map[string]*time.Time{"from": &req.Range.From, "to": &req.Range.To} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an RFC3339 timestamp"})
			return
		}
		*dst = t
	}

	out, err := h.Reporting.CallsSummary(c.Request.Context(), req)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to build summary"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Provider proxies ---

func (h Handlers) GetTranscript(c *gin.Context) {
	tr, err := h.Provider.GetTranscript(c.Request.Context(), c.Param("callId"))
	if err != nil {
		logger.FromGin(c).Warn("fetch transcript failed", "call_id", c.Param("callId"), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Error fetching transcript", "status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": tr})
}

func (h Handlers) CallMedia(c *gin.Context) {
	raw, err := h.Provider.CallMedia(c.Request.Context(), c.Param("callId"))
	if err != nil {
		logger.FromGin(c).Warn("fetch call media failed", "call_id", c.Param("callId"), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to fetch call media", "message": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h Handlers) CheckCall(c *gin.Context) {
	raw, err := h.Provider.CheckCall(c.Request.Context(), c.Param("callId"))
	if err != nil {
		var details any
		var apiErr *telephony.APIError
		if errors.As(err, &apiErr) {
			details = apiErr.Details()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": details})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// --- Reconciliation ---

func (h Handlers) Reconcile(c *gin.Context) {
	callID := c.Param("callId")
	if _, err := h.Calls.GetByCallID(c.Request.Context(), callID); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
			return
		}
		logger.FromGin(c).Error("get call failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch call"})
		return
	}

	err := h.Poller.Trigger(callID)
	switch {
	case errors.Is(err, reconcile.ErrLocked):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Reconciliation already running"})
	case err != nil:
		logger.FromGin(c).Error("trigger reconcile failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule reconciliation"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "call_id": callID})
	}
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "up"})
}

// Register mounts every route on r.
func (h Handlers) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	r.POST("/request-demo", h.RequestDemo)
	r.POST("/webhook", h.Webhook)
	r.POST("/reconcile/:callId", h.Reconcile)

	r.GET("/calls", h.ListCalls)
	r.GET("/calls/summary", h.CallsSummary)
	r.GET("/calls-with-media", h.ListCallsWithMedia)
	r.GET("/call/:id", h.GetCall)
	r.GET("/call/:id/events", h.CallEvents)
	r.GET("/formatted-transcript/:callId", h.FormattedTranscript)

	r.GET("/get-transcript/:callId", h.GetTranscript)
	r.GET("/call-media/:callId", h.CallMedia)
	r.GET("/check-call/:callId", h.CheckCall)
}
