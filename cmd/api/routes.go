package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/config"
	"lead-qualifier/internal/httpapi"
	"lead-qualifier/internal/reporting"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/internal/transcript"
	"lead-qualifier/pkg/logger"
	"lead-qualifier/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

type routeDeps struct {
	db        *sql.DB
	calls     calls.Repository
	mutator   *calls.Service
	initiator httpapi.Starter
	provider  telephony.Provider
	poller    httpapi.Trigger
	audit     *audit.Service
	formatter transcript.Formatter
}

// newRouter wires HTTP routes to handlers and wraps the engine with CORS.
// Keep this file free of business logic.
func newRouter(cfg config.Config, log *slog.Logger, d routeDeps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Calls:     d.calls,
		Mutator:   d.mutator,
		Initiator: d.initiator,
		Provider:  d.provider,
		Poller:    d.poller,
		Reporting: reporting.NewService(d.calls),
		Audit:     d.audit,
		Formatter: d.formatter,
		Ping: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, d.db, 2*time.Second)
		},
	}
	h.Register(r)

	return cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{logger.HeaderRequestID},
	}).Handler(r)
}
