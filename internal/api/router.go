// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/orchestrator"
)

// NewRouter builds Sentinel's full HTTP surface: the keyboard/mouse ingest
// streams and evaluate endpoint under per-endpoint rate limiting, plus
// healthz/metrics. Route grouping mirrors the teacher's chi_router.go.
func NewRouter(cfg *config.Config, engine *orchestrator.Engine) http.Handler {
	handler := NewHandler(engine)
	mw := newChiMiddleware(cfg.RateLimit)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.cors)

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.With(mw.streamRateLimit).Post("/stream/keyboard", handler.StreamKeyboard)
	r.With(mw.streamRateLimit).Post("/stream/mouse", handler.StreamMouse)
	r.With(mw.evaluateRateLimit).Post("/evaluate", handler.Evaluate)

	return r
}
