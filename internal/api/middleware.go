// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sentinel-auth/sentinel/internal/config"
)

// chiMiddleware adapts Sentinel's rate-limit/CORS configuration to Chi's
// func(http.Handler) http.Handler factories, the same seam the teacher's
// chi_middleware.go uses to keep route files free of per-middleware
// construction details.
type chiMiddleware struct {
	cors               func(http.Handler) http.Handler
	streamRateLimit    func(http.Handler) http.Handler
	evaluateRateLimit  func(http.Handler) http.Handler
}

func newChiMiddleware(cfg config.RateLimitConfig) *chiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   []string{},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	return &chiMiddleware{
		cors: corsHandler,
		streamRateLimit: httprate.Limit(
			cfg.StreamPerSecond, time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		),
		evaluateRateLimit: httprate.Limit(
			cfg.EvalPerSecond, time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		),
	}
}
