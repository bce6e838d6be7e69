// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/mouse"
	"github.com/sentinel-auth/sentinel/internal/navigator"
	"github.com/sentinel-auth/sentinel/internal/orchestrator"
	"github.com/sentinel-auth/sentinel/internal/validation"
)

// Handler holds the dependencies backing Sentinel's HTTP surface.
type Handler struct {
	engine *orchestrator.Engine
}

// NewHandler constructs a Handler around a ready-to-use fusion/decision
// engine.
func NewHandler(engine *orchestrator.Engine) *Handler {
	return &Handler{engine: engine}
}

func decodeAndValidate(r *http.Request, dst interface{}) *validation.APIError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &validation.APIError{Code: "BAD_REQUEST", Message: "request body is not valid JSON"}
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr.ToAPIError()
	}
	return nil
}

// StreamKeyboard handles POST /stream/keyboard (§4.10 ingest_keyboard).
func (h *Handler) StreamKeyboard(w http.ResponseWriter, r *http.Request) {
	var req streamKeyboardRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	events := make([]keyboard.Event, len(req.Events))
	for i, e := range req.Events {
		kind := keyboard.Down
		if e.Kind == "up" {
			kind = keyboard.Up
		}
		events[i] = keyboard.Event{Key: e.Key, Kind: kind, T: e.T}
	}

	if err := h.engine.IngestKeyboard(r.Context(), req.SessionID, req.UserID, req.BatchID, events); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamMouse handles POST /stream/mouse (§4.10 ingest_mouse).
func (h *Handler) StreamMouse(w http.ResponseWriter, r *http.Request) {
	var req streamMouseRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	events := make([]mouse.Event, len(req.Events))
	for i, e := range req.Events {
		kind := mouse.Move
		if e.Kind == "click" {
			kind = mouse.Click
		}
		events[i] = mouse.Event{X: e.X, Y: e.Y, Kind: kind, T: e.T}
	}

	if err := h.engine.IngestMouse(r.Context(), req.SessionID, req.UserID, req.BatchID, events); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate handles POST /evaluate (§4.10 evaluate).
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	reqCtx := navigator.RequestContext{
		IP:         clientIP(r),
		UserAgent:  req.UserAgent,
		Endpoint:   req.Endpoint,
		Method:     req.Method,
		DeviceID:   req.DeviceID,
		GeoCountry: req.GeoCountry,
		Lat:        req.Lat,
		Lon:        req.Lon,
		HasGeo:     req.HasGeo,
		Timestamp:  ts,
	}

	decision, err := h.engine.Evaluate(r.Context(), req.EvalID, req.SessionID, req.UserID, reqCtx)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites r.RemoteAddr from X-Forwarded-For/X-Real-IP
	// when present; fall back to the raw remote address otherwise.
	return r.RemoteAddr
}

func respondEngineError(w http.ResponseWriter, err error) {
	switch err {
	case orchestrator.ErrHotStoreUnavailable:
		respondError(w, http.StatusServiceUnavailable, "HOT_STORE_UNAVAILABLE", "hot store temporarily unavailable", nil)
	case orchestrator.ErrColdStoreUnavailable:
		respondError(w, http.StatusServiceUnavailable, "COLD_STORE_UNAVAILABLE", "cold store temporarily unavailable", nil)
	default:
		logging.Error().Err(err).Msg("orchestrator call failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}
