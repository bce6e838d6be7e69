// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes Sentinel's HTTP surface (SPEC_FULL.md §4.11, §6) over
// chi: the keyboard/mouse ingest streams, the evaluate endpoint, and the
// operational health/metrics endpoints. Routing is adapted from the
// teacher's internal/api/chi_router.go route-grouping/middleware-stack
// pattern, trimmed to Sentinel's much smaller route set.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sentinel-auth/sentinel/internal/logging"
)

// apiResponse is the standardized response envelope for every endpoint,
// adapted from the teacher's APIResponse wrapper.
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: status < 400, Data: data}); err != nil {
		logging.Error().Err(err).Msg("encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := apiResponse{Success: false, Error: &apiError{Code: code, Message: message, Details: details}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("encode error response failed")
	}
}
