// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "time"

// keyboardEventDTO is the wire format of one keystroke transition.
type keyboardEventDTO struct {
	Key  string  `json:"key" validate:"required"`
	Kind string  `json:"kind" validate:"required,oneof=down up"`
	T    float64 `json:"t" validate:"gte=0"`
}

// streamKeyboardRequest is the validated body of POST /stream/keyboard.
type streamKeyboardRequest struct {
	SessionID string             `json:"session_id" validate:"required"`
	UserID    string             `json:"user_id" validate:"required"`
	BatchID   int64              `json:"batch_id" validate:"required,gte=1"`
	Events    []keyboardEventDTO `json:"events" validate:"required,min=1,dive"`
}

// mouseEventDTO is the wire format of one mouse sample.
type mouseEventDTO struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Kind string  `json:"kind" validate:"required,oneof=move click"`
	T    float64 `json:"t" validate:"gte=0"`
}

// streamMouseRequest is the validated body of POST /stream/mouse.
type streamMouseRequest struct {
	SessionID string          `json:"session_id" validate:"required"`
	UserID    string          `json:"user_id" validate:"required"`
	BatchID   int64           `json:"batch_id" validate:"required,gte=1"`
	Events    []mouseEventDTO `json:"events" validate:"required,min=1,dive"`
}

// evaluateRequest is the validated body of POST /evaluate.
type evaluateRequest struct {
	EvalID    string `json:"eval_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`

	UserAgent  string  `json:"user_agent" validate:"required"`
	Endpoint   string  `json:"endpoint" validate:"required"`
	Method     string  `json:"method" validate:"required"`
	DeviceID   string  `json:"device_id" validate:"required"`
	GeoCountry string  `json:"geo_country"`
	Lat        float64 `json:"lat" validate:"omitempty,latitude"`
	Lon        float64 `json:"lon" validate:"omitempty,longitude"`
	HasGeo     bool    `json:"has_geo"`

	Timestamp time.Time `json:"timestamp"`
}
