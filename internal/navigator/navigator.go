// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package navigator implements the stateless request-context policy engine
// (§4.5): unknown-UA scoring, trust-on-first-use context pinning, impossible
// travel, and the restored policy-violation signal grounded on
// original_source's navigator.py risk_score = max(velocity, infra, policy,
// device).
package navigator

import (
	"math"
	"time"
)

// Decision is the navigator engine's verdict.
type Decision int

const (
	// OK permits the request to continue into fusion.
	OK Decision = iota
	// Block forces an immediate BLOCK via the priority override chain.
	Block
)

// RequestContext is the per-evaluate request environment.
type RequestContext struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
	DeviceID  string
	GeoCountry string
	Lat, Lon  float64
	HasGeo    bool
	Timestamp time.Time
}

// TOFUContext is the trust-on-first-use snapshot pinned at a session's first
// evaluate.
type TOFUContext struct {
	UAClass    string
	DeviceID   string
	GeoCountry string
}

// GeoPoint is a prior evaluate's geolocation, carried by the caller
// (hotstate.SessionState) across calls for impossible-travel checks.
type GeoPoint struct {
	Lat, Lon  float64
	HasGeo    bool
	Timestamp time.Time
}

// Result is the navigator engine's output for one evaluate.
type Result struct {
	Score      float64
	Decision   Decision
	Violations []string
}

// DETERMINISM: use an epsilon-based coordinate check instead of direct
// float equality — a (0,0) sentinel for "no geolocation" must tolerate
// floating point round-trip through storage.
const coordinateEpsilon = 1e-7

// IsUnknownLocation reports whether (lat, lon) is the "no geolocation"
// sentinel.
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < coordinateEpsilon && math.Abs(lon) < coordinateEpsilon
}

// Config holds the navigator engine's tunables.
type Config struct {
	KnownUAClasses     map[string]bool
	UnknownUAScore     float64
	TOFUFieldScore     float64
	PolicyViolationScore float64
	MaxSpeedKmH        float64
	MinTimeDeltaMinutes float64
	MinDistanceKm      float64
}

// DefaultConfig returns the defaults matching spec.md §4.5.
func DefaultConfig() Config {
	return Config{
		KnownUAClasses:      map[string]bool{"desktop-chrome": true, "desktop-firefox": true, "desktop-safari": true, "mobile-safari": true, "mobile-chrome": true},
		UnknownUAScore:      0.4,
		TOFUFieldScore:      0.3,
		PolicyViolationScore: 0.35,
		MaxSpeedKmH:         900, // ~500 mph
		MinTimeDeltaMinutes: 1,
		MinDistanceKm:       50,
	}
}

// PolicyEnforcer abstracts the Casbin ABAC check so this package doesn't
// hard-depend on casbin's types in its public surface.
type PolicyEnforcer interface {
	// Violates reports whether (deviceID, endpoint, method) matches a
	// deny rule.
	Violates(deviceID, endpoint, method string) bool
}

// Engine is the stateless navigator policy engine. It holds no per-session
// state; callers supply and receive TOFUContext/GeoPoint explicitly.
type Engine struct {
	cfg      Config
	enforcer PolicyEnforcer
}

// New constructs a navigator Engine. enforcer may be nil to disable the
// policy-violation signal (e.g. in tests).
func New(cfg Config, enforcer PolicyEnforcer) *Engine {
	return &Engine{cfg: cfg, enforcer: enforcer}
}

func uaClass(userAgent string) string {
	switch {
	case contains(userAgent, "Chrome") && contains(userAgent, "Mobile"):
		return "mobile-chrome"
	case contains(userAgent, "Chrome"):
		return "desktop-chrome"
	case contains(userAgent, "Firefox"):
		return "desktop-firefox"
	case contains(userAgent, "Safari") && contains(userAgent, "Mobile"):
		return "mobile-safari"
	case contains(userAgent, "Safari"):
		return "desktop-safari"
	default:
		return "unknown"
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// Evaluate runs all navigator rules for one request. If pinned is nil, this
// is the session's first evaluate: the returned TOFUContext should be
// stored by the caller and this call's nav_score is forced to 0 per §4.5.
func (e *Engine) Evaluate(reqCtx RequestContext, pinned *TOFUContext, prevGeo GeoPoint) (Result, TOFUContext) {
	class := uaClass(reqCtx.UserAgent)
	current := TOFUContext{UAClass: class, DeviceID: reqCtx.DeviceID, GeoCountry: reqCtx.GeoCountry}

	if pinned == nil {
		return Result{Score: 0, Decision: OK}, current
	}

	var score float64
	var violations []string

	if !e.cfg.KnownUAClasses[class] {
		score += e.cfg.UnknownUAScore
		violations = append(violations, "unknown_user_agent")
	}

	if pinned.UAClass != current.UAClass {
		score += e.cfg.TOFUFieldScore
		violations = append(violations, "tofu_ua_deviation")
	}
	if pinned.DeviceID != current.DeviceID {
		score += e.cfg.TOFUFieldScore
		violations = append(violations, "tofu_device_deviation")
	}
	if pinned.GeoCountry != current.GeoCountry {
		score += e.cfg.TOFUFieldScore
		violations = append(violations, "tofu_geo_deviation")
	}

	decision := OK
	if prevGeo.HasGeo && reqCtx.HasGeo && !IsUnknownLocation(prevGeo.Lat, prevGeo.Lon) && !IsUnknownLocation(reqCtx.Lat, reqCtx.Lon) {
		if speed, impossible := e.impossibleTravel(prevGeo, reqCtx); impossible {
			decision = Block
			violations = append(violations, "impossible_travel")
			_ = speed
		}
	}

	if e.enforcer != nil && e.enforcer.Violates(reqCtx.DeviceID, reqCtx.Endpoint, reqCtx.Method) {
		score += e.cfg.PolicyViolationScore
		violations = append(violations, "policy_violation")
	}

	score = math.Min(score, 1.0)
	return Result{Score: score, Decision: decision, Violations: violations}, current
}

func (e *Engine) impossibleTravel(prev GeoPoint, cur RequestContext) (speedKmH float64, impossible bool) {
	timeDelta := cur.Timestamp.Sub(prev.Timestamp)
	if timeDelta <= 0 {
		return 0, false
	}
	minDelta := time.Duration(e.cfg.MinTimeDeltaMinutes * float64(time.Minute))
	if timeDelta < minDelta {
		return 0, false
	}

	distanceKm := haversineDistanceKm(prev.Lat, prev.Lon, cur.Lat, cur.Lon)
	if distanceKm < e.cfg.MinDistanceKm {
		return 0, false
	}

	const floatEpsilon = 1e-9
	hours := timeDelta.Hours()
	if math.Abs(hours) < floatEpsilon {
		hours = 0.001
	}
	speed := distanceKm / hours
	return speed, speed > e.cfg.MaxSpeedKmH
}

// haversineDistanceKm computes great-circle distance in kilometers.
// Adapted from the teacher's impossible-travel detector.
func haversineDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
