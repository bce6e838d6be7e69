// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package navigator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubEnforcer struct {
	violates bool
}

func (s stubEnforcer) Violates(_, _, _ string) bool { return s.violates }

func newRequestContext(t time.Time) RequestContext {
	return RequestContext{
		IP:         "203.0.113.1",
		UserAgent:  "Mozilla/5.0 Chrome/120.0",
		Endpoint:   "/api/evaluate",
		Method:     "POST",
		DeviceID:   "device-1",
		GeoCountry: "US",
		Lat:        37.7749, Lon: -122.4194,
		HasGeo:    true,
		Timestamp: t,
	}
}

func TestIsUnknownLocation(t *testing.T) {
	require.True(t, IsUnknownLocation(0, 0))
	require.False(t, IsUnknownLocation(37.7749, -122.4194))
}

func TestEvaluate_FirstCallPinsContextAndScoresZero(t *testing.T) {
	e := New(DefaultConfig(), nil)
	reqCtx := newRequestContext(time.Now())

	result, pinned := e.Evaluate(reqCtx, nil, GeoPoint{})

	require.Equal(t, 0.0, result.Score)
	require.Equal(t, OK, result.Decision)
	require.Empty(t, result.Violations)
	require.Equal(t, "desktop-chrome", pinned.UAClass)
	require.Equal(t, "device-1", pinned.DeviceID)
	require.Equal(t, "US", pinned.GeoCountry)
}

func TestEvaluate_UnknownUserAgentIsScored(t *testing.T) {
	e := New(DefaultConfig(), nil)
	now := time.Now()
	reqCtx := newRequestContext(now)
	reqCtx.UserAgent = "curl/8.0"

	pinned := TOFUContext{UAClass: "unknown", DeviceID: "device-1", GeoCountry: "US"}
	result, _ := e.Evaluate(reqCtx, &pinned, GeoPoint{})

	require.Contains(t, result.Violations, "unknown_user_agent")
	require.InDelta(t, DefaultConfig().UnknownUAScore, result.Score, 1e-9)
}

func TestEvaluate_TOFUDeviationsAccumulate(t *testing.T) {
	e := New(DefaultConfig(), nil)
	now := time.Now()
	reqCtx := newRequestContext(now)

	pinned := TOFUContext{UAClass: "desktop-firefox", DeviceID: "device-2", GeoCountry: "CA"}
	result, _ := e.Evaluate(reqCtx, &pinned, GeoPoint{})

	require.Contains(t, result.Violations, "tofu_ua_deviation")
	require.Contains(t, result.Violations, "tofu_device_deviation")
	require.Contains(t, result.Violations, "tofu_geo_deviation")
	require.InDelta(t, 0.9, result.Score, 1e-9, "three TOFU deviations at 0.3 each")
}

func TestEvaluate_ScoreClampedAtOne(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg, stubEnforcer{violates: true})
	now := time.Now()
	reqCtx := newRequestContext(now)
	reqCtx.UserAgent = "curl/8.0"

	pinned := TOFUContext{UAClass: "desktop-firefox", DeviceID: "device-2", GeoCountry: "CA"}
	result, _ := e.Evaluate(reqCtx, &pinned, GeoPoint{})

	require.LessOrEqual(t, result.Score, 1.0)
}

func TestEvaluate_PolicyViolationIsScored(t *testing.T) {
	e := New(DefaultConfig(), stubEnforcer{violates: true})
	now := time.Now()
	reqCtx := newRequestContext(now)
	pinned := TOFUContext{UAClass: "desktop-chrome", DeviceID: "device-1", GeoCountry: "US"}

	result, _ := e.Evaluate(reqCtx, &pinned, GeoPoint{})

	require.Contains(t, result.Violations, "policy_violation")
	require.InDelta(t, DefaultConfig().PolicyViolationScore, result.Score, 1e-9)
}

func TestEvaluate_NilEnforcerNeverViolatesPolicy(t *testing.T) {
	e := New(DefaultConfig(), nil)
	now := time.Now()
	reqCtx := newRequestContext(now)
	pinned := TOFUContext{UAClass: "desktop-chrome", DeviceID: "device-1", GeoCountry: "US"}

	result, _ := e.Evaluate(reqCtx, &pinned, GeoPoint{})
	require.NotContains(t, result.Violations, "policy_violation")
	require.Equal(t, 0.0, result.Score)
}

func TestEvaluate_ImpossibleTravelForcesBlock(t *testing.T) {
	e := New(DefaultConfig(), nil)
	t0 := time.Now()
	prevGeo := GeoPoint{Lat: 37.7749, Lon: -122.4194, HasGeo: true, Timestamp: t0}

	reqCtx := newRequestContext(t0.Add(2 * time.Minute))
	reqCtx.Lat, reqCtx.Lon = 40.7128, -74.0060 // New York, ~4100km from San Francisco
	pinned := TOFUContext{UAClass: "desktop-chrome", DeviceID: "device-1", GeoCountry: "US"}

	result, _ := e.Evaluate(reqCtx, &pinned, prevGeo)

	require.Equal(t, Block, result.Decision)
	require.Contains(t, result.Violations, "impossible_travel")
}

func TestEvaluate_PlausibleTravelDoesNotBlock(t *testing.T) {
	e := New(DefaultConfig(), nil)
	t0 := time.Now()
	prevGeo := GeoPoint{Lat: 37.7749, Lon: -122.4194, HasGeo: true, Timestamp: t0}

	reqCtx := newRequestContext(t0.Add(10 * time.Hour))
	reqCtx.Lat, reqCtx.Lon = 40.7128, -74.0060
	pinned := TOFUContext{UAClass: "desktop-chrome", DeviceID: "device-1", GeoCountry: "US"}

	result, _ := e.Evaluate(reqCtx, &pinned, prevGeo)

	require.Equal(t, OK, result.Decision)
	require.NotContains(t, result.Violations, "impossible_travel")
}

func TestEvaluate_UnknownGeoSkipsImpossibleTravel(t *testing.T) {
	e := New(DefaultConfig(), nil)
	t0 := time.Now()
	prevGeo := GeoPoint{Lat: 0, Lon: 0, HasGeo: true, Timestamp: t0}

	reqCtx := newRequestContext(t0.Add(2 * time.Minute))
	reqCtx.Lat, reqCtx.Lon = 40.7128, -74.0060
	pinned := TOFUContext{UAClass: "desktop-chrome", DeviceID: "device-1", GeoCountry: "US"}

	result, _ := e.Evaluate(reqCtx, &pinned, prevGeo)

	require.Equal(t, OK, result.Decision, "a (0,0) sentinel prevGeo must not trigger impossible travel")
}

func TestEngine_ImpossibleTravel_TooSoonIsNotImpossible(t *testing.T) {
	e := New(DefaultConfig(), nil)
	t0 := time.Now()
	prev := GeoPoint{Lat: 37.7749, Lon: -122.4194, HasGeo: true, Timestamp: t0}
	cur := newRequestContext(t0.Add(10 * time.Second))
	cur.Lat, cur.Lon = 40.7128, -74.0060

	_, impossible := e.impossibleTravel(prev, cur)
	require.False(t, impossible, "below MinTimeDeltaMinutes should never flag impossible travel")
}

func TestEngine_ImpossibleTravel_ShortDistanceIsNotImpossible(t *testing.T) {
	e := New(DefaultConfig(), nil)
	t0 := time.Now()
	prev := GeoPoint{Lat: 37.7749, Lon: -122.4194, HasGeo: true, Timestamp: t0}
	cur := newRequestContext(t0.Add(5 * time.Minute))
	cur.Lat, cur.Lon = 37.7750, -122.4195 // a few meters away

	_, impossible := e.impossibleTravel(prev, cur)
	require.False(t, impossible, "below MinDistanceKm should never flag impossible travel")
}

func TestUAClass(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 Chrome/120.0 Mobile":  "mobile-chrome",
		"Mozilla/5.0 Chrome/120.0":         "desktop-chrome",
		"Mozilla/5.0 Firefox/120.0":        "desktop-firefox",
		"Mozilla/5.0 Safari/605 Mobile":    "mobile-safari",
		"Mozilla/5.0 Safari/605":           "desktop-safari",
		"curl/8.0":                         "unknown",
	}
	for ua, want := range cases {
		require.Equal(t, want, uaClass(ua), "ua=%q", ua)
	}
}
