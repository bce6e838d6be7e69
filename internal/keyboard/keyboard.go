// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keyboard extracts fixed-width statistical feature windows from
// raw keystroke events, per §4.1 of the Sentinel specification.
package keyboard

import "math"

// EventKind distinguishes a key press from a key release.
type EventKind int

const (
	// Down marks a key press.
	Down EventKind = iota
	// Up marks a key release.
	Up
)

// Event is a single keystroke transition. Time is a monotonic float
// millisecond timestamp supplied by the client.
type Event struct {
	Key  string
	Kind EventKind
	T    float64
}

const (
	// WindowSize is the number of keystrokes accumulated before a feature
	// window is emitted (KB_WINDOW_SIZE).
	WindowSize = 50
	// WindowStride is the number of new keystrokes between successive
	// window emissions once primed (KB_WINDOW_STEP).
	WindowStride = 5
	// MaxFlightTimeMS excludes flight-time samples above this value from a
	// window's statistics — the "coffee break" rule: a pause this long is a
	// session interruption, not a behavioral signal.
	MaxFlightTimeMS = 2000.0
)

// FeatureWindow is the 12-dimensional statistical vector over a completed
// 50-keystroke window: mean/std/min/max of dwell, flight, and inter-key
// interval. ErrorRate is carried for audit/diagnostics only; it is not one
// of the 12 scored dimensions.
type FeatureWindow struct {
	DwellMean, DwellStd, DwellMin, DwellMax         float64
	FlightMean, FlightStd, FlightMin, FlightMax     float64
	IntervalMean, IntervalStd, IntervalMin, IntervalMax float64
	ErrorRate float64
}

// Vector returns the 12 scored dimensions in a fixed order, for feeding the
// anomaly/identity models.
func (w FeatureWindow) Vector() [12]float64 {
	return [12]float64{
		w.DwellMean, w.DwellStd, w.DwellMin, w.DwellMax,
		w.FlightMean, w.FlightStd, w.FlightMin, w.FlightMax,
		w.IntervalMean, w.IntervalStd, w.IntervalMin, w.IntervalMax,
	}
}

// Finite reports whether every scored dimension is a finite number; windows
// failing this check are discarded per §4.1.
func (w FeatureWindow) Finite() bool {
	for _, v := range w.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func isDeleteKey(key string) bool {
	return key == "Backspace" || key == "Delete"
}

// keystroke is an internal record pairing a DOWN with its matching UP.
type keystroke struct {
	key         string
	downT, upT  float64
	hasUp       bool
}

// Extractor maintains the per-session keystroke buffer and emits completed
// feature windows on a sliding basis.
type Extractor struct {
	pending        map[string]float64 // key -> downT, for unmatched DOWNs
	strokes        []keystroke        // all completed DOWN/UP pairs (never trimmed)
	sinceEmission  int                // new keystrokes accumulated since last emission
	primed         bool
	firstEventTime float64
	haveFirst      bool
}

// NewExtractor creates an empty keyboard feature extractor for one session.
func NewExtractor() *Extractor {
	return &Extractor{pending: make(map[string]float64)}
}

// FirstEventTime returns the timestamp of the first keyboard event observed,
// used to compute kb_confidence's time_confidence term. The second return
// value is false if no event has been observed yet.
func (e *Extractor) FirstEventTime() (float64, bool) {
	return e.firstEventTime, e.haveFirst
}

// Ingest appends one event to the buffer and returns any feature windows
// completed as a result (zero, one — emission is at most one per Ingest
// since events arrive one at a time within a batch).
func (e *Extractor) Ingest(ev Event) []FeatureWindow {
	if !e.haveFirst {
		e.firstEventTime = ev.T
		e.haveFirst = true
	}

	switch ev.Kind {
	case Down:
		e.pending[ev.Key] = ev.T
	case Up:
		downT, ok := e.pending[ev.Key]
		if !ok {
			return nil
		}
		delete(e.pending, ev.Key)
		e.strokes = append(e.strokes, keystroke{key: ev.Key, downT: downT, upT: ev.T, hasUp: true})
		e.sinceEmission++
	}

	var out []FeatureWindow
	if !e.primed {
		if e.sinceEmission >= WindowSize {
			if w, ok := e.buildWindow(); ok {
				out = append(out, w)
			}
			e.primed = true
			e.sinceEmission = 0
		}
		return out
	}

	if e.sinceEmission >= WindowStride {
		if w, ok := e.buildWindow(); ok {
			out = append(out, w)
		}
		e.sinceEmission = 0
	}
	return out
}

// buildWindow computes the feature vector over the most recent WindowSize
// completed keystrokes. Returns ok=false if fewer than WindowSize are
// available or the resulting statistics are non-finite.
func (e *Extractor) buildWindow() (FeatureWindow, bool) {
	if len(e.strokes) < WindowSize {
		return FeatureWindow{}, false
	}
	recent := e.strokes[len(e.strokes)-WindowSize:]

	dwells := make([]float64, 0, WindowSize)
	flights := make([]float64, 0, WindowSize)
	intervals := make([]float64, 0, WindowSize)
	deleteCount := 0

	for i, k := range recent {
		dwells = append(dwells, k.upT-k.downT)
		if isDeleteKey(k.key) {
			deleteCount++
		}
		if i > 0 {
			prev := recent[i-1]
			flight := k.downT - prev.upT
			if flight >= 0 && flight <= MaxFlightTimeMS {
				flights = append(flights, flight)
			}
			intervals = append(intervals, k.downT-prev.downT)
		}
	}

	w := FeatureWindow{
		ErrorRate: float64(deleteCount) / float64(len(recent)),
	}
	w.DwellMean, w.DwellStd, w.DwellMin, w.DwellMax = stats(dwells)
	w.FlightMean, w.FlightStd, w.FlightMin, w.FlightMax = stats(flights)
	w.IntervalMean, w.IntervalStd, w.IntervalMin, w.IntervalMax = stats(intervals)

	if !w.Finite() {
		return FeatureWindow{}, false
	}
	return w, true
}

func stats(xs []float64) (mean, std, min, max float64) {
	if len(xs) == 0 {
		return 0, 0, 0, 0
	}
	min, max = xs[0], xs[0]
	sum := 0.0
	for _, x := range xs {
		sum += x
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	mean = sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	std = math.Sqrt(variance)
	return mean, std, min, max
}

// CountConfidence is min(1, kb_window_count / KB_COUNT_MATURITY).
func CountConfidence(windowCount int, countMaturity int) float64 {
	if countMaturity <= 0 {
		return 1
	}
	c := float64(windowCount) / float64(countMaturity)
	return math.Min(1, c)
}

// TimeConfidence is min(1, (now - first_kb_event_time) / KB_TIME_MATURITY_S).
func TimeConfidence(elapsedSeconds float64, timeMaturitySeconds float64) float64 {
	if timeMaturitySeconds <= 0 {
		return 1
	}
	c := elapsedSeconds / timeMaturitySeconds
	return math.Min(1, math.Max(0, c))
}

// Confidence is the geometric mean of count and time confidence: zero until
// both contribute.
func Confidence(countConfidence, timeConfidence float64) float64 {
	if countConfidence <= 0 || timeConfidence <= 0 {
		return 0
	}
	return math.Sqrt(countConfidence * timeConfidence)
}
