// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anomaly implements the online half-space-trees model shared by the
// anomaly baseline (§4.6) and the per-user identity model (§4.7). No library
// in the example corpus or the wider Go ecosystem implements half-space
// trees; this is the one component necessarily built on stdlib math/rand
// rather than a third-party library — see DESIGN.md.
package anomaly

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// ModelType is the small closed set of persisted model kinds (§9: tagged
// variant, not inheritance).
type ModelType string

const (
	// KeyboardHST is the population-baseline anomaly model.
	KeyboardHST ModelType = "keyboard_hst"
	// KeyboardIdentity is the per-user identity model.
	KeyboardIdentity ModelType = "keyboard_identity"
)

const (
	numTrees   = 100
	treeHeight = 6
	windowSize = 50
	seed       = 42

	// AnomalyThreshold gates whether an evaluation is "anomalous" for the
	// purposes of audit attribution.
	AnomalyThreshold = 0.6
	// ZScoreThreshold is the per-feature z-score magnitude above which a
	// dimension is named in the attribution vector.
	ZScoreThreshold = 2.0

	dims = 12
)

// node is one split point in a half-space tree. Leaves are implicit: a node
// with no children (both child indices negative) is a leaf and carries a
// mass counter.
type node struct {
	dim    int
	split  float64
	left   int32 // index into tree.nodes, or -1
	right  int32
	mass   uint32
}

type tree struct {
	nodes []node
}

func buildTree(rng *rand.Rand, height int) tree {
	t := tree{}
	var build func(depth int) int32
	build = func(depth int) int32 {
		idx := int32(len(t.nodes))
		t.nodes = append(t.nodes, node{})
		if depth >= height {
			t.nodes[idx].left, t.nodes[idx].right = -1, -1
			return idx
		}
		dim := rng.Intn(dims)
		// Splits are built over the normalized [0,1]^dims cube; a midpoint
		// perturbed split keeps trees from degenerating to a single value.
		split := 0.3 + 0.4*rng.Float64()
		left := build(depth + 1)
		right := build(depth + 1)
		t.nodes[idx] = node{dim: dim, split: split, left: left, right: right}
		return idx
	}
	build(0)
	return t
}

func (t tree) leafFor(x [dims]float64) int32 {
	idx := int32(0)
	for t.nodes[idx].left >= 0 {
		n := t.nodes[idx]
		if x[n.dim] < n.split {
			idx = n.left
		} else {
			idx = n.right
		}
	}
	return idx
}

// Model is one half-space-trees instance, parameterized identically for
// both ModelType values (§9: shared score_one/learn_one capability).
type Model struct {
	trees          []tree
	scaler         minMaxScaler
	zscore         welford
	trainCount     int
	FeatureWindows int // feature_window_count, persisted alongside the model
}

// New constructs a freshly initialized model. Per the resolved Open
// Question in SPEC_FULL.md §9, this is also what coldstate returns for a
// null load — identity learning is never blocked on model existence.
func New() *Model {
	rng := rand.New(rand.NewSource(seed))
	trees := make([]tree, numTrees)
	for i := range trees {
		trees[i] = buildTree(rng, treeHeight)
	}
	return &Model{trees: trees}
}

// ScoreOne returns an anomaly score in [0,1]. Per §4.6, the first
// windowSize training samples are warm-up and always score 0.
func (m *Model) ScoreOne(x [dims]float64) float64 {
	if m.trainCount < windowSize {
		return 0
	}
	norm := m.scaler.normalize(x)
	var massSum float64
	for _, t := range m.trees {
		leaf := t.leafFor(norm)
		massSum += float64(t.nodes[leaf].mass)
	}
	avgMass := massSum / float64(len(m.trees))
	return 1.0 / (1.0 + avgMass)
}

// LearnOne folds one feature window into the model. It is monotone and
// non-destructive under replay: mass counters only accumulate, so
// re-learning the same window never corrupts previously learned structure.
func (m *Model) LearnOne(x [dims]float64) {
	m.scaler.update(x)
	m.zscore.update(x)
	norm := m.scaler.normalize(x)
	for i := range m.trees {
		leaf := m.trees[i].leafFor(norm)
		m.trees[i].nodes[leaf].mass++
	}
	m.trainCount++
	m.FeatureWindows++
}

// Attribution returns the indices of feature dimensions whose z-score
// magnitude exceeds ZScoreThreshold, for the audit emitter's
// human-readable anomaly_vectors field. Only meaningful once the z-score
// tracker has seen enough samples (handled internally).
func (m *Model) Attribution(x [dims]float64) []int {
	if m.zscore.count < 2 {
		return nil
	}
	var dimsOut []int
	for i := 0; i < dims; i++ {
		z := m.zscore.zscore(i, x[i])
		if math.Abs(z) > ZScoreThreshold {
			dimsOut = append(dimsOut, i)
		}
	}
	return dimsOut
}

// Serialize encodes the model to an opaque byte blob for cold-state
// persistence. Format: trainCount, featureWindows, scaler state, zscore
// state, then per-tree leaf masses (tree structure is deterministic from
// the fixed seed and need not be persisted).
func (m *Model) Serialize() []byte {
	buf := make([]byte, 0, 64+len(m.trees)*(1<<(treeHeight+1))*4)
	var tmp [8]byte

	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	putF64 := func(v float64) { putU64(math.Float64bits(v)) }

	putU64(uint64(m.trainCount))
	putU64(uint64(m.FeatureWindows))
	for i := 0; i < dims; i++ {
		putF64(m.scaler.min[i])
		putF64(m.scaler.max[i])
		putF64(m.zscore.mean[i])
		putF64(m.zscore.m2[i])
	}
	putU64(uint64(m.zscore.count))

	var tmp4 [4]byte
	for _, t := range m.trees {
		for _, n := range t.nodes {
			binary.LittleEndian.PutUint32(tmp4[:], n.mass)
			buf = append(buf, tmp4[:]...)
		}
	}
	return buf
}

// Deserialize reconstructs a Model previously produced by Serialize. The
// tree topology is rebuilt deterministically from the fixed seed; only
// per-leaf mass counters and scaler/z-score state are restored from blob.
func Deserialize(blob []byte) (*Model, error) {
	m := New()
	r := blobReader{buf: blob}

	trainCount, err := r.u64()
	if err != nil {
		return nil, err
	}
	featureWindows, err := r.u64()
	if err != nil {
		return nil, err
	}
	m.trainCount = int(trainCount)
	m.FeatureWindows = int(featureWindows)

	for i := 0; i < dims; i++ {
		minV, err := r.f64()
		if err != nil {
			return nil, err
		}
		maxV, err := r.f64()
		if err != nil {
			return nil, err
		}
		meanV, err := r.f64()
		if err != nil {
			return nil, err
		}
		m2V, err := r.f64()
		if err != nil {
			return nil, err
		}
		m.scaler.min[i], m.scaler.max[i] = minV, maxV
		m.zscore.mean[i], m.zscore.m2[i] = meanV, m2V
	}
	zcount, err := r.u64()
	if err != nil {
		return nil, err
	}
	m.zscore.count = int(zcount)
	m.scaler.seen = m.trainCount > 0

	for ti := range m.trees {
		for ni := range m.trees[ti].nodes {
			mass, err := r.u32()
			if err != nil {
				return nil, err
			}
			m.trees[ti].nodes[ni].mass = mass
		}
	}
	return m, nil
}

type blobReader struct {
	buf []byte
	pos int
}

func (r *blobReader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errShortBlob
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *blobReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errShortBlob
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *blobReader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
