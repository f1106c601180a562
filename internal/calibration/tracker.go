// Package calibration maintains per-judge reliability statistics and uses
// them to reweight raw confidences before aggregation.
package calibration

import (
	"fmt"
	"sort"
	"sync"
)

const (
	// DefaultBuckets is the number of equal-width confidence buckets a fresh
	// model starts with.
	DefaultBuckets = 10
	// DefaultMinBucketSamples is the cold-start threshold: below this many
	// outcomes in a bucket, Calibrate returns the raw confidence unchanged.
	DefaultMinBucketSamples = 20
)

// Bucket is one confidence range with its observed outcome counts.
// Counts only ever grow within a model version.
type Bucket struct {
	Lo      float64 `json:"lo"`
	Hi      float64 `json:"hi"`
	Count   int64   `json:"count"`
	Correct int64   `json:"correct"`
}

// Midpoint returns the bucket's nominal confidence.
func (b Bucket) Midpoint() float64 { return (b.Lo + b.Hi) / 2 }

// Accuracy returns the observed correctness rate, or 0 for an empty bucket.
func (b Bucket) Accuracy() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.Correct) / float64(b.Count)
}

// model is the mutable calibration state for one (judge, policy version).
type model struct {
	mu      sync.RWMutex
	buckets []Bucket
	dirty   bool
}

// ModelSnapshot is an immutable copy of one model, used for persistence
// and reporting.
type ModelSnapshot struct {
	Judge     string   `json:"judge"`
	PolicyKey string   `json:"policy"`
	Buckets   []Bucket `json:"buckets"`
	Dirty     bool     `json:"-"`
}

// Tracker owns all calibration models. Reads never block on writers of other
// models; writes to one model serialize behind that model's lock only.
type Tracker struct {
	mu         sync.RWMutex
	models     map[string]*model
	minSamples int
	numBuckets int
}

// Option tunes a Tracker at construction.
type Option func(*Tracker)

// WithMinBucketSamples overrides the cold-start threshold.
func WithMinBucketSamples(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

// WithBuckets overrides the bucket count for freshly created models.
func WithBuckets(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.numBuckets = n
		}
	}
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		models:     make(map[string]*model),
		minSamples: DefaultMinBucketSamples,
		numBuckets: DefaultBuckets,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func modelKey(judge, policyKey string) string { return judge + "|" + policyKey }

func equalWidthBuckets(n int) []Bucket {
	out := make([]Bucket, n)
	for i := 0; i < n; i++ {
		out[i] = Bucket{Lo: float64(i) / float64(n), Hi: float64(i+1) / float64(n)}
	}
	return out
}

// bucketIndex finds the bucket containing c. The final bucket is inclusive
// at its upper edge so 1.0 has a home.
func bucketIndex(buckets []Bucket, c float64) int {
	for i, b := range buckets {
		if c >= b.Lo && (c < b.Hi || (i == len(buckets)-1 && c <= b.Hi)) {
			return i
		}
	}
	return -1
}

// lookup returns the model if present, without creating it.
func (t *Tracker) lookup(judge, policyKey string) *model {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.models[modelKey(judge, policyKey)]
}

// obtain returns the model, creating a fresh equal-width one if missing.
func (t *Tracker) obtain(judge, policyKey string) *model {
	key := modelKey(judge, policyKey)
	t.mu.RLock()
	m := t.models[key]
	t.mu.RUnlock()
	if m != nil {
		return m
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if m = t.models[key]; m == nil {
		m = &model{buckets: equalWidthBuckets(t.numBuckets)}
		t.models[key] = m
	}
	return m
}

// Calibrate maps a raw confidence onto the observed accuracy of its bucket.
// With no model, no matching bucket, or fewer samples than the cold-start
// threshold it returns the raw confidence unchanged. Read-only and
// idempotent: two calls with unchanged tracker state return the same value.
func (t *Tracker) Calibrate(judge, policyKey string, rawConfidence float64) float64 {
	m := t.lookup(judge, policyKey)
	if m == nil {
		return rawConfidence
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := bucketIndex(m.buckets, rawConfidence)
	if idx < 0 {
		return rawConfidence
	}
	b := m.buckets[idx]
	if b.Count < int64(t.minSamples) {
		return rawConfidence
	}
	return b.Accuracy()
}

// RecordOutcome appends one ground-truth observation to the bucket holding
// rawConfidence. Append-only; duplicate submissions are the caller's concern.
func (t *Tracker) RecordOutcome(judge, policyKey string, rawConfidence float64, wasCorrect bool) error {
	if rawConfidence < 0 || rawConfidence > 1 {
		return fmt.Errorf("calibration: raw confidence %v outside [0,1]", rawConfidence)
	}
	m := t.obtain(judge, policyKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := bucketIndex(m.buckets, rawConfidence)
	if idx < 0 {
		return fmt.Errorf("calibration: no bucket for confidence %v", rawConfidence)
	}
	m.buckets[idx].Count++
	if wasCorrect {
		m.buckets[idx].Correct++
	}
	m.dirty = true
	return nil
}

// ECE computes the expected calibration error for one model on demand: the
// sample-weighted average of |observed accuracy - bucket midpoint| over
// non-empty buckets. The second return is false when the model has no data.
func (t *Tracker) ECE(judge, policyKey string) (float64, bool) {
	m := t.lookup(judge, policyKey)
	if m == nil {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, b := range m.buckets {
		total += b.Count
	}
	if total == 0 {
		return 0, false
	}
	var ece float64
	for _, b := range m.buckets {
		if b.Count == 0 {
			continue
		}
		weight := float64(b.Count) / float64(total)
		diff := b.Accuracy() - b.Midpoint()
		if diff < 0 {
			diff = -diff
		}
		ece += weight * diff
	}
	return ece, true
}

// Load installs a persisted model, replacing any existing state for the same
// (judge, policy version). Bucket boundaries must partition [0,1].
func (t *Tracker) Load(snap ModelSnapshot) error {
	if err := validatePartition(snap.Buckets); err != nil {
		return fmt.Errorf("calibration: model %s/%s: %w", snap.Judge, snap.PolicyKey, err)
	}
	buckets := make([]Bucket, len(snap.Buckets))
	copy(buckets, snap.Buckets)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[modelKey(snap.Judge, snap.PolicyKey)] = &model{buckets: buckets}
	return nil
}

// Snapshot copies out every model, sorted by judge then policy for
// reproducible reports. MarkClean resets the dirty flags after a successful
// flush; Snapshot itself leaves them untouched.
func (t *Tracker) Snapshot() []ModelSnapshot {
	t.mu.RLock()
	keys := make([]string, 0, len(t.models))
	refs := make(map[string]*model, len(t.models))
	for k, m := range t.models {
		keys = append(keys, k)
		refs[k] = m
	}
	t.mu.RUnlock()
	sort.Strings(keys)

	out := make([]ModelSnapshot, 0, len(keys))
	for _, k := range keys {
		m := refs[k]
		m.mu.RLock()
		buckets := make([]Bucket, len(m.buckets))
		copy(buckets, m.buckets)
		dirty := m.dirty
		m.mu.RUnlock()

		judge, policy := splitModelKey(k)
		out = append(out, ModelSnapshot{Judge: judge, PolicyKey: policy, Buckets: buckets, Dirty: dirty})
	}
	return out
}

// MarkClean clears the dirty flag on the named model, called after its
// snapshot has been durably flushed.
func (t *Tracker) MarkClean(judge, policyKey string) {
	if m := t.lookup(judge, policyKey); m != nil {
		m.mu.Lock()
		m.dirty = false
		m.mu.Unlock()
	}
}

func splitModelKey(k string) (judge, policy string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '|' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func validatePartition(buckets []Bucket) error {
	if len(buckets) == 0 {
		return fmt.Errorf("empty bucket set")
	}
	if buckets[0].Lo != 0 {
		return fmt.Errorf("first bucket starts at %v, want 0", buckets[0].Lo)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Lo != buckets[i-1].Hi {
			return fmt.Errorf("gap or overlap between bucket %d and %d", i-1, i)
		}
	}
	if last := buckets[len(buckets)-1]; last.Hi != 1 {
		return fmt.Errorf("last bucket ends at %v, want 1", last.Hi)
	}
	for i, b := range buckets {
		if b.Lo >= b.Hi {
			return fmt.Errorf("bucket %d has non-positive width", i)
		}
		if b.Correct > b.Count || b.Count < 0 || b.Correct < 0 {
			return fmt.Errorf("bucket %d has inconsistent counts", i)
		}
	}
	return nil
}
