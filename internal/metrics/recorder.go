// Package metrics accumulates running quality and latency statistics across
// validation calls for operational reporting. It consumes engine outputs and
// later-arriving ground truth; it holds no decision logic.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"iacgate/internal/gate"
)

const (
	metricsNamespace = "iacgate"
	engineSubsystem  = "engine"

	// latencyWindow bounds the in-process latency samples: p95 is the only
	// consumer and a recent window is enough, so a long serve session does
	// not grow memory per decision. Full distributions live in Prometheus.
	latencyWindow = 1024
)

// Recorder implements ensemble.Observer and accumulates an in-process
// summary alongside Prometheus collectors. All methods are safe for
// concurrent use.
type Recorder struct {
	mu sync.Mutex

	byAction   map[gate.Action]int64
	agreeSum   float64
	agreeCount int64

	// latenciesMS is a ring of the most recent latencyWindow samples;
	// latIdx is the next overwrite position once the ring is full.
	latenciesMS []float64
	latIdx      int

	// Confusion counts over outcome-labelled decisions; violation is the
	// positive class.
	tp, fp, fn, tn int64

	decisionsTotal *prometheus.CounterVec
	judgeFailures  *prometheus.CounterVec
	latencySeconds prometheus.Histogram
	riskScore      prometheus.Histogram
}

// NewRecorder registers collectors on reg (nil = default registry).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		byAction: make(map[gate.Action]int64),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "decisions_total",
			Help:      "Validation decisions by action.",
		}, []string{"action"}),
		judgeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "judge_failures_total",
			Help:      "Judge calls that produced no verdict, by judge and kind.",
		}, []string{"judge", "kind"}),
		latencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "decision_latency_seconds",
			Help:      "End-to-end validation latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3.1, 5, 10},
		}),
		riskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "risk_score",
			Help:      "Normalized risk score distribution.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// ObserveDecision implements ensemble.Observer.
func (r *Recorder) ObserveDecision(action gate.Action, riskScore, agreement float64, latency time.Duration) {
	r.decisionsTotal.WithLabelValues(string(action)).Inc()
	r.latencySeconds.Observe(latency.Seconds())
	r.riskScore.Observe(riskScore)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAction[action]++
	r.agreeSum += agreement
	r.agreeCount++
	ms := float64(latency.Milliseconds())
	if len(r.latenciesMS) < latencyWindow {
		r.latenciesMS = append(r.latenciesMS, ms)
	} else {
		r.latenciesMS[r.latIdx] = ms
		r.latIdx = (r.latIdx + 1) % latencyWindow
	}
}

// ObserveJudgeFailure implements ensemble.Observer.
func (r *Recorder) ObserveJudgeFailure(judgeName, kind string) {
	r.judgeFailures.WithLabelValues(judgeName, kind).Inc()
}

// RecordOutcome feeds one ground-truth label back: whether the decision
// flagged a violation and whether a violation was actually present.
func (r *Recorder) RecordOutcome(predictedViolation, actualViolation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case predictedViolation && actualViolation:
		r.tp++
	case predictedViolation && !actualViolation:
		r.fp++
	case !predictedViolation && actualViolation:
		r.fn++
	default:
		r.tn++
	}
}

// Summary is a point-in-time copy of the running statistics.
type Summary struct {
	Decisions     int64                 `json:"decisions"`
	ByAction      map[gate.Action]int64 `json:"by_action"`
	Precision     float64               `json:"precision"`
	Recall        float64               `json:"recall"`
	F1            float64               `json:"f1"`
	LabelledCount int64                 `json:"labelled_count"`
	MeanAgreement float64               `json:"mean_agreement"`
	LatencyP95MS  float64               `json:"latency_p95_ms"`
}

// Snapshot computes the current summary.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{ByAction: make(map[gate.Action]int64, len(r.byAction))}
	for a, n := range r.byAction {
		s.ByAction[a] = n
		s.Decisions += n
	}

	s.Precision = safeDiv(r.tp, r.tp+r.fp)
	s.Recall = safeDiv(r.tp, r.tp+r.fn)
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	s.LabelledCount = r.tp + r.fp + r.fn + r.tn

	if r.agreeCount > 0 {
		s.MeanAgreement = r.agreeSum / float64(r.agreeCount)
	}
	s.LatencyP95MS = percentile(r.latenciesMS, 0.95)
	return s
}

func safeDiv(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// percentile returns the p-quantile (nearest-rank) of values; 0 when empty.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
