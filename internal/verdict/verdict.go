// Package verdict holds the canonical per-judge verdict records and the
// normalizer that maps raw model output onto them.
package verdict

import "time"

// Label is the canonical three-way verdict.
type Label string

const (
	LabelViolation   Label = "violation"
	LabelNoViolation Label = "no-violation"
	LabelAmbiguous   Label = "ambiguous"
)

// Sign maps a label onto the aggregation axis: violation pulls the risk
// score up, no-violation pulls it down, ambiguous contributes direction-free
// weight only through the denominator.
func (l Label) Sign() float64 {
	switch l {
	case LabelViolation:
		return 1
	case LabelNoViolation:
		return -1
	}
	return 0
}

// Valid reports whether l is one of the three canonical labels.
func (l Label) Valid() bool {
	switch l {
	case LabelViolation, LabelNoViolation, LabelAmbiguous:
		return true
	}
	return false
}

// JudgeVerdict is one judge's opinion on one (artifact, policy) pair.
// Created once, never mutated.
type JudgeVerdict struct {
	Judge       string    `json:"judge"`
	Label       Label     `json:"label"`
	Confidence  float64   `json:"confidence"`
	Violations  []string  `json:"violations,omitempty"`
	Remediation []string  `json:"remediation,omitempty"`
	Rationale   string    `json:"rationale,omitempty"`
	LatencyMS   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// CalibratedVerdict is a JudgeVerdict plus the calibration-adjusted
// confidence used as its aggregation weight.
type CalibratedVerdict struct {
	JudgeVerdict
	CalibratedConfidence float64 `json:"calibrated_confidence"`
}
