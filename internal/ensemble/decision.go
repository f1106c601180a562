// Package ensemble runs the configured judges in parallel and folds their
// calibrated verdicts into one auditable decision.
package ensemble

import (
	"time"

	"iacgate/internal/artifact"
	"iacgate/internal/gate"
	"iacgate/internal/verdict"
)

// Decision is the unit persisted for audit and consumed by metrics.
// Created once per invocation; immutable.
type Decision struct {
	ID          string                 `json:"id"`
	ArtifactRef string                 `json:"artifact_ref"`
	ArtifactSHA string                 `json:"artifact_sha256"`
	Policy      artifact.PolicyContext `json:"policy"`

	Action gate.Action `json:"action"`
	// RiskScore is the normalized score in [0,1] the gate thresholds.
	RiskScore float64 `json:"risk_score"`
	// RawRisk is the signed vote in [-1,1] before normalization.
	RawRisk float64 `json:"raw_risk"`

	// ContributingJudges lists judges whose verdicts entered the vote,
	// ordered by name. Judges that timed out or failed are absent here and
	// listed under FailedJudges instead — never zero-weighted.
	ContributingJudges []string                    `json:"contributing_judges"`
	FailedJudges       []string                    `json:"failed_judges,omitempty"`
	Verdicts           []verdict.CalibratedVerdict `json:"per_judge_verdicts"`

	// Violations and Remediation are the sorted unions across contributing
	// judges.
	Violations  []string `json:"violations,omitempty"`
	Remediation []string `json:"remediation,omitempty"`

	// Agreement is the fraction of contributing judges sharing the majority
	// label; 0 with no contributors.
	Agreement float64 `json:"agreement"`

	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Observer consumes decision events and judge failures. The metrics
// recorder implements it; the engine never blocks on it.
type Observer interface {
	ObserveDecision(action gate.Action, riskScore, agreement float64, latency time.Duration)
	ObserveJudgeFailure(judgeName, kind string)
}

// nopObserver is used when no metrics sink is wired.
type nopObserver struct{}

func (nopObserver) ObserveDecision(gate.Action, float64, float64, time.Duration) {}
func (nopObserver) ObserveJudgeFailure(string, string)                           {}
