// Package gate maps an aggregate risk score onto the final categorical
// action a pipeline acts on.
package gate

import "fmt"

// Action is the terminal decision for one validation call.
type Action string

const (
	ActionPass        Action = "PASS"
	ActionNeedsReview Action = "NEEDS_REVIEW"
	ActionHighRisk    Action = "HIGH_RISK"
)

// ExitCode maps an action to the process exit code the CLI emits.
// 1 is reserved for fatal startup errors.
func (a Action) ExitCode() int {
	switch a {
	case ActionPass:
		return 0
	case ActionNeedsReview:
		return 2
	case ActionHighRisk:
		return 3
	}
	return 1
}

// Config holds the gate thresholds. Alpha is the false-negative cost, Beta
// the false-positive cost; together they set the lower edge of the review
// band at Tau*Alpha/(Alpha+Beta). The exact band formula is deliberately a
// configuration concern, not a constant.
type Config struct {
	Tau   float64 `yaml:"tau" json:"tau"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
}

// DefaultConfig returns the shipped gate tuning: review rather than pass
// when uncertain (missing a violation costs 1, a false alarm 1/5 of that).
func DefaultConfig() Config {
	return Config{Tau: 0.8, Alpha: 1, Beta: 5}
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("gate: tau must be in (0,1], got %v", c.Tau)
	}
	if c.Alpha <= 0 || c.Beta <= 0 {
		return fmt.Errorf("gate: alpha and beta must be positive, got alpha=%v beta=%v", c.Alpha, c.Beta)
	}
	return nil
}

// ReviewFloor returns the cost-adjusted lower edge of the review band.
func (c Config) ReviewFloor() float64 {
	return c.Tau * c.Alpha / (c.Alpha + c.Beta)
}

// WithTau returns a copy of c with the threshold replaced. Used for
// per-invocation overrides; zero tau means no override.
func (c Config) WithTau(tau float64) Config {
	if tau > 0 {
		c.Tau = tau
	}
	return c
}

// Decide maps a normalized risk score in [0,1] onto an action. The three
// bands partition [0,1]: [0,floor) PASS, [floor,tau) NEEDS_REVIEW, [tau,1]
// HIGH_RISK. Zero contributing judges always routes to NEEDS_REVIEW — with
// no verdicts there is nothing to threshold.
func Decide(cfg Config, normalizedRisk float64, contributors int) Action {
	if contributors == 0 {
		return ActionNeedsReview
	}
	if normalizedRisk >= cfg.Tau {
		return ActionHighRisk
	}
	if normalizedRisk >= cfg.ReviewFloor() {
		return ActionNeedsReview
	}
	return ActionPass
}
