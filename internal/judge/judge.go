// Package judge defines the uniform adapter contract over heterogeneous LLM
// backends and the concrete adapters the gate ships with.
package judge

import (
	"context"
	"errors"

	"iacgate/internal/artifact"
	"iacgate/internal/verdict"
)

// Adapter turns one (artifact, policy) pair into a structured verdict.
// Implementations must honor ctx deadlines: on timeout or transport failure
// they return an error and no verdict — never a fabricated one. The
// aggregator tolerates a partial judge set.
type Adapter interface {
	// Name identifies the judge; calibration statistics key on it.
	Name() string
	Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error)
}

var (
	// ErrJudgeTimeout marks a judge call that did not finish inside its
	// deadline.
	ErrJudgeTimeout = errors.New("judge: call timed out")
	// ErrJudgeUnavailable marks transport or backend failure.
	ErrJudgeUnavailable = errors.New("judge: backend unavailable")
)

// classifyErr folds a backend error into the adapter taxonomy.
func classifyErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return ErrJudgeTimeout
	}
	return errors.Join(ErrJudgeUnavailable, err)
}

// FailureKind names an adapter error for metrics labels.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrJudgeTimeout):
		return "timeout"
	case errors.Is(err, ErrJudgeUnavailable):
		return "unavailable"
	}
	return "other"
}
