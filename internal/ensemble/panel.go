package ensemble

import (
	"context"
	"strings"
	"time"

	"iacgate/internal/artifact"
	"iacgate/internal/gate"
	"iacgate/internal/verdict"
)

// Panel exposes a whole engine as a single judge adapter, so an ensemble can
// sit inside another ensemble's judge list. Its verdict is the inner
// decision folded back to a label: HIGH_RISK votes violation, PASS votes
// no-violation, NEEDS_REVIEW abstains as ambiguous. Confidence is the
// magnitude of the inner raw vote.
type Panel struct {
	name   string
	engine *Engine
}

// NewPanel wraps engine as a composite judge named name.
func NewPanel(name string, engine *Engine) *Panel {
	return &Panel{name: name, engine: engine}
}

// Name implements judge.Adapter.
func (p *Panel) Name() string { return p.name }

// Evaluate implements judge.Adapter.
func (p *Panel) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	start := time.Now()
	d := p.engine.Validate(ctx, art, pol, 0)

	label := verdict.LabelAmbiguous
	switch d.Action {
	case gate.ActionHighRisk:
		label = verdict.LabelViolation
	case gate.ActionPass:
		label = verdict.LabelNoViolation
	}

	confidence := d.RawRisk
	if confidence < 0 {
		confidence = -confidence
	}

	return verdict.JudgeVerdict{
		Judge:       p.name,
		Label:       label,
		Confidence:  confidence,
		Violations:  d.Violations,
		Remediation: d.Remediation,
		Rationale:   "panel of " + describePanel(d.ContributingJudges),
		LatencyMS:   time.Since(start).Milliseconds(),
		Timestamp:   start.UTC(),
	}, nil
}

func describePanel(names []string) string {
	if len(names) == 0 {
		return "no judges"
	}
	return strings.Join(names, ", ")
}
