package ensemble

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"iacgate/internal/artifact"
	"iacgate/internal/calibration"
	"iacgate/internal/gate"
	"iacgate/internal/judge"
	"iacgate/internal/logging"
	"iacgate/internal/verdict"
)

// DefaultBudget is the end-to-end latency target for one validation call.
const DefaultBudget = 3100 * time.Millisecond

// Engine is the decision core: it fans a validation out to every configured
// judge, calibrates what comes back in time, and gates the aggregate.
type Engine struct {
	judges   []judge.Adapter
	tracker  *calibration.Tracker
	gateCfg  gate.Config
	budget   time.Duration
	observer Observer
	log      *slog.Logger
}

// EngineOption tunes an Engine at construction.
type EngineOption func(*Engine)

// WithBudget overrides the per-invocation deadline.
func WithBudget(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.budget = d
		}
	}
}

// WithObserver wires a metrics sink.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine builds an engine over the given judges. The tracker is shared
// process-wide state; everything else is per-invocation.
func NewEngine(judges []judge.Adapter, tracker *calibration.Tracker, gateCfg gate.Config, opts ...EngineOption) *Engine {
	e := &Engine{
		judges:   judges,
		tracker:  tracker,
		gateCfg:  gateCfg,
		budget:   DefaultBudget,
		observer: nopObserver{},
		log:      logging.New("ensemble"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type judgeResult struct {
	name string
	v    verdict.JudgeVerdict
	err  error
}

// Validate runs one validation call and always returns exactly one decision:
// judge failures shrink the contributing set, and an empty set routes to
// NEEDS_REVIEW. tauOverride > 0 replaces the configured threshold for this
// invocation only.
func (e *Engine) Validate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext, tauOverride float64) Decision {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	// The channel buffer holds one slot per judge so stragglers finishing
	// after the deadline complete their send into the buffer and get
	// dropped with it — a late verdict can never reach an emitted decision.
	results := make(chan judgeResult, len(e.judges))
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range e.judges {
		j := j
		g.Go(func() error {
			v, err := j.Evaluate(gctx, art, pol)
			results <- judgeResult{name: j.Name(), v: v, err: err}
			return nil
		})
	}

	// Reap the group once every judge returns; the collect loop below does
	// not wait for stragglers.
	go func() { _ = g.Wait() }()

	var verdicts []verdict.CalibratedVerdict
	var failed []string

collect:
	for pending := len(e.judges); pending > 0; pending-- {
		select {
		case r := <-results:
			if r.err != nil {
				kind := judge.FailureKind(r.err)
				e.log.Warn("judge failed", "judge", r.name, "kind", kind, "error", r.err)
				e.observer.ObserveJudgeFailure(r.name, kind)
				failed = append(failed, r.name)
				continue
			}
			cal := e.tracker.Calibrate(r.name, pol.Key(), r.v.Confidence)
			verdicts = append(verdicts, verdict.CalibratedVerdict{
				JudgeVerdict:         r.v,
				CalibratedConfidence: cal,
			})
		case <-ctx.Done():
			e.log.Warn("invocation deadline reached with judges pending",
				"pending", pending, "budget", e.budget)
			for _, name := range e.pendingNames(verdicts, failed) {
				e.observer.ObserveJudgeFailure(name, "deadline")
				failed = append(failed, name)
			}
			break collect
		}
	}

	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].Judge < verdicts[j].Judge })
	sort.Strings(failed)

	raw, normalized := Aggregate(verdicts)
	action := gate.Decide(e.gateCfg.WithTau(tauOverride), normalized, len(verdicts))

	contributing := make([]string, len(verdicts))
	violations := make([][]string, len(verdicts))
	remediation := make([][]string, len(verdicts))
	for i, v := range verdicts {
		contributing[i] = v.Judge
		violations[i] = v.Violations
		remediation[i] = v.Remediation
	}

	latency := time.Since(start)
	if latency > e.budget {
		e.log.Warn("validation exceeded latency budget", "latency_ms", latency.Milliseconds(), "budget_ms", e.budget.Milliseconds())
	}

	d := Decision{
		ID:                 uuid.NewString(),
		ArtifactRef:        art.Ref,
		ArtifactSHA:        art.SHA256,
		Policy:             pol,
		Action:             action,
		RiskScore:          normalized,
		RawRisk:            raw,
		ContributingJudges: contributing,
		FailedJudges:       failed,
		Verdicts:           verdicts,
		Violations:         unionSorted(violations...),
		Remediation:        unionSorted(remediation...),
		Agreement:          agreementRate(verdicts),
		LatencyMS:          latency.Milliseconds(),
		CreatedAt:          start.UTC(),
	}

	e.observer.ObserveDecision(d.Action, d.RiskScore, d.Agreement, latency)
	e.log.Info("decision",
		"id", d.ID,
		"action", string(d.Action),
		"risk", d.RiskScore,
		"contributing", len(contributing),
		"failed", len(failed),
		"latency_ms", d.LatencyMS)
	return d
}

// pendingNames returns configured judges not yet accounted for as either a
// verdict or a failure.
func (e *Engine) pendingNames(verdicts []verdict.CalibratedVerdict, failed []string) []string {
	done := make(map[string]struct{}, len(verdicts)+len(failed))
	for _, v := range verdicts {
		done[v.Judge] = struct{}{}
	}
	for _, name := range failed {
		done[name] = struct{}{}
	}
	var out []string
	for _, j := range e.judges {
		if _, ok := done[j.Name()]; !ok {
			out = append(out, j.Name())
		}
	}
	return out
}
