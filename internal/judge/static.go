package judge

import (
	"context"
	"time"

	"iacgate/internal/artifact"
	"iacgate/internal/verdict"
)

// StaticJudge replays canned replies keyed by artifact content hash, with an
// optional fallback reply and artificial delay. It backs offline calibration
// runs and tests; no network, fully deterministic.
type StaticJudge struct {
	name     string
	replies  map[string]string // artifact SHA256 -> raw JSON reply
	fallback string
	delay    time.Duration
	err      error
}

// StaticOption tunes a StaticJudge.
type StaticOption func(*StaticJudge)

// WithReply registers a canned raw reply for one artifact hash.
func WithReply(artifactSHA, rawReply string) StaticOption {
	return func(s *StaticJudge) { s.replies[artifactSHA] = rawReply }
}

// WithFallback sets the reply used when no hash matches.
func WithFallback(rawReply string) StaticOption {
	return func(s *StaticJudge) { s.fallback = rawReply }
}

// WithDelay makes every call take at least d, racing the ctx deadline the
// way a slow backend would.
func WithDelay(d time.Duration) StaticOption {
	return func(s *StaticJudge) { s.delay = d }
}

// WithError makes every call fail with err after the delay.
func WithError(err error) StaticOption {
	return func(s *StaticJudge) { s.err = err }
}

// NewStaticJudge builds a deterministic judge.
func NewStaticJudge(name string, opts ...StaticOption) *StaticJudge {
	s := &StaticJudge{
		name:     name,
		replies:  make(map[string]string),
		fallback: `{"label":"ambiguous","confidence":0.0,"rationale":"no canned reply"}`,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements Adapter.
func (s *StaticJudge) Name() string { return s.name }

// Evaluate implements Adapter.
func (s *StaticJudge) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	start := time.Now()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return verdict.JudgeVerdict{}, classifyErr(ctx, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return verdict.JudgeVerdict{}, classifyErr(ctx, err)
	}
	if s.err != nil {
		return verdict.JudgeVerdict{}, classifyErr(ctx, s.err)
	}
	raw, ok := s.replies[art.SHA256]
	if !ok {
		raw = s.fallback
	}
	return verdict.Normalize(s.name, raw, time.Since(start), time.Now()), nil
}
