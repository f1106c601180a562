package main

import (
	"context"
	"fmt"

	"iacgate/internal/config"
	"iacgate/internal/judge"
)

// buildJudges instantiates every configured judge, wrapping each in the
// result cache when enabled. A judge that cannot be constructed (missing API
// key) is a startup error, not a degraded run: the operator asked for it.
func buildJudges(ctx context.Context, cfg config.Config) ([]judge.Adapter, error) {
	out := make([]judge.Adapter, 0, len(cfg.Judges))
	for _, jc := range cfg.Judges {
		var (
			a   judge.Adapter
			err error
		)
		switch jc.Kind {
		case config.JudgeKindGemini:
			a, err = judge.NewGeminiJudge(ctx, jc.Name, jc.Model)
		case config.JudgeKindOpenAI:
			a, err = judge.NewOpenAIJudge(jc.Name, jc.Model)
		case config.JudgeKindStatic:
			a = judge.NewStaticJudge(jc.Name)
		default:
			err = fmt.Errorf("unknown judge kind %q", jc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("judge %q: %w", jc.Name, err)
		}
		if cfg.Cache.Enabled {
			a = judge.NewCachedAdapter(a, cfg.Cache.Dir, cfg.CacheTTL())
		}
		out = append(out, a)
	}
	return out, nil
}
