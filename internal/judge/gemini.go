package judge

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"iacgate/internal/artifact"
	"iacgate/internal/verdict"
)

const defaultGeminiModel = "gemini-3-flash-preview"

// GeminiJudge evaluates artifacts with a Gemini model via the genai SDK.
type GeminiJudge struct {
	name   string
	model  string
	client *genai.Client
}

// NewGeminiJudge builds a judge named name against the given model
// (empty = default). Requires GEMINI_API_KEY.
func NewGeminiJudge(ctx context.Context, name, model string) (*GeminiJudge, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrJudgeUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiJudge{name: name, model: model, client: client}, nil
}

// Name implements Adapter.
func (g *GeminiJudge) Name() string { return g.name }

// Evaluate implements Adapter. Deterministic decoding (temperature 0) and a
// JSON response MIME type keep replies parseable; anything else is handled
// by the normalizer, not here.
func (g *GeminiJudge) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	start := time.Now()

	temperature := float32(0)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: BuildSystemPrompt()}},
		},
		Temperature:      &temperature,
		MaxOutputTokens:  1024,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: BuildUserPrompt(art, pol)}},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return verdict.JudgeVerdict{}, classifyErr(ctx, err)
	}

	return verdict.Normalize(g.name, resp.Text(), time.Since(start), time.Now()), nil
}
