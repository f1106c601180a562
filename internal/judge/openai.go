package judge

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"iacgate/internal/artifact"
	"iacgate/internal/verdict"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIJudge evaluates artifacts with an OpenAI chat model.
type OpenAIJudge struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIJudge builds a judge named name against the given model
// (empty = default). Requires OPENAI_API_KEY.
func NewOpenAIJudge(name, model string) (*OpenAIJudge, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrJudgeUnavailable)
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIJudge{name: name, model: model, client: openai.NewClient(apiKey)}, nil
}

// Name implements Adapter.
func (o *OpenAIJudge) Name() string { return o.name }

// Evaluate implements Adapter.
func (o *OpenAIJudge) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(art, pol)},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return verdict.JudgeVerdict{}, classifyErr(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return verdict.JudgeVerdict{}, fmt.Errorf("%w: empty choices", ErrJudgeUnavailable)
	}

	return verdict.Normalize(o.name, resp.Choices[0].Message.Content, time.Since(start), time.Now()), nil
}
