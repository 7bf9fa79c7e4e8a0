package oracle

import (
	"context"
	"encoding/json"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

// anthropicOracle implements Oracle against the Anthropic Messages API.
// Remote calls get bounded transient-only retry; a permanent API error
// surfaces immediately.
type anthropicOracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
}

func newAnthropicOracle(client anthropic.Client, cfg config.OracleConfig) *anthropicOracle {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &anthropicOracle{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		retry:     retry,
	}
}

func (o *anthropicOracle) GenerateText(ctx context.Context, system, user string, maxTokens int) (string, error) {
	tokens := o.maxTokens
	if maxTokens > 0 {
		tokens = int64(maxTokens)
	}

	resp, err := o.call(ctx, system, user, tokens)
	if err != nil {
		return "", &resilience.OracleError{Op: "generate text", Err: err}
	}
	return resp.Text(), nil
}

func (o *anthropicOracle) GenerateStructured(ctx context.Context, system, user string) (map[string]any, error) {
	resp, err := o.call(ctx, system, user, o.maxTokens)
	if err != nil {
		return nil, &resilience.OracleError{Op: "generate structured", Err: err}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &out); err != nil {
		return nil, &resilience.OracleError{Op: "parse structured output", Err: err}
	}
	return out, nil
}

func (o *anthropicOracle) call(ctx context.Context, system, user string, maxTokens int64) (*anthropic.MessageResponse, error) {
	req := anthropic.MessageRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	}
	if system != "" {
		req.System = []anthropic.SystemBlock{{Text: system}}
	}

	resp, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return o.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	resp.Usage.LogCost(o.model, "lead_pipeline")
	return resp, nil
}
