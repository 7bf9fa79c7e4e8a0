package oracle

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

// Oracle is the model backend used for lead scoring and email generation.
type Oracle interface {
	// GenerateText returns free-form text for the given prompts.
	GenerateText(ctx context.Context, system, user string, maxTokens int) (string, error)

	// GenerateStructured returns a parsed JSON object for the given
	// prompts. Implementations strip markdown fences before parsing.
	GenerateStructured(ctx context.Context, system, user string) (map[string]any, error)
}

// New constructs the Oracle selected by cfg.Backend. The "heuristic"
// backend needs no credentials and is used for local development and tests.
func New(cfg config.OracleConfig) (Oracle, error) {
	switch cfg.Backend {
	case "anthropic", "":
		if cfg.Key == "" {
			return nil, eris.New("oracle: anthropic backend requires a key")
		}
		return newAnthropicOracle(anthropic.NewClient(cfg.Key), cfg), nil
	case "heuristic":
		return NewHeuristic(), nil
	default:
		return nil, eris.Errorf("oracle: unknown backend %q", cfg.Backend)
	}
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
