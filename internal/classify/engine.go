package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/oracle"
)

// Engine scores a submission against a form's qualification criteria and
// produces a normalized classification result.
type Engine struct {
	oracle        oracle.Oracle
	hotThreshold  float64
	coldThreshold float64
}

// NewEngine creates an Engine with the given thresholds. Zero thresholds
// fall back to the standard 0.7/0.3 bands.
func NewEngine(o oracle.Oracle, cfg config.ClassifyConfig) *Engine {
	hot := cfg.HotThreshold
	if hot <= 0 {
		hot = 0.7
	}
	cold := cfg.ColdThreshold
	if cold <= 0 {
		cold = 0.3
	}
	return &Engine{oracle: o, hotThreshold: hot, coldThreshold: cold}
}

// Classify scores the submission's responses and returns a normalized
// result. The label is always recomputed from the confidence score, so
// the thresholds are authoritative regardless of what the model said.
func (e *Engine) Classify(ctx context.Context, sub *model.Submission, form *model.FormConfig, owner *model.OwnerProfile) (*model.ClassificationResult, error) {
	system := e.buildSystemPrompt(owner, form)
	user := e.buildUserPrompt(sub, form)

	raw, err := e.oracle.GenerateStructured(ctx, system, user)
	if err != nil {
		return nil, err
	}

	result := e.normalize(raw)
	zap.L().Debug("lead classified",
		zap.String("submission_id", sub.ID),
		zap.String("classification", string(result.Classification)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

var defaultHotIndicators = []string{
	"High budget/purchasing power",
	"Immediate timeline (within 1-4 weeks)",
	"Decision-making authority",
	"Clear, urgent pain points",
	"Strong product/service fit",
}

var defaultNormalIndicators = []string{
	"Moderate budget",
	"Short to medium timeline (1-3 months)",
	"Some influence in decision",
	"Defined needs but not urgent",
	"Good product/service fit",
}

var defaultColdIndicators = []string{
	"Limited budget or unspecified",
	"Long timeline (3+ months) or just browsing",
	"No decision-making power",
	"Vague or unclear needs",
	"Weak product/service fit",
}

func (e *Engine) buildSystemPrompt(owner *model.OwnerProfile, form *model.FormConfig) string {
	industry := owner.Industry
	if industry == "" {
		industry = "various"
	}
	description := owner.Description
	if description == "" {
		description = "No additional context provided"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert lead qualification assistant for %s, a business in the %s industry.\n\n", owner.BusinessName, industry)
	fmt.Fprintf(&b, "Business Context:\n%s\n\n", description)
	b.WriteString("Your task is to analyze customer form submissions and classify them as HOT, NORMAL, or COLD leads.\n\n")
	b.WriteString("Classification Criteria:\n\n")

	fmt.Fprintf(&b, "HOT LEADS - High Priority (Score: %.1f-1.0):\n", e.hotThreshold)
	writeIndicators(&b, form.Criteria.Hot, defaultHotIndicators)
	fmt.Fprintf(&b, "\nNORMAL LEADS - Medium Priority (Score: %.1f-%.1f):\n", e.coldThreshold, e.hotThreshold)
	writeIndicators(&b, form.Criteria.Normal, defaultNormalIndicators)
	fmt.Fprintf(&b, "\nCOLD LEADS - Low Priority (Score: 0-%.1f):\n", e.coldThreshold)
	writeIndicators(&b, form.Criteria.Cold, defaultColdIndicators)

	b.WriteString(`
Response Format (JSON only):
{
  "classification": "hot" | "normal" | "cold",
  "confidenceScore": 0.0-1.0,
  "reasoning": "Brief explanation of classification",
  "insights": {
    "budget": "high" | "medium" | "low" | "unknown",
    "timeline": "immediate" | "short-term" | "long-term" | "unknown",
    "decisionMaker": true | false,
    "painPoints": ["pain point 1", "pain point 2"],
    "interests": ["interest 1", "interest 2"],
    "urgency": "immediate" | "short-term" | "long-term" | "unknown"
  },
  "keyFactors": ["factor 1", "factor 2", "factor 3"]
}`)

	return b.String()
}

func writeIndicators(b *strings.Builder, custom, fallback []string) {
	indicators := custom
	if len(indicators) == 0 {
		indicators = fallback
	}
	for _, ind := range indicators {
		fmt.Fprintf(b, "- %s\n", ind)
	}
}

func (e *Engine) buildUserPrompt(sub *model.Submission, form *model.FormConfig) string {
	var b strings.Builder
	b.WriteString("Customer Form Responses:\n\n")

	for _, field := range form.Fields {
		value := sub.Responses[field.Label]
		if value == "" {
			value = "Not provided"
		}
		weight := field.Weight
		if weight == "" {
			weight = model.WeightMedium
		}
		fmt.Fprintf(&b, "%s [Weight: %s]:\n%s\n\n", field.Label, weight, value)
	}

	b.WriteString("\nPlease analyze these responses and provide a classification with detailed insights.")
	return b.String()
}

// normalize validates the raw model output and enforces the score
// thresholds. A missing score defaults to 0.5; out-of-range scores are
// clamped; the label is then recomputed from the clamped score.
func (e *Engine) normalize(raw map[string]any) *model.ClassificationResult {
	result := &model.ClassificationResult{
		Confidence: 0.5,
		Insights:   model.DefaultInsights(),
		Reasoning:  "Lead classified based on form responses",
	}

	if score, ok := toFloat(raw["confidenceScore"]); ok {
		result.Confidence = clamp01(score)
	}

	switch {
	case result.Confidence >= e.hotThreshold:
		result.Classification = model.ClassificationHot
	case result.Confidence <= e.coldThreshold:
		result.Classification = model.ClassificationCold
	default:
		result.Classification = model.ClassificationNormal
	}

	if reasoning, ok := raw["reasoning"].(string); ok && reasoning != "" {
		result.Reasoning = reasoning
	}

	if insights, ok := raw["insights"].(map[string]any); ok {
		result.Insights = parseInsights(insights)
	}

	if factors, ok := raw["keyFactors"].([]any); ok {
		result.KeyFactors = toStrings(factors)
	}

	return result
}

func parseInsights(raw map[string]any) model.Insights {
	out := model.DefaultInsights()
	if v, ok := raw["budget"].(string); ok && v != "" {
		out.Budget = v
	}
	if v, ok := raw["timeline"].(string); ok && v != "" {
		out.Timeline = v
	}
	if v, ok := raw["decisionMaker"].(bool); ok {
		out.DecisionMaker = v
	}
	if v, ok := raw["painPoints"].([]any); ok {
		out.PainPoints = toStrings(v)
	}
	if v, ok := raw["interests"].([]any); ok {
		out.Interests = toStrings(v)
	}
	if v, ok := raw["urgency"].(string); ok && v != "" {
		out.Urgency = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStrings(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
