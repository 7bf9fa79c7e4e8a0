package oracle

import (
	"context"
	"strings"
)

// heuristicOracle is a keyword-driven stand-in for the remote model. It
// requires no credentials and produces deterministic output, so it serves
// local development and tests. Scoring looks for the same buying signals
// a real model would weigh: budget, urgency, timeline.
type heuristicOracle struct{}

// NewHeuristic returns the deterministic keyword-based Oracle.
func NewHeuristic() Oracle {
	return heuristicOracle{}
}

func cannedBody(lower string) string {
	switch {
	case strings.Contains(lower, "hot"):
		return "Hi there,\n\nThank you so much for reaching out! Based on your responses, it sounds like we could be a great fit for your needs. I'd love to schedule a quick call this week to discuss how we can help you reach your goals.\n\nLooking forward to connecting soon!\n\nBest regards"
	case strings.Contains(lower, "cold"):
		return "Hi there,\n\nThanks for taking the time to fill out our form. We appreciate your interest! I wanted to share some resources that might be valuable as you explore your options. Feel free to go at your own pace, and reach out if you have any questions.\n\nBest regards"
	default:
		return "Hi there,\n\nThank you for your interest! I reviewed your responses and think we can definitely help. Would you be open to a brief conversation sometime this week to learn more about your needs?\n\nLooking forward to hearing from you!\n\nBest regards"
	}
}

func (heuristicOracle) GenerateText(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return cannedBody(strings.ToLower(user)), nil
}

// emailPayload returns a canned follow-up email matching the tone the
// prompt asks for.
func (heuristicOracle) emailPayload(system, user string) map[string]any {
	lower := strings.ToLower(system + " " + user)

	subject := "Thanks for your interest!"
	switch {
	case strings.Contains(lower, "hot"):
		subject = "Let's find time to talk this week"
	case strings.Contains(lower, "cold"):
		subject = "Resources to explore at your own pace"
	}

	return map[string]any{
		"subject": subject,
		"body":    cannedBody(lower),
	}
}

func (h heuristicOracle) GenerateStructured(ctx context.Context, system, user string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Email generation prompts ask for a {subject, body} object.
	if strings.Contains(system, `"subject"`) {
		return h.emailPayload(system, user), nil
	}

	lower := strings.ToLower(user)
	hasBudget := strings.Contains(lower, "budget")
	hasUrgent := strings.Contains(lower, "urgent") ||
		strings.Contains(lower, "immediate") ||
		strings.Contains(lower, "asap")
	hasTimeline := strings.Contains(lower, "timeline") ||
		strings.Contains(lower, "when")

	classification := "normal"
	score := 0.5
	budget := "unknown"
	timeline := "unknown"
	urgency := "unknown"

	switch {
	case hasUrgent && hasBudget:
		classification = "hot"
		score = 0.9
		budget = "high"
		timeline = "immediate"
		urgency = "immediate"
	case hasUrgent || (hasBudget && hasTimeline):
		classification = "hot"
		score = 0.75
		budget = "medium"
		timeline = "short-term"
		urgency = "short-term"
	case hasBudget || hasTimeline:
		score = 0.55
		budget = "medium"
		timeline = "short-term"
		urgency = "short-term"
	default:
		score = 0.4
		urgency = "short-term"
	}

	reasoning := "Lead classified as " + strings.ToUpper(classification) + " based on form responses. "
	switch classification {
	case "hot":
		reasoning += "Shows strong buying signals with clear timeline and budget."
	case "normal":
		reasoning += "Demonstrates moderate interest with some qualification criteria met."
	default:
		reasoning += "Appears to be in early research phase with limited qualification signals."
	}

	return map[string]any{
		"classification":  classification,
		"confidenceScore": score,
		"reasoning":       reasoning,
		"insights": map[string]any{
			"budget":        budget,
			"timeline":      timeline,
			"decisionMaker": hasBudget && hasUrgent,
			"painPoints":    []any{"Looking for solution to current challenges"},
			"interests":     []any{"Product features", "Pricing information"},
			"urgency":       urgency,
		},
		"keyFactors": []any{
			"Response completeness",
			"Timeline indication",
			"Budget signals",
		},
	}, nil
}
