package email

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/oracle"
	"github.com/sells-group/leadflow/internal/resilience"
)

// Content is a composed follow-up email.
type Content struct {
	Subject string
	Body    string
}

// Composer produces follow-up email content for a classified lead. A
// configured template for the lead's band takes the template path;
// otherwise the Oracle writes the email. The two paths are mutually
// exclusive: the template path never calls the Oracle.
type Composer struct {
	oracle oracle.Oracle
}

// NewComposer creates a Composer backed by the given Oracle.
func NewComposer(o oracle.Oracle) *Composer {
	return &Composer{oracle: o}
}

// Compose returns the email content for the lead.
func (c *Composer) Compose(ctx context.Context, result *model.ClassificationResult, sub *model.Submission, form *model.FormConfig, owner *model.OwnerProfile) (*Content, error) {
	if tmpl := form.Email.Template(result.Classification); tmpl != "" {
		return renderTemplate(tmpl, result, sub, owner), nil
	}
	return c.generate(ctx, result, sub, owner)
}

var responseToken = regexp.MustCompile(`\{\{response:([^}]+)\}\}`)

// renderTemplate substitutes the template tokens. Unmatched response
// tokens collapse to the empty string rather than leaking into the email.
func renderTemplate(tmpl string, result *model.ClassificationResult, sub *model.Submission, owner *model.OwnerProfile) *Content {
	body := tmpl
	body = strings.ReplaceAll(body, "{{businessName}}", owner.BusinessName)

	name := sub.Name
	if name == "" {
		name = "there"
	}
	body = strings.ReplaceAll(body, "{{customerName}}", name)
	body = strings.ReplaceAll(body, "{{classification}}", string(result.Classification))

	body = responseToken.ReplaceAllStringFunc(body, func(tok string) string {
		key := responseToken.FindStringSubmatch(tok)[1]
		return sub.Responses[key]
	})

	return &Content{
		Subject: fmt.Sprintf("Thank you for your interest - %s", owner.BusinessName),
		Body:    body,
	}
}

var toneDirectives = map[model.Classification]string{
	model.ClassificationHot:    "enthusiastic, direct, action-oriented with a sense of urgency",
	model.ClassificationNormal: "friendly, informative, helpful without being pushy",
	model.ClassificationCold:   "educational, nurturing, value-focused without pressure",
}

var callToAction = map[model.Classification]string{
	model.ClassificationHot:    "Include clear call-to-action (schedule call, book demo, etc.)",
	model.ClassificationNormal: "Provide helpful information and soft call-to-action",
	model.ClassificationCold:   "Focus on education and building trust, gentle nurture approach",
}

func (c *Composer) generate(ctx context.Context, result *model.ClassificationResult, sub *model.Submission, owner *model.OwnerProfile) (*Content, error) {
	system := buildGenerationSystemPrompt(owner, result.Classification)
	user := buildGenerationUserPrompt(result, sub)

	raw, err := c.oracle.GenerateStructured(ctx, system, user)
	if err != nil {
		return nil, err
	}

	subject, _ := raw["subject"].(string)
	body, _ := raw["body"].(string)
	if subject == "" || body == "" {
		return nil, &resilience.OracleError{
			Op:  "compose email",
			Err: fmt.Errorf("generation output missing subject or body"),
		}
	}

	return &Content{Subject: subject, Body: body}, nil
}

func buildGenerationSystemPrompt(owner *model.OwnerProfile, classification model.Classification) string {
	description := owner.Description
	if description == "" {
		description = "Professional service provider"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a personalized email on behalf of %s.\n\n", owner.BusinessName)
	fmt.Fprintf(&b, "Business Context:\n%s\n\n", description)
	fmt.Fprintf(&b, "Lead Classification: %s\n", strings.ToUpper(string(classification)))
	fmt.Fprintf(&b, "Email Tone: %s\n\n", toneDirectives[classification])
	b.WriteString("Email Guidelines:\n")
	b.WriteString("- Keep it concise (150-250 words)\n")
	b.WriteString("- Personalize based on their specific responses\n")
	fmt.Fprintf(&b, "- %s\n", callToAction[classification])
	b.WriteString("- Use a conversational, professional tone\n")
	b.WriteString("- Address their specific pain points or interests\n")
	b.WriteString("- Make it feel human, not robotic\n")
	b.WriteString("- Include relevant next steps\n\n")
	b.WriteString(`Response Format (JSON only):
{
  "subject": "Email subject line (under 60 chars)",
  "body": "Email body in HTML format with proper formatting"
}`)

	return b.String()
}

func buildGenerationUserPrompt(result *model.ClassificationResult, sub *model.Submission) string {
	insights, _ := json.MarshalIndent(result.Insights, "", "  ")
	responses, _ := json.MarshalIndent(sub.Responses, "", "  ")

	var b strings.Builder
	b.WriteString("Lead Information:\n")
	fmt.Fprintf(&b, "- Classification: %s\n", strings.ToUpper(string(result.Classification)))
	fmt.Fprintf(&b, "- Confidence Score: %g\n", result.Confidence)
	fmt.Fprintf(&b, "- Key Insights: %s\n", insights)
	fmt.Fprintf(&b, "- Reasoning: %s\n\n", result.Reasoning)
	fmt.Fprintf(&b, "Customer Responses:\n%s\n\n", responses)
	b.WriteString("Generate a personalized email for this lead.")

	return b.String()
}
