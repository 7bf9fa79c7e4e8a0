package model

// FieldWeight indicates how strongly a field's response should influence
// classification.
type FieldWeight string

const (
	WeightHigh   FieldWeight = "high"
	WeightMedium FieldWeight = "medium"
	WeightLow    FieldWeight = "low"
	WeightNone   FieldWeight = "none"
)

// FormField is a single configured field on a capture form.
type FormField struct {
	Label  string      `json:"label"`
	Type   string      `json:"type"`
	Weight FieldWeight `json:"weight"`
}

// ClassificationCriteria holds per-band free-text indicator lists. Empty
// lists fall back to built-in generic defaults at prompt-build time.
type ClassificationCriteria struct {
	Hot    []string `json:"hot,omitempty"`
	Normal []string `json:"normal,omitempty"`
	Cold   []string `json:"cold,omitempty"`
}

// EmailSettings controls the follow-up email behavior for a form.
type EmailSettings struct {
	AutoResponse   bool   `json:"auto_response"`
	HotTemplate    string `json:"hot_template,omitempty"`
	NormalTemplate string `json:"normal_template,omitempty"`
	ColdTemplate   string `json:"cold_template,omitempty"`
}

// Template returns the configured template for a classification, or ""
// when none is set.
func (e EmailSettings) Template(c Classification) string {
	switch c {
	case ClassificationHot:
		return e.HotTemplate
	case ClassificationCold:
		return e.ColdTemplate
	default:
		return e.NormalTemplate
	}
}

// FormConfig is the owner-managed form definition. Read-only to the
// pipeline.
type FormConfig struct {
	ID       string                 `json:"id"`
	OwnerID  string                 `json:"owner_id"`
	Title    string                 `json:"title"`
	Fields   []FormField            `json:"fields"`
	Criteria ClassificationCriteria `json:"criteria"`
	Email    EmailSettings          `json:"email"`
	Active   bool                   `json:"active"`
}

// OwnerProfile describes the business that owns a form. Read-only to the
// pipeline.
type OwnerProfile struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	Description  string `json:"description,omitempty"`
	Industry     string `json:"industry,omitempty"`
}
