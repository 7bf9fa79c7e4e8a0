package model

import "time"

// Classification is the final lead label, always derived from the
// confidence score and the configured thresholds.
type Classification string

const (
	ClassificationHot    Classification = "hot"
	ClassificationNormal Classification = "normal"
	ClassificationCold   Classification = "cold"
)

// Valid reports whether c is one of the three known labels.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationHot, ClassificationNormal, ClassificationCold:
		return true
	}
	return false
}

// Insights is the structured extraction produced alongside the score.
type Insights struct {
	Budget        string   `json:"budget"`
	Timeline      string   `json:"timeline"`
	DecisionMaker bool     `json:"decision_maker"`
	PainPoints    []string `json:"pain_points"`
	Interests     []string `json:"interests"`
	Urgency       string   `json:"urgency"`
}

// DefaultInsights is substituted when the scoring response carries no
// insights object.
func DefaultInsights() Insights {
	return Insights{
		Budget:     "unknown",
		Timeline:   "unknown",
		Urgency:    "unknown",
		PainPoints: []string{},
		Interests:  []string{},
	}
}

// ClassificationResult is the normalized output of the scoring call.
type ClassificationResult struct {
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence_score"`
	Reasoning      string         `json:"reasoning"`
	Insights       Insights       `json:"insights"`
	KeyFactors     []string       `json:"key_factors,omitempty"`
}

// FollowUpStatus tracks post-classification engagement. Mutated by
// external follow-up workflows; the pipeline only sets the initial value.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpContacted FollowUpStatus = "contacted"
	FollowUpConverted FollowUpStatus = "converted"
	FollowUpLost      FollowUpStatus = "lost"
)

// Lead is the classification and engagement record derived from exactly
// one Submission. CustomerID carries a storage-level uniqueness
// constraint: it is the deduplication mechanism for concurrent pipeline
// runs, not incidental schema detail.
type Lead struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	OwnerID        string         `json:"owner_id"`
	FormID         string         `json:"form_id"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence_score"`
	Reasoning      string         `json:"reasoning"`
	Insights       Insights       `json:"insights"`
	KeyFactors     []string       `json:"key_factors,omitempty"`
	EmailSent      bool           `json:"email_sent"`
	EmailSentAt    *time.Time     `json:"email_sent_at,omitempty"`
	EmailSubject   string         `json:"email_subject,omitempty"`
	EmailBody      string         `json:"email_body,omitempty"`
	EmailError     string         `json:"email_error,omitempty"`
	FollowUp       FollowUpStatus `json:"follow_up_status"`
	CreatedAt      time.Time      `json:"created_at"`
}
