package store

import (
	"context"
	"time"

	"github.com/sells-group/leadflow/internal/model"
)

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	FormID    string `json:"form_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Processed *bool  `json:"processed,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	OwnerID        string               `json:"owner_id,omitempty"`
	FormID         string               `json:"form_id,omitempty"`
	Classification model.Classification `json:"classification,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}

// EmailUpdate records the outcome of a follow-up email attempt on a lead.
type EmailUpdate struct {
	Sent    bool
	SentAt  *time.Time
	Subject string
	Body    string
	Error   string
}

// LeadStats aggregates pipeline outcomes for reporting.
type LeadStats struct {
	TotalSubmissions  int64   `json:"total_submissions"`
	Processed         int64   `json:"processed"`
	Failed            int64   `json:"failed"`
	TotalLeads        int64   `json:"total_leads"`
	Hot               int64   `json:"hot"`
	Normal            int64   `json:"normal"`
	Cold              int64   `json:"cold"`
	EmailsSent        int64   `json:"emails_sent"`
	EmailsFailed      int64   `json:"emails_failed"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	MarkSubmissionProcessed(ctx context.Context, id string) error
	SetSubmissionError(ctx context.Context, id string, msg string) error
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)

	// Forms and owners
	SaveForm(ctx context.Context, form *model.FormConfig) error
	GetForm(ctx context.Context, id string) (*model.FormConfig, error)
	SaveOwner(ctx context.Context, owner *model.OwnerProfile) error
	GetOwner(ctx context.Context, id string) (*model.OwnerProfile, error)

	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) error
	GetLeadBySubmission(ctx context.Context, submissionID string) (*model.Lead, error)
	UpdateLeadEmail(ctx context.Context, leadID string, update EmailUpdate) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Reporting
	LeadStats(ctx context.Context, ownerID string, since time.Time) (*LeadStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
