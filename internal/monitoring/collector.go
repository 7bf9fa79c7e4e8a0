package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Submission metrics (within lookback window).
	SubmissionsTotal     int64   `json:"submissions_total"`
	SubmissionsProcessed int64   `json:"submissions_processed"`
	SubmissionsFailed    int64   `json:"submissions_failed"`
	SubmissionFailRate   float64 `json:"submission_fail_rate"`

	// Lead metrics (within lookback window).
	LeadsTotal        int64   `json:"leads_total"`
	LeadsHot          int64   `json:"leads_hot"`
	LeadsNormal       int64   `json:"leads_normal"`
	LeadsCold         int64   `json:"leads_cold"`
	AverageConfidence float64 `json:"average_confidence"`

	// Email metrics.
	EmailsSent   int64 `json:"emails_sent"`
	EmailsFailed int64 `json:"emails_failed"`

	// Metadata.
	OwnerID       string    `json:"owner_id,omitempty"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window. An empty
// ownerID aggregates across all owners.
func (c *Collector) Collect(ctx context.Context, ownerID string, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		OwnerID:       ownerID,
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	stats, err := c.store.LeadStats(ctx, ownerID, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: lead stats")
	}

	snap.SubmissionsTotal = stats.TotalSubmissions
	snap.SubmissionsProcessed = stats.Processed
	snap.SubmissionsFailed = stats.Failed
	if stats.TotalSubmissions > 0 {
		snap.SubmissionFailRate = float64(stats.Failed) / float64(stats.TotalSubmissions)
	}

	snap.LeadsTotal = stats.TotalLeads
	snap.LeadsHot = stats.Hot
	snap.LeadsNormal = stats.Normal
	snap.LeadsCold = stats.Cold
	snap.AverageConfidence = stats.AverageConfidence

	snap.EmailsSent = stats.EmailsSent
	snap.EmailsFailed = stats.EmailsFailed

	return snap, nil
}
