package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSubmission_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM submissions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSubmission(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	responses := []byte(`{"Email":"jane@example.com","Message":"hello"}`)
	rows := pgxmock.NewRows([]string{"id", "form_id", "owner_id", "responses", "email", "name", "phone", "processed", "processing_error", "source_ip", "user_agent", "submitted_at"}).
		AddRow("sub-1", "form-1", "owner-1", responses, "jane@example.com", "Jane", "", false, "", "1.2.3.4", "curl", now)

	mock.ExpectQuery(`SELECT .* FROM submissions WHERE id = \$1`).
		WithArgs("sub-1").
		WillReturnRows(rows)

	sub, err := s.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "form-1", sub.FormID)
	assert.Equal(t, "hello", sub.Responses["Message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSubmission_AssignsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), "form-1", "owner-1", pgxmock.AnyArg(), "jane@example.com", "Jane", "", false, "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sub := &model.Submission{
		FormID:    "form-1",
		OwnerID:   "owner-1",
		Email:     "jane@example.com",
		Name:      "Jane",
		Responses: map[string]string{"Email": "jane@example.com"},
	}
	err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSubmissionProcessed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE submissions SET processed = TRUE`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkSubmissionProcessed(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSubmissionError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE submissions SET processing_error = \$1`).
		WithArgs("oracle parse failed", "sub-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetSubmissionError(context.Background(), "sub-1", "oracle parse failed")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLead_ConflictMapsToConflictError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "sub-1", "owner-1", "form-1", "hot", 0.85, "strong signals", pgxmock.AnyArg(), pgxmock.AnyArg(), false, "pending", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "leads_customer_id_key"})

	lead := &model.Lead{
		CustomerID:     "sub-1",
		OwnerID:        "owner-1",
		FormID:         "form-1",
		Classification: model.ClassificationHot,
		Confidence:     0.85,
		Reasoning:      "strong signals",
		Insights:       model.DefaultInsights(),
	}
	err := s.CreateLead(context.Background(), lead)
	require.Error(t, err)
	assert.True(t, resilience.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "sub-1", "owner-1", "form-1", "normal", 0.5, "", pgxmock.AnyArg(), pgxmock.AnyArg(), false, "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead := &model.Lead{
		CustomerID:     "sub-1",
		OwnerID:        "owner-1",
		FormID:         "form-1",
		Classification: model.ClassificationNormal,
		Confidence:     0.5,
		Insights:       model.DefaultInsights(),
	}
	err := s.CreateLead(context.Background(), lead)
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, model.FollowUpPending, lead.FollowUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLeadBySubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	insights, err := json.Marshal(model.DefaultInsights())
	require.NoError(t, err)
	factors := []byte(`["budget signals"]`)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "customer_id", "owner_id", "form_id", "classification", "confidence", "reasoning", "insights", "key_factors", "email_sent", "email_sent_at", "email_subject", "email_body", "email_error", "follow_up", "created_at"}).
		AddRow("lead-1", "sub-1", "owner-1", "form-1", "hot", 0.85, "strong", insights, &factors, true, &now, "Hi", "<p>Hi</p>", "", "pending", now)

	mock.ExpectQuery(`SELECT .* FROM leads WHERE customer_id = \$1`).
		WithArgs("sub-1").
		WillReturnRows(rows)

	lead, err := s.GetLeadBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationHot, lead.Classification)
	assert.Equal(t, []string{"budget signals"}, lead.KeyFactors)
	assert.True(t, lead.EmailSent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadEmail_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET email_sent`).
		WithArgs(true, pgxmock.AnyArg(), "Subject", "Body", "", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	now := time.Now().UTC()
	err := s.UpdateLeadEmail(context.Background(), "missing", EmailUpdate{
		Sent: true, SentAt: &now, Subject: "Subject", Body: "Body",
	})
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	insights, err := json.Marshal(model.DefaultInsights())
	require.NoError(t, err)
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "customer_id", "owner_id", "form_id", "classification", "confidence", "reasoning", "insights", "key_factors", "email_sent", "email_sent_at", "email_subject", "email_body", "email_error", "follow_up", "created_at"}).
		AddRow("lead-1", "sub-1", "owner-1", "form-1", "hot", 0.9, "r", insights, nil, false, nil, "", "", "", "pending", now)

	mock.ExpectQuery(`SELECT .* FROM leads WHERE true AND owner_id = \$1 AND classification = \$2`).
		WithArgs("owner-1", "hot", 100).
		WillReturnRows(rows)

	leads, err := s.ListLeads(context.Background(), LeadFilter{
		OwnerID:        "owner-1",
		Classification: model.ClassificationHot,
	})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-1", leads[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetForm_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM forms WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetForm(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery(`FILTER \(WHERE processed\)`).
		WithArgs("owner-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"c1", "c2", "c3"}).AddRow(int64(10), int64(8), int64(2)))
	mock.ExpectQuery(`FILTER \(WHERE classification = 'hot'\)`).
		WithArgs("owner-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}).
			AddRow(int64(8), int64(3), int64(4), int64(1), int64(6), int64(1), 0.58))

	stats, err := s.LeadStats(context.Background(), "owner-1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalSubmissions)
	assert.Equal(t, int64(3), stats.Hot)
	assert.Equal(t, 0.58, stats.AverageConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
