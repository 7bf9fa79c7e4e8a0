package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS owners (
	id            TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS forms (
	id       TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES owners(id),
	title    TEXT NOT NULL,
	fields   TEXT NOT NULL,
	criteria TEXT NOT NULL DEFAULT '{}',
	email    TEXT NOT NULL DEFAULT '{}',
	active   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS submissions (
	id               TEXT PRIMARY KEY,
	form_id          TEXT NOT NULL REFERENCES forms(id),
	owner_id         TEXT NOT NULL,
	responses        TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	processed        INTEGER NOT NULL DEFAULT 0,
	processing_error TEXT NOT NULL DEFAULT '',
	source_ip        TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	submitted_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	owner_id       TEXT NOT NULL,
	form_id        TEXT NOT NULL,
	classification TEXT NOT NULL,
	confidence     REAL NOT NULL,
	reasoning      TEXT NOT NULL DEFAULT '',
	insights       TEXT NOT NULL DEFAULT '{}',
	key_factors    TEXT,
	email_sent     INTEGER NOT NULL DEFAULT 0,
	email_sent_at  DATETIME,
	email_subject  TEXT NOT NULL DEFAULT '',
	email_body     TEXT NOT NULL DEFAULT '',
	email_error    TEXT NOT NULL DEFAULT '',
	follow_up      TEXT NOT NULL DEFAULT 'pending',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_form_id ON submissions(form_id);
CREATE INDEX IF NOT EXISTS idx_submissions_processed ON submissions(processed);
CREATE INDEX IF NOT EXISTS idx_leads_owner_id ON leads(owner_id);
CREATE INDEX IF NOT EXISTS idx_leads_classification ON leads(classification);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	responsesJSON, err := json.Marshal(sub.Responses)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal responses")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, form_id, owner_id, responses, email, name, phone, processed, source_ip, user_agent, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FormID, sub.OwnerID, string(responsesJSON), sub.Email, sub.Name, sub.Phone, sub.Processed, sub.SourceIP, sub.UserAgent, sub.SubmittedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert submission")
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	var responsesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, form_id, owner_id, responses, email, name, phone, processed, processing_error, source_ip, user_agent, submitted_at FROM submissions WHERE id = ?`,
		id,
	).Scan(&sub.ID, &sub.FormID, &sub.OwnerID, &responsesJSON, &sub.Email, &sub.Name, &sub.Phone, &sub.Processed, &sub.ProcessingError, &sub.SourceIP, &sub.UserAgent, &sub.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "submission", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}

	if err := json.Unmarshal([]byte(responsesJSON), &sub.Responses); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal responses")
	}
	return &sub, nil
}

func (s *SQLiteStore) MarkSubmissionProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET processed = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark submission processed %s", id)
	}
	return checkRowsAffected(res, "submission", id)
}

func (s *SQLiteStore) SetSubmissionError(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET processing_error = ? WHERE id = ?`, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set submission error %s", id)
	}
	return checkRowsAffected(res, "submission", id)
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, form_id, owner_id, responses, email, name, phone, processed, processing_error, source_ip, user_agent, submitted_at FROM submissions WHERE 1=1`
	args := []any{}

	if filter.FormID != "" {
		query += ` AND form_id = ?`
		args = append(args, filter.FormID)
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *filter.Processed)
	}
	query += ` ORDER BY submitted_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		var responsesJSON string

		if err := rows.Scan(&sub.ID, &sub.FormID, &sub.OwnerID, &responsesJSON, &sub.Email, &sub.Name, &sub.Phone, &sub.Processed, &sub.ProcessingError, &sub.SourceIP, &sub.UserAgent, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		if err := json.Unmarshal([]byte(responsesJSON), &sub.Responses); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal responses")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) SaveForm(ctx context.Context, form *model.FormConfig) error {
	fieldsJSON, err := json.Marshal(form.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	criteriaJSON, err := json.Marshal(form.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal criteria")
	}
	emailJSON, err := json.Marshal(form.Email)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal email settings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forms (id, owner_id, title, fields, criteria, email, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, fields = excluded.fields, criteria = excluded.criteria, email = excluded.email, active = excluded.active`,
		form.ID, form.OwnerID, form.Title, string(fieldsJSON), string(criteriaJSON), string(emailJSON), form.Active,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save form %s", form.ID)
	}
	return nil
}

func (s *SQLiteStore) GetForm(ctx context.Context, id string) (*model.FormConfig, error) {
	var form model.FormConfig
	var fieldsJSON, criteriaJSON, emailJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, fields, criteria, email, active FROM forms WHERE id = ?`,
		id,
	).Scan(&form.ID, &form.OwnerID, &form.Title, &fieldsJSON, &criteriaJSON, &emailJSON, &form.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "form", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get form %s", id)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &form.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if err := json.Unmarshal([]byte(criteriaJSON), &form.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
	}
	if err := json.Unmarshal([]byte(emailJSON), &form.Email); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal email settings")
	}
	return &form, nil
}

func (s *SQLiteStore) SaveOwner(ctx context.Context, owner *model.OwnerProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (id, business_name, description, industry)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET business_name = excluded.business_name, description = excluded.description, industry = excluded.industry`,
		owner.ID, owner.BusinessName, owner.Description, owner.Industry,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save owner %s", owner.ID)
	}
	return nil
}

func (s *SQLiteStore) GetOwner(ctx context.Context, id string) (*model.OwnerProfile, error) {
	var owner model.OwnerProfile

	err := s.db.QueryRowContext(ctx,
		`SELECT id, business_name, description, industry FROM owners WHERE id = ?`,
		id,
	).Scan(&owner.ID, &owner.BusinessName, &owner.Description, &owner.Industry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "owner", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get owner %s", id)
	}
	return &owner, nil
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if lead.FollowUp == "" {
		lead.FollowUp = model.FollowUpPending
	}

	insightsJSON, err := json.Marshal(lead.Insights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insights")
	}
	factorsJSON, err := json.Marshal(lead.KeyFactors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal key factors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, follow_up, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.CustomerID, lead.OwnerID, lead.FormID, string(lead.Classification), lead.Confidence, lead.Reasoning, string(insightsJSON), string(factorsJSON), lead.EmailSent, string(lead.FollowUp), lead.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &resilience.ConflictError{SubmissionID: lead.CustomerID}
		}
		return eris.Wrap(err, "sqlite: insert lead")
	}
	return nil
}

func (s *SQLiteStore) GetLeadBySubmission(ctx context.Context, submissionID string) (*model.Lead, error) {
	var lead model.Lead
	var insightsJSON string
	var factorsJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, email_sent_at, email_subject, email_body, email_error, follow_up, created_at FROM leads WHERE customer_id = ?`,
		submissionID,
	).Scan(&lead.ID, &lead.CustomerID, &lead.OwnerID, &lead.FormID, &lead.Classification, &lead.Confidence, &lead.Reasoning, &insightsJSON, &factorsJSON, &lead.EmailSent, &lead.EmailSentAt, &lead.EmailSubject, &lead.EmailBody, &lead.EmailError, &lead.FollowUp, &lead.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "lead", ID: submissionID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead for submission %s", submissionID)
	}

	if err := json.Unmarshal([]byte(insightsJSON), &lead.Insights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal insights")
	}
	if factorsJSON.Valid && factorsJSON.String != "null" {
		if err := json.Unmarshal([]byte(factorsJSON.String), &lead.KeyFactors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal key factors")
		}
	}
	return &lead, nil
}

func (s *SQLiteStore) UpdateLeadEmail(ctx context.Context, leadID string, update EmailUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET email_sent = ?, email_sent_at = ?, email_subject = ?, email_body = ?, email_error = ? WHERE id = ?`,
		update.Sent, update.SentAt, update.Subject, update.Body, update.Error, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead email %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, email_sent_at, email_subject, email_body, email_error, follow_up, created_at FROM leads WHERE 1=1`
	args := []any{}

	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.FormID != "" {
		query += ` AND form_id = ?`
		args = append(args, filter.FormID)
	}
	if filter.Classification != "" {
		query += ` AND classification = ?`
		args = append(args, string(filter.Classification))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var lead model.Lead
		var insightsJSON string
		var factorsJSON sql.NullString

		if err := rows.Scan(&lead.ID, &lead.CustomerID, &lead.OwnerID, &lead.FormID, &lead.Classification, &lead.Confidence, &lead.Reasoning, &insightsJSON, &factorsJSON, &lead.EmailSent, &lead.EmailSentAt, &lead.EmailSubject, &lead.EmailBody, &lead.EmailError, &lead.FollowUp, &lead.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if err := json.Unmarshal([]byte(insightsJSON), &lead.Insights); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal insights")
		}
		if factorsJSON.Valid && factorsJSON.String != "null" {
			if err := json.Unmarshal([]byte(factorsJSON.String), &lead.KeyFactors); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal key factors")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) LeadStats(ctx context.Context, ownerID string, since time.Time) (*LeadStats, error) {
	stats := &LeadStats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(CASE WHEN processed = 1 THEN 1 END),
		        count(CASE WHEN processing_error <> '' THEN 1 END)
		 FROM submissions
		 WHERE (? = '' OR owner_id = ?) AND submitted_at >= ?`,
		ownerID, ownerID, since,
	).Scan(&stats.TotalSubmissions, &stats.Processed, &stats.Failed)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: submission stats")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(CASE WHEN classification = 'hot' THEN 1 END),
		        count(CASE WHEN classification = 'normal' THEN 1 END),
		        count(CASE WHEN classification = 'cold' THEN 1 END),
		        count(CASE WHEN email_sent = 1 THEN 1 END),
		        count(CASE WHEN email_error <> '' THEN 1 END),
		        COALESCE(avg(confidence), 0)
		 FROM leads
		 WHERE (? = '' OR owner_id = ?) AND created_at >= ?`,
		ownerID, ownerID, since,
	).Scan(&stats.TotalLeads, &stats.Hot, &stats.Normal, &stats.Cold, &stats.EmailsSent, &stats.EmailsFailed, &stats.AverageConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}

	return stats, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return &resilience.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
