package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/db"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_submission": `INSERT INTO submissions (id, form_id, owner_id, responses, email, name, phone, processed, source_ip, user_agent, submitted_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_submission":    `SELECT id, form_id, owner_id, responses, email, name, phone, processed, processing_error, source_ip, user_agent, submitted_at FROM submissions WHERE id = $1`,
	"mark_processed":    `UPDATE submissions SET processed = TRUE WHERE id = $1`,
	"set_error":         `UPDATE submissions SET processing_error = $1 WHERE id = $2`,
	"insert_lead":       `INSERT INTO leads (id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, follow_up, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_lead":          `SELECT id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, email_sent_at, email_subject, email_body, email_error, follow_up, created_at FROM leads WHERE customer_id = $1`,
	"update_lead_email": `UPDATE leads SET email_sent = $1, email_sent_at = $2, email_subject = $3, email_body = $4, email_error = $5 WHERE id = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool creates a PostgresStore over an existing pool.
// Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
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
	fields   JSONB NOT NULL,
	criteria JSONB NOT NULL DEFAULT '{}',
	email    JSONB NOT NULL DEFAULT '{}',
	active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS submissions (
	id               TEXT PRIMARY KEY,
	form_id          TEXT NOT NULL REFERENCES forms(id),
	owner_id         TEXT NOT NULL,
	responses        JSONB NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	processed        BOOLEAN NOT NULL DEFAULT FALSE,
	processing_error TEXT NOT NULL DEFAULT '',
	source_ip        TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	submitted_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	owner_id       TEXT NOT NULL,
	form_id        TEXT NOT NULL,
	classification TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	reasoning      TEXT NOT NULL DEFAULT '',
	insights       JSONB NOT NULL DEFAULT '{}',
	key_factors    JSONB,
	email_sent     BOOLEAN NOT NULL DEFAULT FALSE,
	email_sent_at  TIMESTAMPTZ,
	email_subject  TEXT NOT NULL DEFAULT '',
	email_body     TEXT NOT NULL DEFAULT '',
	email_error    TEXT NOT NULL DEFAULT '',
	follow_up      TEXT NOT NULL DEFAULT 'pending',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_form_id ON submissions(form_id);
CREATE INDEX IF NOT EXISTS idx_submissions_processed ON submissions(processed);
CREATE INDEX IF NOT EXISTS idx_leads_owner_id ON leads(owner_id);
CREATE INDEX IF NOT EXISTS idx_leads_classification ON leads(classification);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	responsesJSON, err := json.Marshal(sub.Responses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal responses")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, form_id, owner_id, responses, email, name, phone, processed, source_ip, user_agent, submitted_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.FormID, sub.OwnerID, responsesJSON, sub.Email, sub.Name, sub.Phone, sub.Processed, sub.SourceIP, sub.UserAgent, sub.SubmittedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert submission")
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	var responsesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, form_id, owner_id, responses, email, name, phone, processed, processing_error, source_ip, user_agent, submitted_at FROM submissions WHERE id = $1`,
		id,
	).Scan(&sub.ID, &sub.FormID, &sub.OwnerID, &responsesJSON, &sub.Email, &sub.Name, &sub.Phone, &sub.Processed, &sub.ProcessingError, &sub.SourceIP, &sub.UserAgent, &sub.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "submission", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}

	if err := json.Unmarshal(responsesJSON, &sub.Responses); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal responses")
	}
	return &sub, nil
}

func (s *PostgresStore) MarkSubmissionProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET processed = TRUE WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark submission processed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return &resilience.NotFoundError{Kind: "submission", ID: id}
	}
	return nil
}

func (s *PostgresStore) SetSubmissionError(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET processing_error = $1 WHERE id = $2`, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set submission error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return &resilience.NotFoundError{Kind: "submission", ID: id}
	}
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, form_id, owner_id, responses, email, name, phone, processed, processing_error, source_ip, user_agent, submitted_at FROM submissions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.FormID != "" {
		query += fmt.Sprintf(` AND form_id = $%d`, argIdx)
		args = append(args, filter.FormID)
		argIdx++
	}
	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Processed != nil {
		query += fmt.Sprintf(` AND processed = $%d`, argIdx)
		args = append(args, *filter.Processed)
		argIdx++
	}
	query += ` ORDER BY submitted_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		var responsesJSON []byte

		if err := rows.Scan(&sub.ID, &sub.FormID, &sub.OwnerID, &responsesJSON, &sub.Email, &sub.Name, &sub.Phone, &sub.Processed, &sub.ProcessingError, &sub.SourceIP, &sub.UserAgent, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		if err := json.Unmarshal(responsesJSON, &sub.Responses); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal responses")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) SaveForm(ctx context.Context, form *model.FormConfig) error {
	fieldsJSON, err := json.Marshal(form.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	criteriaJSON, err := json.Marshal(form.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}
	emailJSON, err := json.Marshal(form.Email)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal email settings")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO forms (id, owner_id, title, fields, criteria, email, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET title = $3, fields = $4, criteria = $5, email = $6, active = $7`,
		form.ID, form.OwnerID, form.Title, fieldsJSON, criteriaJSON, emailJSON, form.Active,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save form %s", form.ID)
	}
	return nil
}

func (s *PostgresStore) GetForm(ctx context.Context, id string) (*model.FormConfig, error) {
	var form model.FormConfig
	var fieldsJSON, criteriaJSON, emailJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, fields, criteria, email, active FROM forms WHERE id = $1`,
		id,
	).Scan(&form.ID, &form.OwnerID, &form.Title, &fieldsJSON, &criteriaJSON, &emailJSON, &form.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "form", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get form %s", id)
	}

	if err := json.Unmarshal(fieldsJSON, &form.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	if err := json.Unmarshal(criteriaJSON, &form.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	if err := json.Unmarshal(emailJSON, &form.Email); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal email settings")
	}
	return &form, nil
}

func (s *PostgresStore) SaveOwner(ctx context.Context, owner *model.OwnerProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO owners (id, business_name, description, industry)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET business_name = $2, description = $3, industry = $4`,
		owner.ID, owner.BusinessName, owner.Description, owner.Industry,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save owner %s", owner.ID)
	}
	return nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, id string) (*model.OwnerProfile, error) {
	var owner model.OwnerProfile

	err := s.pool.QueryRow(ctx,
		`SELECT id, business_name, description, industry FROM owners WHERE id = $1`,
		id,
	).Scan(&owner.ID, &owner.BusinessName, &owner.Description, &owner.Industry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "owner", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get owner %s", id)
	}
	return &owner, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) error {
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
		return eris.Wrap(err, "postgres: marshal insights")
	}
	factorsJSON, err := json.Marshal(lead.KeyFactors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal key factors")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, follow_up, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lead.ID, lead.CustomerID, lead.OwnerID, lead.FormID, string(lead.Classification), lead.Confidence, lead.Reasoning, insightsJSON, factorsJSON, lead.EmailSent, string(lead.FollowUp), lead.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &resilience.ConflictError{SubmissionID: lead.CustomerID}
		}
		return eris.Wrap(err, "postgres: insert lead")
	}
	return nil
}

func (s *PostgresStore) GetLeadBySubmission(ctx context.Context, submissionID string) (*model.Lead, error) {
	var lead model.Lead
	var insightsJSON []byte
	var factorsJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, email_sent_at, email_subject, email_body, email_error, follow_up, created_at FROM leads WHERE customer_id = $1`,
		submissionID,
	).Scan(&lead.ID, &lead.CustomerID, &lead.OwnerID, &lead.FormID, &lead.Classification, &lead.Confidence, &lead.Reasoning, &insightsJSON, &factorsJSON, &lead.EmailSent, &lead.EmailSentAt, &lead.EmailSubject, &lead.EmailBody, &lead.EmailError, &lead.FollowUp, &lead.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "lead", ID: submissionID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead for submission %s", submissionID)
	}

	if err := json.Unmarshal(insightsJSON, &lead.Insights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal insights")
	}
	if factorsJSON != nil {
		if err := json.Unmarshal(*factorsJSON, &lead.KeyFactors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal key factors")
		}
	}
	return &lead, nil
}

func (s *PostgresStore) UpdateLeadEmail(ctx context.Context, leadID string, update EmailUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET email_sent = $1, email_sent_at = $2, email_subject = $3, email_body = $4, email_error = $5 WHERE id = $6`,
		update.Sent, update.SentAt, update.Subject, update.Body, update.Error, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead email %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return &resilience.NotFoundError{Kind: "lead", ID: leadID}
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, customer_id, owner_id, form_id, classification, confidence, reasoning, insights, key_factors, email_sent, email_sent_at, email_subject, email_body, email_error, follow_up, created_at FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.FormID != "" {
		query += fmt.Sprintf(` AND form_id = $%d`, argIdx)
		args = append(args, filter.FormID)
		argIdx++
	}
	if filter.Classification != "" {
		query += fmt.Sprintf(` AND classification = $%d`, argIdx)
		args = append(args, string(filter.Classification))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var lead model.Lead
		var insightsJSON []byte
		var factorsJSON *[]byte

		if err := rows.Scan(&lead.ID, &lead.CustomerID, &lead.OwnerID, &lead.FormID, &lead.Classification, &lead.Confidence, &lead.Reasoning, &insightsJSON, &factorsJSON, &lead.EmailSent, &lead.EmailSentAt, &lead.EmailSubject, &lead.EmailBody, &lead.EmailError, &lead.FollowUp, &lead.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if err := json.Unmarshal(insightsJSON, &lead.Insights); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal insights")
		}
		if factorsJSON != nil {
			if err := json.Unmarshal(*factorsJSON, &lead.KeyFactors); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal key factors")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) LeadStats(ctx context.Context, ownerID string, since time.Time) (*LeadStats, error) {
	stats := &LeadStats{}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE processed),
		        count(*) FILTER (WHERE processing_error <> '')
		 FROM submissions
		 WHERE ($1 = '' OR owner_id = $1) AND submitted_at >= $2`,
		ownerID, since,
	).Scan(&stats.TotalSubmissions, &stats.Processed, &stats.Failed)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: submission stats")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE classification = 'hot'),
		        count(*) FILTER (WHERE classification = 'normal'),
		        count(*) FILTER (WHERE classification = 'cold'),
		        count(*) FILTER (WHERE email_sent),
		        count(*) FILTER (WHERE email_error <> ''),
		        COALESCE(avg(confidence), 0)
		 FROM leads
		 WHERE ($1 = '' OR owner_id = $1) AND created_at >= $2`,
		ownerID, since,
	).Scan(&stats.TotalLeads, &stats.Hot, &stats.Normal, &stats.Cold, &stats.EmailsSent, &stats.EmailsFailed, &stats.AverageConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}

	return stats, nil
}
