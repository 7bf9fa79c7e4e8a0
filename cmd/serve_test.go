package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/classify"
	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/email"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/monitoring"
	"github.com/sells-group/leadflow/internal/oracle"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/mail"
)

// newTestEnv wires a full pipeline environment over a temp SQLite store
// with the heuristic oracle and log-only mail transport.
func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	o := oracle.NewHeuristic()
	processor := pipeline.NewProcessor(
		st,
		classify.NewEngine(o, config.ClassifyConfig{}),
		email.NewComposer(o),
		email.NewDispatcher(mail.NewLog(), config.MailConfig{RatePerSecond: 1000, RateBurst: 100}),
	)

	env := &pipelineEnv{
		Store:     st,
		Processor: processor,
		Workers:   pipeline.NewWorkers(ctx, processor, 4),
		Collector: monitoring.NewCollector(st),
	}
	t.Cleanup(env.Close)

	require.NoError(t, st.SaveOwner(ctx, &model.OwnerProfile{
		ID:           "owner-1",
		BusinessName: "Acme Consulting",
		Industry:     "consulting",
	}))
	require.NoError(t, st.SaveForm(ctx, &model.FormConfig{
		ID:      "form-1",
		OwnerID: "owner-1",
		Title:   "Contact Us",
		Fields: []model.FormField{
			{Label: "Email", Type: "email", Weight: model.WeightNone},
			{Label: "Message", Type: "textarea", Weight: model.WeightHigh},
		},
		Email:  model.EmailSettings{AutoResponse: true},
		Active: true,
	}))
	require.NoError(t, st.SaveForm(ctx, &model.FormConfig{
		ID:      "form-closed",
		OwnerID: "owner-1",
		Title:   "Old Campaign",
		Fields:  []model.FormField{{Label: "Email", Type: "email"}},
		Active:  false,
	}))

	return env
}

func postSubmission(t *testing.T, router http.Handler, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCreateSubmission_RunsPipeline(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env)

	rr := postSubmission(t, router, map[string]any{
		"form_id": "form-1",
		"responses": map[string]string{
			"Email":   "jane@example.com",
			"Message": "We have urgent needs and budget approved",
		},
	})

	assert.Equal(t, http.StatusCreated, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["submission_id"])

	// The response never waits for the pipeline; drain it before checking.
	env.Workers.Wait()

	lead, err := env.Store.GetLeadBySubmission(context.Background(), resp["submission_id"])
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationHot, lead.Classification)
	assert.True(t, lead.EmailSent)

	sub, err := env.Store.GetSubmission(context.Background(), resp["submission_id"])
	require.NoError(t, err)
	assert.True(t, sub.Processed)
	assert.Equal(t, "jane@example.com", sub.Email)
}

func TestCreateSubmission_MissingFormID(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := postSubmission(t, router, map[string]any{
		"responses": map[string]string{"Email": "jane@example.com"},
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "form_id is required")
}

func TestCreateSubmission_MissingResponses(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := postSubmission(t, router, map[string]any{"form_id": "form-1"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "responses are required")
}

func TestCreateSubmission_InvalidJSON(t *testing.T) {
	router := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestCreateSubmission_UnknownForm(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := postSubmission(t, router, map[string]any{
		"form_id":   "missing",
		"responses": map[string]string{"Email": "jane@example.com"},
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "form not found")
}

func TestCreateSubmission_InactiveForm(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := postSubmission(t, router, map[string]any{
		"form_id":   "form-closed",
		"responses": map[string]string{"Email": "jane@example.com"},
	})

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "not accepting submissions")
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env)

	rr := postSubmission(t, router, map[string]any{
		"form_id": "form-1",
		"responses": map[string]string{
			"Email":   "jane@example.com",
			"Message": "We have urgent needs and budget approved",
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	env.Workers.Wait()

	req := httptest.NewRequest(http.MethodGet, "/api/stats?owner=owner-1&hours=1", nil)
	statsRR := httptest.NewRecorder()
	router.ServeHTTP(statsRR, req)

	assert.Equal(t, http.StatusOK, statsRR.Code)

	var snapshot monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(statsRR.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.SubmissionsTotal)
	assert.Equal(t, int64(1), snapshot.LeadsTotal)
	assert.Equal(t, int64(1), snapshot.LeadsHot)
}

func TestStatsEndpoint_InvalidHours(t *testing.T) {
	router := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/api/stats?hours=nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "hours must be a positive integer")
}

func TestServeCmd_DefaultPortFromConfig(t *testing.T) {
	// Verify that servePort flag default is 0 (meaning use config).
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestServeCmd_Metadata(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
	assert.NotEmpty(t, serveCmd.Short)
}

func TestProcessCmd_Metadata(t *testing.T) {
	assert.NotEmpty(t, processCmd.Short)

	limitFlag := processCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "100", limitFlag.DefValue)
}
