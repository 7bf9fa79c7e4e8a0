package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the submission intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/submissions", handleCreateSubmission(env))
	r.Get("/api/stats", handleStats(env))

	return r
}

// handleCreateSubmission persists the submission and schedules a pipeline
// run. The response never waits on classification or email delivery.
func handleCreateSubmission(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FormID    string            `json:"form_id"`
			Responses map[string]string `json:"responses"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.FormID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "form_id is required"})
			return
		}
		if len(req.Responses) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "responses are required"})
			return
		}

		form, err := env.Store.GetForm(r.Context(), req.FormID)
		if err != nil {
			if resilience.IsNotFound(err) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "form not found"})
				return
			}
			zap.L().Error("form lookup failed", zap.String("form_id", req.FormID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if !form.Active {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "form is not accepting submissions"})
			return
		}

		sub := &model.Submission{
			FormID:    form.ID,
			OwnerID:   form.OwnerID,
			Responses: req.Responses,
			SourceIP:  r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}
		sub.ExtractContactFields()

		if err := env.Store.CreateSubmission(r.Context(), sub); err != nil {
			zap.L().Error("create submission failed", zap.String("form_id", form.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		env.Workers.Submit(sub.ID)

		writeJSON(w, http.StatusCreated, map[string]string{"submission_id": sub.ID})
	}
}

func handleStats(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner")
		hours := 24
		if h := r.URL.Query().Get("hours"); h != "" {
			parsed, err := strconv.Atoi(h)
			if err != nil || parsed <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hours must be a positive integer"})
				return
			}
			hours = parsed
		}

		snapshot, err := env.Collector.Collect(r.Context(), ownerID, hours)
		if err != nil {
			zap.L().Error("stats collection failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
