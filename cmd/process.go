package main

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process [submission-id...]",
	Short: "Run the pipeline for pending or specific submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if len(ids) == 0 {
			pending := false
			subs, err := env.Store.ListSubmissions(ctx, store.SubmissionFilter{
				Processed: &pending,
				Limit:     processLimit,
			})
			if err != nil {
				return err
			}
			for _, sub := range subs {
				ids = append(ids, sub.ID)
			}
		}

		if len(ids) == 0 {
			cmd.Println("no pending submissions")
			return nil
		}

		var mu sync.Mutex
		var completed, failed int
		env.Workers.OnDone = func(result pipeline.Result) {
			mu.Lock()
			defer mu.Unlock()
			if result.State == model.StateFailed {
				failed++
			} else {
				completed++
			}
		}

		zap.L().Info("processing submissions", zap.Int("count", len(ids)))
		for _, id := range ids {
			env.Workers.Submit(id)
		}
		env.Workers.Wait()

		cmd.Printf("processed %d submissions: %d completed, %d failed\n", len(ids), completed, failed)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 100, "maximum pending submissions to process")
	rootCmd.AddCommand(processCmd)
}
