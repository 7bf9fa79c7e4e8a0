package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/model"
)

var submitCmd = &cobra.Command{
	Use:   "submit <form-id> <field=value>...",
	Short: "Capture a submission and run the pipeline for it",
	Args:  cobra.MinimumNArgs(2),
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

		responses := make(map[string]string, len(args)-1)
		for _, pair := range args[1:] {
			label, value, ok := strings.Cut(pair, "=")
			if !ok || label == "" {
				return eris.Errorf("invalid response %q, expected field=value", pair)
			}
			responses[label] = value
		}

		form, err := env.Store.GetForm(ctx, args[0])
		if err != nil {
			return err
		}
		if !form.Active {
			return eris.Errorf("form %s is not accepting submissions", form.ID)
		}

		sub := &model.Submission{
			FormID:    form.ID,
			OwnerID:   form.OwnerID,
			Responses: responses,
		}
		sub.ExtractContactFields()

		if err := env.Store.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		cmd.Printf("submission %s created\n", sub.ID)

		result := env.Processor.Process(ctx, sub.ID)
		cmd.Printf("pipeline finished in state %s", result.State)
		if result.Lead != nil {
			cmd.Printf(", lead %s classified %s (%.2f)", result.Lead.ID, result.Lead.Classification, result.Lead.Confidence)
		}
		cmd.Println()
		if result.Err != nil {
			cmd.Printf("recorded error: %v\n", result.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
