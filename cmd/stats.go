package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/monitoring"
)

var (
	statsOwner  string
	statsHours  int
	statsOutput string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline outcome metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snapshot, err := monitoring.NewCollector(st).Collect(ctx, statsOwner, statsHours)
		if err != nil {
			return err
		}

		return printOutput(cmd, snapshot, statsOutput)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "filter by owner ID")
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "lookback window in hours")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "json", "output format (json, yaml)")
	rootCmd.AddCommand(statsCmd)
}
