package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
)

var (
	leadsOwner  string
	leadsForm   string
	leadsClass  string
	leadsLimit  int
	leadsOutput string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List classified leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.LeadFilter{
			OwnerID: leadsOwner,
			FormID:  leadsForm,
			Limit:   leadsLimit,
		}
		if leadsClass != "" {
			c := model.Classification(leadsClass)
			if !c.Valid() {
				return eris.Errorf("invalid classification %q, expected hot, normal, or cold", leadsClass)
			}
			filter.Classification = c
		}

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return err
		}

		return printOutput(cmd, leads, leadsOutput)
	},
}

func printOutput(cmd *cobra.Command, v any, format string) error {
	switch format {
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "marshal yaml")
		}
		cmd.Print(string(out))
	case "json", "":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal json")
		}
		cmd.Println(string(out))
	default:
		return eris.Errorf("unsupported output format %q", format)
	}
	return nil
}

func init() {
	leadsCmd.Flags().StringVar(&leadsOwner, "owner", "", "filter by owner ID")
	leadsCmd.Flags().StringVar(&leadsForm, "form", "", "filter by form ID")
	leadsCmd.Flags().StringVar(&leadsClass, "classification", "", "filter by classification (hot, normal, cold)")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 50, "maximum leads to list")
	leadsCmd.Flags().StringVarP(&leadsOutput, "output", "o", "json", "output format (json, yaml)")
	rootCmd.AddCommand(leadsCmd)
}
