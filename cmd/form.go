package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadflow/internal/model"
)

// formFile is the YAML layout accepted by `form apply`.
type formFile struct {
	Owner struct {
		ID           string `yaml:"id"`
		BusinessName string `yaml:"business_name"`
		Description  string `yaml:"description"`
		Industry     string `yaml:"industry"`
	} `yaml:"owner"`
	Forms []struct {
		ID     string `yaml:"id"`
		Title  string `yaml:"title"`
		Active *bool  `yaml:"active"`
		Fields []struct {
			Label  string `yaml:"label"`
			Type   string `yaml:"type"`
			Weight string `yaml:"weight"`
		} `yaml:"fields"`
		Criteria struct {
			Hot    []string `yaml:"hot"`
			Normal []string `yaml:"normal"`
			Cold   []string `yaml:"cold"`
		} `yaml:"criteria"`
		Email struct {
			AutoResponse   bool   `yaml:"auto_response"`
			HotTemplate    string `yaml:"hot_template"`
			NormalTemplate string `yaml:"normal_template"`
			ColdTemplate   string `yaml:"cold_template"`
		} `yaml:"email"`
	} `yaml:"forms"`
}

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Manage capture form definitions",
}

var formApplyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Create or update an owner and its forms from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		var file formFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}
		if file.Owner.ID == "" || file.Owner.BusinessName == "" {
			return eris.New("owner.id and owner.business_name are required")
		}
		if len(file.Forms) == 0 {
			return eris.New("at least one form is required")
		}
		for _, f := range file.Forms {
			if f.ID == "" || f.Title == "" {
				return eris.New("every form requires id and title")
			}
			if len(f.Fields) == 0 {
				return eris.Errorf("form %s has no fields", f.ID)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		owner := &model.OwnerProfile{
			ID:           file.Owner.ID,
			BusinessName: file.Owner.BusinessName,
			Description:  file.Owner.Description,
			Industry:     file.Owner.Industry,
		}
		if err := st.SaveOwner(ctx, owner); err != nil {
			return err
		}

		for _, f := range file.Forms {
			form := &model.FormConfig{
				ID:      f.ID,
				OwnerID: owner.ID,
				Title:   f.Title,
				Active:  true,
				Criteria: model.ClassificationCriteria{
					Hot:    f.Criteria.Hot,
					Normal: f.Criteria.Normal,
					Cold:   f.Criteria.Cold,
				},
				Email: model.EmailSettings{
					AutoResponse:   f.Email.AutoResponse,
					HotTemplate:    f.Email.HotTemplate,
					NormalTemplate: f.Email.NormalTemplate,
					ColdTemplate:   f.Email.ColdTemplate,
				},
			}
			if f.Active != nil {
				form.Active = *f.Active
			}
			for _, fld := range f.Fields {
				weight := model.FieldWeight(fld.Weight)
				if weight == "" {
					weight = model.WeightMedium
				}
				form.Fields = append(form.Fields, model.FormField{
					Label:  fld.Label,
					Type:   fld.Type,
					Weight: weight,
				})
			}

			if err := st.SaveForm(ctx, form); err != nil {
				return err
			}
			zap.L().Info("form saved", zap.String("form_id", form.ID), zap.String("owner_id", owner.ID))
		}

		cmd.Printf("applied %d forms for owner %s\n", len(file.Forms), owner.ID)
		return nil
	},
}

func init() {
	formCmd.AddCommand(formApplyCmd)
	rootCmd.AddCommand(formCmd)
}
