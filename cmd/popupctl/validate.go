package main

import (
	"github.com/spf13/cobra"
)

type validateReport struct {
	Valid     bool   `json:"valid"`
	Strategy  string `json:"strategy"`
	Frequency string `json:"frequency"`
	Pages     string `json:"pages"`
	Locations string `json:"locations"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <file>",
		Short:   "Parse a rule document and summarize it",
		Example: `  popupctl validate ./rules.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), validateReport{
				Valid:     true,
				Strategy:  cfg.Strategy().Name(),
				Frequency: string(cfg.Frequency.Type),
				Pages:     string(cfg.PageRules.Type),
				Locations: string(cfg.LocationRules.Type),
			})
		},
	}
}
