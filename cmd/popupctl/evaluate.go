package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

type evaluateOptions struct {
	path        string
	country     string
	at          string
	tz          string
	impressions int
	emptyPages  string
}

func newEvaluateCmd() *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Decide whether a visitor would see the popup",
		Example: `  popupctl evaluate ./rules.json --path /products/hat --country US
  popupctl evaluate ./rules.json --at 2024-06-01T10:00:00Z --impressions 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.path, "path", "/", "Storefront path the visitor is on")
	cmd.Flags().StringVar(&opts.country, "country", "", "ISO country code of the visitor")
	cmd.Flags().StringVar(&opts.at, "at", "", "RFC3339 instant to evaluate at (default now)")
	cmd.Flags().StringVar(&opts.tz, "tz", "UTC", "IANA timezone the frequency window aligns to")
	cmd.Flags().IntVar(&opts.impressions, "impressions", 0, "Impressions already counted in the current window")
	cmd.Flags().StringVar(&opts.emptyPages, "empty-page-conditions", string(eligibility.EmptyConditionsPass), "pass or fail for SPECIFIC page rules without conditions")
	return cmd
}

type evaluateReport struct {
	eligibility.Decision
	Window string `json:"window,omitempty"`
}

func runEvaluate(cmd *cobra.Command, file string, opts *evaluateOptions) error {
	cfg, err := loadConfig(file)
	if err != nil {
		return err
	}

	now := time.Now()
	if opts.at != "" {
		now, err = time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	loc, err := time.LoadLocation(opts.tz)
	if err != nil {
		return fmt.Errorf("invalid --tz: %w", err)
	}
	if opts.impressions < 0 {
		return fmt.Errorf("--impressions must not be negative")
	}

	policy := eligibility.Policy{EmptyPageConditions: eligibility.ParseEmptyConditionsPolicy(opts.emptyPages)}
	decision := eligibility.Evaluate(cfg, eligibility.Visitor{
		CountryCode:      opts.country,
		Path:             opts.path,
		Now:              now,
		Location:         loc,
		PriorImpressions: opts.impressions,
	}, policy)

	report := evaluateReport{Decision: decision}
	if cfg.Frequency.Type == enums.FrequencyLimit {
		report.Window = eligibility.WindowKey(cfg.Frequency.Limit.Per, now, loc)
	}
	return writeJSON(cmd.OutOrStdout(), report)
}
