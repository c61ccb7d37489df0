package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/popcatch-backend/internal/rules"
)

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "popupctl",
		Short: "Inspect popup rule documents and outbox dead letters",
		Long: `popupctl parses popup rule documents the same way the API does and
reports how the eligibility engine would decide a visitor. The dlq commands
read the outbox dead-letter table using the POPCATCH_DB_* settings.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(newValidateCmd(), newEvaluateCmd(), newDLQCmd(openDLQFromEnv))
	return root
}

func loadConfig(path string) (*rules.RuleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := rules.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
