package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/popcatch-backend/pkg/config"
	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
)

type dlqReader interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// dlqOpener returns a reader plus the func that releases it.
type dlqOpener func(ctx context.Context) (dlqReader, func() error, error)

type dlqEntry struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	Reason        string    `json:"reason"`
	Error         string    `json:"error,omitempty"`
	Attempts      int       `json:"attempts"`
	FailedAt      time.Time `json:"failed_at"`
}

func newDLQEntry(row models.OutboxDLQ) dlqEntry {
	entry := dlqEntry{
		EventID:       row.EventID,
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID,
		Reason:        string(row.ErrorReason),
		Attempts:      row.AttemptCount,
		FailedAt:      row.FailedAt.UTC(),
	}
	if row.ErrorMessage != nil {
		entry.Error = *row.ErrorMessage
	}
	return entry
}

func newDLQCmd(open dlqOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect outbox events that were dead-lettered",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			reader, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rows, err := reader.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list dead letters: %w", err)
			}
			out := make([]dlqEntry, 0, len(rows))
			for _, row := range rows {
				out = append(out, newDLQEntry(row))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")

	show := &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show the dead letter for one outbox event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			reader, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			row, err := reader.FindByEventID(cmd.Context(), eventID)
			if err != nil {
				return fmt.Errorf("load dead letter: %w", err)
			}
			if row == nil {
				return errors.New("no dead letter for event " + eventID.String())
			}
			return writeJSON(cmd.OutOrStdout(), newDLQEntry(*row))
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// openDLQFromEnv connects with the same POPCATCH_DB_* settings the services use.
func openDLQFromEnv(ctx context.Context) (dlqReader, func() error, error) {
	_ = godotenv.Load()
	cfg, err := config.LoadDB()
	if err != nil {
		return nil, nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "popupctl",
		Level:       logger.ParseLevel(os.Getenv(config.EnvLogLevel)),
		Output:      os.Stderr,
	})
	client, err := db.New(ctx, *cfg, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return outbox.NewDLQRepository(client.DB()), client.Close, nil
}
