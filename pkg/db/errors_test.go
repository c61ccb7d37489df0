package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_popups_one_active_per_store"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres any", err: fmt.Errorf("create: %w", pgErr), want: true},
		{name: "postgres named", err: pgErr, constraint: "ux_popups_one_active_per_store", want: true},
		{name: "postgres other constraint", err: pgErr, constraint: "stores_shop_key", want: false},
		{name: "postgres other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: popups.store_id"), constraint: "ux_popups_one_active_per_store", want: true},
		{name: "message", err: errors.New(`duplicate key value violates unique constraint "x"`), want: true},
		{name: "unrelated", err: errors.New("connection reset"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}
