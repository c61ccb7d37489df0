// Package dbtest opens throwaway sqlite databases carrying the popcatch schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/migrate"
)

// Open returns a client over a private in-memory database. The pool is pinned
// to one connection so the shared-cache database lives as long as the test.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := db.NewFromConn(conn)
	if err := migrate.AutoMigrateModels(context.Background(), client); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return client
}
