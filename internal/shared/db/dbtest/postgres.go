// Package dbtest sobe um Postgres descartável (testcontainers) com as migrações aplicadas.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/radieske/dice-round-platform/internal/shared/db"
)

// Start devolve uma conexão migrada; pula o teste em -short ou sem docker
func Start(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	var c *postgres.PostgresContainer
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("Skipping integration test (docker unavailable): %v", r)
			}
		}()
		c, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dice_test"),
			postgres.WithUsername("dice"),
			postgres.WithPassword("dice"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
	}()
	if c == nil || err != nil {
		t.Skipf("Skipping integration test (postgres container): %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pg, err := db.ConnectPostgres(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })

	if err := db.Migrate(pg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pg
}
