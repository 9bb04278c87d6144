// Package testutil starts disposable PostgreSQL databases for tests that
// need the real schema.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/storefront/apiserver/internal/db"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// Postgres is a running container with the storefront schema applied.
type Postgres struct {
	DSN       string
	DB        *sql.DB
	container *postgres.PostgresContainer
}

// StartPostgres launches a container, applies migrations and opens a pool.
// Call Close when done.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(
		ctx,
		postgresImage,
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	if err := db.MigrateUp(dsn); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := db.OpenDSN(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Postgres{DSN: dsn, DB: pool, container: container}, nil
}

// Reset empties every table and restarts id sequences.
func (p *Postgres) Reset(ctx context.Context) error {
	const query = `
		TRUNCATE order_products, orders, product_categories, products, categories, users
		RESTART IDENTITY CASCADE`
	_, err := p.DB.ExecContext(ctx, query)
	return err
}

func (p *Postgres) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = p.DB.Close()
	_ = p.container.Terminate(ctx)
}

// RunMain is a TestMain body: it starts a database, stores it in *target,
// runs the tests and tears everything down.
func RunMain(run func() int, target **Postgres) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	pg, err := StartPostgres(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}
	*target = pg

	code := run()

	pg.Close()
	os.Exit(code)
}
