package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories groups the repositories bound to one Querier, either the
// connection pool or a single transaction.
type Repositories struct {
	Users      *UserRepository
	Products   *ProductRepository
	Categories *CategoryRepository
	Orders     *OrderRepository
}

func newRepositories(q Querier) Repositories {
	return Repositories{
		Users:      NewUserRepository(q),
		Products:   NewProductRepository(q),
		Categories: NewCategoryRepository(q),
		Orders:     NewOrderRepository(q),
	}
}

// Store owns the connection pool and runs units of work against it.
type Store struct {
	db     *sql.DB
	repos  Repositories
	logger *slog.Logger
}

// New returns a Store over db. Repos and WithTx share its pool.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		repos:  newRepositories(db),
		logger: logger,
	}
}

// Repos returns repositories that run each statement on its own pooled
// connection. Use WithTx for anything that writes more than once.
func (s *Store) Repos() Repositories {
	return s.repos
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics; the error
// from fn is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(repos Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("failed to begin transaction", "error", err)
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			s.logger.Error("transaction panic, rolled back", "panic", p)
			panic(p)
		}
	}()

	if err = fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
		s.logger.Debug("transaction rolled back", "error", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", "error", err)
		return fmt.Errorf("commit transaction: %w", translate(err))
	}
	return nil
}
