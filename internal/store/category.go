package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/storefront/apiserver/types"
)

// CategoryRepository handles persistence for categories.
type CategoryRepository struct {
	db Querier
}

func NewCategoryRepository(db Querier) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	const query = `
		SELECT id, name, created_at
		FROM categories
		ORDER BY id`
	return r.query(ctx, query)
}

// ListByIDs returns the categories among ids that exist. Unknown ids are
// skipped; compare with MissingIDs to detect them.
func (r *CategoryRepository) ListByIDs(ctx context.Context, ids []int) ([]types.Category, error) {
	if len(ids) == 0 {
		return []types.Category{}, nil
	}
	const query = `
		SELECT id, name, created_at
		FROM categories
		WHERE id = ANY($1)
		ORDER BY id`
	return r.query(ctx, query, idArray(ids))
}

func (r *CategoryRepository) Get(ctx context.Context, id int) (types.Category, error) {
	const query = `
		SELECT id, name, created_at
		FROM categories
		WHERE id = $1`
	return scanCategory(r.db.QueryRowContext(ctx, query, id))
}

func (r *CategoryRepository) Create(ctx context.Context, name string) (types.Category, error) {
	const query = `
		INSERT INTO categories (name)
		VALUES ($1)
		RETURNING id, name, created_at`
	return scanCategory(r.db.QueryRowContext(ctx, query, name))
}

func (r *CategoryRepository) Update(ctx context.Context, id int, name string) (types.Category, error) {
	const query = `
		UPDATE categories
		SET name = $1
		WHERE id = $2
		RETURNING id, name, created_at`
	return scanCategory(r.db.QueryRowContext(ctx, query, name, id))
}

// Delete removes the category and, through ON DELETE CASCADE, every product
// association that references it. The deleted row is returned.
func (r *CategoryRepository) Delete(ctx context.Context, id int) (types.Category, error) {
	const query = `
		DELETE FROM categories
		WHERE id = $1
		RETURNING id, name, created_at`
	return scanCategory(r.db.QueryRowContext(ctx, query, id))
}

func (r *CategoryRepository) query(ctx context.Context, query string, args ...any) ([]types.Category, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]types.Category, 0)
	for rows.Next() {
		var category types.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func scanCategory(row *sql.Row) (types.Category, error) {
	var category types.Category
	if err := row.Scan(&category.ID, &category.Name, &category.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, translate(err)
	}
	return category, nil
}

func categoryIDs(categories []types.Category) []int {
	ids := make([]int, len(categories))
	for i, category := range categories {
		ids[i] = category.ID
	}
	return ids
}

// Missing returns the ids that do not name an existing category.
func (r *CategoryRepository) Missing(ctx context.Context, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := r.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return MissingIDs(ids, categoryIDs(found)), nil
}
