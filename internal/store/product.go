package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/storefront/apiserver/types"
)

// ProductRepository handles persistence for products and their category
// associations.
type ProductRepository struct {
	db Querier
}

func NewProductRepository(db Querier) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the products matching filter ordered by id. NamePattern is a
// case-insensitive substring; LIKE wildcards in it match literally.
func (r *ProductRepository) List(ctx context.Context, filter types.ProductFilter) ([]types.Product, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ID > 0 {
		args = append(args, filter.ID)
		conditions = append(conditions, fmt.Sprintf("id = $%d", len(args)))
	}
	if pattern := strings.TrimSpace(filter.NamePattern); pattern != "" {
		args = append(args, "%"+escapeLike(pattern)+"%")
		conditions = append(conditions, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, len(args)))
	}

	query := `
		SELECT id, name, price, created_at
		FROM products`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY id"

	return r.query(ctx, query, args...)
}

// ListByIDs returns the products among ids that exist, ordered by id.
func (r *ProductRepository) ListByIDs(ctx context.Context, ids []int) ([]types.Product, error) {
	if len(ids) == 0 {
		return []types.Product{}, nil
	}
	const query = `
		SELECT id, name, price, created_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id`
	return r.query(ctx, query, idArray(ids))
}

// Missing returns the ids that do not name an existing product.
func (r *ProductRepository) Missing(ctx context.Context, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := r.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	foundIDs := make([]int, len(found))
	for i, product := range found {
		foundIDs[i] = product.ID
	}
	return MissingIDs(ids, foundIDs), nil
}

func (r *ProductRepository) Get(ctx context.Context, id int) (types.Product, error) {
	const query = `
		SELECT id, name, price, created_at
		FROM products
		WHERE id = $1`
	return scanProduct(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProductRepository) Create(ctx context.Context, name string, price types.Money) (types.Product, error) {
	const query = `
		INSERT INTO products (name, price)
		VALUES ($1, $2)
		RETURNING id, name, price, created_at`
	return scanProduct(r.db.QueryRowContext(ctx, query, name, price))
}

// Update applies the non-nil name and price. With nothing to change it only
// confirms the product exists.
func (r *ProductRepository) Update(ctx context.Context, id int, name *string, price *types.Money) (types.Product, error) {
	var (
		sets []string
		args []any
	)
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if price != nil {
		args = append(args, *price)
		sets = append(sets, fmt.Sprintf("price = $%d", len(args)))
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE products
		SET %s
		WHERE id = $%d
		RETURNING id, name, price, created_at`, strings.Join(sets, ", "), len(args))
	return scanProduct(r.db.QueryRowContext(ctx, query, args...))
}

// Delete removes the product; its category associations cascade. Products
// still referenced by order line items yield ErrReferenced.
func (r *ProductRepository) Delete(ctx context.Context, id int) (types.Product, error) {
	const query = `
		DELETE FROM products
		WHERE id = $1
		RETURNING id, name, price, created_at`
	return scanProduct(r.db.QueryRowContext(ctx, query, id))
}

// CategoriesFor returns the categories of each product in productIDs, keyed
// by product id and ordered by category id. Products without categories are
// absent from the map.
func (r *ProductRepository) CategoriesFor(ctx context.Context, productIDs []int) (map[int][]types.Category, error) {
	result := make(map[int][]types.Category, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	const query = `
		SELECT pc.product_id, c.id, c.name, c.created_at
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY pc.product_id, c.id`
	rows, err := r.db.QueryContext(ctx, query, idArray(productIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int
			category  types.Category
		)
		if err := rows.Scan(&productID, &category.ID, &category.Name, &category.CreatedAt); err != nil {
			return nil, err
		}
		result[productID] = append(result[productID], category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AddCategories associates the product with categoryIDs. Associations that
// already exist are left alone. It returns how many rows were inserted.
func (r *ProductRepository) AddCategories(ctx context.Context, productID int, categoryIDs []int) (int64, error) {
	if len(categoryIDs) == 0 {
		return 0, nil
	}
	const query = `
		INSERT INTO product_categories (product_id, category_id)
		SELECT $1, category_id
		FROM unnest($2::integer[]) AS category_id
		ON CONFLICT (product_id, category_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, productID, idArray(categoryIDs))
	if err != nil {
		return 0, translate(err)
	}
	return result.RowsAffected()
}

// RemoveCategories drops the product's associations with categoryIDs and
// returns how many rows were removed.
func (r *ProductRepository) RemoveCategories(ctx context.Context, productID int, categoryIDs []int) (int64, error) {
	if len(categoryIDs) == 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM product_categories
		WHERE product_id = $1 AND category_id = ANY($2)`
	result, err := r.db.ExecContext(ctx, query, productID, idArray(categoryIDs))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ProductRepository) query(ctx context.Context, query string, args ...any) ([]types.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]types.Product, 0)
	for rows.Next() {
		var product types.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Price, &product.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func scanProduct(row *sql.Row) (types.Product, error) {
	var product types.Product
	if err := row.Scan(&product.ID, &product.Name, &product.Price, &product.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, translate(err)
	}
	return product, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
