package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/storefront/apiserver/types"
)

// OrderRepository handles persistence for orders and their line items.
type OrderRepository struct {
	db Querier
}

func NewOrderRepository(db Querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order row only; line items are added separately.
func (r *OrderRepository) Create(ctx context.Context, userID int, total types.Money) (types.Order, error) {
	const query = `
		INSERT INTO orders (user_id, total)
		VALUES ($1, $2)
		RETURNING id, user_id, total, created_at`
	return scanOrder(r.db.QueryRowContext(ctx, query, userID, total))
}

// Get returns the order row without line items.
func (r *OrderRepository) Get(ctx context.Context, id int) (types.Order, error) {
	const query = `
		SELECT id, user_id, total, created_at
		FROM orders
		WHERE id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

// GetForUpdate is Get with the order row locked until the surrounding
// transaction ends, so concurrent line-item changes recompute the total in
// turn.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int) (types.Order, error) {
	const query = `
		SELECT id, user_id, total, created_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

// List returns every order row ordered by id, without line items.
func (r *OrderRepository) List(ctx context.Context) ([]types.Order, error) {
	const query = `
		SELECT id, user_id, total, created_at
		FROM orders
		ORDER BY id`
	return r.query(ctx, query)
}

// ListByIDs returns the orders among ids that exist, without line items.
func (r *OrderRepository) ListByIDs(ctx context.Context, ids []int) ([]types.Order, error) {
	if len(ids) == 0 {
		return []types.Order{}, nil
	}
	const query = `
		SELECT id, user_id, total, created_at
		FROM orders
		WHERE id = ANY($1)
		ORDER BY id`
	return r.query(ctx, query, idArray(ids))
}

// LineItems loads the line items of orderIDs together with their products,
// keyed by order id and ordered by product id.
func (r *OrderRepository) LineItems(ctx context.Context, orderIDs []int) (map[int][]types.LineItem, error) {
	result := make(map[int][]types.LineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	const query = `
		SELECT op.order_id, op.product_id, op.quantity, op.price_at_purchase,
		       p.id, p.name, p.price, p.created_at
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = ANY($1)
		ORDER BY op.order_id, op.product_id`
	rows, err := r.db.QueryContext(ctx, query, idArray(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item types.LineItem
		if err := rows.Scan(
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtPurchase,
			&item.Product.ID,
			&item.Product.Name,
			&item.Product.Price,
			&item.Product.CreatedAt,
		); err != nil {
			return nil, err
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ProductIDs returns the ids of the products currently on the order.
func (r *OrderRepository) ProductIDs(ctx context.Context, orderID int) ([]int, error) {
	const query = `
		SELECT product_id
		FROM order_products
		WHERE order_id = $1
		ORDER BY product_id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddLineItems inserts items in one statement. A product already on the
// order yields ErrDuplicate; a missing product yields ErrReferenced.
func (r *OrderRepository) AddLineItems(ctx context.Context, orderID int, items []types.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*4)
	for _, item := range items {
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
		args = append(args, orderID, item.ProductID, item.Quantity, item.PriceAtPurchase)
	}

	query := `
		INSERT INTO order_products (order_id, product_id, quantity, price_at_purchase)
		VALUES ` + strings.Join(values, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

// RemoveLineItems deletes the order's lines for productIDs and returns how
// many rows were removed.
func (r *OrderRepository) RemoveLineItems(ctx context.Context, orderID int, productIDs []int) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM order_products
		WHERE order_id = $1 AND product_id = ANY($2)`
	result, err := r.db.ExecContext(ctx, query, orderID, idArray(productIDs))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClearLineItems deletes every line of the order.
func (r *OrderRepository) ClearLineItems(ctx context.Context, orderID int) (int64, error) {
	const query = `DELETE FROM order_products WHERE order_id = $1`
	result, err := r.db.ExecContext(ctx, query, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetTotal persists a recomputed total.
func (r *OrderRepository) SetTotal(ctx context.Context, orderID int, total types.Money) error {
	const query = `UPDATE orders SET total = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, total, orderID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM orders WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountLinesForProduct reports how many order lines reference the product.
func (r *OrderRepository) CountLinesForProduct(ctx context.Context, productID int) (int, error) {
	const query = `SELECT COUNT(1) FROM order_products WHERE product_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, productID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *OrderRepository) query(ctx context.Context, query string, args ...any) ([]types.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]types.Order, 0)
	for rows.Next() {
		var order types.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Total, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(row *sql.Row) (types.Order, error) {
	var order types.Order
	if err := row.Scan(&order.ID, &order.UserID, &order.Total, &order.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, translate(err)
	}
	return order, nil
}
