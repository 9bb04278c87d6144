package types

import "time"

// Order is a purchase made by a user. Total is derived from the line items
// and is never supplied by callers.
type Order struct {
	// ID is the unique identifier of the order.
	ID int `json:"id" db:"id"`

	// UserID identifies the user who placed the order.
	UserID int `json:"user_id" db:"user_id"`

	// Total is the sum of PriceAtPurchase over LineItems, at two decimals.
	Total Money `json:"total" db:"total"`

	// CreatedAt is the timestamp when the order was placed.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LineItems are the products on the order, ordered by product id.
	LineItems []LineItem `json:"line_items"`
}

// LineItem associates one product with an order. An order lists a product
// at most once.
type LineItem struct {
	OrderID   int `json:"order_id" db:"order_id"`
	ProductID int `json:"product_id" db:"product_id"`

	// Quantity is the number of units requested. It is at least 1.
	Quantity int `json:"quantity" db:"quantity"`

	// PriceAtPurchase is the product price sampled when the line was added.
	// Later product price changes do not affect it.
	PriceAtPurchase Money `json:"price_at_purchase" db:"price_at_purchase"`

	// Product is the current product row, loaded for display.
	Product Product `json:"product"`
}

// LineRequest asks for a product to be placed on a new order.
type LineRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// OrderTotal sums the purchase prices of items, rounded to cents.
func OrderTotal(items []LineItem) Money {
	total := ZeroMoney
	for _, item := range items {
		total = total.Add(item.PriceAtPurchase)
	}
	return Money{Decimal: total.Decimal.Round(2)}
}

// ProductIDs returns the product ids of the order's line items.
func (o Order) ProductIDs() []int {
	ids := make([]int, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		ids = append(ids, item.ProductID)
	}
	return ids
}
