package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// OrderService places and edits orders. Every mutation validates its input,
// applies the line-item changes, recomputes the total and reloads the order
// inside one transaction.
type OrderService struct {
	store   Store
	events  EventPublisher
	archive OrderArchive
	logger  *slog.Logger
}

// NewOrderService wires the order use-cases. events and archive may be nil.
func NewOrderService(store Store, events EventPublisher, archive OrderArchive, logger *slog.Logger) *OrderService {
	return &OrderService{store: store, events: events, archive: archive, logger: logger}
}

// CreateOrder places an order for userID. Each line samples the product's
// current price; an empty request yields an order with a zero total.
func (s *OrderService) CreateOrder(ctx context.Context, userID int, lines []types.LineRequest) (types.Order, error) {
	if err := validateLineRequests(lines); err != nil {
		logFailure(s.logger, "create order", err, "user_id", userID)
		return types.Order{}, err
	}

	var order types.Order
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		exists, err := repos.Users.Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return &NotFoundError{Entity: "user", IDs: []int{userID}}
		}

		ids := make([]int, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		products, err := repos.Products.ListByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if missing := store.MissingIDs(ids, productIDs(products)); len(missing) > 0 {
			return &NotFoundError{Entity: "product", IDs: missing}
		}

		items := buildLineItems(lines, products)
		created, err := repos.Orders.Create(ctx, userID, types.OrderTotal(items))
		if err != nil {
			return err
		}
		if err := repos.Orders.AddLineItems(ctx, created.ID, items); err != nil {
			return lineConflict(err)
		}

		order, err = loadOrder(ctx, repos, created.ID)
		if err != nil {
			return &InternalConsistencyError{Op: "create order", Err: err}
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "create order", err, "user_id", userID)
		return types.Order{}, err
	}

	s.logger.Info("order created", "order_id", order.ID, "user_id", userID, "total", order.Total.String())
	publish(ctx, s.logger, s.events, ChannelOrders, EventOrderCreated, order)
	return order, nil
}

// UpdateOrder removes and adds products on an existing order. Added lines
// have quantity 1 and the product's current price; lines already on the
// order keep the price they were bought at.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID int, addProductIDs, removeProductIDs []int) (types.Order, error) {
	var errs fieldErrors
	checkPositiveIDs(&errs, "add_product_ids", addProductIDs)
	checkPositiveIDs(&errs, "remove_product_ids", removeProductIDs)
	if both := intersect(addProductIDs, removeProductIDs); len(both) > 0 {
		errs.add("add_product_ids", fmt.Sprintf("ids %s are also listed in remove_product_ids", joinIDs(both)))
	}
	if err := errs.err(); err != nil {
		logFailure(s.logger, "update order", err, "order_id", orderID)
		return types.Order{}, err
	}
	add := normalizeIDs(addProductIDs)
	remove := normalizeIDs(removeProductIDs)

	var order types.Order
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		if _, err := repos.Orders.GetForUpdate(ctx, orderID); err != nil {
			return orderNotFound(err, orderID)
		}

		products, err := repos.Products.ListByIDs(ctx, add)
		if err != nil {
			return err
		}
		missing := store.MissingIDs(add, productIDs(products))
		missingRemoved, err := repos.Products.Missing(ctx, remove)
		if err != nil {
			return err
		}
		if missing = normalizeIDs(append(missing, missingRemoved...)); len(missing) > 0 {
			return &NotFoundError{Entity: "product", IDs: missing}
		}

		current, err := repos.Orders.ProductIDs(ctx, orderID)
		if err != nil {
			return err
		}
		if absent := without(remove, current); len(absent) > 0 {
			return &ConflictError{Message: "products are not on the order", IDs: absent}
		}
		if present := intersect(add, current); len(present) > 0 {
			return &ConflictError{Message: "products are already on the order", IDs: present}
		}

		if _, err := repos.Orders.RemoveLineItems(ctx, orderID, remove); err != nil {
			return err
		}
		items := make([]types.LineItem, len(products))
		for i, product := range products {
			items[i] = types.LineItem{ProductID: product.ID, Quantity: 1, PriceAtPurchase: product.Price}
		}
		if err := repos.Orders.AddLineItems(ctx, orderID, items); err != nil {
			return lineConflict(err)
		}

		if err := recomputeTotal(ctx, repos, orderID); err != nil {
			return err
		}
		order, err = loadOrder(ctx, repos, orderID)
		if err != nil {
			return &InternalConsistencyError{Op: "update order", Err: err}
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "update order", err, "order_id", orderID, "add", add, "remove", remove)
		return types.Order{}, err
	}

	publish(ctx, s.logger, s.events, ChannelOrders, EventOrderUpdated, order)
	return order, nil
}

// GetOrders returns every order when orderIDs is empty, otherwise exactly
// the named orders. Any unknown id fails the whole call.
func (s *OrderService) GetOrders(ctx context.Context, orderIDs []int) ([]types.Order, error) {
	var errs fieldErrors
	checkPositiveIDs(&errs, "ids", orderIDs)
	if err := errs.err(); err != nil {
		logFailure(s.logger, "get orders", err)
		return nil, err
	}
	ids := normalizeIDs(orderIDs)

	repos := s.store.Repos()
	var (
		orders []types.Order
		err    error
	)
	if len(ids) == 0 {
		orders, err = repos.Orders.List(ctx)
	} else {
		orders, err = repos.Orders.ListByIDs(ctx, ids)
	}
	if err != nil {
		logFailure(s.logger, "get orders", err)
		return nil, err
	}

	if len(ids) > 0 {
		found := make([]int, len(orders))
		for i, order := range orders {
			found[i] = order.ID
		}
		if missing := store.MissingIDs(ids, found); len(missing) > 0 {
			err := &NotFoundError{Entity: "order", IDs: missing}
			logFailure(s.logger, "get orders", err)
			return nil, err
		}
	}

	if err := attachLineItems(ctx, repos, orders); err != nil {
		logFailure(s.logger, "get orders", err)
		return nil, err
	}
	return orders, nil
}

// DeleteOrder removes the order and its line items and returns the order as
// it was before deletion. The snapshot is archived when an archive is
// configured.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int) (types.Order, error) {
	var snapshot types.Order
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		if _, err := repos.Orders.GetForUpdate(ctx, orderID); err != nil {
			return orderNotFound(err, orderID)
		}
		var err error
		snapshot, err = loadOrder(ctx, repos, orderID)
		if err != nil {
			return err
		}
		if _, err := repos.Orders.ClearLineItems(ctx, orderID); err != nil {
			return err
		}
		return orderNotFound(repos.Orders.Delete(ctx, orderID), orderID)
	})
	if err != nil {
		logFailure(s.logger, "delete order", err, "order_id", orderID)
		return types.Order{}, err
	}

	s.logger.Info("order deleted", "order_id", orderID)
	if s.archive != nil {
		if key, err := s.archive.ArchiveOrder(ctx, snapshot); err != nil {
			s.logger.Warn("failed to archive deleted order", "order_id", orderID, "error", err)
		} else {
			s.logger.Debug("deleted order archived", "order_id", orderID, "key", key)
		}
	}
	publish(ctx, s.logger, s.events, ChannelOrders, EventOrderDeleted, snapshot)
	return snapshot, nil
}

func validateLineRequests(lines []types.LineRequest) error {
	var errs fieldErrors
	seen := make(map[int]struct{}, len(lines))
	for i, line := range lines {
		field := fmt.Sprintf("products[%d]", i)
		if line.ProductID < 1 {
			errs.add(field+".product_id", "must be a positive integer")
		}
		if line.Quantity < 1 {
			errs.add(field+".quantity", "must be at least 1")
		}
		if _, dup := seen[line.ProductID]; dup && line.ProductID > 0 {
			errs.add(field+".product_id", "is listed more than once")
		}
		seen[line.ProductID] = struct{}{}
	}
	return errs.err()
}

// buildLineItems turns requests into line items priced from products, in
// product id order. Every requested product must be present in products.
func buildLineItems(lines []types.LineRequest, products []types.Product) []types.LineItem {
	prices := make(map[int]types.Money, len(products))
	for _, product := range products {
		prices[product.ID] = product.Price
	}
	items := make([]types.LineItem, len(lines))
	for i, line := range lines {
		items[i] = types.LineItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: prices[line.ProductID],
		}
	}
	slices.SortFunc(items, func(a, b types.LineItem) int { return a.ProductID - b.ProductID })
	return items
}

func recomputeTotal(ctx context.Context, repos store.Repositories, orderID int) error {
	items, err := repos.Orders.LineItems(ctx, []int{orderID})
	if err != nil {
		return err
	}
	return orderNotFound(repos.Orders.SetTotal(ctx, orderID, types.OrderTotal(items[orderID])), orderID)
}

func loadOrder(ctx context.Context, repos store.Repositories, orderID int) (types.Order, error) {
	order, err := repos.Orders.Get(ctx, orderID)
	if err != nil {
		return types.Order{}, orderNotFound(err, orderID)
	}
	orders := []types.Order{order}
	if err := attachLineItems(ctx, repos, orders); err != nil {
		return types.Order{}, err
	}
	return orders[0], nil
}

func attachLineItems(ctx context.Context, repos store.Repositories, orders []types.Order) error {
	ids := make([]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	items, err := repos.Orders.LineItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].LineItems = items[orders[i].ID]
		if orders[i].LineItems == nil {
			orders[i].LineItems = []types.LineItem{}
		}
	}
	return nil
}

// lineConflict maps a composite key collision on order_products, typically
// a concurrent add of the same product, to a ConflictError.
func lineConflict(err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return &ConflictError{Message: "product was added to the order concurrently"}
	}
	if errors.Is(err, store.ErrReferenced) {
		return &ConflictError{Message: "product was removed concurrently"}
	}
	return err
}

func orderNotFound(err error, id int) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: "order", IDs: []int{id}}
	}
	return err
}
