package services

import (
	"context"
	"log/slog"
	"slices"

	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// Store is the unit-of-work boundary the services run against.
type Store interface {
	Repos() store.Repositories
	WithTx(ctx context.Context, fn func(repos store.Repositories) error) error
}

// EventPublisher announces committed changes. Implementations must tolerate
// being called after the request that caused the change has been answered.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// OrderArchive keeps a copy of orders that are about to disappear.
type OrderArchive interface {
	ArchiveOrder(ctx context.Context, order types.Order) (string, error)
}

const (
	ChannelCatalog = "storefront.catalog"
	ChannelOrders  = "storefront.orders"
)

const (
	EventCategoryCreated = "category.created"
	EventCategoryUpdated = "category.updated"
	EventCategoryDeleted = "category.deleted"
	EventProductCreated  = "product.created"
	EventProductUpdated  = "product.updated"
	EventProductDeleted  = "product.deleted"
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderDeleted    = "order.deleted"
)

// publish sends an event after commit. A broker failure is logged and never
// turned into a request failure.
func publish(ctx context.Context, logger *slog.Logger, events EventPublisher, channel, eventType string, payload any) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, channel, eventType, payload); err != nil {
		logger.Warn("failed to publish event", "channel", channel, "event", eventType, "error", err)
	}
}

// logFailure reports err once at the service boundary. Caller mistakes are
// logged at info, everything else at error.
func logFailure(logger *slog.Logger, op string, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "error", err)
	if isClientError(err) {
		logger.Info("request rejected", attrs...)
		return
	}
	logger.Error("operation failed", attrs...)
}

// normalizeIDs returns ids sorted ascending without repeats.
func normalizeIDs(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// checkPositiveIDs records a field error for every id below 1.
func checkPositiveIDs(errs *fieldErrors, field string, ids []int) {
	for _, id := range ids {
		if id < 1 {
			errs.add(field, "must contain only positive ids")
			return
		}
	}
}

func intersect(a, b []int) []int {
	var both []int
	for _, id := range a {
		if slices.Contains(b, id) && !slices.Contains(both, id) {
			both = append(both, id)
		}
	}
	return both
}

func without(ids, drop []int) []int {
	var out []int
	for _, id := range ids {
		if !slices.Contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}
