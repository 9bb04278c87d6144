package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storefront/apiserver/types"
)

const deletedOrdersPrefix = "orders/deleted/"

// OrderArchive writes snapshots of deleted orders as JSON objects.
type OrderArchive struct {
	storage *Storage
	now     func() time.Time
}

func NewOrderArchive(storage *Storage) *OrderArchive {
	return &OrderArchive{storage: storage, now: time.Now}
}

// ArchiveOrder stores order under orders/deleted/<id>-<timestamp>.json and
// returns the key.
func (a *OrderArchive) ArchiveOrder(ctx context.Context, order types.Order) (string, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encode order %d: %w", order.ID, err)
	}
	key := DeletedOrderKey(order.ID, a.now())
	if err := a.storage.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Fetch reads back a snapshot written by ArchiveOrder.
func (a *OrderArchive) Fetch(ctx context.Context, key string) (types.Order, error) {
	reader, err := a.storage.Get(ctx, key)
	if err != nil {
		return types.Order{}, err
	}
	defer reader.Close()

	var order types.Order
	if err := json.NewDecoder(reader).Decode(&order); err != nil {
		return types.Order{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return order, nil
}

// DeletedOrderKey is the object key for an order deleted at the given time.
func DeletedOrderKey(orderID int, at time.Time) string {
	return fmt.Sprintf("%s%d-%s.json", deletedOrdersPrefix, orderID, at.UTC().Format("20060102T150405Z"))
}
