package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/storefront/apiserver/internal/logger"
	"github.com/storefront/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "product with id 99 not found", (&NotFoundError{Entity: "product", IDs: []int{99}}).Error())
	assert.Equal(t, "category ids not found: 3, 7", (&NotFoundError{Entity: "category", IDs: []int{3, 7}}).Error())
	assert.Equal(t, "products are already on the order: 5", (&ConflictError{Message: "products are already on the order", IDs: []int{5}}).Error())
	assert.Equal(t, `username "ada" is already taken`, (&UniquenessError{Field: "username", Value: "ada"}).Error())

	var errs fieldErrors
	assert.NoError(t, errs.err())
	errs.add("name", "must not be blank")
	errs.add("price", "must be greater than zero")
	assert.EqualError(t, errs.err(), "validation failed: name: must not be blank; price: must be greater than zero")

	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("tx: %w", &InternalConsistencyError{Op: "create order", Err: cause})
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, isClientError(wrapped))
	assert.True(t, isClientError(fmt.Errorf("wrap: %w", &NotFoundError{Entity: "order", IDs: []int{1}})))
	assert.True(t, isClientError(ErrInvalidCredentials))
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	assert.Len(t, salt, 32)

	assert.True(t, verifyPassword("correct horse", hash, salt))
	assert.False(t, verifyPassword("battery staple", hash, salt))
	assert.False(t, verifyPassword("correct horse", hash, "not-hex"))

	again, otherSalt, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, salt, otherSalt)
	assert.NotEqual(t, hash, again)
}

func TestAssembleProductDetails(t *testing.T) {
	products := []types.Product{
		{ID: 1, Name: "Widget", Price: types.NewMoney(9.99)},
		{ID: 2, Name: "Gadget", Price: types.NewMoney(5)},
	}
	categories := map[int][]types.Category{
		1: {{ID: 10, Name: "Tools"}, {ID: 11, Name: "Home"}},
	}

	got := assembleProductDetails(products, categories)

	want := []types.ProductDetails{
		{Product: products[0], AssociatedCategories: categories[1]},
		{Product: products[1], AssociatedCategories: []types.Category{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("assembleProductDetails mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, assembleProductDetails(nil, nil))
}

func TestValidateLineRequests(t *testing.T) {
	assert.NoError(t, validateLineRequests(nil))
	assert.NoError(t, validateLineRequests([]types.LineRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}))

	err := validateLineRequests([]types.LineRequest{
		{ProductID: 0, Quantity: 1},
		{ProductID: 4, Quantity: 0},
		{ProductID: 4, Quantity: 1},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	want := []FieldError{
		{FieldName: "products[0].product_id", Error: "must be a positive integer"},
		{FieldName: "products[1].quantity", Error: "must be at least 1"},
		{FieldName: "products[2].product_id", Error: "is listed more than once"},
	}
	if diff := cmp.Diff(want, validation.Errors); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildLineItems(t *testing.T) {
	products := []types.Product{
		{ID: 3, Price: types.NewMoney(10)},
		{ID: 4, Price: types.NewMoney(5)},
	}
	items := buildLineItems([]types.LineRequest{{ProductID: 4, Quantity: 1}, {ProductID: 3, Quantity: 2}}, products)

	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "10.00", items[0].PriceAtPurchase.String())
	assert.Equal(t, 4, items[1].ProductID)
	assert.Equal(t, "15.00", types.OrderTotal(items).String())
}

func TestIDHelpers(t *testing.T) {
	assert.Equal(t, []int{1, 3, 7}, normalizeIDs([]int{7, 3, 7, 1}))
	assert.Nil(t, normalizeIDs(nil))
	assert.Equal(t, []int{2, 3}, intersect([]int{1, 2, 3, 2}, []int{3, 2}))
	assert.Nil(t, intersect([]int{1}, []int{2}))
	assert.Equal(t, []int{1, 4}, without([]int{1, 2, 4}, []int{2}))

	var errs fieldErrors
	checkPositiveIDs(&errs, "ids", []int{1, 0, -3})
	assert.Len(t, errs, 1)
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, channel, eventType string, payload any) error {
	p.calls++
	return errors.New("broker down")
}

func TestPublishSwallowsBrokerErrors(t *testing.T) {
	events := &failingPublisher{}
	publish(context.Background(), logger.Discard(), events, ChannelOrders, EventOrderCreated, types.Order{ID: 1})
	assert.Equal(t, 1, events.calls)

	assert.NotPanics(t, func() {
		publish(context.Background(), logger.Discard(), nil, ChannelOrders, EventOrderCreated, nil)
	})
}

func TestProductPriceMustBeStorable(t *testing.T) {
	catalog := NewCatalogService(nil, nil, logger.Discard())
	ctx := context.Background()

	decodePrice := func(t *testing.T, raw string) types.Money {
		t.Helper()
		var body struct {
			Price types.Money `json:"price"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"price": `+raw+`}`), &body))
		return body.Price
	}

	cases := []struct {
		name    string
		price   types.Money
		message string
	}{
		{"rounds to zero", decodePrice(t, "0.004"), "must be greater than zero"},
		{"negative", decodePrice(t, `"-1.00"`), "must be greater than zero"},
		{"exceeds column precision", decodePrice(t, "12345678901234"), "must not exceed 9999999999.99"},
		{"unrounded value rounds to zero", types.Money{Decimal: decimal.RequireFromString("0.004")}, "must be greater than zero"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := []FieldError{{FieldName: "price", Error: tc.message}}

			_, err := catalog.CreateProduct(ctx, "Widget", tc.price, nil)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, want, validation.Errors)

			price := tc.price
			_, err = catalog.UpdateProduct(ctx, 1, types.ProductChanges{Price: &price})
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, want, validation.Errors)
		})
	}
}
