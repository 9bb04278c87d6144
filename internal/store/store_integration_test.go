//go:build integration

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/storefront/apiserver/internal/logger"
	"github.com/storefront/apiserver/internal/testutil"
	"github.com/storefront/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pg *testutil.Postgres

func TestMain(m *testing.M) {
	testutil.RunMain(m.Run, &pg)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	require.NoError(t, pg.Reset(context.Background()))
	return New(pg.DB, logger.Discard())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repos Repositories) error {
		if _, err := repos.Categories.Create(ctx, "Books"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	categories, err := s.Repos().Categories.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(repos Repositories) error {
			if _, err := repos.Categories.Create(ctx, "Books"); err != nil {
				return err
			}
			panic("unexpected")
		})
	})

	categories, err := s.Repos().Categories.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)
}

func TestUserUsernameIsUnique(t *testing.T) {
	ctx := context.Background()
	repos := newTestStore(t).Repos()

	_, err := repos.Users.Create(ctx, types.User{Username: "ada", PasswordHash: "h", Salt: "s"})
	require.NoError(t, err)

	_, err = repos.Users.Create(ctx, types.User{Username: "ada", PasswordHash: "h", Salt: "s"})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, "users_username_key", Constraint(err))

	_, err = repos.Users.GetByUsername(ctx, "grace")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductCategoryAssociations(t *testing.T) {
	ctx := context.Background()
	repos := newTestStore(t).Repos()

	tools, err := repos.Categories.Create(ctx, "Tools")
	require.NoError(t, err)
	garden, err := repos.Categories.Create(ctx, "Garden")
	require.NoError(t, err)
	product, err := repos.Products.Create(ctx, "Rake", types.NewMoney(12.5))
	require.NoError(t, err)
	assert.Equal(t, "12.50", product.Price.String())

	added, err := repos.Products.AddCategories(ctx, product.ID, []int{tools.ID, garden.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, added)

	added, err = repos.Products.AddCategories(ctx, product.ID, []int{tools.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, added, "existing association is a no-op")

	_, err = repos.Products.AddCategories(ctx, product.ID, []int{999})
	assert.ErrorIs(t, err, ErrReferenced)

	byProduct, err := repos.Products.CategoriesFor(ctx, []int{product.ID})
	require.NoError(t, err)
	require.Len(t, byProduct[product.ID], 2)
	assert.Equal(t, "Tools", byProduct[product.ID][0].Name)

	_, err = repos.Categories.Delete(ctx, garden.ID)
	require.NoError(t, err)

	byProduct, err = repos.Products.CategoriesFor(ctx, []int{product.ID})
	require.NoError(t, err)
	assert.Len(t, byProduct[product.ID], 1, "category delete cascades to associations")

	missing, err := repos.Categories.Missing(ctx, []int{tools.ID, garden.ID, 42})
	require.NoError(t, err)
	assert.Equal(t, []int{garden.ID, 42}, missing)
}

func TestProductListFilters(t *testing.T) {
	ctx := context.Background()
	repos := newTestStore(t).Repos()

	for _, name := range []string{"Blue Widget", "red widget", "Gadget", "100% Cotton"} {
		_, err := repos.Products.Create(ctx, name, types.NewMoney(1))
		require.NoError(t, err)
	}

	all, err := repos.Products.List(ctx, types.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	widgets, err := repos.Products.List(ctx, types.ProductFilter{NamePattern: "WIDGET"})
	require.NoError(t, err)
	assert.Len(t, widgets, 2)

	percent, err := repos.Products.List(ctx, types.ProductFilter{NamePattern: "0%"})
	require.NoError(t, err)
	require.Len(t, percent, 1)
	assert.Equal(t, "100% Cotton", percent[0].Name)

	both, err := repos.Products.List(ctx, types.ProductFilter{ID: all[0].ID, NamePattern: "gadget"})
	require.NoError(t, err)
	assert.Empty(t, both)
}

func TestOrderLineItems(t *testing.T) {
	ctx := context.Background()
	repos := newTestStore(t).Repos()

	user, err := repos.Users.Create(ctx, types.User{Username: "buyer", PasswordHash: "h", Salt: "s"})
	require.NoError(t, err)
	product, err := repos.Products.Create(ctx, "Lamp", types.NewMoney(20))
	require.NoError(t, err)

	order, err := repos.Orders.Create(ctx, user.ID, types.NewMoney(20))
	require.NoError(t, err)

	line := types.LineItem{ProductID: product.ID, Quantity: 3, PriceAtPurchase: product.Price}
	require.NoError(t, repos.Orders.AddLineItems(ctx, order.ID, []types.LineItem{line}))

	err = repos.Orders.AddLineItems(ctx, order.ID, []types.LineItem{line})
	assert.ErrorIs(t, err, ErrDuplicate)

	items, err := repos.Orders.LineItems(ctx, []int{order.ID})
	require.NoError(t, err)
	require.Len(t, items[order.ID], 1)
	assert.Equal(t, 3, items[order.ID][0].Quantity)
	assert.Equal(t, "Lamp", items[order.ID][0].Product.Name)

	_, err = repos.Products.Delete(ctx, product.ID)
	assert.ErrorIs(t, err, ErrReferenced, "line items keep products alive")

	count, err := repos.Orders.CountLinesForProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repos.Orders.Delete(ctx, order.ID))
	assert.ErrorIs(t, repos.Orders.Delete(ctx, order.ID), ErrNotFound)
	assert.ErrorIs(t, repos.Orders.SetTotal(ctx, order.ID, types.ZeroMoney), ErrNotFound)
}
