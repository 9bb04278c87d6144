//go:build integration

package services

import (
	"context"
	"sync"
	"testing"

	"github.com/storefront/apiserver/internal/logger"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/internal/testutil"
	"github.com/storefront/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pg *testutil.Postgres

func TestMain(m *testing.M) {
	testutil.RunMain(m.Run, &pg)
}

type recordingArchive struct {
	mu     sync.Mutex
	orders []types.Order
}

func (a *recordingArchive) ArchiveOrder(ctx context.Context, order types.Order) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, order)
	return "orders/deleted/test.json", nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ctx context.Context, channel, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

type fixture struct {
	ctx     context.Context
	store   *store.Store
	users   *UserService
	catalog *CatalogService
	orders  *OrderService
	events  *recordingPublisher
	archive *recordingArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, pg.Reset(ctx))

	log := logger.Discard()
	s := store.New(pg.DB, log)
	events := &recordingPublisher{}
	archive := &recordingArchive{}
	return &fixture{
		ctx:     ctx,
		store:   s,
		users:   NewUserService(s, log),
		catalog: NewCatalogService(s, events, log),
		orders:  NewOrderService(s, events, archive, log),
		events:  events,
		archive: archive,
	}
}

func (f *fixture) user(t *testing.T, name string) types.User {
	t.Helper()
	user, err := f.users.SignUp(f.ctx, name, "password123")
	require.NoError(t, err)
	return user
}

func (f *fixture) category(t *testing.T, name string) types.Category {
	t.Helper()
	category, err := f.catalog.CreateCategory(f.ctx, name)
	require.NoError(t, err)
	return category
}

func (f *fixture) product(t *testing.T, name string, price float64, categoryIDs ...int) types.Product {
	t.Helper()
	details, err := f.catalog.CreateProduct(f.ctx, name, types.NewMoney(price), categoryIDs)
	require.NoError(t, err)
	return details.Product
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	var count int
	require.NoError(t, pg.DB.QueryRowContext(f.ctx, `SELECT COUNT(1) FROM orders`).Scan(&count))
	return count
}

func assertTotalMatchesLines(t *testing.T, order types.Order) {
	t.Helper()
	assert.Equal(t, types.OrderTotal(order.LineItems).String(), order.Total.String())
}

func TestSignUpAndAuthenticate(t *testing.T) {
	f := newFixture(t)

	user := f.user(t, "ada")
	assert.NotZero(t, user.ID)

	_, err := f.users.SignUp(f.ctx, "ada", "password456")
	var unique *UniquenessError
	require.ErrorAs(t, err, &unique)
	assert.Equal(t, "username", unique.Field)

	got, err := f.users.Authenticate(f.ctx, "ada", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.users.Authenticate(f.ctx, "ada", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(f.ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var notFound *NotFoundError
	_, err = f.users.GetByID(f.ctx, 12345)
	assert.ErrorAs(t, err, &notFound)
}

func TestCreateProductWidgetScenario(t *testing.T) {
	f := newFixture(t)
	c1 := f.category(t, "Tools")
	c2 := f.category(t, "Home")

	details, err := f.catalog.CreateProduct(f.ctx, "Widget", types.NewMoney(9.99), []int{c1.ID, c2.ID, c1.ID})
	require.NoError(t, err)

	assert.Equal(t, "Widget", details.Product.Name)
	assert.Equal(t, "9.99", details.Product.Price.String())
	require.Len(t, details.AssociatedCategories, 2)
	assert.Equal(t, c1.ID, details.AssociatedCategories[0].ID)
	assert.Equal(t, c2.ID, details.AssociatedCategories[1].ID)
	assert.Contains(t, f.events.types, EventProductCreated)
}

func TestCreateProductValidationAndMissingCategories(t *testing.T) {
	f := newFixture(t)
	c1 := f.category(t, "Tools")

	var validation *ValidationError
	_, err := f.catalog.CreateProduct(f.ctx, "  ", types.ZeroMoney, []int{0})
	require.ErrorAs(t, err, &validation)
	assert.Len(t, validation.Errors, 3)

	var notFound *NotFoundError
	_, err = f.catalog.CreateProduct(f.ctx, "Widget", types.NewMoney(1), []int{c1.ID, 41, 42})
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "category", notFound.Entity)
	assert.Equal(t, []int{41, 42}, notFound.IDs)

	products, err := f.catalog.ListProducts(f.ctx, types.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, products, "no product row persists when a category is missing")
}

func TestCategoryAssociationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c1 := f.category(t, "Tools")
	product := f.product(t, "Rake", 12, c1.ID)

	details, err := f.catalog.UpdateProduct(f.ctx, product.ID, types.ProductChanges{AddCategoryIDs: []int{c1.ID}})
	require.NoError(t, err)
	assert.Len(t, details.AssociatedCategories, 1)

	var rows int
	require.NoError(t, pg.DB.QueryRowContext(f.ctx,
		`SELECT COUNT(1) FROM product_categories WHERE product_id = $1`, product.ID).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestUpdateProductPartial(t *testing.T) {
	f := newFixture(t)
	c1 := f.category(t, "Tools")
	c2 := f.category(t, "Garden")
	product := f.product(t, "Rake", 12, c1.ID)

	price := types.NewMoney(14.5)
	details, err := f.catalog.UpdateProduct(f.ctx, product.ID, types.ProductChanges{
		Price:             &price,
		AddCategoryIDs:    []int{c2.ID},
		RemoveCategoryIDs: []int{c1.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rake", details.Product.Name)
	assert.Equal(t, "14.50", details.Product.Price.String())
	require.Len(t, details.AssociatedCategories, 1)
	assert.Equal(t, c2.ID, details.AssociatedCategories[0].ID)

	var notFound *NotFoundError
	_, err = f.catalog.UpdateProduct(f.ctx, 999, types.ProductChanges{})
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "product", notFound.Entity)

	_, err = f.catalog.UpdateProduct(f.ctx, product.ID, types.ProductChanges{AddCategoryIDs: []int{77}})
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []int{77}, notFound.IDs)

	blank := " "
	var validation *ValidationError
	_, err = f.catalog.UpdateProduct(f.ctx, product.ID, types.ProductChanges{Name: &blank})
	assert.ErrorAs(t, err, &validation)
}

func TestDeleteCategoryCascadesAssociations(t *testing.T) {
	f := newFixture(t)
	c1 := f.category(t, "Tools")
	product := f.product(t, "Rake", 12, c1.ID)

	deleted, err := f.catalog.DeleteCategory(f.ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tools", deleted.Name)

	var rows int
	require.NoError(t, pg.DB.QueryRowContext(f.ctx,
		`SELECT COUNT(1) FROM product_categories WHERE category_id = $1`, c1.ID).Scan(&rows))
	assert.Zero(t, rows)

	details, err := f.catalog.GetProduct(f.ctx, product.ID)
	require.NoError(t, err)
	assert.Empty(t, details.AssociatedCategories)

	var notFound *NotFoundError
	_, err = f.catalog.DeleteCategory(f.ctx, c1.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestListProductsFilters(t *testing.T) {
	f := newFixture(t)
	widget := f.product(t, "Blue Widget", 3)
	f.product(t, "Gadget", 4)

	byID, err := f.catalog.ListProducts(f.ctx, types.ProductFilter{ID: widget.ID})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, widget.ID, byID[0].Product.ID)

	byName, err := f.catalog.ListProducts(f.ctx, types.ProductFilter{NamePattern: "widg"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	var notFound *NotFoundError
	_, err = f.catalog.ListProducts(f.ctx, types.ProductFilter{ID: 999})
	assert.ErrorAs(t, err, &notFound)
	_, err = f.catalog.GetProduct(f.ctx, 999)
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteProductRejectedWhileOrdered(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	ordered := f.product(t, "Lamp", 20)
	spare := f.product(t, "Shade", 5)

	order, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{{ProductID: ordered.ID, Quantity: 1}})
	require.NoError(t, err)

	var conflict *ConflictError
	_, err = f.catalog.DeleteProduct(f.ctx, ordered.ID)
	require.ErrorAs(t, err, &conflict)

	deleted, err := f.catalog.DeleteProduct(f.ctx, spare.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shade", deleted.Product.Name)

	_, err = f.orders.DeleteOrder(f.ctx, order.ID)
	require.NoError(t, err)
	_, err = f.catalog.DeleteProduct(f.ctx, ordered.ID)
	assert.NoError(t, err, "product becomes deletable once no order refers to it")
}

func TestCreateOrderTotalScenario(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	p3 := f.product(t, "Hammer", 10)
	p4 := f.product(t, "Nails", 5)

	order, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{
		{ProductID: p3.ID, Quantity: 2},
		{ProductID: p4.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "15.00", order.Total.String())
	require.Len(t, order.LineItems, 2)
	assert.Equal(t, p3.ID, order.LineItems[0].ProductID)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
	assert.Equal(t, "Hammer", order.LineItems[0].Product.Name)
	assertTotalMatchesLines(t, order)
}

func TestCreateOrderEmpty(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")

	order, err := f.orders.CreateOrder(f.ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.00", order.Total.String())
	assert.Empty(t, order.LineItems)
	assert.NotNil(t, order.LineItems)
}

func TestCreateOrderMissingProductLeavesNoOrder(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	product := f.product(t, "Lamp", 20)
	before := f.orderCount(t)

	_, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{
		{ProductID: product.ID, Quantity: 1},
		{ProductID: 99, Quantity: 1},
	})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []int{99}, notFound.IDs)
	assert.Contains(t, err.Error(), "99")
	assert.Equal(t, before, f.orderCount(t))

	_, err = f.orders.CreateOrder(f.ctx, 4242, nil)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user", notFound.Entity)
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	a := f.product(t, "A", 1.25)
	b := f.product(t, "B", 2.50)
	c := f.product(t, "C", 4)

	order, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{{ProductID: a.ID, Quantity: 3}, {ProductID: b.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "3.75", order.Total.String())

	newPrice := types.NewMoney(99)
	_, err = f.catalog.UpdateProduct(f.ctx, a.ID, types.ProductChanges{Price: &newPrice})
	require.NoError(t, err)

	updated, err := f.orders.UpdateOrder(f.ctx, order.ID, []int{c.ID}, []int{b.ID})
	require.NoError(t, err)
	assert.Equal(t, []int{a.ID, c.ID}, updated.ProductIDs())
	assert.Equal(t, "1.25", updated.LineItems[0].PriceAtPurchase.String(), "purchase price is immutable")
	assert.Equal(t, 1, updated.LineItems[1].Quantity)
	assert.Equal(t, "5.25", updated.Total.String())
	assertTotalMatchesLines(t, updated)

	t.Run("overlap is a validation error", func(t *testing.T) {
		var validation *ValidationError
		_, err := f.orders.UpdateOrder(f.ctx, order.ID, []int{b.ID}, []int{b.ID})
		require.ErrorAs(t, err, &validation)

		got, err := f.orders.GetOrders(f.ctx, []int{order.ID})
		require.NoError(t, err)
		assert.Equal(t, updated.ProductIDs(), got[0].ProductIDs())
	})

	t.Run("adding an existing line conflicts", func(t *testing.T) {
		var conflict *ConflictError
		_, err := f.orders.UpdateOrder(f.ctx, order.ID, []int{a.ID}, nil)
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []int{a.ID}, conflict.IDs)
	})

	t.Run("removing an absent line conflicts", func(t *testing.T) {
		var conflict *ConflictError
		_, err := f.orders.UpdateOrder(f.ctx, order.ID, nil, []int{b.ID})
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("unknown product and order", func(t *testing.T) {
		var notFound *NotFoundError
		_, err := f.orders.UpdateOrder(f.ctx, order.ID, []int{999}, nil)
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "product", notFound.Entity)

		_, err = f.orders.UpdateOrder(f.ctx, 999, []int{a.ID}, nil)
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "order", notFound.Entity)
	})

	t.Run("removing every line zeroes the total", func(t *testing.T) {
		emptied, err := f.orders.UpdateOrder(f.ctx, order.ID, nil, []int{a.ID, c.ID})
		require.NoError(t, err)
		assert.Empty(t, emptied.LineItems)
		assert.Equal(t, "0.00", emptied.Total.String())
	})
}

func TestConcurrentAddOfSameProduct(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	product := f.product(t, "Lamp", 20)
	order, err := f.orders.CreateOrder(f.ctx, user.ID, nil)
	require.NoError(t, err)

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orders.UpdateOrder(f.ctx, order.ID, []int{product.ID}, nil)
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorAs(t, err, &conflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	got, err := f.orders.GetOrders(f.ctx, []int{order.ID})
	require.NoError(t, err)
	assert.Equal(t, "20.00", got[0].Total.String())
	assertTotalMatchesLines(t, got[0])
}

func TestGetOrders(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	product := f.product(t, "Lamp", 20)

	first, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{{ProductID: product.ID, Quantity: 1}})
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(f.ctx, user.ID, nil)
	require.NoError(t, err)

	all, err := f.orders.GetOrders(f.ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Len(t, all[0].LineItems, 1)

	some, err := f.orders.GetOrders(f.ctx, []int{second.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, second.ID, some[0].ID)

	var notFound *NotFoundError
	_, err = f.orders.GetOrders(f.ctx, []int{first.ID, 500, 501})
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []int{500, 501}, notFound.IDs)
}

func TestDeleteOrderReturnsAndArchivesSnapshot(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "buyer")
	product := f.product(t, "Lamp", 20)
	order, err := f.orders.CreateOrder(f.ctx, user.ID, []types.LineRequest{{ProductID: product.ID, Quantity: 2}})
	require.NoError(t, err)

	snapshot, err := f.orders.DeleteOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, snapshot.ID)
	assert.Len(t, snapshot.LineItems, 1)

	require.Len(t, f.archive.orders, 1)
	assert.Equal(t, order.ID, f.archive.orders[0].ID)
	assert.Contains(t, f.events.types, EventOrderDeleted)

	var lines int
	require.NoError(t, pg.DB.QueryRowContext(f.ctx,
		`SELECT COUNT(1) FROM order_products WHERE order_id = $1`, order.ID).Scan(&lines))
	assert.Zero(t, lines)

	var notFound *NotFoundError
	_, err = f.orders.DeleteOrder(f.ctx, order.ID)
	assert.ErrorAs(t, err, &notFound)
}
