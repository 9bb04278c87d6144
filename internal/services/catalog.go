package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// CatalogService manages products, categories and the associations between
// them.
type CatalogService struct {
	store  Store
	events EventPublisher
	logger *slog.Logger
}

// NewCatalogService wires the catalog use-cases. events may be nil.
func NewCatalogService(store Store, events EventPublisher, logger *slog.Logger) *CatalogService {
	return &CatalogService{store: store, events: events, logger: logger}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]types.Category, error) {
	categories, err := s.store.Repos().Categories.List(ctx)
	if err != nil {
		logFailure(s.logger, "list categories", err)
		return nil, err
	}
	return categories, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (types.Category, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		logFailure(s.logger, "create category", err)
		return types.Category{}, err
	}

	category, err := s.store.Repos().Categories.Create(ctx, name)
	if err != nil {
		logFailure(s.logger, "create category", err)
		return types.Category{}, err
	}

	publish(ctx, s.logger, s.events, ChannelCatalog, EventCategoryCreated, category)
	return category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id int, name string) (types.Category, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		logFailure(s.logger, "update category", err, "category_id", id)
		return types.Category{}, err
	}

	category, err := s.store.Repos().Categories.Update(ctx, id, name)
	if err != nil {
		err = categoryNotFound(err, id)
		logFailure(s.logger, "update category", err, "category_id", id)
		return types.Category{}, err
	}

	publish(ctx, s.logger, s.events, ChannelCatalog, EventCategoryUpdated, category)
	return category, nil
}

// DeleteCategory removes the category and every product association that
// names it, returning the deleted row.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int) (types.Category, error) {
	category, err := s.store.Repos().Categories.Delete(ctx, id)
	if err != nil {
		err = categoryNotFound(err, id)
		logFailure(s.logger, "delete category", err, "category_id", id)
		return types.Category{}, err
	}

	publish(ctx, s.logger, s.events, ChannelCatalog, EventCategoryDeleted, category)
	return category, nil
}

// ListProducts returns the products matching filter with their categories.
// An ID filter that matches nothing is a NotFoundError rather than an empty
// result.
func (s *CatalogService) ListProducts(ctx context.Context, filter types.ProductFilter) ([]types.ProductDetails, error) {
	if filter.ID < 0 {
		err := (&fieldErrors{{FieldName: "id", Error: "must be a positive integer"}}).err()
		logFailure(s.logger, "list products", err)
		return nil, err
	}

	repos := s.store.Repos()
	products, err := repos.Products.List(ctx, filter)
	if err != nil {
		logFailure(s.logger, "list products", err)
		return nil, err
	}
	if filter.ID > 0 && len(products) == 0 {
		err := &NotFoundError{Entity: "product", IDs: []int{filter.ID}}
		logFailure(s.logger, "list products", err)
		return nil, err
	}

	categories, err := repos.Products.CategoriesFor(ctx, productIDs(products))
	if err != nil {
		logFailure(s.logger, "list products", err)
		return nil, err
	}
	return assembleProductDetails(products, categories), nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int) (types.ProductDetails, error) {
	details, err := loadProductDetails(ctx, s.store.Repos(), id)
	if err != nil {
		logFailure(s.logger, "get product", err, "product_id", id)
		return types.ProductDetails{}, err
	}
	return details, nil
}

// CreateProduct inserts the product and its category associations in one
// transaction. Unknown category ids fail the whole call.
func (s *CatalogService) CreateProduct(ctx context.Context, name string, price types.Money, categoryIDs []int) (types.ProductDetails, error) {
	name = strings.TrimSpace(name)

	var errs fieldErrors
	if name == "" {
		errs.add("name", "must not be blank")
	}
	price = price.RoundCents()
	validatePrice(&errs, price)
	checkPositiveIDs(&errs, "category_ids", categoryIDs)
	if err := errs.err(); err != nil {
		logFailure(s.logger, "create product", err)
		return types.ProductDetails{}, err
	}
	categoryIDs = normalizeIDs(categoryIDs)

	var details types.ProductDetails
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		missing, err := repos.Categories.Missing(ctx, categoryIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &NotFoundError{Entity: "category", IDs: missing}
		}

		product, err := repos.Products.Create(ctx, name, price)
		if err != nil {
			return err
		}
		if _, err := repos.Products.AddCategories(ctx, product.ID, categoryIDs); err != nil {
			return err
		}

		details, err = loadProductDetails(ctx, repos, product.ID)
		return err
	})
	if err != nil {
		logFailure(s.logger, "create product", err, "category_ids", categoryIDs)
		return types.ProductDetails{}, err
	}

	s.logger.Info("product created", "product_id", details.Product.ID)
	publish(ctx, s.logger, s.events, ChannelCatalog, EventProductCreated, details)
	return details, nil
}

// UpdateProduct applies a partial update. Associations are removed before
// they are added, and adding an existing association is a no-op.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int, changes types.ProductChanges) (types.ProductDetails, error) {
	var errs fieldErrors
	if changes.Name != nil {
		trimmed := strings.TrimSpace(*changes.Name)
		if trimmed == "" {
			errs.add("name", "must not be blank")
		}
		changes.Name = &trimmed
	}
	if changes.Price != nil {
		rounded := changes.Price.RoundCents()
		validatePrice(&errs, rounded)
		changes.Price = &rounded
	}
	checkPositiveIDs(&errs, "add_category_ids", changes.AddCategoryIDs)
	checkPositiveIDs(&errs, "remove_category_ids", changes.RemoveCategoryIDs)
	if err := errs.err(); err != nil {
		logFailure(s.logger, "update product", err, "product_id", id)
		return types.ProductDetails{}, err
	}
	add := normalizeIDs(changes.AddCategoryIDs)
	remove := normalizeIDs(changes.RemoveCategoryIDs)

	var details types.ProductDetails
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		if _, err := repos.Products.Get(ctx, id); err != nil {
			return productNotFound(err, id)
		}

		missing, err := repos.Categories.Missing(ctx, normalizeIDs(slices.Concat(add, remove)))
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &NotFoundError{Entity: "category", IDs: missing}
		}

		if _, err := repos.Products.Update(ctx, id, changes.Name, changes.Price); err != nil {
			return productNotFound(err, id)
		}
		if _, err := repos.Products.RemoveCategories(ctx, id, remove); err != nil {
			return err
		}
		if _, err := repos.Products.AddCategories(ctx, id, add); err != nil {
			return err
		}

		details, err = loadProductDetails(ctx, repos, id)
		return err
	})
	if err != nil {
		logFailure(s.logger, "update product", err, "product_id", id)
		return types.ProductDetails{}, err
	}

	publish(ctx, s.logger, s.events, ChannelCatalog, EventProductUpdated, details)
	return details, nil
}

// DeleteProduct removes a product that no order refers to and returns it as
// it was before deletion.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int) (types.ProductDetails, error) {
	var details types.ProductDetails
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		var err error
		details, err = loadProductDetails(ctx, repos, id)
		if err != nil {
			return err
		}

		lines, err := repos.Orders.CountLinesForProduct(ctx, id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return &ConflictError{Message: "product is part of existing orders", IDs: []int{id}}
		}

		if _, err := repos.Products.Delete(ctx, id); err != nil {
			// An order line inserted after the count still trips the FK.
			if errors.Is(err, store.ErrReferenced) {
				return &ConflictError{Message: "product is part of existing orders", IDs: []int{id}}
			}
			return productNotFound(err, id)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "delete product", err, "product_id", id)
		return types.ProductDetails{}, err
	}

	s.logger.Info("product deleted", "product_id", id)
	publish(ctx, s.logger, s.events, ChannelCatalog, EventProductDeleted, details)
	return details, nil
}

func loadProductDetails(ctx context.Context, repos store.Repositories, id int) (types.ProductDetails, error) {
	product, err := repos.Products.Get(ctx, id)
	if err != nil {
		return types.ProductDetails{}, productNotFound(err, id)
	}
	categories, err := repos.Products.CategoriesFor(ctx, []int{id})
	if err != nil {
		return types.ProductDetails{}, err
	}
	return assembleProductDetails([]types.Product{product}, categories)[0], nil
}

// assembleProductDetails pairs each product with its categories, keeping the
// product order. Products without categories get an empty, non-nil list.
func assembleProductDetails(products []types.Product, categories map[int][]types.Category) []types.ProductDetails {
	details := make([]types.ProductDetails, len(products))
	for i, product := range products {
		associated := categories[product.ID]
		if associated == nil {
			associated = []types.Category{}
		}
		details[i] = types.ProductDetails{Product: product, AssociatedCategories: associated}
	}
	return details
}

func productIDs(products []types.Product) []int {
	ids := make([]int, len(products))
	for i, product := range products {
		ids[i] = product.ID
	}
	return ids
}

func validateName(name string) error {
	if name == "" {
		return (&fieldErrors{{FieldName: "name", Error: "must not be blank"}}).err()
	}
	return nil
}

func productNotFound(err error, id int) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: "product", IDs: []int{id}}
	}
	return err
}

func categoryNotFound(err error, id int) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: "category", IDs: []int{id}}
	}
	return err
}

func validatePrice(errs *fieldErrors, price types.Money) {
	switch {
	case !price.IsPositive():
		errs.add("price", "must be greater than zero")
	case !price.Storable():
		errs.add("price", "must not exceed "+types.MaxMoney.String())
	}
}
