package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storefront/apiserver/types"
)

// CatalogService is the catalog surface the category and product endpoints
// need.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]types.Category, error)
	CreateCategory(ctx context.Context, name string) (types.Category, error)
	UpdateCategory(ctx context.Context, id int, name string) (types.Category, error)
	DeleteCategory(ctx context.Context, id int) (types.Category, error)

	ListProducts(ctx context.Context, filter types.ProductFilter) ([]types.ProductDetails, error)
	GetProduct(ctx context.Context, id int) (types.ProductDetails, error)
	CreateProduct(ctx context.Context, name string, price types.Money, categoryIDs []int) (types.ProductDetails, error)
	UpdateProduct(ctx context.Context, id int, changes types.ProductChanges) (types.ProductDetails, error)
	DeleteProduct(ctx context.Context, id int) (types.ProductDetails, error)
}

// CategoryHandler provides HTTP handlers for categories.
type CategoryHandler struct {
	catalog CatalogService
}

func NewCategoryHandler(catalog CatalogService) *CategoryHandler {
	return &CategoryHandler{catalog: catalog}
}

// CategoryRouter registers category routes. Reads are public; writes go
// through authMiddleware.
func CategoryRouter(r chi.Router, catalog CatalogService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCategoryHandler(catalog)

	r.Get("/", handler.ListCategories)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreateCategory)
		r.Put("/{id}", handler.UpdateCategory)
		r.Delete("/{id}", handler.DeleteCategory)
	})
}

type CategoryRequest struct {
	Name string `json:"name"`
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, category)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.catalog.UpdateCategory(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, category)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.catalog.DeleteCategory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, category)
}
