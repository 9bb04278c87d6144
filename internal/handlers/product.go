package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/storefront/apiserver/types"
)

// ProductHandler provides HTTP handlers for products.
type ProductHandler struct {
	catalog CatalogService
}

func NewProductHandler(catalog CatalogService) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// ProductRouter registers product routes. Reads are public; writes go
// through authMiddleware.
func ProductRouter(r chi.Router, catalog CatalogService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewProductHandler(catalog)

	r.Get("/", handler.ListProducts)
	r.Get("/{id}", handler.GetProduct)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreateProduct)
		r.Patch("/{id}", handler.UpdateProduct)
		r.Delete("/{id}", handler.DeleteProduct)
	})
}

type CreateProductRequest struct {
	Name        string      `json:"name"`
	Price       types.Money `json:"price"`
	CategoryIDs []int       `json:"category_ids"`
}

// UpdateProductRequest is a partial update; absent fields are left alone.
type UpdateProductRequest struct {
	Name              *string      `json:"name"`
	Price             *types.Money `json:"price"`
	AddCategoryIDs    []int        `json:"add_category_ids"`
	RemoveCategoryIDs []int        `json:"remove_category_ids"`
}

// ListProducts serves GET /products. With only ?id= it answers a single
// product; otherwise a list filtered by ?name= and ?id=.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if filter.ID > 0 && filter.NamePattern == "" {
		details, err := h.catalog.GetProduct(r.Context(), filter.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, details)
		return
	}

	products, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, details)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.catalog.CreateProduct(r.Context(), req.Name, req.Price, req.CategoryIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, details)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.catalog.UpdateProduct(r.Context(), id, types.ProductChanges{
		Name:              req.Name,
		Price:             req.Price,
		AddCategoryIDs:    req.AddCategoryIDs,
		RemoveCategoryIDs: req.RemoveCategoryIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, details)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.catalog.DeleteProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, details)
}

func parseProductFilter(r *http.Request) (types.ProductFilter, error) {
	query := r.URL.Query()
	filter := types.ProductFilter{NamePattern: strings.TrimSpace(query.Get("name"))}

	if raw := strings.TrimSpace(query.Get("id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			return types.ProductFilter{}, errors.New("invalid query parameter id")
		}
		filter.ID = id
	}
	return filter, nil
}
