package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storefront/apiserver/types"
)

// OrderService is the order surface the order endpoints need.
type OrderService interface {
	CreateOrder(ctx context.Context, userID int, lines []types.LineRequest) (types.Order, error)
	UpdateOrder(ctx context.Context, orderID int, addProductIDs, removeProductIDs []int) (types.Order, error)
	GetOrders(ctx context.Context, orderIDs []int) ([]types.Order, error)
	DeleteOrder(ctx context.Context, orderID int) (types.Order, error)
}

// OrderHandler provides HTTP handlers for orders.
type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// OrderRouter registers order routes, all behind authMiddleware.
func OrderRouter(r chi.Router, orders OrderService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewOrderHandler(orders)

	r.Use(authMiddleware)
	r.Get("/", handler.GetOrders)
	r.Post("/", handler.CreateOrder)
	r.Get("/{id}", handler.GetOrder)
	r.Patch("/{id}", handler.UpdateOrder)
	r.Delete("/{id}", handler.DeleteOrder)
}

// OrderLineRequest is one requested product. Quantity defaults to 1.
type OrderLineRequest struct {
	ProductID int  `json:"product_id"`
	Quantity  *int `json:"quantity"`
}

type CreateOrderRequest struct {
	Products []OrderLineRequest `json:"products"`
}

type UpdateOrderRequest struct {
	AddProductIDs    []int `json:"add_product_ids"`
	RemoveProductIDs []int `json:"remove_product_ids"`
}

func (req CreateOrderRequest) lines() []types.LineRequest {
	lines := make([]types.LineRequest, len(req.Products))
	for i, p := range req.Products {
		quantity := 1
		if p.Quantity != nil {
			quantity = *p.Quantity
		}
		lines[i] = types.LineRequest{ProductID: p.ProductID, Quantity: quantity}
	}
	return lines
}

// GetOrders serves GET /orders?ids=1,2. Without ids every order is returned.
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.orders.GetOrders(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.orders.GetOrders(r.Context(), []int{id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, orders[0])
}

// CreateOrder places an order for the authenticated user.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), userID, req.lines())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, order)
}

func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.UpdateOrder(r.Context(), id, req.AddProductIDs, req.RemoveProductIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.DeleteOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, order)
}
