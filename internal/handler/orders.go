package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pronto-pizza/api/internal/database"
	"github.com/pronto-pizza/api/internal/enum"
	"github.com/pronto-pizza/api/internal/middleware"
	"github.com/pronto-pizza/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	ReplaceOrder(ctx context.Context, req service.ReplaceOrderRequest) (*service.OrderResult, error)
	PatchOrder(ctx context.Context, req service.PatchOrderRequest) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*database.Order, error)
}

// OrderStore defines the database methods needed by order read/delete
// handlers. Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderByID(ctx context.Context, id int64) (database.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	ListOrdersByUserAndDetailIDs(ctx context.Context, arg database.ListOrdersByUserAndDetailIDsParams) ([]database.Order, error)
	ListOrderDetailIDs(ctx context.Context, orderID int64) ([]int64, error)
	ListDetailsByOrder(ctx context.Context, orderID int64) ([]database.Detail, error)
	DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted under /order.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Replace)
	r.Patch("/{id}", h.Patch)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/status", h.GetStatus)
	r.Put("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Name    *string `json:"name"`
	Phone   string  `json:"phone"`
	Address string  `json:"address"`
	Detail  []int64 `json:"detail"`
}

// orderWriteRequest covers PUT (full replace) and PATCH (merge). Pointer
// fields distinguish "omitted" from "zero value"; PUT fills the gaps with
// model defaults, PATCH leaves them alone.
type orderWriteRequest struct {
	Name    *string  `json:"name"`
	Status  *int16   `json:"status"`
	Phone   *string  `json:"phone"`
	Address *string  `json:"address"`
	Detail  *[]int64 `json:"detail"`
}

type statusUpdateRequest struct {
	Status *int16 `json:"status"`
}

// orderResponse renders details as bare identifier references, matching
// the list representation.
type orderResponse struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Status  int16   `json:"status"`
	Phone   string  `json:"phone"`
	Address string  `json:"address"`
	Detail  []int64 `json:"detail"`
}

// orderDetailResponse renders full nested detail objects; used for the
// single-order GET.
type orderDetailResponse struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Status  int16            `json:"status"`
	Phone   string           `json:"phone"`
	Address string           `json:"address"`
	Detail  []detailResponse `json:"detail"`
}

type statusResponse struct {
	ID            int64  `json:"id"`
	Status        int16  `json:"status"`
	StatusDisplay string `json:"status_display"`
}

func toOrderResponse(o database.Order, detailIDs []int64) orderResponse {
	if detailIDs == nil {
		detailIDs = []int64{}
	}
	return orderResponse{
		ID:      o.ID,
		Name:    o.Name,
		Status:  o.Status,
		Phone:   o.Phone,
		Address: o.Address,
		Detail:  detailIDs,
	}
}

func toStatusResponse(o database.Order) statusResponse {
	return statusResponse{
		ID:            o.ID,
		Status:        o.Status,
		StatusDisplay: enum.StatusDisplay(o.Status),
	}
}

// --- Handlers ---

// List handles GET /order. Supports ?detail=<id>,<id> to restrict the
// result to orders whose detail set intersects the given IDs.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var (
		orders []database.Order
		err    error
	)
	if s := r.URL.Query().Get("detail"); s != "" {
		ids, parseErr := parseIDList(s)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid detail filter"})
			return
		}
		orders, err = h.store.ListOrdersByUserAndDetailIDs(r.Context(), database.ListOrdersByUserAndDetailIDsParams{
			UserID:    claims.UserID,
			DetailIDs: ids,
		})
	} else {
		orders, err = h.store.ListOrdersByUser(r.Context(), claims.UserID)
	}
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		detailIDs, err := h.store.ListOrderDetailIDs(r.Context(), o.ID)
		if err != nil {
			log.Printf("ERROR: list order details: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp[i] = toOrderResponse(o, detailIDs)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /order. Ownership and status are fixed server-side;
// client-supplied user or status fields are ignored.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}
	if req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
		return
	}

	name := "pizza"
	if req.Name != nil {
		name = *req.Name
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		UserID:    claims.UserID,
		Name:      name,
		Phone:     req.Phone,
		Address:   req.Address,
		DetailIDs: req.Detail,
	})
	if err != nil {
		h.writeServiceError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order, result.DetailIDs))
}

// Get handles GET /order/{id}, returning full nested detail objects.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: id, UserID: claims.UserID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	details, err := h.store.ListDetailsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order details: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	nested := make([]detailResponse, len(details))
	for i, d := range details {
		nested[i] = toDetailResponse(d)
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		ID:      order.ID,
		Name:    order.Name,
		Status:  order.Status,
		Phone:   order.Phone,
		Address: order.Address,
		Detail:  nested,
	})
}

// Replace handles PUT /order/{id} with full-replace semantics: phone and
// address are required, name reverts to "pizza", status to received, and
// an omitted detail key clears the detail set.
func (h *OrderHandler) Replace(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req orderWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Phone == nil || *req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}
	if req.Address == nil || *req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
		return
	}

	name := "pizza"
	if req.Name != nil {
		name = *req.Name
	}
	status := enum.StatusReceived
	if req.Status != nil {
		status = *req.Status
		if !enum.ValidStatus(status) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
	}
	var detailIDs []int64
	if req.Detail != nil {
		detailIDs = *req.Detail
	}

	result, err := h.svc.ReplaceOrder(r.Context(), service.ReplaceOrderRequest{
		OrderID:   id,
		UserID:    claims.UserID,
		Name:      name,
		Status:    status,
		Phone:     *req.Phone,
		Address:   *req.Address,
		DetailIDs: detailIDs,
	})
	if err != nil {
		h.writeServiceError(w, "replace order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.DetailIDs))
}

// Patch handles PATCH /order/{id} with merge semantics: only supplied
// fields change; a supplied detail key replaces the whole detail set.
func (h *OrderHandler) Patch(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req orderWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status != nil && !enum.ValidStatus(*req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	if req.Phone != nil && *req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone must not be empty"})
		return
	}
	if req.Address != nil && *req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address must not be empty"})
		return
	}

	result, err := h.svc.PatchOrder(r.Context(), service.PatchOrderRequest{
		OrderID:   id,
		UserID:    claims.UserID,
		Name:      req.Name,
		Status:    req.Status,
		Phone:     req.Phone,
		Address:   req.Address,
		DetailIDs: req.Detail,
	})
	if err != nil {
		h.writeServiceError(w, "patch order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.DetailIDs))
}

// Delete handles DELETE /order/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if _, err := h.store.DeleteOrder(r.Context(), database.DeleteOrderParams{ID: id, UserID: claims.UserID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: delete order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /order/{id}/status. Visible to the owner and to
// staff (delivery-tracking actors); everyone else gets 404.
func (h *OrderHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !claims.IsStaff && order.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(order))
}

// UpdateStatus handles PUT /order/{id}/status. The guard runs against the
// persisted row inside the service transaction.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID: id,
		UserID:  claims.UserID,
		IsStaff: claims.IsStaff,
		Status:  *req.Status,
	})
	if err != nil {
		h.writeServiceError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(*order))
}

// --- Helpers ---

// writeServiceError maps service errors to HTTP responses. The status
// guard gets its own response key so clients can tell a frozen order from
// plain field validation.
func (h *OrderHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var locked *service.StatusLockedError
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusBadRequest, map[string]string{"status_locked": locked.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrDetailNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "detail not found for user"})
	case errors.Is(err, service.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
