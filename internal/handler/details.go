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
)

// DetailStore defines the database methods needed by detail handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type DetailStore interface {
	CreateDetail(ctx context.Context, arg database.CreateDetailParams) (database.Detail, error)
	GetDetail(ctx context.Context, arg database.GetDetailParams) (database.Detail, error)
	ListDetailsByUser(ctx context.Context, userID uuid.UUID) ([]database.Detail, error)
	ListAssignedDetailsByUser(ctx context.Context, userID uuid.UUID) ([]database.Detail, error)
	UpdateDetail(ctx context.Context, arg database.UpdateDetailParams) (database.Detail, error)
	DeleteDetail(ctx context.Context, arg database.DeleteDetailParams) (int64, error)
	CountOrdersReferencingDetail(ctx context.Context, detailID int64) (int64, error)
}

// DetailHandler handles pizza detail endpoints.
type DetailHandler struct {
	store DetailStore
}

// NewDetailHandler creates a new DetailHandler.
func NewDetailHandler(store DetailStore) *DetailHandler {
	return &DetailHandler{store: store}
}

// RegisterRoutes registers detail endpoints on the given Chi router.
// Expected to be mounted under /detail.
func (h *DetailHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

// detailRequest covers create and full update. Omitted fields fall back to
// the model defaults (flavour margarita, size small, quantity 1).
type detailRequest struct {
	Flavour  *int16 `json:"flavour"`
	Size     *int16 `json:"size"`
	Quantity *int32 `json:"quantity"`
}

type detailResponse struct {
	ID       int64 `json:"id"`
	Flavour  int16 `json:"flavour"`
	Size     int16 `json:"size"`
	Quantity int32 `json:"quantity"`
}

func toDetailResponse(d database.Detail) detailResponse {
	return detailResponse{
		ID:       d.ID,
		Flavour:  d.Flavour,
		Size:     d.Size,
		Quantity: d.Quantity,
	}
}

// resolve applies defaults and validates the enum codes.
// Returns a field-naming error message, or "" when valid.
func (req detailRequest) resolve() (flavour, size int16, quantity int32, errMsg string) {
	flavour, size, quantity = enum.FlavourMargarita, enum.SizeSmall, 1
	if req.Flavour != nil {
		flavour = *req.Flavour
	}
	if req.Size != nil {
		size = *req.Size
	}
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if !enum.ValidFlavour(flavour) {
		return 0, 0, 0, "invalid flavour"
	}
	if !enum.ValidSize(size) {
		return 0, 0, 0, "invalid size"
	}
	if quantity <= 0 {
		return 0, 0, 0, "quantity must be > 0"
	}
	return flavour, size, quantity, ""
}

// --- Handlers ---

// List handles GET /detail. Supports ?assigned_only=0|1 to restrict the
// result to details referenced by at least one order.
func (h *DetailHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	assignedOnly := false
	if s := r.URL.Query().Get("assigned_only"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assigned_only"})
			return
		}
		assignedOnly = v != 0
	}

	var (
		details []database.Detail
		err     error
	)
	if assignedOnly {
		details, err = h.store.ListAssignedDetailsByUser(r.Context(), claims.UserID)
	} else {
		details, err = h.store.ListDetailsByUser(r.Context(), claims.UserID)
	}
	if err != nil {
		log.Printf("ERROR: list details: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]detailResponse, len(details))
	for i, d := range details {
		resp[i] = toDetailResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /detail.
func (h *DetailHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req detailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	flavour, size, quantity, errMsg := req.resolve()
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	detail, err := h.store.CreateDetail(r.Context(), database.CreateDetailParams{
		UserID:   claims.UserID,
		Flavour:  flavour,
		Size:     size,
		Quantity: quantity,
	})
	if err != nil {
		log.Printf("ERROR: create detail: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toDetailResponse(detail))
}

// Get handles GET /detail/{id}.
func (h *DetailHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid detail ID"})
		return
	}

	detail, err := h.store.GetDetail(r.Context(), database.GetDetailParams{ID: id, UserID: claims.UserID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "detail not found"})
			return
		}
		log.Printf("ERROR: get detail: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

// Update handles PUT /detail/{id} with full-replace semantics.
func (h *DetailHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid detail ID"})
		return
	}

	var req detailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	flavour, size, quantity, errMsg := req.resolve()
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	detail, err := h.store.UpdateDetail(r.Context(), database.UpdateDetailParams{
		ID:       id,
		UserID:   claims.UserID,
		Flavour:  flavour,
		Size:     size,
		Quantity: quantity,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "detail not found"})
			return
		}
		log.Printf("ERROR: update detail: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

// Delete handles DELETE /detail/{id}. Deletion is refused while any order
// still references the detail; the RESTRICT foreign key backstops the
// check against races.
func (h *DetailHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid detail ID"})
		return
	}

	// Resolve ownership before looking at references, so a stranger sees
	// the same 404 whether the detail exists or not.
	if _, err := h.store.GetDetail(r.Context(), database.GetDetailParams{ID: id, UserID: claims.UserID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "detail not found"})
			return
		}
		log.Printf("ERROR: get detail: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	refs, err := h.store.CountOrdersReferencingDetail(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: count detail references: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if refs > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "detail is attached to an order"})
		return
	}

	if _, err := h.store.DeleteDetail(r.Context(), database.DeleteDetailParams{ID: id, UserID: claims.UserID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "detail not found"})
			return
		}
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "detail is attached to an order"})
			return
		}
		log.Printf("ERROR: delete detail: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
