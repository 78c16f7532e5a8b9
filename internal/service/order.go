package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pronto-pizza/api/internal/database"
	"github.com/pronto-pizza/api/internal/enum"
)

// Errors returned by the order service.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDetailNotFound = errors.New("detail not found for user")
	ErrInvalidStatus  = errors.New("invalid status")
)

// StatusLockedError signals that the order's persisted status forbids any
// further mutation.
type StatusLockedError struct {
	Status int16
}

func (e *StatusLockedError) Error() string {
	return fmt.Sprintf("This order is `%s` and cannot be updated at this moment", enum.StatusDisplay(e.Status))
}

// lockedStatuses are the delivery states in which an order is frozen.
var lockedStatuses = map[int16]bool{
	enum.StatusOutForDelivery: true,
	enum.StatusDelivered:      true,
	enum.StatusReturned:       true,
}

// CheckMutable is the status transition guard: a pure predicate over the
// persisted order. Callers must pass the database-resident row (never
// payload state) so a client cannot talk the guard out of the way.
// Creation has no prior instance and is never guarded.
func CheckMutable(order database.Order) error {
	if lockedStatuses[order.Status] {
		return &StatusLockedError{Status: order.Status}
	}
	return nil
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to mutate orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrder(ctx context.Context, arg database.UpdateOrderParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CountDetailsOwned(ctx context.Context, arg database.CountDetailsOwnedParams) (int64, error)
	ClearOrderDetails(ctx context.Context, orderID int64) error
	AddOrderDetail(ctx context.Context, arg database.AddOrderDetailParams) error
	ListOrderDetailIDs(ctx context.Context, orderID int64) ([]int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
// Ownership is fixed server-side; status always starts at received.
type CreateOrderRequest struct {
	UserID    uuid.UUID
	Name      string
	Phone     string
	Address   string
	DetailIDs []int64
}

// ReplaceOrderRequest is a full update: every field is applied as given,
// and the detail set is replaced with DetailIDs (possibly empty).
type ReplaceOrderRequest struct {
	OrderID   int64
	UserID    uuid.UUID
	Name      string
	Status    int16
	Phone     string
	Address   string
	DetailIDs []int64
}

// PatchOrderRequest is a partial update: nil fields are left untouched.
// A non-nil DetailIDs replaces the whole detail set.
type PatchOrderRequest struct {
	OrderID   int64
	UserID    uuid.UUID
	Name      *string
	Status    *int16
	Phone     *string
	Address   *string
	DetailIDs *[]int64
}

// UpdateStatusRequest targets the status sub-resource. Staff actors may
// update any order; everyone else only their own.
type UpdateStatusRequest struct {
	OrderID int64
	UserID  uuid.UUID
	IsStaff bool
	Status  int16
}

// OrderResult is an order together with its detail ID set.
type OrderResult struct {
	Order     database.Order
	DetailIDs []int64
}

// OrderService handles order mutations. Every mutation runs in a single
// transaction with the order row locked, so the guard always sees the
// freshest persisted status.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// CreateOrder creates an order owned by req.UserID with status received,
// attaching the given detail IDs. All IDs must exist and belong to the
// requester.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	ids := uniqueIDs(req.DetailIDs)
	if err := s.checkDetailOwnership(ctx, store, req.UserID, ids); err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		UserID:  req.UserID,
		Name:    req.Name,
		Status:  enum.StatusReceived,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, id := range ids {
		if err := store.AddOrderDetail(ctx, database.AddOrderDetailParams{OrderID: order.ID, DetailID: id}); err != nil {
			return nil, fmt.Errorf("attach detail %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, DetailIDs: ids}, nil
}

// ReplaceOrder applies full-update semantics: the guard runs against the
// locked row, then every scalar field is overwritten and the detail set is
// replaced with req.DetailIDs.
func (s *OrderService) ReplaceOrder(ctx context.Context, req ReplaceOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := s.lockOwnedOrder(ctx, store, req.OrderID, req.UserID); err != nil {
		return nil, err
	}

	ids := uniqueIDs(req.DetailIDs)
	if err := s.checkDetailOwnership(ctx, store, req.UserID, ids); err != nil {
		return nil, err
	}

	order, err := store.UpdateOrder(ctx, database.UpdateOrderParams{
		ID:      req.OrderID,
		Name:    req.Name,
		Status:  req.Status,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := store.ClearOrderDetails(ctx, req.OrderID); err != nil {
		return nil, fmt.Errorf("clear details: %w", err)
	}
	for _, id := range ids {
		if err := store.AddOrderDetail(ctx, database.AddOrderDetailParams{OrderID: req.OrderID, DetailID: id}); err != nil {
			return nil, fmt.Errorf("attach detail %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, DetailIDs: ids}, nil
}

// PatchOrder applies merge semantics: only non-nil fields change. When
// DetailIDs is non-nil the whole detail set is replaced, never merged.
func (s *OrderService) PatchOrder(ctx context.Context, req PatchOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := s.lockOwnedOrder(ctx, store, req.OrderID, req.UserID)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if req.Name != nil {
		name = *req.Name
	}
	status := current.Status
	if req.Status != nil {
		status = *req.Status
	}
	phone := current.Phone
	if req.Phone != nil {
		phone = *req.Phone
	}
	address := current.Address
	if req.Address != nil {
		address = *req.Address
	}

	order, err := store.UpdateOrder(ctx, database.UpdateOrderParams{
		ID:      req.OrderID,
		Name:    name,
		Status:  status,
		Phone:   phone,
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	var ids []int64
	if req.DetailIDs != nil {
		ids = uniqueIDs(*req.DetailIDs)
		if err := s.checkDetailOwnership(ctx, store, req.UserID, ids); err != nil {
			return nil, err
		}
		if err := store.ClearOrderDetails(ctx, req.OrderID); err != nil {
			return nil, fmt.Errorf("clear details: %w", err)
		}
		for _, id := range ids {
			if err := store.AddOrderDetail(ctx, database.AddOrderDetailParams{OrderID: req.OrderID, DetailID: id}); err != nil {
				return nil, fmt.Errorf("attach detail %d: %w", id, err)
			}
		}
	} else {
		ids, err = store.ListOrderDetailIDs(ctx, req.OrderID)
		if err != nil {
			return nil, fmt.Errorf("list details: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, DetailIDs: ids}, nil
}

// UpdateStatus persists a new status for the order after running the guard
// against the locked row.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*database.Order, error) {
	if !enum.ValidStatus(req.Status) {
		return nil, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !req.IsStaff && current.UserID != req.UserID {
		// Strangers cannot tell "not yours" from "does not exist".
		return nil, ErrOrderNotFound
	}
	if err := CheckMutable(current); err != nil {
		return nil, err
	}

	order, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:     req.OrderID,
		Status: req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &order, nil
}

// lockOwnedOrder fetches the order FOR UPDATE, hides other users' orders
// behind ErrOrderNotFound, and runs the status guard.
func (s *OrderService) lockOwnedOrder(ctx context.Context, store OrderStore, orderID int64, userID uuid.UUID) (database.Order, error) {
	current, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if current.UserID != userID {
		return database.Order{}, ErrOrderNotFound
	}
	if err := CheckMutable(current); err != nil {
		return database.Order{}, err
	}
	return current, nil
}

// checkDetailOwnership verifies every ID exists and belongs to the user.
func (s *OrderService) checkDetailOwnership(ctx context.Context, store OrderStore, userID uuid.UUID, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	owned, err := store.CountDetailsOwned(ctx, database.CountDetailsOwnedParams{
		UserID:    userID,
		DetailIDs: ids,
	})
	if err != nil {
		return fmt.Errorf("count details: %w", err)
	}
	if owned != int64(len(ids)) {
		return ErrDetailNotFound
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
