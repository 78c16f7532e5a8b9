package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, name, status, phone, address, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Name,
		&o.Status,
		&o.Phone,
		&o.Address,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const createOrder = `
INSERT INTO orders (user_id, name, status, phone, address)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	UserID  uuid.UUID
	Name    string
	Status  int16
	Phone   string
	Address string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.UserID,
		arg.Name,
		arg.Status,
		arg.Phone,
		arg.Address,
	))
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND user_id = $2
`

type GetOrderParams struct {
	ID     int64
	UserID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.UserID))
}

const getOrderByID = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

// GetOrderByID fetches an order without ownership scoping. Callers decide
// visibility (the status sub-resource is readable by staff).
func (q *Queries) GetOrderByID(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR UPDATE
`

// GetOrderForUpdate locks the order row for the duration of the enclosing
// transaction. The status guard must read through this so two racing
// mutations serialize on the row lock.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrdersByUser = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY id DESC
`

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listOrdersByUserAndDetailIDs = `
SELECT DISTINCT o.id, o.user_id, o.name, o.status, o.phone, o.address, o.created_at, o.updated_at
FROM orders o
JOIN order_details od ON od.order_id = o.id
WHERE o.user_id = $1 AND od.detail_id = ANY($2)
ORDER BY o.id DESC
`

type ListOrdersByUserAndDetailIDsParams struct {
	UserID    uuid.UUID
	DetailIDs []int64
}

// ListOrdersByUserAndDetailIDs returns the user's orders whose detail set
// intersects the given IDs, each order exactly once.
func (q *Queries) ListOrdersByUserAndDetailIDs(ctx context.Context, arg ListOrdersByUserAndDetailIDsParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUserAndDetailIDs, arg.UserID, arg.DetailIDs)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const updateOrder = `
UPDATE orders
SET name = $2, status = $3, phone = $4, address = $5, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderParams struct {
	ID      int64
	Name    string
	Status  int16
	Phone   string
	Address string
}

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrder,
		arg.ID,
		arg.Name,
		arg.Status,
		arg.Phone,
		arg.Address,
	))
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID     int64
	Status int16
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

const deleteOrder = `
DELETE FROM orders
WHERE id = $1 AND user_id = $2
RETURNING id
`

type DeleteOrderParams struct {
	ID     int64
	UserID uuid.UUID
}

// DeleteOrder removes an order owned by the user; join rows cascade.
// Returns pgx.ErrNoRows when the order does not exist or is not theirs.
func (q *Queries) DeleteOrder(ctx context.Context, arg DeleteOrderParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, deleteOrder, arg.ID, arg.UserID).Scan(&id)
	return id, err
}

const listOrderDetailIDs = `
SELECT detail_id
FROM order_details
WHERE order_id = $1
ORDER BY detail_id
`

func (q *Queries) ListOrderDetailIDs(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listOrderDetailIDs, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const listDetailsByOrder = `
SELECT d.id, d.user_id, d.flavour, d.size, d.quantity, d.created_at, d.updated_at
FROM details d
JOIN order_details od ON od.detail_id = d.id
WHERE od.order_id = $1
ORDER BY d.id
`

func (q *Queries) ListDetailsByOrder(ctx context.Context, orderID int64) ([]Detail, error) {
	rows, err := q.db.Query(ctx, listDetailsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

const addOrderDetail = `
INSERT INTO order_details (order_id, detail_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type AddOrderDetailParams struct {
	OrderID  int64
	DetailID int64
}

func (q *Queries) AddOrderDetail(ctx context.Context, arg AddOrderDetailParams) error {
	_, err := q.db.Exec(ctx, addOrderDetail, arg.OrderID, arg.DetailID)
	return err
}

const clearOrderDetails = `
DELETE FROM order_details
WHERE order_id = $1
`

func (q *Queries) ClearOrderDetails(ctx context.Context, orderID int64) error {
	_, err := q.db.Exec(ctx, clearOrderDetails, orderID)
	return err
}
