package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const detailColumns = `id, user_id, flavour, size, quantity, created_at, updated_at`

func scanDetail(row pgx.Row) (Detail, error) {
	var d Detail
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Flavour,
		&d.Size,
		&d.Quantity,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

func collectDetails(rows pgx.Rows) ([]Detail, error) {
	defer rows.Close()
	items := []Detail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const createDetail = `
INSERT INTO details (user_id, flavour, size, quantity)
VALUES ($1, $2, $3, $4)
RETURNING ` + detailColumns

type CreateDetailParams struct {
	UserID   uuid.UUID
	Flavour  int16
	Size     int16
	Quantity int32
}

func (q *Queries) CreateDetail(ctx context.Context, arg CreateDetailParams) (Detail, error) {
	return scanDetail(q.db.QueryRow(ctx, createDetail,
		arg.UserID,
		arg.Flavour,
		arg.Size,
		arg.Quantity,
	))
}

const getDetail = `
SELECT ` + detailColumns + `
FROM details
WHERE id = $1 AND user_id = $2
`

type GetDetailParams struct {
	ID     int64
	UserID uuid.UUID
}

func (q *Queries) GetDetail(ctx context.Context, arg GetDetailParams) (Detail, error) {
	return scanDetail(q.db.QueryRow(ctx, getDetail, arg.ID, arg.UserID))
}

const listDetailsByUser = `
SELECT ` + detailColumns + `
FROM details
WHERE user_id = $1
ORDER BY id DESC
`

func (q *Queries) ListDetailsByUser(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	rows, err := q.db.Query(ctx, listDetailsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

const listAssignedDetailsByUser = `
SELECT DISTINCT d.id, d.user_id, d.flavour, d.size, d.quantity, d.created_at, d.updated_at
FROM details d
JOIN order_details od ON od.detail_id = d.id
WHERE d.user_id = $1
ORDER BY d.id DESC
`

// ListAssignedDetailsByUser returns the user's details referenced by at
// least one order, each exactly once.
func (q *Queries) ListAssignedDetailsByUser(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	rows, err := q.db.Query(ctx, listAssignedDetailsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

const updateDetail = `
UPDATE details
SET flavour = $3, size = $4, quantity = $5, updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING ` + detailColumns

type UpdateDetailParams struct {
	ID       int64
	UserID   uuid.UUID
	Flavour  int16
	Size     int16
	Quantity int32
}

func (q *Queries) UpdateDetail(ctx context.Context, arg UpdateDetailParams) (Detail, error) {
	return scanDetail(q.db.QueryRow(ctx, updateDetail,
		arg.ID,
		arg.UserID,
		arg.Flavour,
		arg.Size,
		arg.Quantity,
	))
}

const deleteDetail = `
DELETE FROM details
WHERE id = $1 AND user_id = $2
RETURNING id
`

type DeleteDetailParams struct {
	ID     int64
	UserID uuid.UUID
}

// DeleteDetail removes a detail owned by the user. Returns pgx.ErrNoRows
// when the detail does not exist or belongs to someone else.
func (q *Queries) DeleteDetail(ctx context.Context, arg DeleteDetailParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, deleteDetail, arg.ID, arg.UserID).Scan(&id)
	return id, err
}

const countOrdersReferencingDetail = `
SELECT count(*)
FROM order_details
WHERE detail_id = $1
`

func (q *Queries) CountOrdersReferencingDetail(ctx context.Context, detailID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersReferencingDetail, detailID).Scan(&n)
	return n, err
}

const countDetailsOwned = `
SELECT count(*)
FROM details
WHERE user_id = $1 AND id = ANY($2)
`

type CountDetailsOwnedParams struct {
	UserID    uuid.UUID
	DetailIDs []int64
}

// CountDetailsOwned counts how many of the given IDs exist and belong to
// the user; callers compare against the distinct ID count.
func (q *Queries) CountDetailsOwned(ctx context.Context, arg CountDetailsOwnedParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countDetailsOwned, arg.UserID, arg.DetailIDs).Scan(&n)
	return n, err
}
