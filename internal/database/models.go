package database

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that owns details and orders. Staff users additionally
// act as delivery trackers on the order status sub-resource.
type User struct {
	ID             uuid.UUID
	Email          string
	Name           string
	HashedPassword string
	IsActive       bool
	IsStaff        bool
	IsSuperuser    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Detail is one pizza line item (flavour, size, quantity). It exists
// independently of orders and may be attached to many of them.
type Detail struct {
	ID        int64
	UserID    uuid.UUID
	Flavour   int16
	Size      int16
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is one delivery order. Its detail set lives in the order_details
// join table.
type Order struct {
	ID        int64
	UserID    uuid.UUID
	Name      string
	Status    int16
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
