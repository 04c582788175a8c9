package models

import (
	"time"

	"github.com/google/uuid"
)

type AddressType string

const (
	AddressShipping AddressType = "S"
	AddressBilling  AddressType = "B"
)

func (t AddressType) String() string {
	switch t {
	case AddressShipping:
		return "shipping"
	case AddressBilling:
		return "billing"
	default:
		return string(t)
	}
}

type Address struct {
	ID        uuid.UUID   `json:"id"`
	UserID    string      `json:"user_id"`
	Street    string      `json:"street"`
	Apartment string      `json:"apartment,omitempty"`
	Country   string      `json:"country"`
	Zip       string      `json:"zip"`
	Type      AddressType `json:"type"`
	Default   bool        `json:"default"`
	CreatedAt time.Time   `json:"created_at"`
}

// Snapshot returns a copy of the address suitable for embedding in an order.
// Later edits to the address book do not change an order's snapshot.
func (a Address) Snapshot() *Address {
	return &a
}
