package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemCategory string

const (
	CategoryShirt     ItemCategory = "S"
	CategorySportWear ItemCategory = "SW"
	CategoryOutwear   ItemCategory = "OW"
)

type ItemLabel string

const (
	LabelPrimary   ItemLabel = "P"
	LabelSecondary ItemLabel = "S"
	LabelDanger    ItemLabel = "D"
)

type Item struct {
	ID            uuid.UUID           `json:"id"`
	Title         string              `json:"title"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Category      ItemCategory        `json:"category"`
	Label         ItemLabel           `json:"label"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description"`
	Image         string              `json:"image"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Coupon is a fixed-amount discount applied to a whole order.
type Coupon struct {
	ID     uuid.UUID       `json:"id"`
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}
