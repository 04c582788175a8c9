package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/models"
)

var hundred = decimal.NewFromInt(100)

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// EffectivePrice is the discount price when one is set, otherwise the list price.
func (p *Pricer) EffectivePrice(item models.Item) decimal.Decimal {
	if item.DiscountPrice.Valid && item.DiscountPrice.Decimal.IsPositive() {
		return item.DiscountPrice.Decimal
	}
	return item.Price
}

func (p *Pricer) LineTotal(line models.OrderItem) decimal.Decimal {
	return p.EffectivePrice(line.Item).Mul(decimal.NewFromInt(int64(line.Quantity)))
}

func (p *Pricer) LineSavings(line models.OrderItem) decimal.Decimal {
	full := line.Item.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return full.Sub(p.LineTotal(line))
}

func (p *Pricer) Subtotal(order *models.Order) decimal.Decimal {
	subtotal := decimal.Zero
	if order == nil {
		return subtotal
	}
	for _, line := range order.Items {
		subtotal = subtotal.Add(p.LineTotal(line))
	}
	return subtotal
}

// Total subtracts the coupon from the subtotal. It is never negative.
func (p *Pricer) Total(order *models.Order) decimal.Decimal {
	total := p.Subtotal(order)
	if order != nil && order.Coupon != nil {
		total = total.Sub(order.Coupon.Amount)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// TotalCents is the order total in the smallest currency unit, rounded half away from zero.
func (p *Pricer) TotalCents(order *models.Order) int64 {
	return p.Total(order).Mul(hundred).Round(0).IntPart()
}
