package services

import (
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/models"
)

type LineSummary struct {
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Saved     decimal.Decimal `json:"saved"`
}

// OrderSummary is an order with every price already computed.
type OrderSummary struct {
	Order      *models.Order     `json:"order"`
	State      models.OrderState `json:"state"`
	Lines      []LineSummary     `json:"lines"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Discount   decimal.Decimal   `json:"discount"`
	Total      decimal.Decimal   `json:"total"`
	TotalCents int64             `json:"total_cents"`
}

func summarize(pricer *catalog.Pricer, order *models.Order) *OrderSummary {
	summary := &OrderSummary{
		Order:      order,
		State:      order.State(),
		Lines:      make([]LineSummary, 0, len(order.Items)),
		Subtotal:   pricer.Subtotal(order),
		Total:      pricer.Total(order),
		TotalCents: pricer.TotalCents(order),
	}
	summary.Discount = summary.Subtotal.Sub(summary.Total)

	for _, line := range order.Items {
		summary.Lines = append(summary.Lines, LineSummary{
			Slug:      line.Item.Slug,
			Title:     line.Item.Title,
			Quantity:  line.Quantity,
			UnitPrice: pricer.EffectivePrice(line.Item),
			Total:     pricer.LineTotal(line),
			Saved:     pricer.LineSavings(line),
		})
	}
	return summary
}
