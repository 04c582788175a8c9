package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/models"
)

// OrderNotifier tells the shopper about a paid order or a refund request.
type OrderNotifier interface {
	OrderPaid(ctx context.Context, order *models.Order, recipient string) error
	RefundRequested(ctx context.Context, order *models.Order, refund *models.Refund) error
}

type EmailOrderNotifier struct {
	provider email.Provider
	pricer   *catalog.Pricer
	storeURL string
}

func NewEmailOrderNotifier(provider email.Provider, pricer *catalog.Pricer, storeURL string) OrderNotifier {
	if provider == nil {
		return noopOrderNotifier{}
	}
	if pricer == nil {
		pricer = catalog.NewPricer()
	}
	return &EmailOrderNotifier{provider: provider, pricer: pricer, storeURL: storeURL}
}

func (n *EmailOrderNotifier) OrderPaid(ctx context.Context, order *models.Order, recipient string) error {
	if recipient == "" {
		return nil
	}

	info := &email.OrderInfo{
		RefCode:         order.RefCode,
		CustomerEmail:   recipient,
		OrderDate:       order.OrderedAt.Format("January 2, 2006"),
		Total:           formatMoney(n.pricer.Total(order)),
		ShippingAddress: formatAddress(order.ShippingAddress),
		StoreURL:        n.storeURL,
	}
	for _, line := range order.Items {
		info.Items = append(info.Items, email.OrderLine{
			Title:      line.Item.Title,
			Quantity:   line.Quantity,
			TotalPrice: formatMoney(n.pricer.LineTotal(line)),
		})
	}
	if order.Coupon != nil {
		info.Coupon = order.Coupon.Code
		info.Discount = formatMoney(n.pricer.Subtotal(order).Sub(n.pricer.Total(order)))
	}

	return email.SendOrderConfirmation(ctx, n.provider, info)
}

func (n *EmailOrderNotifier) RefundRequested(ctx context.Context, order *models.Order, refund *models.Refund) error {
	return email.SendRefundRequested(ctx, n.provider, &email.RefundInfo{
		RefCode:       order.RefCode,
		CustomerEmail: refund.Email,
		Reason:        refund.Reason,
		StoreURL:      n.storeURL,
	})
}

func formatMoney(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func formatAddress(address *models.Address) string {
	if address == nil {
		return ""
	}
	parts := []string{address.Street}
	if address.Apartment != "" {
		parts = append(parts, address.Apartment)
	}
	parts = append(parts, fmt.Sprintf("%s %s", address.Zip, address.Country))
	return strings.Join(parts, ", ")
}

type noopOrderNotifier struct{}

func (noopOrderNotifier) OrderPaid(context.Context, *models.Order, string) error {
	return nil
}

func (noopOrderNotifier) RefundRequested(context.Context, *models.Order, *models.Refund) error {
	return nil
}
