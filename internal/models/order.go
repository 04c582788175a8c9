package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderState is derived from an order's flags; it is never stored.
type OrderState string

const (
	StateEmpty           OrderState = "empty"
	StateCart            OrderState = "cart"
	StateAddressed       OrderState = "addressed"
	StatePaid            OrderState = "paid"
	StateRefundRequested OrderState = "refund_requested"
	StateRefundGranted   OrderState = "refund_granted"
)

// RefCodeLength is the length of the customer-facing order reference.
const RefCodeLength = 20

type Order struct {
	ID              uuid.UUID   `json:"id"`
	UserID          string      `json:"user_id"`
	RefCode         string      `json:"ref_code,omitempty"`
	Items           []OrderItem `json:"items"`
	ShippingAddress *Address    `json:"shipping_address,omitempty"`
	BillingAddress  *Address    `json:"billing_address,omitempty"`
	Coupon          *Coupon     `json:"coupon,omitempty"`
	Payment         *Payment    `json:"payment,omitempty"`
	Ordered         bool        `json:"ordered"`
	BeingDelivered  bool        `json:"being_delivered"`
	Received        bool        `json:"received"`
	RefundRequested bool        `json:"refund_requested"`
	RefundGranted   bool        `json:"refund_granted"`
	CreatedAt       time.Time   `json:"created_at"`
	OrderedAt       time.Time   `json:"ordered_at,omitzero"`
}

// OrderItem is one line of an order. OrderID is nil once the line has been
// detached from its order.
type OrderItem struct {
	ID       uuid.UUID  `json:"id"`
	UserID   string     `json:"user_id"`
	OrderID  *uuid.UUID `json:"order_id,omitempty"`
	Item     Item       `json:"item"`
	Quantity int        `json:"quantity"`
	Ordered  bool       `json:"ordered"`
}

func (o *Order) State() OrderState {
	switch {
	case o == nil:
		return StateEmpty
	case o.RefundGranted:
		return StateRefundGranted
	case o.RefundRequested:
		return StateRefundRequested
	case o.Ordered:
		return StatePaid
	case len(o.Items) == 0:
		return StateEmpty
	case o.ShippingAddress != nil && o.BillingAddress != nil:
		return StateAddressed
	default:
		return StateCart
	}
}

// Line returns the attached line for the item with the given slug.
func (o *Order) Line(slug string) (*OrderItem, bool) {
	if o == nil {
		return nil, false
	}
	for i := range o.Items {
		if o.Items[i].Item.Slug == slug {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cloned := *o
	cloned.Items = make([]OrderItem, len(o.Items))
	for i, line := range o.Items {
		cloned.Items[i] = line.Clone()
	}
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		cloned.ShippingAddress = &addr
	}
	if o.BillingAddress != nil {
		addr := *o.BillingAddress
		cloned.BillingAddress = &addr
	}
	if o.Coupon != nil {
		coupon := *o.Coupon
		cloned.Coupon = &coupon
	}
	if o.Payment != nil {
		payment := *o.Payment
		cloned.Payment = &payment
	}
	return &cloned
}

func (l OrderItem) Clone() OrderItem {
	if l.OrderID != nil {
		id := *l.OrderID
		l.OrderID = &id
	}
	return l
}
