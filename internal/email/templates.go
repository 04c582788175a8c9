package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
)

// OrderInfo carries everything the order templates render.
type OrderInfo struct {
	RefCode         string
	CustomerEmail   string
	OrderDate       string
	Items           []OrderLine
	Coupon          string
	Discount        string
	Total           string
	ShippingAddress string
	StoreURL        string
}

type OrderLine struct {
	Title      string
	Quantity   int
	TotalPrice string
}

// RefundInfo carries the refund acknowledgement fields.
type RefundInfo struct {
	RefCode       string
	CustomerEmail string
	Reason        string
	StoreURL      string
}

const (
	templateOrderConfirmation = "order_confirmation"
	templateRefundRequested   = "refund_requested"
)

// Renderer renders the built-in templates. Text bodies use text/template;
// HTML bodies use html/template so item titles are escaped.
type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	text := template.New("email")
	html := htmltemplate.New("email")

	bodies := map[string][2]string{
		templateOrderConfirmation: {orderConfirmationText, orderConfirmationHTML},
		templateRefundRequested:   {refundRequestedText, refundRequestedHTML},
	}
	for name, body := range bodies {
		if _, err := text.New(name).Parse(body[0]); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
		if _, err := html.New(name).Parse(body[1]); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}

	return &Renderer{text: text, html: html}, nil
}

func (r *Renderer) render(name, to, subject string, data any) (*Email, error) {
	var textBuf, htmlBuf bytes.Buffer
	if err := r.text.ExecuteTemplate(&textBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.html.ExecuteTemplate(&htmlBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:       to,
		Subject:  subject,
		Text:     textBuf.String(),
		HTML:     htmlBuf.String(),
		Category: name,
	}, nil
}

func (r *Renderer) OrderConfirmation(info *OrderInfo) (*Email, error) {
	return r.render(templateOrderConfirmation, info.CustomerEmail, fmt.Sprintf("Order Confirmed - %s", info.RefCode), info)
}

func (r *Renderer) RefundRequested(info *RefundInfo) (*Email, error) {
	return r.render(templateRefundRequested, info.CustomerEmail, fmt.Sprintf("Refund Request Received - %s", info.RefCode), info)
}

// SendOrderConfirmation is a no-op when p is nil.
func SendOrderConfirmation(ctx context.Context, p Provider, info *OrderInfo) error {
	if p == nil || info == nil || info.CustomerEmail == "" {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	email, err := renderer.OrderConfirmation(info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return p.SendEmail(ctx, email)
}

// SendRefundRequested is a no-op when p is nil.
func SendRefundRequested(ctx context.Context, p Provider, info *RefundInfo) error {
	if p == nil || info == nil || info.CustomerEmail == "" {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	email, err := renderer.RefundRequested(info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return p.SendEmail(ctx, email)
}

const orderConfirmationText = `Thank you for your order!

Reference: {{.RefCode}}
Order Date: {{.OrderDate}}

Items:
{{range .Items}}- {{.Title}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
{{if .Coupon}}Coupon {{.Coupon}}: -{{.Discount}}
{{end}}Total: {{.Total}}

Shipping to:
{{.ShippingAddress}}

Keep your reference code; you will need it to request a refund.
{{.StoreURL}}
`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Order Confirmation</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #2563eb; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .items-table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items-table td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
    .total { font-size: 18px; font-weight: bold; text-align: right; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Order Confirmed</h1>
    <p>Reference {{.RefCode}}</p>
  </div>
  <div class="content">
    <p><strong>Order Date:</strong> {{.OrderDate}}</p>
    <table class="items-table">
      <tbody>
        {{range .Items}}
        <tr><td>{{.Title}}</td><td>{{.Quantity}}</td><td>{{.TotalPrice}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{if .Coupon}}<p>Coupon {{.Coupon}}: -{{.Discount}}</p>{{end}}
    <p class="total">Total: {{.Total}}</p>
    <h3>Shipping Address</h3>
    <p>{{.ShippingAddress}}</p>
    <p>Keep your reference code; you will need it to request a refund.</p>
  </div>
</body>
</html>
`

const refundRequestedText = `We received your refund request.

Reference: {{.RefCode}}
Reason: {{.Reason}}

We will be in touch once it has been reviewed.
{{.StoreURL}}
`

const refundRequestedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Refund Request Received</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Refund Request Received</h1>
  <p><strong>Reference:</strong> {{.RefCode}}</p>
  <p><strong>Reason:</strong> {{.Reason}}</p>
  <p>We will be in touch once it has been reviewed.</p>
</body>
</html>
`
