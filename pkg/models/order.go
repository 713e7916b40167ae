package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one customer submission in structured form. It exists only for
// the duration of request handling; nothing about it is persisted after
// dispatch completes.
type Order struct {
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	CustomerPhone string       `json:"customer_phone,omitempty"`
	Items         []OrderItem  `json:"items"`
	Attachments   []Attachment `json:"-"`
	OrderNumber   string       `json:"order_number,omitempty"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

type OrderItem struct {
	ProductType  string          `json:"product_type"`
	Quantity     int             `json:"quantity"`
	Instructions string          `json:"instructions"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
}

// Attachment holds one uploaded file. Content stays in memory and is owned
// by a single Order until dispatch completes.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte

	// ContentID is set by the renderer when the attachment is also inlined
	// into the notification body.
	ContentID string
}

// Total sums the item prices. Normalization guarantees every price is a
// valid decimal, so the sum never fails.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price)
	}
	return total
}

// DisplayCurrency is the first item's currency, falling back to CAD when
// the order has no items.
func (o *Order) DisplayCurrency() string {
	if len(o.Items) > 0 && o.Items[0].Currency != "" {
		return o.Items[0].Currency
	}
	return "CAD"
}

// OrderResponse is the JSON body returned to the storefront.
type OrderResponse struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DeliveryResult reports the outcome of handing a notification to the
// outbound transport.
type DeliveryResult struct {
	OrderNumber string
	Delivered   bool
	Diagnostic  string
}
