// Package notification turns a structured order into the document sent to
// the merchant. Rendering is pure: no network, no clock, no numbering
// state.
package notification

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/urbancocoa/koowhips-orders/pkg/models"
)

// Document is a rendered notification: a subject, an HTML body, and the
// resources to attach. Attachments carrying a ContentID are referenced as
// inline previews from the body.
type Document struct {
	Subject     string
	HTML        string
	Attachments []models.Attachment
}

// Renderer formats all timestamps in the merchant's local time zone.
type Renderer struct {
	loc  *time.Location
	tmpl *template.Template
}

func NewRenderer(loc *time.Location) *Renderer {
	return &Renderer{
		loc:  loc,
		tmpl: template.Must(template.New("order").Parse(orderTemplate)),
	}
}

type itemView struct {
	ProductType  string
	Quantity     int
	Instructions string
	Price        string
}

type orderView struct {
	OrderNumber   string
	SubmittedAt   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []itemView
	Total         string
	// InlineSrcs are cid: URLs; html/template would strip the cid scheme
	// from a plain string attribute.
	InlineSrcs []template.URL
}

// Render builds the notification document for an order. Image uploads are
// listed as attachments and additionally inlined into the body by
// Content-ID.
func (r *Renderer) Render(order *models.Order) (*Document, error) {
	attachments := make([]models.Attachment, len(order.Attachments))
	copy(attachments, order.Attachments)

	var inlineSrcs []template.URL
	for i := range attachments {
		if strings.HasPrefix(attachments[i].ContentType, "image/") {
			attachments[i].ContentID = fmt.Sprintf("upload-%d", i)
			inlineSrcs = append(inlineSrcs, template.URL("cid:"+attachments[i].ContentID))
		}
	}

	view := orderView{
		OrderNumber:   order.OrderNumber,
		SubmittedAt:   order.SubmittedAt.In(r.loc).Format("2006-01-02 3:04:05 PM MST"),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Total:         order.DisplayCurrency() + " " + order.Total().StringFixed(2),
		InlineSrcs:    inlineSrcs,
	}
	if view.CustomerPhone == "" {
		view.CustomerPhone = "not provided"
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, itemView{
			ProductType:  item.ProductType,
			Quantity:     item.Quantity,
			Instructions: item.Instructions,
			Price:        item.Currency + " " + item.Price.StringFixed(2),
		})
	}

	var body strings.Builder
	if err := r.tmpl.Execute(&body, view); err != nil {
		return nil, fmt.Errorf("failed to render notification: %w", err)
	}

	return &Document{
		Subject:     fmt.Sprintf("New KooWhips Order #%s", order.OrderNumber),
		HTML:        body.String(),
		Attachments: attachments,
	}, nil
}

const orderTemplate = `<div style="font-family: Arial, sans-serif; color: #1a1a1a; background-color:#fafafa; padding:20px;">
  <h2 style="color:#FF6F61;">New Order Received</h2>
  <p><strong>Order #:</strong> {{.OrderNumber}}</p>
  <p><strong>Date/Time:</strong> {{.SubmittedAt}}</p>
  <hr style="margin:20px 0; border:none; border-top:1px solid #ddd;"/>

  <h3 style="color:#333;">Customer Info</h3>
  <p><strong>Name:</strong> {{.CustomerName}}</p>
  <p><strong>Email:</strong> {{.CustomerEmail}}</p>
  <p><strong>Phone:</strong> {{.CustomerPhone}}</p>
  <hr style="margin:20px 0; border:none; border-top:1px solid #ddd;"/>

  <h3 style="color:#333;">Order Details</h3>
  {{range .Items}}
  <div style="margin-bottom:20px; padding:12px; background:#fff; border-radius:8px;">
    <p><strong>Product Type:</strong> {{.ProductType}}</p>
    <p><strong>Quantity:</strong> {{.Quantity}}</p>
    <p><strong>Price:</strong> {{.Price}}</p>
    <p><strong>Instructions:</strong> {{.Instructions}}</p>
  </div>
  {{end}}

  <hr style="margin:20px 0; border:none; border-top:1px solid #ddd;"/>

  <h3 style="color:#333;">Order Summary</h3>
  <p style="font-size:16px;"><strong>Total:</strong> {{.Total}}</p>

  {{if .InlineSrcs}}
  <hr style="margin:20px 0; border:none; border-top:1px solid #ddd;"/>
  <h3 style="color:#333;">Uploaded Images</h3>
  {{range .InlineSrcs}}
  <img src="{{.}}" style="max-width:300px; margin:4px; border-radius:8px;"/>
  {{end}}
  {{end}}

  <hr style="margin:20px 0; border:none; border-top:1px solid #ddd;"/>
  <p style="text-align:center; color:#777;">
    This is an automated order notification from <strong>KooWhips</strong>.
  </p>
</div>
`
