// Package dispatch hands rendered notifications to the outbound email
// transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/urbancocoa/koowhips-orders/internal/notification"
	"github.com/urbancocoa/koowhips-orders/pkg/models"
)

// ErrDispatchFailed wraps every transport failure surfaced to the caller.
var ErrDispatchFailed = errors.New("failed to dispatch order notification")

// Message is the transport-neutral shape of one outbound email.
type Message struct {
	ToEmail     string
	FromEmail   string
	FromName    string
	ReplyTo     string
	Subject     string
	HTML        string
	Attachments []models.Attachment
}

// Transport delivers one message. Implementations must return errors that
// are safe to show to the storefront caller: status and kind, never
// credentials or raw provider payloads.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Gateway addresses notifications to the merchant's operator inbox with
// the customer set as reply-to. It performs exactly one send per order:
// no internal retry.
type Gateway struct {
	transport Transport
	operator  string
	sender    string
	name      string
	logger    *logrus.Logger
}

func NewGateway(transport Transport, operatorEmail, senderEmail, senderName string, logger *logrus.Logger) *Gateway {
	return &Gateway{
		transport: transport,
		operator:  operatorEmail,
		sender:    senderEmail,
		name:      senderName,
		logger:    logger,
	}
}

// Dispatch sends the rendered document. On failure the returned
// DeliveryResult carries a sanitized diagnostic and still names the order
// number so the failure is traceable.
func (g *Gateway) Dispatch(ctx context.Context, doc *notification.Document, order *models.Order) (*models.DeliveryResult, error) {
	msg := &Message{
		ToEmail:     g.operator,
		FromEmail:   g.sender,
		FromName:    g.name,
		ReplyTo:     order.CustomerEmail,
		Subject:     doc.Subject,
		HTML:        doc.HTML,
		Attachments: doc.Attachments,
	}

	if err := g.transport.Send(ctx, msg); err != nil {
		g.logger.WithError(err).WithField("order_number", order.OrderNumber).
			Error("Transport failed to deliver order notification")
		return &models.DeliveryResult{
			OrderNumber: order.OrderNumber,
			Delivered:   false,
			Diagnostic:  err.Error(),
		}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	g.logger.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"attachments":  len(doc.Attachments),
	}).Info("Order notification dispatched")

	return &models.DeliveryResult{
		OrderNumber: order.OrderNumber,
		Delivered:   true,
	}, nil
}
