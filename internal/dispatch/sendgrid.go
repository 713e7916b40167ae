package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGridTransport delivers messages through the SendGrid v3 mail API.
type SendGridTransport struct {
	client *sendgrid.Client
	logger *logrus.Logger
}

func NewSendGridTransport(apiKey string, logger *logrus.Logger) *SendGridTransport {
	return &SendGridTransport{
		client: sendgrid.NewSendClient(apiKey),
		logger: logger,
	}
}

func (t *SendGridTransport) Send(ctx context.Context, msg *Message) error {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.FromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.ToEmail))
	m.AddPersonalizations(p)

	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}

	m.AddContent(mail.NewContent("text/html", msg.HTML))

	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		if att.ContentID != "" {
			a.SetDisposition("inline")
			a.SetContentID(att.ContentID)
		} else {
			a.SetDisposition("attachment")
		}
		m.AddAttachment(a)
	}

	resp, err := t.client.SendWithContext(ctx, m)
	if err != nil {
		// Transport-level errors (DNS, TLS, timeouts) can be relayed
		// verbatim; they never contain credentials.
		return fmt.Errorf("sendgrid request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// Response bodies may echo request internals; log them but keep
		// the caller-facing error to the status code.
		t.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   resp.Body,
		}).Error("SendGrid rejected the message")
		return fmt.Errorf("sendgrid rejected the message with status %d", resp.StatusCode)
	}

	return nil
}
