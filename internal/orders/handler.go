// Package orders wires the intake pipeline to the HTTP boundary: a
// submission is normalized, numbered, rendered, and dispatched, strictly in
// that order.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/urbancocoa/koowhips-orders/internal/events"
	"github.com/urbancocoa/koowhips-orders/internal/feed"
	"github.com/urbancocoa/koowhips-orders/internal/intake"
	"github.com/urbancocoa/koowhips-orders/internal/notification"
	"github.com/urbancocoa/koowhips-orders/pkg/models"
)

// maxUploadBytes bounds in-memory multipart parsing.
const maxUploadBytes = 32 << 20

// attachmentsField is the multipart field name the storefront uploads
// files under.
const attachmentsField = "attachments"

// NumberSource assigns order numbers; see internal/numbering.
type NumberSource interface {
	Next(ctx context.Context) (string, error)
	Degraded() bool
}

// Dispatcher sends a rendered document; see internal/dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, doc *notification.Document, order *models.Order) (*models.DeliveryResult, error)
}

// AuditPublisher records successful dispatches; nil disables auditing.
type AuditPublisher interface {
	PublishOrderDispatched(event events.OrderDispatchedEvent) error
}

type Handler struct {
	numbers   NumberSource
	renderer  *notification.Renderer
	gateway   Dispatcher
	publisher AuditPublisher
	hub       *feed.Hub
	logger    *logrus.Logger
}

func NewHandler(numbers NumberSource, renderer *notification.Renderer, gateway Dispatcher, logger *logrus.Logger) *Handler {
	return &Handler{
		numbers:  numbers,
		renderer: renderer,
		gateway:  gateway,
		logger:   logger,
	}
}

// SetAuditPublisher enables dispatch audit events.
func (h *Handler) SetAuditPublisher(p AuditPublisher) {
	h.publisher = p
}

// SetFeedHub enables live order notices for the merchant dashboard.
func (h *Handler) SetFeedHub(hub *feed.Hub) {
	h.hub = hub
}

// SendOrder handles POST /send-order. The body is either multipart
// form-data (with optional file parts), urlencoded form fields, or a JSON
// object; order items arrive in one of the two supported encodings and the
// normalizer works out which.
func (h *Handler) SendOrder(w http.ResponseWriter, r *http.Request) {
	fields, files, err := h.decodeBody(r)
	if err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := intake.Normalize(fields, files)
	if err != nil {
		h.logger.WithError(err).Warn("Order submission rejected")
		h.respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	orderNumber, err := h.numbers.Next(r.Context())
	if err != nil {
		// The generator degrades internally instead of failing; an error
		// here means the request context is gone.
		h.logger.WithError(err).Error("Failed to assign order number")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to process order")
		return
	}
	order.OrderNumber = orderNumber

	doc, err := h.renderer.Render(order)
	if err != nil {
		h.logger.WithError(err).WithField("order_number", orderNumber).Error("Failed to render notification")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to process order")
		return
	}

	// If the caller is already gone, abort before the transport is invoked
	// so one request never triggers two sends.
	if r.Context().Err() != nil {
		h.logger.WithField("order_number", orderNumber).Warn("Caller disconnected before dispatch, aborting")
		return
	}

	result, err := h.gateway.Dispatch(r.Context(), doc, order)
	if err != nil {
		resp := models.OrderResponse{
			Success:     false,
			OrderNumber: orderNumber,
			Error:       "failed to dispatch order notification",
		}
		if result != nil && result.Diagnostic != "" {
			resp.Error = result.Diagnostic
		}
		h.respondWithJSON(w, http.StatusInternalServerError, resp)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_number": orderNumber,
		"items_count":  len(order.Items),
		"attachments":  len(order.Attachments),
	}).Info("Order processed successfully")

	h.afterDispatch(order)

	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success:     true,
		OrderNumber: orderNumber,
		Message:     "Order email sent successfully",
	})
}

// afterDispatch fans the success out to the audit topic and the dashboard
// feed. Both are best-effort; neither can fail the request.
func (h *Handler) afterDispatch(order *models.Order) {
	if h.publisher != nil {
		event := events.OrderDispatchedEvent{
			OrderNumber:  order.OrderNumber,
			CustomerName: order.CustomerName,
			ItemCount:    len(order.Items),
			TotalAmount:  order.Total().StringFixed(2),
			Currency:     order.DisplayCurrency(),
			DispatchedAt: order.SubmittedAt,
		}
		if err := h.publisher.PublishOrderDispatched(event); err != nil {
			h.logger.WithError(err).Error("Failed to publish order dispatched event")
		}
	}

	if h.hub != nil {
		h.hub.Notify(feed.OrderNotice{
			OrderNumber:  order.OrderNumber,
			CustomerName: order.CustomerName,
			ItemCount:    len(order.Items),
			Total:        order.DisplayCurrency() + " " + order.Total().StringFixed(2),
			ReceivedAt:   order.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

// HealthCheck reports liveness plus whether the order counter has lost its
// durable store.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":  "healthy",
		"service": "order-service",
		"counter": "durable",
	}
	if h.numbers.Degraded() {
		status["counter"] = "in-memory"
	}
	h.respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) decodeBody(r *http.Request) (map[string][]string, []intake.UploadedFile, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case contentType == "multipart/form-data":
		return h.decodeMultipart(r)
	case contentType == "application/json":
		fields, err := decodeJSONBody(r.Body)
		return fields, nil, err
	default:
		if err := r.ParseForm(); err != nil {
			return nil, nil, err
		}
		return r.PostForm, nil, nil
	}
}

func (h *Handler) decodeMultipart(r *http.Request) (map[string][]string, []intake.UploadedFile, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, err
	}

	var files []intake.UploadedFile
	for _, header := range r.MultipartForm.File[attachmentsField] {
		f, err := header.Open()
		if err != nil {
			return nil, nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		files = append(files, intake.UploadedFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		})
	}

	return r.MultipartForm.Value, files, nil
}

// decodeJSONBody flattens a JSON object into the same field map the form
// decoders produce. An orderItems array is re-encoded so the normalizer
// sees the single serialized-array field it expects.
func decodeJSONBody(body io.Reader) (map[string][]string, error) {
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}

	fields := make(map[string][]string, len(payload))
	for key, raw := range payload {
		trimmed := strings.TrimSpace(string(raw))
		if trimmed == "null" {
			continue
		}
		if strings.HasPrefix(trimmed, `"`) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, err
			}
			fields[key] = []string{s}
			continue
		}
		fields[key] = []string{trimmed}
	}
	return fields, nil
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, intake.ErrMissingRequiredFields):
		return "missing required fields"
	case errors.Is(err, intake.ErrBadItemEncoding):
		return "order items are not valid JSON"
	default:
		return "invalid order submission"
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, models.OrderResponse{
		Success: false,
		Message: message,
	})
}
