// Package intake converts raw storefront submissions into structured
// orders. The storefront has shipped two item encodings over time: a single
// JSON-encoded array in the orderItems field, and flat bracket-indexed
// fields like items[0][productType]. Both are accepted; the decoder is
// selected by which fields are present.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/urbancocoa/koowhips-orders/pkg/models"
)

var (
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrBadItemEncoding       = errors.New("order items are not valid JSON")
)

const (
	defaultProductType  = "unspecified"
	defaultInstructions = "None provided"
	defaultCurrency     = "CAD"
)

// UploadedFile is one file part captured from the request body.
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

var bracketKey = regexp.MustCompile(`^items\[(\d+)\]\[([A-Za-z]+)\]$`)

// Normalize validates the raw submission and builds an Order. It has no
// side effects and never mutates shared state; numeric item fields are
// parsed defensively, so a malformed price or quantity falls back to its
// default instead of rejecting the order.
func Normalize(fields map[string][]string, files []UploadedFile) (*models.Order, error) {
	name := strings.TrimSpace(first(fields, "customerName"))
	email := strings.TrimSpace(first(fields, "customerEmail"))
	if name == "" || email == "" {
		return nil, ErrMissingRequiredFields
	}

	items, err := decodeItems(fields)
	if err != nil {
		return nil, err
	}
	// A submission with no items in either encoding has nothing to order;
	// reject it instead of dispatching an empty notification.
	if len(items) == 0 {
		return nil, ErrMissingRequiredFields
	}

	order := &models.Order{
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: strings.TrimSpace(first(fields, "customerPhone")),
		Items:         items,
		SubmittedAt:   time.Now(),
	}

	for _, f := range files {
		order.Attachments = append(order.Attachments, models.Attachment{
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Content:     f.Content,
		})
	}

	return order, nil
}

func decodeItems(fields map[string][]string) ([]models.OrderItem, error) {
	if encoded := first(fields, "orderItems"); strings.TrimSpace(encoded) != "" {
		return decodeJSONItems(encoded)
	}
	return decodeBracketItems(fields), nil
}

// jsonItem tolerates the storefront's loose typing: quantity and price
// arrive as numbers or strings depending on the form version, and older
// builds send "type"/"numProjects"/"numStickers" instead of the current
// field names.
type jsonItem struct {
	ProductType  string `json:"productType"`
	LegacyType   string `json:"type"`
	Quantity     any    `json:"quantity"`
	NumProjects  any    `json:"numProjects"`
	NumStickers  any    `json:"numStickers"`
	Instructions string `json:"instructions"`
	Price        any    `json:"price"`
	Currency     string `json:"currency"`
}

func decodeJSONItems(encoded string) ([]models.OrderItem, error) {
	var raw []jsonItem
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadItemEncoding, err)
	}

	items := make([]models.OrderItem, 0, len(raw))
	for _, r := range raw {
		productType := r.ProductType
		if productType == "" {
			productType = r.LegacyType
		}
		quantity := r.Quantity
		if quantity == nil {
			quantity = r.NumProjects
		}
		if quantity == nil {
			quantity = r.NumStickers
		}
		items = append(items, buildItem(productType, quantity, r.Instructions, r.Price, r.Currency))
	}
	return items, nil
}

func decodeBracketItems(fields map[string][]string) []models.OrderItem {
	grouped := make(map[int]map[string]string)
	for key, values := range fields {
		m := bracketKey.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if grouped[idx] == nil {
			grouped[idx] = make(map[string]string)
		}
		grouped[idx][m[2]] = values[0]
	}

	indexes := make([]int, 0, len(grouped))
	for idx := range grouped {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	items := make([]models.OrderItem, 0, len(indexes))
	for _, idx := range indexes {
		f := grouped[idx]
		productType := f["productType"]
		if productType == "" {
			productType = f["type"]
		}
		items = append(items, buildItem(productType, f["quantity"], f["instructions"], f["price"], f["currency"]))
	}
	return items
}

func buildItem(productType string, quantity any, instructions string, price any, currency string) models.OrderItem {
	item := models.OrderItem{
		ProductType:  strings.TrimSpace(productType),
		Quantity:     coerceQuantity(quantity),
		Instructions: strings.TrimSpace(instructions),
		Price:        coercePrice(price),
		Currency:     strings.TrimSpace(currency),
	}
	if item.ProductType == "" {
		item.ProductType = defaultProductType
	}
	if item.Instructions == "" {
		item.Instructions = defaultInstructions
	}
	if item.Currency == "" {
		item.Currency = defaultCurrency
	}
	return item
}

// coerceQuantity defaults to 1 on absent, non-numeric, or non-positive
// input.
func coerceQuantity(v any) int {
	switch q := v.(type) {
	case float64:
		if q >= 1 {
			return int(q)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(q)); err == nil && n >= 1 {
			return n
		}
	}
	return 1
}

// coercePrice defaults to 0 on absent or non-numeric input; a malformed
// price never aborts an otherwise-valid order.
func coercePrice(v any) decimal.Decimal {
	switch p := v.(type) {
	case float64:
		return decimal.NewFromFloat(p)
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(p)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func first(fields map[string][]string, key string) string {
	if values := fields[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
