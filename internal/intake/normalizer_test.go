package intake

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() map[string][]string {
	return map[string][]string{
		"customerName":  {"Jane Doe"},
		"customerEmail": {"jane@example.com"},
		"orderItems":    {`[{"productType":"sticker","quantity":2,"price":"5.50","currency":"CAD"}]`},
	}
}

func TestNormalizeRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string][]string)
	}{
		{"missing name", func(f map[string][]string) { delete(f, "customerName") }},
		{"blank name", func(f map[string][]string) { f["customerName"] = []string{"   "} }},
		{"missing email", func(f map[string][]string) { delete(f, "customerEmail") }},
		{"blank email", func(f map[string][]string) { f["customerEmail"] = []string{""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(fields)
			_, err := Normalize(fields, nil)
			assert.ErrorIs(t, err, ErrMissingRequiredFields)
		})
	}
}

func TestNormalizeRejectsItemlessSubmission(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string][]string)
	}{
		{"no items in either encoding", func(f map[string][]string) { delete(f, "orderItems") }},
		{"blank orderItems field", func(f map[string][]string) { f["orderItems"] = []string{"   "} }},
		{"empty item array", func(f map[string][]string) { f["orderItems"] = []string{"[]"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(fields)
			_, err := Normalize(fields, nil)
			assert.ErrorIs(t, err, ErrMissingRequiredFields)
		})
	}
}

func TestNormalizeMissingEmailWithCompleteItems(t *testing.T) {
	// A fully-populated items list never compensates for a missing email.
	fields := validFields()
	fields["customerEmail"] = []string{""}
	fields["orderItems"] = []string{`[
		{"productType":"sticker","quantity":2,"price":"5.50","currency":"CAD"},
		{"productType":"banner","quantity":1,"price":"20.00","currency":"CAD"}
	]`}

	_, err := Normalize(fields, nil)
	assert.ErrorIs(t, err, ErrMissingRequiredFields)
}

func TestNormalizeJSONItems(t *testing.T) {
	order, err := Normalize(validFields(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", order.CustomerName)
	assert.Equal(t, "jane@example.com", order.CustomerEmail)
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	assert.Equal(t, "sticker", item.ProductType)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "CAD", item.Currency)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("5.50")), "price %s", item.Price)
	assert.Equal(t, "None provided", item.Instructions)
	assert.False(t, order.SubmittedAt.IsZero())
}

func TestNormalizeMalformedJSONItems(t *testing.T) {
	fields := validFields()
	fields["orderItems"] = []string{`[{"productType":"sticker"`}

	_, err := Normalize(fields, nil)
	assert.ErrorIs(t, err, ErrBadItemEncoding)
}

func TestNormalizeBracketItems(t *testing.T) {
	fields := map[string][]string{
		"customerName":           {"Jane Doe"},
		"customerEmail":          {"jane@example.com"},
		"customerPhone":          {" 555-0101 "},
		"items[2][productType]":  {"banner"},
		"items[2][price]":        {"20.00"},
		"items[0][productType]":  {"sticker"},
		"items[0][quantity]":     {"3"},
		"items[0][price]":        {"5.50"},
		"items[0][instructions]": {"  matte finish  "},
		"items[10][productType]": {"keychain"},
		"items[10][price]":       {"4"},
		"unrelatedField":         {"ignored"},
	}

	order, err := Normalize(fields, nil)
	require.NoError(t, err)

	assert.Equal(t, "555-0101", order.CustomerPhone)
	require.Len(t, order.Items, 3)

	// Grouped per index, numeric index order preserved (2 before 10).
	assert.Equal(t, "sticker", order.Items[0].ProductType)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, "matte finish", order.Items[0].Instructions)
	assert.Equal(t, "banner", order.Items[1].ProductType)
	assert.Equal(t, "keychain", order.Items[2].ProductType)
	assert.True(t, order.Items[2].Price.Equal(decimal.NewFromInt(4)))
}

func TestNormalizeDefaults(t *testing.T) {
	fields := validFields()
	fields["orderItems"] = []string{`[{"price":"not-a-number","quantity":"lots"}]`}

	order, err := Normalize(fields, nil)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	assert.True(t, item.Price.IsZero(), "non-numeric price must default to 0, got %s", item.Price)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, "unspecified", item.ProductType)
	assert.Equal(t, "None provided", item.Instructions)
	assert.Equal(t, "CAD", item.Currency)
}

func TestNormalizeNumericVariants(t *testing.T) {
	fields := validFields()
	fields["orderItems"] = []string{`[
		{"productType":"a","quantity":2.0,"price":5.5},
		{"productType":"b","quantity":"4","price":"12.25"},
		{"productType":"c","quantity":0,"price":""}
	]`}

	order, err := Normalize(fields, nil)
	require.NoError(t, err)
	require.Len(t, order.Items, 3)

	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("5.5")))
	assert.Equal(t, 4, order.Items[1].Quantity)
	assert.True(t, order.Items[1].Price.Equal(decimal.RequireFromString("12.25")))
	assert.Equal(t, 1, order.Items[2].Quantity, "non-positive quantity defaults to 1")
	assert.True(t, order.Items[2].Price.IsZero())
}

func TestNormalizeLegacyFieldNames(t *testing.T) {
	fields := validFields()
	fields["orderItems"] = []string{`[{"type":"sticker","numStickers":6,"price":"9.99"}]`}

	order, err := Normalize(fields, nil)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "sticker", order.Items[0].ProductType)
	assert.Equal(t, 6, order.Items[0].Quantity)
}

func TestNormalizeAttachments(t *testing.T) {
	files := []UploadedFile{
		{Filename: "art.png", ContentType: "image/png", Content: []byte{0x89, 'P', 'N', 'G'}},
		{Filename: "notes.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
	}

	order, err := Normalize(validFields(), files)
	require.NoError(t, err)
	require.Len(t, order.Attachments, 2)

	assert.Equal(t, "art.png", order.Attachments[0].Filename)
	assert.Equal(t, "image/png", order.Attachments[0].ContentType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, order.Attachments[0].Content)
	assert.Equal(t, "notes.pdf", order.Attachments[1].Filename)
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize(validFields(), nil)
	require.NoError(t, err)
	second, err := Normalize(validFields(), nil)
	require.NoError(t, err)

	// Structurally equal apart from the capture timestamp.
	second.SubmittedAt = first.SubmittedAt
	assert.Equal(t, first, second)
}
