package domain

import (
	"errors"
	"fmt"
	"strings"
)

const skuDelimiter = "_"

var (
	// ErrSKUTooShort indicates the SKU has fewer than the four required segments.
	ErrSKUTooShort = errors.New("sku: expected at least four segments")
	// ErrSKUEmptyTemplate indicates the SKU's template reference segment is empty.
	ErrSKUEmptyTemplate = errors.New("sku: template reference segment is empty")
)

// StructuredSku is the decoded form of a compound stock-keeping-unit string.
// The template reference indexes artwork file naming and is kept verbatim;
// product code, color and size feed the variant key.
type StructuredSku struct {
	TemplateRef string
	ProductCode string
	Color       string
	Size        string
}

// DecodeSKU parses a raw SKU of the form TEMPLATE_PRODUCT_COLOR…_SIZE.
// Color may itself contain the delimiter (e.g. LIGHT_BLUE): every segment
// strictly between the product code and the size belongs to the color.
func DecodeSKU(raw string) (StructuredSku, error) {
	trimmed := strings.TrimSpace(raw)
	segments := strings.Split(trimmed, skuDelimiter)
	if len(segments) < 4 {
		return StructuredSku{}, fmt.Errorf("%w: %q", ErrSKUTooShort, raw)
	}
	if segments[0] == "" {
		return StructuredSku{}, fmt.Errorf("%w: %q", ErrSKUEmptyTemplate, raw)
	}

	return StructuredSku{
		TemplateRef: segments[0],
		ProductCode: segments[1],
		Color:       strings.Join(segments[2:len(segments)-1], skuDelimiter),
		Size:        segments[len(segments)-1],
	}, nil
}
