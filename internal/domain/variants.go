package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// NormalizeKeyPart upper-cases a variant key segment and strips every
// character outside [A-Z0-9]. The operation is idempotent.
func NormalizeKeyPart(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VariantKeyFor builds the normalized PRODUCTCODE_COLOR_SIZE lookup key.
func VariantKeyFor(sku StructuredSku) string {
	return NormalizeKeyPart(sku.ProductCode) + "_" + NormalizeKeyPart(sku.Color) + "_" + NormalizeKeyPart(sku.Size)
}

// UnmappedVariantError names the computed key so operators can extend the table.
type UnmappedVariantError struct {
	Key string
}

// Error implements the error interface.
func (e *UnmappedVariantError) Error() string {
	return fmt.Sprintf("variant: no catalog mapping for key %q", e.Key)
}

// VariantCatalog maps normalized variant keys to provider catalog variant ids.
// It is loaded once at startup and never mutated, so concurrent reads are safe.
type VariantCatalog struct {
	variants map[string]int
}

// NewVariantCatalog copies the provided mapping into an immutable catalog.
// Entries with non-positive ids are rejected.
func NewVariantCatalog(variants map[string]int) (*VariantCatalog, error) {
	copied := make(map[string]int, len(variants))
	for key, id := range variants {
		if id <= 0 {
			return nil, fmt.Errorf("variant: catalog id for %q must be positive, got %d", key, id)
		}
		copied[key] = id
	}
	return &VariantCatalog{variants: copied}, nil
}

// LoadVariantCatalog reads a JSON object of key → catalog variant id.
func LoadVariantCatalog(path string) (*VariantCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("variant: read catalog: %w", err)
	}
	var variants map[string]int
	if err := json.Unmarshal(data, &variants); err != nil {
		return nil, fmt.Errorf("variant: parse catalog: %w", err)
	}
	return NewVariantCatalog(variants)
}

// Resolve returns the catalog variant id for the SKU's normalized key, or an
// UnmappedVariantError. Unmapped keys are always a hard failure; the catalog
// never substitutes a default.
func (c *VariantCatalog) Resolve(sku StructuredSku) (int, error) {
	key := VariantKeyFor(sku)
	id, ok := c.variants[key]
	if !ok {
		return 0, &UnmappedVariantError{Key: key}
	}
	return id, nil
}

// Len reports the number of catalog entries.
func (c *VariantCatalog) Len() int {
	return len(c.variants)
}
