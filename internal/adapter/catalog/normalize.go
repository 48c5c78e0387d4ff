package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// Field aliases seen across catalog backends, in order of preference.
var (
	idKeys           = []string{"id", "partId", "part_id", "_id"}
	skuKeys          = []string{"sku", "code", "partNumber", "part_number"}
	nameKeys         = []string{"name", "title", "description"}
	manufacturerKeys = []string{"manufacturer", "brand", "maker"}
	costKeys         = []string{"unitCost", "unit_cost", "cost", "costPrice", "averageCost"}
	priceKeys        = []string{"unitPrice", "unit_price", "price", "salePrice", "sale_price"}
	activeKeys       = []string{"active", "isActive", "is_active", "enabled"}
)

// NormalizePart maps one raw catalog record onto domain.Part. Records
// without an id are rejected; a missing active flag counts as active.
func NormalizePart(raw map[string]any) (domain.Part, error) {
	id := stringField(raw, idKeys)
	if id == "" {
		return domain.Part{}, fmt.Errorf("catalog record has no id")
	}

	cost, err := decimalField(raw, costKeys)
	if err != nil {
		return domain.Part{}, fmt.Errorf("part %s: cost: %w", id, err)
	}
	price, err := decimalField(raw, priceKeys)
	if err != nil {
		return domain.Part{}, fmt.Errorf("part %s: price: %w", id, err)
	}

	return domain.Part{
		ID:           id,
		SKU:          stringField(raw, skuKeys),
		Name:         stringField(raw, nameKeys),
		Manufacturer: stringField(raw, manufacturerKeys),
		UnitCost:     cost,
		UnitPrice:    price,
		Active:       activeField(raw),
	}, nil
}

// DecodeParts accepts either a bare array or an envelope with the records
// under "data", "items" or "parts".
func DecodeParts(body []byte) ([]domain.Part, error) {
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		found := false
		for _, key := range []string{"data", "items", "parts"} {
			if inner, ok := envelope[key]; ok {
				if err := json.Unmarshal(inner, &records); err != nil {
					return nil, fmt.Errorf("decode catalog %s: %w", key, err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("decode catalog: no part list in payload")
		}
	}

	parts := make([]domain.Part, 0, len(records))
	for _, raw := range records {
		part, err := NormalizePart(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// DecodePart accepts a record either bare or wrapped in "data".
func DecodePart(body []byte) (domain.Part, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Part{}, fmt.Errorf("decode part: %w", err)
	}
	if inner, ok := raw["data"].(map[string]any); ok {
		raw = inner
	}
	return NormalizePart(raw)
}

func lookup(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw map[string]any, keys []string) string {
	v, ok := lookup(raw, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func decimalField(raw map[string]any, keys []string) (decimal.Decimal, error) {
	v, ok := lookup(raw, keys)
	if !ok {
		return decimal.Zero, nil
	}
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		if strings.TrimSpace(t) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(t))
	}
	return decimal.Zero, fmt.Errorf("unsupported value %v", v)
}

func activeField(raw map[string]any) bool {
	if v, ok := lookup(raw, activeKeys); ok {
		switch t := v.(type) {
		case bool:
			return t
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "1", "t", "true", "y", "yes", "on", "active":
				return true
			}
			return false
		case float64:
			return t != 0
		}
	}
	if status, ok := raw["status"].(string); ok {
		return !strings.EqualFold(status, "inactive") && !strings.EqualFold(status, "discontinued")
	}
	return true
}
