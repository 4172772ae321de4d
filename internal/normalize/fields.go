package normalize

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Field accessors tolerate the loose typing of upstream JSON: numbers arrive
// as float64, strings may hold numbers, and placeholder dashes mean absent.

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func sliceOfMaps(m map[string]any, key string) []map[string]any {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func stringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		cleaned := strings.TrimSpace(v)
		if cleaned == "" || cleaned == "-" {
			return 0
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return int(f)
		}
		return 0
	default:
		return 0
	}
}

func decimalField(m map[string]any, key string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	switch v := m[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if cleaned == "" || cleaned == "-" {
			return decimal.Zero
		}
		if d, err := decimal.NewFromString(cleaned); err == nil {
			return d
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
