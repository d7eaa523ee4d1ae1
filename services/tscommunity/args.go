package tscommunity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"tscommunity/lib/scrapers/tscommunity/errs"
)

func requiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", errs.InvalidInput("%s is required", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", errs.InvalidInput("%s must be a string", key)
	}
	if strings.TrimSpace(value) == "" {
		return "", errs.InvalidInput("%s must not be empty", key)
	}
	return value, nil
}

// optionalInt accepts JSON numbers that are whole, and numeric strings
// since some callers quote everything.
func optionalInt(args map[string]any, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, errs.InvalidInput("%s must be an integer", key)
		}
		f = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errs.InvalidInput("%s must be an integer, got %q", key, v)
		}
		return parsed, nil
	default:
		return 0, errs.InvalidInput("%s must be an integer", key)
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errs.InvalidInput("%s must be an integer, got %v", key, f)
	}
	return int(f), nil
}
