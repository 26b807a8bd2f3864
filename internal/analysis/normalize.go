package analysis

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

var placeholderValues = map[string]bool{
	"n/a":         true,
	"na":          true,
	"none":        true,
	"null":        true,
	"tbd":         true,
	"tba":         true,
	"unknown":     true,
	"unspecified": true,
	"":            true,
}

// Normalize cleans an extracted requirement object in place and returns it.
// Placeholder strings become absent fields, truncated OCR dates are repaired,
// numeric fields stored as strings are coerced, and the stay duration is
// recomputed from the date pair whenever both ends parse.
func Normalize(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	stripPlaceholders(obj)

	for _, key := range []string{"check_in", "check_out"} {
		if s, ok := obj[key].(string); ok {
			if fixed, ok := normalizeDate(s); ok {
				obj[key] = fixed
			}
		}
	}
	for _, key := range []string{"participants", "nights", "rooms_per_night"} {
		if n, ok := coerceInt(obj[key]); ok {
			obj[key] = n
		}
	}
	if f, ok := coerceFloat(obj["budget_usd"]); ok {
		obj["budget_usd"] = f
	}

	if in, ok := parseISO(obj["check_in"]); ok {
		if out, ok := parseISO(obj["check_out"]); ok && out.After(in) {
			obj["nights"] = int(out.Sub(in).Hours() / 24)
		}
	}
	return obj
}

func stripPlaceholders(obj map[string]any) {
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			if placeholderValues[strings.ToLower(strings.TrimSpace(val))] {
				delete(obj, k)
			}
		case []any:
			kept := val[:0]
			for _, item := range val {
				s, isStr := item.(string)
				if isStr && placeholderValues[strings.ToLower(strings.TrimSpace(s))] {
					continue
				}
				kept = append(kept, item)
			}
			obj[k] = kept
		case map[string]any:
			stripPlaceholders(val)
		case nil:
			delete(obj, k)
		}
	}
}

// normalizeDate parses common date shapes into ISO form. Scanned documents
// often lose the leading digit of the year ("026-05-14"), so a three-digit
// year starting with 0 gets the current millennium prefix restored.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if parts := strings.SplitN(s, "-", 3); len(parts) == 3 {
		if len(parts[0]) == 3 && strings.HasPrefix(parts[0], "0") {
			s = "2" + s
		} else if len(parts[0]) == 2 {
			s = "20" + s
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func parseISO(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func coerceInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(val, ",", "")))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		cleaned := strings.TrimSpace(strings.Trim(strings.ReplaceAll(val, ",", ""), "$ "))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// previewOf caps raw model output for inclusion in structured errors.
func previewOf(raw string) string {
	const max = 240
	raw = strings.ReplaceAll(raw, "\n", " ")
	if len(raw) > max {
		return raw[:max] + "..."
	}
	return raw
}
