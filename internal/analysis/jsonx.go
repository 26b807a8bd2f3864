package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeObject pulls the first usable JSON object out of raw agent text.
// Strategies, in order: fenced code block, balanced-bracket scan for a
// complete object holding at least one expected key, whole-string parse,
// lenient repair. The error from the last strategy is returned when all fail.
func DecodeObject(raw string, expectedKeys []string) (map[string]any, error) {
	if obj, err := decodeFenced(raw); err == nil {
		return obj, nil
	}
	if obj, err := decodeBalanced(raw, expectedKeys); err == nil {
		return obj, nil
	}
	if obj, err := decodeWhole(raw); err == nil {
		return obj, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("no parseable JSON object: repair: %w", err)
	}
	if obj, err := decodeWhole(repaired); err == nil {
		return obj, nil
	}
	if obj, err := decodeBalanced(repaired, expectedKeys); err == nil {
		return obj, nil
	}
	return nil, fmt.Errorf("no parseable JSON object in %d bytes of output", len(raw))
}

func decodeFenced(raw string) (map[string]any, error) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return nil, fmt.Errorf("no fenced block")
	}
	rest := raw[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop an optional language tag on the fence line.
		tag := strings.TrimSpace(rest[:nl])
		if len(tag) <= 8 && !strings.ContainsAny(tag, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return nil, fmt.Errorf("unterminated fenced block")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeBalanced scans for syntactically complete top-level objects and
// returns the first one containing at least one expected key.
func decodeBalanced(raw string, expectedKeys []string) (map[string]any, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		end, ok := matchBrace(raw, i)
		if !ok {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw[i:end+1]), &obj); err != nil {
			continue
		}
		if hasExpectedKey(obj, expectedKeys) {
			return obj, nil
		}
		i = end
	}
	return nil, fmt.Errorf("no balanced object with expected keys")
}

// matchBrace returns the index of the brace closing the object opened at
// start, honoring strings and escapes.
func matchBrace(raw string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeWhole(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, fmt.Errorf("not a JSON document")
	}
	if trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("empty JSON array")
		}
		return list[0], nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func hasExpectedKey(obj map[string]any, keys []string) bool {
	if len(keys) == 0 {
		return len(obj) > 0
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
