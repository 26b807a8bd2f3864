package analysis

import (
	"strings"
	"testing"
)

func TestDecodeObjectFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"city\": \"Austin\", \"participants\": 40}\n```\nLet me know if you need anything else."
	obj, err := DecodeObject(raw, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["city"] != "Austin" {
		t.Fatalf("city = %v", obj["city"])
	}
}

func TestDecodeObjectEmbeddedInProse(t *testing.T) {
	raw := `Based on my analysis, {"event_name": "Annual Summit", "city": "Denver"} covers the requirements.`
	obj, err := DecodeObject(raw, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["event_name"] != "Annual Summit" {
		t.Fatalf("event_name = %v", obj["event_name"])
	}
}

func TestDecodeObjectPicksFirstWithExpectedKey(t *testing.T) {
	raw := `{"note": "ignore me"} {"city": "Boston", "nights": 3} {"city": "Reno"}`
	obj, err := DecodeObject(raw, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["city"] != "Boston" {
		t.Fatalf("expected first object with a known key, got %v", obj)
	}
}

func TestDecodeObjectWholeString(t *testing.T) {
	obj, err := DecodeObject(`{"participants": 120}`, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["participants"] != float64(120) {
		t.Fatalf("participants = %v", obj["participants"])
	}
}

func TestDecodeObjectRepairsLenientJSON(t *testing.T) {
	// Trailing comma and single quotes are not valid JSON but repairable.
	raw := `{'city': 'Miami', 'nights': 2,}`
	obj, err := DecodeObject(raw, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["city"] != "Miami" {
		t.Fatalf("city = %v", obj["city"])
	}
}

func TestDecodeObjectBracesInsideStrings(t *testing.T) {
	raw := `prefix {"event_name": "Gala {2026}", "city": "NYC"} suffix`
	obj, err := DecodeObject(raw, requirementKeys)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["event_name"] != "Gala {2026}" {
		t.Fatalf("event_name = %v", obj["event_name"])
	}
}

func TestDecodeObjectNoJSON(t *testing.T) {
	_, err := DecodeObject("I could not find any lodging requirements.", requirementKeys)
	if err == nil {
		t.Fatal("expected an error for prose-only output")
	}
	if !strings.Contains(err.Error(), "JSON") {
		t.Fatalf("unexpected error: %v", err)
	}
}
