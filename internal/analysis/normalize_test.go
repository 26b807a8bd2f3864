package analysis

import "testing"

func TestNormalizeTruncatedYear(t *testing.T) {
	obj := Normalize(map[string]any{
		"check_in":  "026-05-14",
		"check_out": "026-05-17",
	})
	if obj["check_in"] != "2026-05-14" {
		t.Fatalf("check_in = %v", obj["check_in"])
	}
	if obj["nights"] != 3 {
		t.Fatalf("nights = %v, want 3", obj["nights"])
	}
}

func TestNormalizeTwoDigitYear(t *testing.T) {
	obj := Normalize(map[string]any{"check_in": "26-03-10"})
	if obj["check_in"] != "2026-03-10" {
		t.Fatalf("check_in = %v", obj["check_in"])
	}
}

func TestNormalizeRecomputesNightsOverStatedValue(t *testing.T) {
	obj := Normalize(map[string]any{
		"check_in":  "2026-01-05",
		"check_out": "2026-01-09",
		"nights":    float64(10),
	})
	if obj["nights"] != 4 {
		t.Fatalf("nights = %v, want 4", obj["nights"])
	}
}

func TestNormalizeStripsPlaceholders(t *testing.T) {
	obj := Normalize(map[string]any{
		"state":     "TBD",
		"country":   "n/a",
		"city":      "Seattle",
		"amenities": []any{"wifi", "N/A", "parking"},
	})
	if _, ok := obj["state"]; ok {
		t.Fatal("placeholder state should be removed")
	}
	if _, ok := obj["country"]; ok {
		t.Fatal("placeholder country should be removed")
	}
	amenities := obj["amenities"].([]any)
	if len(amenities) != 2 {
		t.Fatalf("amenities = %v", amenities)
	}
}

func TestNormalizeCoercesNumericStrings(t *testing.T) {
	obj := Normalize(map[string]any{
		"participants": "1,200",
		"budget_usd":   "$45,000.50",
	})
	if obj["participants"] != 1200 {
		t.Fatalf("participants = %v", obj["participants"])
	}
	if obj["budget_usd"] != 45000.50 {
		t.Fatalf("budget_usd = %v", obj["budget_usd"])
	}
}

func TestNormalizeNilInput(t *testing.T) {
	if Normalize(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}
