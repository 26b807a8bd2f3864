package queue

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		OpportunityID: "opp-1",
		Kind:          "document_analysis",
		RequestID:     "req-9",
		EnqueuedAt:    "2026-05-01T12:00:00Z",
		Version:       1,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected a decode error")
	}
}
