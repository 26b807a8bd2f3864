package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Notify(context.Background(), "warning", "job failed", map[string]any{"job_id": "j1"})

	if got["severity"] != "warning" || got["message"] != "job failed" {
		t.Fatalf("payload = %v", got)
	}
	fields := got["fields"].(map[string]any)
	if fields["job_id"] != "j1" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestWebhookNotifierSwallowsDeliveryErrors(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1/unreachable")
	// Must not panic or block beyond the client timeout.
	n.Notify(context.Background(), "info", "hello", nil)
}
