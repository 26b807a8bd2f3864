package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZGRSRL/mergenlite-sub000/internal/llm"
)

// scriptedClient replays canned responses and records the prompts it saw.
type scriptedClient struct {
	responses []string
	err       error
	prompts   []string
}

func (s *scriptedClient) Invoke(_ context.Context, req llm.Request) (string, error) {
	s.prompts = append(s.prompts, req.UserPrompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}

func TestCoordinatorRunHappyPath(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"event_name": "Tech Week", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": "40", "budget_usd": "N/A"}`,
		`{"event_name": "Tech Week", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40, "nights": 7}`,
		`Tech Week needs rooms in Austin for 40 people, May 10 through 13.`,
	}}
	c := NewCoordinator(client)

	res, err := c.Run(context.Background(), "RFQ: lodging for Tech Week in Austin...")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Requirements["city"] != "Austin" {
		t.Fatalf("city = %v", res.Requirements["city"])
	}
	// The reviewer's nights count disagrees with the dates; the date pair wins.
	if res.Requirements["nights"] != 3 {
		t.Fatalf("nights = %v, want 3", res.Requirements["nights"])
	}
	if res.Summary == "" {
		t.Fatal("expected a prose summary")
	}
	if res.Confidence <= 0 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestCoordinatorParseRetryWithFeedback(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`Sure! Here you go.`, // no JSON at all
		`{"city": "Portland", "participants": 25}`,
		`{"city": "Portland", "participants": 25}`,
		`Summary text.`,
	}}
	c := NewCoordinator(client)

	res, err := c.Run(context.Background(), "doc")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Requirements["city"] != "Portland" {
		t.Fatalf("city = %v", res.Requirements["city"])
	}
	if len(client.prompts) < 2 || !strings.Contains(client.prompts[1], "could not be parsed") {
		t.Fatalf("second prompt should carry parser feedback, got %q", client.prompts[1])
	}
}

func TestCoordinatorMalformedAfterCeiling(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"nope", "still nope", "nope again, with a long tail of prose that should be truncated in the preview",
	}}
	c := NewCoordinator(client)

	_, err := c.Run(context.Background(), "doc")
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Attempts != maxParseRetries+1 {
		t.Fatalf("attempts = %d", malformed.Attempts)
	}
	if malformed.RawPreview == "" {
		t.Fatal("expected a raw output preview")
	}
	if malformed.Pass != "extract" {
		t.Fatalf("pass = %q", malformed.Pass)
	}
}

func TestCoordinatorReviewUnknownFallsBackToDraft(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"city": "Chicago", "participants": 80}`,
		`{"city": "unknown", "participants": 80}`,
		`Summary.`,
	}}
	c := NewCoordinator(client)

	res, err := c.Run(context.Background(), "doc")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Requirements["city"] != "Chicago" {
		t.Fatalf("city = %v, want draft value Chicago", res.Requirements["city"])
	}
}

func TestCoordinatorExtractErrorPropagates(t *testing.T) {
	client := &scriptedClient{err: llm.ErrUnavailable}
	c := NewCoordinator(client)

	_, err := c.Run(context.Background(), "doc")
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
