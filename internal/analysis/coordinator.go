package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZGRSRL/mergenlite-sub000/internal/llm"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// maxParseRetries bounds how many times a pass is re-submitted with parser
// feedback before the output is declared malformed.
const maxParseRetries = 2

var requirementKeys = []string{
	"event_name", "city", "state", "country",
	"check_in", "check_out", "nights", "participants",
	"rooms_per_night", "budget_usd", "amenities",
}

// MalformedOutputError carries a bounded preview of the raw model output so
// callers can log what the parser saw without replaying the request.
type MalformedOutputError struct {
	Pass       string
	Attempts   int
	RawPreview string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed output from %s pass after %d attempts: %s",
		e.Pass, e.Attempts, e.RawPreview)
}

// Result is the coordinator's final product: structured lodging requirements
// plus an optional prose summary produced by the generate pass.
type Result struct {
	Requirements map[string]any
	Summary      string
	Confidence   float64
}

// Coordinator runs the three-pass document analysis: extract raw requirements,
// review them against the source text, then generate a prose summary.
type Coordinator struct {
	LLM llm.Client
}

func NewCoordinator(client llm.Client) *Coordinator {
	return &Coordinator{LLM: client}
}

func (c *Coordinator) Run(ctx context.Context, docText string) (*Result, error) {
	draft, err := c.extractPass(ctx, docText)
	if err != nil {
		return nil, err
	}
	reviewed, err := c.reviewPass(ctx, docText, draft)
	if err != nil {
		// A failed review still leaves a usable draft.
		telemetry.Warn("analysis.review_skipped", map[string]any{"error": err.Error()})
		reviewed = draft
	}
	reviewed = Normalize(reviewed)

	summary, err := c.generatePass(ctx, reviewed)
	if err != nil {
		telemetry.Warn("analysis.summary_skipped", map[string]any{"error": err.Error()})
		summary = ""
	}

	return &Result{
		Requirements: reviewed,
		Summary:      summary,
		Confidence:   confidenceOf(reviewed),
	}, nil
}

func (c *Coordinator) extractPass(ctx context.Context, docText string) (map[string]any, error) {
	req := llm.Request{
		SystemRole: extractSystemRole,
		UserPrompt: fmt.Sprintf("Document text:\n\n%s", clampText(docText)),
		SchemaHint: requirementSchemaHint,
	}
	return c.invokeStructured(ctx, "extract", req)
}

func (c *Coordinator) reviewPass(ctx context.Context, docText string, draft map[string]any) (map[string]any, error) {
	draftJSON := renderJSON(draft)
	req := llm.Request{
		SystemRole: reviewSystemRole,
		UserPrompt: fmt.Sprintf("Extracted requirements:\n%s\n\nSource document:\n\n%s",
			draftJSON, clampText(docText)),
		SchemaHint: requirementSchemaHint,
	}
	reviewed, err := c.invokeStructured(ctx, "review", req)
	if err != nil {
		return nil, err
	}
	// The reviewer marks fields it cannot verify rather than inventing
	// values; those markers are dropped in favor of the draft's answer.
	for k, v := range reviewed {
		if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), "unknown") {
			if dv, ok := draft[k]; ok {
				reviewed[k] = dv
			} else {
				delete(reviewed, k)
			}
		}
	}
	return reviewed, nil
}

func (c *Coordinator) generatePass(ctx context.Context, reqs map[string]any) (string, error) {
	req := llm.Request{
		SystemRole: generateSystemRole,
		UserPrompt: fmt.Sprintf("Requirements:\n%s", renderJSON(reqs)),
	}
	out, err := c.LLM.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// invokeStructured calls the model and parses a JSON object from its output,
// re-submitting with parser feedback up to maxParseRetries times.
func (c *Coordinator) invokeStructured(ctx context.Context, pass string, req llm.Request) (map[string]any, error) {
	var lastRaw string
	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		raw, err := c.LLM.Invoke(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s pass: %w", pass, err)
		}
		lastRaw = raw
		obj, err := DecodeObject(raw, requirementKeys)
		if err == nil {
			return obj, nil
		}
		telemetry.Warn("analysis.parse_retry", map[string]any{
			"pass":    pass,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		req.UserPrompt = fmt.Sprintf(
			"%s\n\nYour previous reply could not be parsed as JSON (%v). Respond again with only a valid JSON object.",
			req.UserPrompt, err)
	}
	return nil, &MalformedOutputError{
		Pass:       pass,
		Attempts:   maxParseRetries + 1,
		RawPreview: previewOf(lastRaw),
	}
}

func confidenceOf(reqs map[string]any) float64 {
	if reqs == nil {
		return 0
	}
	if c, ok := coerceFloat(reqs["confidence"]); ok && c > 0 && c <= 1 {
		return c
	}
	filled := 0
	for _, k := range requirementKeys {
		if _, ok := reqs[k]; ok {
			filled++
		}
	}
	return float64(filled) / float64(len(requirementKeys))
}

// clampText keeps prompts inside a sane context budget.
func clampText(s string) string {
	const max = 60000
	if len(s) > max {
		return s[:max]
	}
	return s
}
