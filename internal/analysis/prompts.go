package analysis

import "encoding/json"

const extractSystemRole = `You are a procurement document analyst. Extract the lodging
requirements stated in the document. Report only what the text says; when a field is
not stated, omit it. Respond with a single JSON object and nothing else.`

const reviewSystemRole = `You are reviewing extracted lodging requirements against the
source document. Correct any field that contradicts the text. Verify that nightly
totals and date ranges are consistent with each other. Never invent a value: if you
cannot verify a field from the document, set it to "unknown". Respond with the
corrected JSON object and nothing else.`

const generateSystemRole = `You are writing a short briefing for a hotel sourcing team.
Summarize the lodging requirements below in two or three plain sentences. Do not add
information that is not in the requirements.`

const requirementSchemaHint = `{
  "event_name": "string",
  "city": "string",
  "state": "string",
  "country": "string",
  "check_in": "YYYY-MM-DD",
  "check_out": "YYYY-MM-DD",
  "nights": 0,
  "participants": 0,
  "rooms_per_night": 0,
  "budget_usd": 0.0,
  "amenities": ["string"],
  "confidence": 0.0
}`

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
