package decisioncache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Context holds the requirement fields that feed the cache signature.
// Zero values mean the field is unknown.
type Context struct {
	City         string
	State        string
	Country      string
	Participants int
	Nights       int
	BudgetUSD    float64
}

// Buckets renders the context as its bucketized terms, keyed by dimension.
// These terms are what the signature hashes and what gets persisted next to
// the decision so a stored row stays explainable.
func Buckets(c Context) map[string]string {
	return map[string]string{
		"city":         normalizePlace(c.City),
		"state":        normalizePlace(c.State),
		"country":      normalizePlace(c.Country),
		"participants": participantsBucket(c.Participants),
		"nights":       nightsBucket(c.Nights),
		"budget":       budgetBucket(c.BudgetUSD),
	}
}

// Signature buckets the context into coarse ranges and hashes the result, so
// near-identical requirements resolve to the same cache row while a material
// difference in any one dimension produces a different key.
func Signature(c Context) string {
	buckets := Buckets(c)
	terms := make([]string, 0, len(buckets))
	for dim, bucket := range buckets {
		terms = append(terms, dim+":"+bucket)
	}
	sort.Strings(terms)
	sum := sha256.Sum256([]byte(strings.Join(terms, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizePlace(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func participantsBucket(n int) string {
	switch {
	case n <= 0:
		return "UNKNOWN"
	case n <= 25:
		return "<=25"
	case n <= 50:
		return "26-50"
	case n <= 100:
		return "51-100"
	case n <= 250:
		return "101-250"
	case n <= 500:
		return "251-500"
	default:
		return ">500"
	}
}

func nightsBucket(n int) string {
	switch {
	case n <= 0:
		return "UNKNOWN"
	case n == 1:
		return "1"
	case n <= 3:
		return "2-3"
	case n <= 7:
		return "4-7"
	case n <= 14:
		return "8-14"
	default:
		return ">14"
	}
}

func budgetBucket(usd float64) string {
	switch {
	case usd <= 0:
		return "UNKNOWN"
	case usd < 5000:
		return "<5K"
	case usd < 20000:
		return "5K-20K"
	case usd < 50000:
		return "20K-50K"
	case usd < 150000:
		return "50K-150K"
	default:
		return ">150K"
	}
}

// ContextFromRequirements builds a signature context from a normalized
// requirement object produced by the analysis passes.
func ContextFromRequirements(reqs map[string]any) Context {
	c := Context{}
	if s, ok := reqs["city"].(string); ok {
		c.City = s
	}
	if s, ok := reqs["state"].(string); ok {
		c.State = s
	}
	if s, ok := reqs["country"].(string); ok {
		c.Country = s
	}
	c.Participants = intField(reqs, "participants")
	c.Nights = intField(reqs, "nights")
	if f, ok := reqs["budget_usd"].(float64); ok {
		c.BudgetUSD = f
	}
	return c
}

func intField(reqs map[string]any, key string) int {
	switch v := reqs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// describe renders the bucketized terms as one human-readable line.
func describe(c Context) string {
	return fmt.Sprintf("city=%s participants=%s nights=%s budget=%s",
		normalizePlace(c.City), participantsBucket(c.Participants),
		nightsBucket(c.Nights), budgetBucket(c.BudgetUSD))
}
