// Package analysis turns noisy model output into a complete analysis record.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical record keys.
const (
	KeySummary              = "summary"
	KeyPersonalInfoIssues   = "personal_info_issues"
	KeyAccountIssues        = "account_issues"
	KeyCollectionAccounts   = "collection_accounts"
	KeyInquiries            = "inquiries"
	KeyFCRAViolations       = "fcra_violations"
	KeyOverallAssessment    = "overall_assessment"
	KeyDisputeLettersNeeded = "dispute_letters_needed"

	KeyMissingSections = "_missing_sections"
	KeyAnalysisModels  = "_analysis_models"
	KeyRawSnippet      = "_raw_response_snippet"
	KeyParseFailed     = "_parse_failed"
	KeyProviderError   = "_provider_error"
)

// RequiredKeys lists the canonical fields in schema order.
var RequiredKeys = []string{
	KeySummary,
	KeyPersonalInfoIssues,
	KeyAccountIssues,
	KeyCollectionAccounts,
	KeyInquiries,
	KeyFCRAViolations,
	KeyOverallAssessment,
	KeyDisputeLettersNeeded,
}

var sequenceKeys = map[string]bool{
	KeyPersonalInfoIssues:   true,
	KeyAccountIssues:        true,
	KeyCollectionAccounts:   true,
	KeyInquiries:            true,
	KeyFCRAViolations:       true,
	KeyDisputeLettersNeeded: true,
}

var assessmentNumbers = []string{
	"total_accounts",
	"total_collections",
	"total_hard_inquiries",
	"total_soft_inquiries",
	"total_violations_found",
}

const (
	assessmentRiskLevel = "overall_risk_level"
	assessmentActions   = "priority_actions"
)

// Record is a normalized analysis. Every key in RequiredKeys is present and
// type-correct.
type Record map[string]any

// Summary returns the summary text.
func (r Record) Summary() string {
	s, _ := r[KeySummary].(string)
	return s
}

// Missing returns the diagnostic list of sections that were still empty.
func (r Record) Missing() []string {
	out, _ := r[KeyMissingSections].([]string)
	return out
}

// Models returns the "provider:model" labels that contributed.
func (r Record) Models() []string {
	out, _ := r[KeyAnalysisModels].([]string)
	return out
}

// ParseFailed reports whether the model output could not be parsed.
func (r Record) ParseFailed() bool {
	b, _ := r[KeyParseFailed].(bool)
	return b
}

// JSON encodes the record.
func (r Record) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(r))
}

// emptyAssessment returns overall_assessment with numbers zeroed and lists empty.
func emptyAssessment() map[string]any {
	out := map[string]any{
		assessmentRiskLevel: "",
		assessmentActions:   []any{},
	}
	for _, k := range assessmentNumbers {
		out[k] = float64(0)
	}
	return out
}

// emptyRecord is the degraded shape used when nothing could be parsed.
func emptyRecord(summary string) Record {
	r := Record{KeySummary: summary, KeyOverallAssessment: emptyAssessment()}
	for k := range sequenceKeys {
		r[k] = []any{}
	}
	return r
}

// preferredListKeys are checked in order when a section arrives as an object
// that wraps its list.
var preferredListKeys = []string{"issues", "items", "accounts", "violations", "inquiries", "letters", "list"}

func coerceSequence(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	case map[string]any:
		if len(t) == 0 {
			return []any{}
		}
		for _, k := range preferredListKeys {
			if list, ok := t[k].([]any); ok {
				return list
			}
		}
		return []any{t}
	case string:
		if strings.TrimSpace(t) == "" {
			return []any{}
		}
		return []any{t}
	default:
		return []any{t}
	}
}

func coerceSummary(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return fmt.Sprint(t)
	case map[string]any:
		for _, k := range []string{"text", "summary", "overview"} {
			if s, ok := t[k].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func coerceAssessment(v any) map[string]any {
	out := emptyAssessment()
	in, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for key, val := range in {
		norm := toSnake(key)
		switch {
		case norm == assessmentRiskLevel || norm == "risk_level":
			if s, ok := val.(string); ok {
				out[assessmentRiskLevel] = strings.TrimSpace(s)
			}
		case norm == assessmentActions:
			out[assessmentActions] = coerceSequence(val)
		case isAssessmentNumber(norm):
			out[norm] = coerceNumber(val)
		default:
			out[norm] = val
		}
	}
	return out
}

func isAssessmentNumber(key string) bool {
	for _, k := range assessmentNumbers {
		if k == key {
			return true
		}
	}
	return false
}

func coerceNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case []any:
		return float64(len(t))
	default:
		return 0
	}
}

// isEmpty reports whether a canonical field counts as missing.
func isEmpty(key string, v any) bool {
	switch key {
	case KeySummary:
		s, _ := v.(string)
		return strings.TrimSpace(s) == ""
	case KeyOverallAssessment:
		m, ok := v.(map[string]any)
		if !ok || len(m) == 0 {
			return true
		}
		for _, val := range m {
			switch t := val.(type) {
			case float64:
				if t != 0 {
					return false
				}
			case string:
				if strings.TrimSpace(t) != "" {
					return false
				}
			case []any:
				if len(t) > 0 {
					return false
				}
			case nil:
			default:
				return false
			}
		}
		return true
	default:
		list, ok := v.([]any)
		return !ok || len(list) == 0
	}
}

// missingSections lists canonical fields that are empty, in schema order.
func missingSections(r Record) []string {
	out := []string{}
	for _, k := range RequiredKeys {
		if isEmpty(k, r[k]) {
			out = append(out, k)
		}
	}
	return out
}
