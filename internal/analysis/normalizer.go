package analysis

import (
	"context"
	"fmt"
	"strings"

	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/telemetry"
	"creditdocs-backend/internal/shared/util"
)

// DefaultSnippetRunes bounds each raw-response snippet kept for provenance.
const DefaultSnippetRunes = 500

const snippetSeparator = "\n---\n"

// Normalizer repairs model output into a Record. It makes at most one extra
// gateway call per Normalize.
type Normalizer struct {
	gateway      llm.Completer
	aliases      map[string]string
	snippetRunes int
	maxTextRunes int
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithAliases replaces the key-alias table.
func WithAliases(aliases map[string]string) NormalizerOption {
	return func(n *Normalizer) { n.aliases = aliases }
}

// WithSnippetRunes sets the per-call snippet length.
func WithSnippetRunes(runes int) NormalizerOption {
	return func(n *Normalizer) {
		if runes > 0 {
			n.snippetRunes = runes
		}
	}
}

// WithMaxTextRunes caps the source text re-sent in the repair request.
func WithMaxTextRunes(runes int) NormalizerOption {
	return func(n *Normalizer) {
		if runes > 0 {
			n.maxTextRunes = runes
		}
	}
}

// NewNormalizer builds a Normalizer. A nil gateway disables the repair round.
func NewNormalizer(gateway llm.Completer, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		gateway:      gateway,
		aliases:      config.MustDefaultVocabulary().Aliases,
		snippetRunes: DefaultSnippetRunes,
		maxTextRunes: 60000,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize turns the initial completion into a Record, running one repair
// request when sections are missing. It only fails on ctx cancellation.
func (n *Normalizer) Normalize(ctx context.Context, initial llm.Completion, source string) (Record, error) {
	prov := &provenance{snippetRunes: n.snippetRunes}
	prov.add(initial)

	rec := n.readRecord(initial.Content)
	missing := missingSections(rec)

	if len(missing) > 0 && n.gateway != nil {
		metrics.IncRepairRound()
		completion, err := n.gateway.Complete(ctx, repairRequest(util.TruncateRunes(source, n.maxTextRunes), missing))
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			telemetry.Warn("analysis.repair", map[string]any{
				"missing":   strings.Join(missing, ","),
				"succeeded": false,
				"error":     err.Error(),
			})
		default:
			prov.add(completion)
			filled := []string{}
			if obj, parseErr := Parse(completion.Content); parseErr == nil {
				filled = mergeMissing(rec, canonicalize(obj, n.aliases))
			}
			telemetry.Info("analysis.repair", map[string]any{
				"missing":   strings.Join(missing, ","),
				"filled":    strings.Join(filled, ","),
				"provider":  completion.Label(),
				"succeeded": true,
			})
		}
		missing = missingSections(rec)
	}

	rec[KeyMissingSections] = missing
	prov.attach(rec)
	return rec, nil
}

// Degraded builds the record returned when the initial analysis request
// could not be served by any provider.
func Degraded(cause error) Record {
	rec := emptyRecord("")
	rec[KeyMissingSections] = missingSections(rec)
	rec[KeyAnalysisModels] = []string{}
	rec[KeyRawSnippet] = ""
	if cause != nil {
		rec[KeyProviderError] = cause.Error()
	}
	return rec
}

func (n *Normalizer) readRecord(raw string) Record {
	obj, err := Parse(raw)
	if err != nil {
		telemetry.Warn("analysis.parse_failed", map[string]any{"error": err.Error()})
		rec := emptyRecord(StripFences(raw))
		rec[KeyParseFailed] = true
		return rec
	}
	return canonicalize(obj, n.aliases)
}

type provenance struct {
	snippetRunes int
	models       []string
	snippets     []string
}

func (p *provenance) add(c llm.Completion) {
	p.models = append(p.models, c.Label())
	p.snippets = append(p.snippets, util.TruncateRunes(c.Content, p.snippetRunes))
}

func (p *provenance) attach(rec Record) {
	rec[KeyAnalysisModels] = append([]string{}, p.models...)
	rec[KeyRawSnippet] = strings.Join(p.snippets, snippetSeparator)
}

func repairRequest(source string, missing []string) llm.Request {
	var b strings.Builder
	b.WriteString("An earlier analysis of the document below left these sections empty: ")
	b.WriteString(strings.Join(missing, ", "))
	b.WriteString(".\nReturn a JSON object containing only those keys, filled from the document.\n")
	for _, k := range missing {
		b.WriteString("- ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fieldHints[k])
		b.WriteByte('\n')
	}
	b.WriteString("Use an empty list only when the document truly has nothing for that section.\n\nDocument:\n")
	b.WriteString(source)
	return llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: llm.Temp(0),
		JSON:        true,
	}
}

var fieldHints = map[string]string{
	KeySummary:              "string, a short plain-language summary of the document",
	KeyPersonalInfoIssues:   "list of objects {field, value, issue}",
	KeyAccountIssues:        "list of objects {creditor, account_number, issue, recommendation}",
	KeyCollectionAccounts:   "list of objects {collector, original_creditor, amount, status, issue}",
	KeyInquiries:            "list of objects {creditor, date, type (hard|soft), issue}",
	KeyFCRAViolations:       "list of objects {statute, description, evidence}",
	KeyOverallAssessment:    "object {total_accounts, total_collections, total_hard_inquiries, total_soft_inquiries, total_violations_found, overall_risk_level, priority_actions}",
	KeyDisputeLettersNeeded: "list of objects {recipient, reason, items}",
}

func schemaDescription() string {
	var b strings.Builder
	for _, k := range RequiredKeys {
		fmt.Fprintf(&b, "- %s: %s\n", k, fieldHints[k])
	}
	return b.String()
}
