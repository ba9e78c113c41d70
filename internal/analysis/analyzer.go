package analysis

import (
	"context"
	"strings"

	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/shared/telemetry"
	"creditdocs-backend/internal/shared/util"
)

const systemPrompt = `You are a consumer credit analyst who reviews credit reports, debt collection letters and CFPB complaints for errors and consumer-protection violations (FCRA, FDCPA).
Respond with one JSON object only. No markdown, no commentary.`

// Options tunes one Analyze call.
type Options struct {
	// Knowledge is optional reference text added to the prompt.
	Knowledge string
}

// Analyzer requests a structured analysis and normalizes the result.
type Analyzer struct {
	gateway      llm.Completer
	normalizer   *Normalizer
	maxTextRunes int
}

// NewAnalyzer builds an Analyzer. maxTextRunes caps the document text sent.
func NewAnalyzer(gateway llm.Completer, normalizer *Normalizer, maxTextRunes int) *Analyzer {
	if normalizer == nil {
		normalizer = NewNormalizer(gateway)
	}
	if maxTextRunes <= 0 {
		maxTextRunes = 60000
	}
	return &Analyzer{gateway: gateway, normalizer: normalizer, maxTextRunes: maxTextRunes}
}

// Analyze always returns a complete Record unless ctx is cancelled. When no
// provider can serve the request the record is degraded and carries
// _provider_error; no repair round is attempted in that case.
func (a *Analyzer) Analyze(ctx context.Context, text string, label classify.Label, opts Options) (Record, error) {
	text = util.TruncateRunes(text, a.maxTextRunes)
	completion, err := a.gateway.Complete(ctx, analysisRequest(text, label, opts))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		telemetry.Error("analysis.provider_failed", map[string]any{
			"label": string(label),
			"error": err.Error(),
		})
		return Degraded(err), nil
	}
	return a.normalizer.Normalize(ctx, completion, text)
}

func analysisRequest(text string, label classify.Label, opts Options) llm.Request {
	var b strings.Builder
	b.WriteString(labelInstructions(label))
	b.WriteString("\n\nReturn a JSON object with exactly these keys:\n")
	b.WriteString(schemaDescription())
	if k := strings.TrimSpace(opts.Knowledge); k != "" {
		b.WriteString("\nReference material (cite it where it applies):\n")
		b.WriteString(k)
		b.WriteByte('\n')
	}
	b.WriteString("\nDocument:\n")
	b.WriteString(text)
	return llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: llm.Temp(0.2),
		JSON:        true,
	}
}

func labelInstructions(label classify.Label) string {
	switch label {
	case classify.LabelCreditReport:
		return "Analyze this credit report. Check personal information for errors, review every tradeline for inaccurate balances, dates or statuses, list collection accounts and inquiries, and identify FCRA violations such as obsolete items or unverifiable accounts. Recommend dispute letters for each item worth disputing."
	case classify.LabelDebtLetter:
		return "Analyze this debt collection letter. Identify the collector, original creditor and amount claimed, check whether the validation notice requirements are met, and flag FDCPA or FCRA violations such as missing disclosures or time-barred debt. Recommend debt validation or dispute letters where appropriate. Sections that do not apply to a letter may be empty lists."
	case classify.LabelCFPBComplaint:
		return "Analyze this CFPB consumer complaint. Summarize the consumer's allegations and the company response, extract the accounts, collections and inquiries it mentions, and identify the FCRA or FDCPA provisions involved. Recommend follow-up dispute letters where the complaint remains unresolved."
	default:
		return "Analyze this consumer finance document. Extract any personal information issues, accounts, collection accounts, inquiries and consumer-protection violations it contains, and recommend dispute letters where warranted."
	}
}
