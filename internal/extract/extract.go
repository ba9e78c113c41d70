package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/telemetry"
	"creditdocs-backend/internal/shared/util"
)

// ErrExtractionFailure is recorded on a Result when every tier came up short.
var ErrExtractionFailure = errors.New("extraction failure")

// Tier names the strategy that produced the text.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierOCR       Tier = "ocr"
	TierNone      Tier = "none"
)

// DefaultMinChars is the shortest text a tier may return and still count.
const DefaultMinChars = 100

// Document is one input file.
type Document struct {
	Bytes    []byte
	FileName string
	MimeType string
}

// PageArtifact is the primary tier's text for one page.
type PageArtifact struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Result is the outcome of one extraction run.
type Result struct {
	Text     string             `json:"text"`
	Pages    []PageArtifact     `json:"pages,omitempty"`
	Tier     Tier               `json:"tier"`
	NeedsOCR bool               `json:"needs_ocr"`
	Attempts []fallback.Attempt `json:"-"`
	// Failure wraps ErrExtractionFailure when Tier is TierNone.
	Failure error `json:"-"`
}

// Recognizer reads text out of an image or a scanned document.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Chain escalates from cheap local parsers to image recognition.
type Chain struct {
	minChars   int
	ocr        Recognizer
	ocrTimeout time.Duration

	pdfPages      func([]byte) ([]PageArtifact, error)
	pdfPlain      func([]byte) (string, error)
	docxPrimary   func([]byte) (string, error)
	docxSecondary func([]byte) (string, error)
}

// Option configures a Chain.
type Option func(*Chain)

// WithRecognizer enables the image recognition tier.
func WithRecognizer(r Recognizer, timeout time.Duration) Option {
	return func(c *Chain) {
		c.ocr = r
		c.ocrTimeout = timeout
	}
}

// NewChain builds a chain. minChars <= 0 uses DefaultMinChars.
func NewChain(minChars int, opts ...Option) *Chain {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	c := &Chain{
		minChars:      minChars,
		pdfPages:      pdfPageTexts,
		pdfPlain:      pdfPlainText,
		docxPrimary:   docxLibraryText,
		docxSecondary: docxXMLText,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract always returns some text. The only error is ctx cancellation, in
// which case the attempts made so far are still returned.
func (c *Chain) Extract(ctx context.Context, doc Document) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Tier: TierNone}, err
	}

	kind := detectKind(doc.MimeType, doc.FileName, doc.Bytes)
	var pages []PageArtifact
	tiers := c.tiersFor(kind, doc, &pages)

	outcome, err := fallback.First(ctx, tiers, fallback.WithObserver(func(a fallback.Attempt) {
		fields := map[string]any{
			"file_name":   doc.FileName,
			"kind":        string(kind),
			"tier":        a.Tier,
			"succeeded":   a.Succeeded(),
			"duration_ms": a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			fields["error"] = a.Err.Error()
		}
		telemetry.Debug("extract.tier", fields)
	}))

	res := Result{Pages: pages, Attempts: outcome.Attempts}
	if err == nil {
		res.Text = outcome.Value
		res.Tier = Tier(outcome.Tier)
		metrics.IncExtractionTier(outcome.Tier)
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Tier = TierNone
		return res, ctxErr
	}

	res.Tier = TierNone
	res.NeedsOCR = true
	res.Text = Placeholder(doc.FileName)
	res.Failure = fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	metrics.IncExtractionTier(string(TierNone))
	telemetry.Warn("extract.failed", map[string]any{
		"file_name": doc.FileName,
		"kind":      string(kind),
		"error":     err.Error(),
	})
	return res, nil
}

func (c *Chain) tiersFor(kind docKind, doc Document, pages *[]PageArtifact) []fallback.Tier[string] {
	var tiers []fallback.Tier[string]
	switch kind {
	case kindPDF:
		tiers = append(tiers,
			fallback.Tier[string]{Name: string(TierPrimary), Run: func(ctx context.Context) (string, error) {
				found, err := c.pdfPages(doc.Bytes)
				if err != nil {
					return "", err
				}
				*pages = found
				return c.sufficient(joinPages(found))
			}},
			fallback.Tier[string]{Name: string(TierSecondary), Run: func(ctx context.Context) (string, error) {
				text, err := c.pdfPlain(doc.Bytes)
				if err != nil {
					return "", err
				}
				return c.sufficient(text)
			}},
		)
		tiers = append(tiers, c.ocrTier(doc.Bytes, mimePDF))
	case kindDOCX:
		// No OCR tier: the recognizer reads PDF pages or images and a DOCX
		// has no rendered page to send.
		tiers = append(tiers,
			fallback.Tier[string]{Name: string(TierPrimary), Run: func(ctx context.Context) (string, error) {
				text, err := c.docxPrimary(doc.Bytes)
				if err != nil {
					return "", err
				}
				return c.sufficient(text)
			}},
			fallback.Tier[string]{Name: string(TierSecondary), Run: func(ctx context.Context) (string, error) {
				text, err := c.docxSecondary(doc.Bytes)
				if err != nil {
					return "", err
				}
				return c.sufficient(text)
			}},
		)
	case kindImage:
		tiers = append(tiers, c.ocrTier(doc.Bytes, detectImageMime(doc.MimeType, doc.Bytes)))
	case kindMarkdown, kindText:
		tiers = append(tiers, fallback.Tier[string]{Name: string(TierPrimary), Run: func(ctx context.Context) (string, error) {
			if !utf8.Valid(doc.Bytes) {
				return "", fmt.Errorf("%w: not valid utf-8", fallback.ErrInsufficient)
			}
			text := string(doc.Bytes)
			if kind == kindMarkdown {
				text = util.MarkdownToText(doc.Bytes)
			}
			return c.sufficient(text)
		}})
	}
	return tiers
}

// ocrTier returns a tier with a nil Run when recognition is disabled, which
// fallback.First skips.
func (c *Chain) ocrTier(data []byte, mimeType string) fallback.Tier[string] {
	tier := fallback.Tier[string]{Name: string(TierOCR), Timeout: c.ocrTimeout}
	if c.ocr == nil {
		return tier
	}
	tier.Run = func(ctx context.Context) (string, error) {
		text, err := c.ocr.Recognize(ctx, data, mimeType)
		if err != nil {
			return "", err
		}
		return c.sufficient(text)
	}
	return tier
}

func (c *Chain) sufficient(text string) (string, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < c.minChars {
		return "", fmt.Errorf("%w: %d chars, need %d", fallback.ErrInsufficient, n, c.minChars)
	}
	return text, nil
}

const placeholderPrefix = "[No extractable text"

// Placeholder is the text returned when every tier came up short.
func Placeholder(fileName string) string {
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("%s was found in %s. The file may be a scanned image or empty and needs OCR before it can be analyzed.]", placeholderPrefix, name)
}

// IsPlaceholder reports whether text came from Placeholder.
func IsPlaceholder(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), placeholderPrefix)
}

func joinPages(pages []PageArtifact) string {
	var buf bytes.Buffer
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p.Text)
	}
	return buf.String()
}
