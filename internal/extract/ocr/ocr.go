// Package ocr reads text out of scanned pages with a multimodal Gemini model.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/sync/errgroup"

	"creditdocs-backend/internal/shared/telemetry"
	"creditdocs-backend/internal/shared/util"
)

const mimePDF = "application/pdf"

const systemPrompt = `You transcribe scanned financial and legal documents.
Return the complete text of the page as Markdown. Keep tables as Markdown tables.
Do not summarize, translate, or add commentary.`

const userPrompt = "Transcribe this page."

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// ErrRefused is returned when the model declines to transcribe a page.
var ErrRefused = errors.New("model refused to transcribe")

// transcribeFunc sends one page to the model and returns its markdown.
type transcribeFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

// Vertex is an extract.Recognizer backed by Gemini on Vertex AI.
type Vertex struct {
	transcribe  transcribeFunc
	split       func(data []byte) ([][]byte, error)
	concurrency int
}

// NewVertex uses client with the named model. concurrency bounds in-flight pages.
func NewVertex(client *genai.Client, modelName string, concurrency int) (*Vertex, error) {
	if client == nil {
		return nil, fmt.Errorf("ocr: genai client is required")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("OCR_MODEL is required")
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0)}

	return newVertex(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data}, genai.Text(userPrompt))
		if err != nil {
			return "", fmt.Errorf("failed to generate content from gemini: %w", err)
		}
		return responseText(resp), nil
	}, concurrency), nil
}

func newVertex(fn transcribeFunc, concurrency int) *Vertex {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Vertex{transcribe: fn, split: SplitPDF, concurrency: concurrency}
}

// Recognize returns plain text. PDFs are split into single pages and
// transcribed concurrently; pages that fail are skipped unless all fail.
func (v *Vertex) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType != mimePDF {
		md, err := v.page(ctx, data, mimeType)
		if err != nil {
			return "", err
		}
		return util.MarkdownToText([]byte(md)), nil
	}

	pages, err := v.split(data)
	if err != nil || len(pages) == 0 {
		telemetry.Warn("ocr.split_failed", map[string]any{"error": fmt.Sprint(err)})
		pages = [][]byte{data}
	}

	results := make([]string, len(pages))
	pageErrs := make([]error, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(v.concurrency)
	for i, page := range pages {
		eg.Go(func() error {
			md, err := v.page(gctx, page, mimePDF)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				pageErrs[i] = fmt.Errorf("page %d: %w", i+1, err)
				return nil
			}
			results[i] = md
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	var failed []error
	for i, md := range results {
		if pageErrs[i] != nil {
			failed = append(failed, pageErrs[i])
			continue
		}
		if text := util.MarkdownToText([]byte(md)); text != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(text)
		}
	}
	if len(failed) == len(pages) {
		return "", errors.Join(failed...)
	}
	if len(failed) > 0 {
		telemetry.Warn("ocr.pages_failed", map[string]any{"failed": len(failed), "pages": len(pages), "error": errors.Join(failed...).Error()})
	}
	return b.String(), nil
}

func (v *Vertex) page(ctx context.Context, data []byte, mimeType string) (string, error) {
	md, err := v.transcribe(ctx, data, mimeType)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(md)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "", ErrRefused
		}
	}
	return stripFence(md), nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```md")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
