package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creditdocs-backend/internal/embedding"
	"creditdocs-backend/internal/extract"
	"creditdocs-backend/internal/shared/util"
)

// ErrNoExemplarStore is returned by AddExemplar when the classifier has no
// store to write to.
var ErrNoExemplarStore = errors.New("no exemplar store configured")

// AddExemplar embeds text the same way the neighbor tier embeds queries and
// stores it under label. Without an embedder the exemplar is stored without a
// vector and only becomes useful once it is re-seeded.
func (c *Classifier) AddExemplar(ctx context.Context, label Label, text string) (Exemplar, error) {
	if c.store == nil {
		return Exemplar{}, ErrNoExemplarStore
	}
	parsed, ok := ParseLabel(string(label))
	if !ok || parsed == LabelUnknown {
		return Exemplar{}, fmt.Errorf("invalid exemplar label %q", label)
	}
	text = strings.TrimSpace(text)
	if text == "" || extract.IsPlaceholder(text) {
		return Exemplar{}, errors.New("exemplar text is empty")
	}

	ex := Exemplar{Label: parsed, Text: util.TruncateRunes(text, c.cfg.MaxPromptRunes)}
	if c.embedder != nil {
		vec, err := c.embedder.Embed(ctx, ex.Text)
		if err != nil && !errors.Is(err, embedding.ErrUnavailable) {
			return Exemplar{}, fmt.Errorf("embed exemplar: %w", err)
		}
		ex.Embedding = vec
	}
	ex = withDefaults(ex)
	if err := c.store.Add(ctx, ex); err != nil {
		return Exemplar{}, fmt.Errorf("store exemplar: %w", err)
	}
	return ex, nil
}
