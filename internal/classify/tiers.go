package classify

import (
	"context"
	"fmt"
	"strings"

	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/shared/similarity"
	"creditdocs-backend/internal/shared/util"
)

func (c *Classifier) neighbor(ctx context.Context, text string) (Result, error) {
	query, err := c.embedder.Embed(ctx, util.TruncateRunes(text, c.cfg.MaxPromptRunes))
	if err != nil {
		return Result{}, fmt.Errorf("embed document: %w", err)
	}
	exemplars, err := c.store.Sample(ctx, c.cfg.SampleSize)
	if err != nil {
		return Result{}, fmt.Errorf("sample exemplars: %w", err)
	}

	var labels []Label
	var scores []similarity.Scored
	for _, ex := range exemplars {
		if len(ex.Embedding) == 0 {
			continue
		}
		score, ok := similarity.Cosine(query, ex.Embedding)
		if !ok {
			continue
		}
		label, known := ParseLabel(string(ex.Label))
		if !known || label == LabelUnknown {
			continue
		}
		scores = append(scores, similarity.Scored{Index: len(labels), Score: score})
		labels = append(labels, label)
	}
	if len(scores) == 0 {
		return Result{}, fmt.Errorf("%w: no comparable exemplars", fallback.ErrInsufficient)
	}

	top := similarity.TopK(scores, c.cfg.K)
	neighbors := make([]Neighbor, 0, len(top))
	for _, s := range top {
		neighbors = append(neighbors, Neighbor{Label: labels[s.Index], Score: s.Score})
	}
	if best := neighbors[0]; best.Score >= c.cfg.Threshold {
		conf := best.Score
		return Result{Label: best.Label, Tier: TierNeighbor, Confidence: &conf}, nil
	}
	label, conf, ok := vote(neighbors)
	if !ok {
		return Result{}, fmt.Errorf("%w: no positive neighbor similarity", fallback.ErrInsufficient)
	}
	return Result{Label: label, Tier: TierNeighbor, Confidence: &conf}, nil
}

// Neighbor is one ranked exemplar.
type Neighbor struct {
	Label Label
	Score float64
}

// vote weights each label by the sum of its non-negative similarities over
// neighbors, which must be ranked best first. Ties go to the label that
// appears earliest in the ranking. Confidence is the winner's share of the
// total weight.
func vote(neighbors []Neighbor) (Label, float64, bool) {
	weights := map[Label]float64{}
	var order []Label
	var total float64
	for _, n := range neighbors {
		if _, seen := weights[n.Label]; !seen {
			order = append(order, n.Label)
			weights[n.Label] = 0
		}
		if n.Score > 0 {
			weights[n.Label] += n.Score
			total += n.Score
		}
	}
	if total <= 0 {
		return "", 0, false
	}
	best := order[0]
	for _, l := range order[1:] {
		if weights[l] > weights[best] {
			best = l
		}
	}
	return best, weights[best] / total, true
}

const inferencePrompt = `You classify consumer credit documents.
Reply with exactly one label from this list and nothing else:
credit-report: a consumer credit report or credit file disclosure from a bureau
debt-letter: a letter from a debt collector or creditor about a debt
cfpb-complaint: a complaint filed with the Consumer Financial Protection Bureau
other: anything else`

func (c *Classifier) inference(ctx context.Context, text string) (Result, error) {
	completion, err := c.gateway.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: inferencePrompt},
			{Role: llm.RoleUser, Content: "Document:\n" + util.TruncateRunes(text, c.cfg.MaxPromptRunes)},
		},
		Temperature: llm.Temp(0),
		MaxTokens:   16,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Label: parseInferenceLabel(completion.Content), Tier: TierInference}, nil
}

// parseInferenceLabel finds the first known label mentioned in a free-form
// reply, defaulting to other.
func parseInferenceLabel(reply string) Label {
	norm := normalizeToken(reply)
	for _, l := range Labels {
		if strings.Contains(norm, string(l)) {
			return l
		}
	}
	return LabelOther
}
