// Package evaluate scores gateway answers against reference answers with an
// LLM acting as the judge.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"creditdocs-backend/internal/analysis"
	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/shared/telemetry"
)

const (
	answerSystemPrompt = "Answer the following question accurately"

	judgeSystemPrompt = `You are an expert data labeler evaluating model outputs for correctness.
Grade the OUTPUT against the REFERENCE answer for the given INPUT.
A correct output is factually accurate and consistent with the reference. Extra
detail is fine when it is accurate; any contradiction or factual error makes the
output incorrect.
Respond with a JSON object only: {"correct": true|false, "comment": "one or two sentences explaining the grade"}`

	// DefaultConcurrency is the number of examples evaluated at once.
	DefaultConcurrency = 2
)

// ErrJudgeResponse marks a judge reply that could not be read as a grade.
var ErrJudgeResponse = errors.New("unreadable judge response")

// Result is the outcome for one example.
type Result struct {
	Example Example `json:"example"`
	Output  string  `json:"output"`
	Correct bool    `json:"correct"`
	Comment string  `json:"comment"`
	Model   string  `json:"model,omitempty"`
	Judge   string  `json:"judge,omitempty"`
	Error   string  `json:"error,omitempty"`
	Latency int64   `json:"latencyMs"`
}

// Summary aggregates a run.
type Summary struct {
	Dataset string   `json:"dataset"`
	Total   int      `json:"total"`
	Correct int      `json:"correct"`
	Errored int      `json:"errored"`
	Score   float64  `json:"score"`
	Results []Result `json:"results"`
}

// Evaluator answers questions with one completer and grades them with another.
type Evaluator struct {
	target      llm.Completer
	judge       llm.Completer
	concurrency int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithJudge grades with a different completer than the one being evaluated.
func WithJudge(judge llm.Completer) Option {
	return func(e *Evaluator) { e.judge = judge }
}

// WithConcurrency bounds how many examples run at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New builds an Evaluator. The target also judges unless WithJudge is set.
func New(target llm.Completer, opts ...Option) *Evaluator {
	e := &Evaluator{target: target, judge: target, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every example. Per-example failures are recorded in the
// result and count as incorrect; only ctx cancellation aborts the run.
func (e *Evaluator) Run(ctx context.Context, ds Dataset) (Summary, error) {
	results := make([]Result, len(ds.Examples))

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, ex := range ds.Examples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluate(ctx, ex)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	sum := Summary{Dataset: ds.Name, Total: len(results), Results: results}
	for _, r := range results {
		if r.Correct {
			sum.Correct++
		}
		if r.Error != "" {
			sum.Errored++
		}
	}
	if sum.Total > 0 {
		sum.Score = float64(sum.Correct) / float64(sum.Total)
	}
	telemetry.Info("evaluate.complete", map[string]any{
		"dataset": ds.Name,
		"total":   sum.Total,
		"correct": sum.Correct,
		"errored": sum.Errored,
		"score":   sum.Score,
	})
	return sum, nil
}

func (e *Evaluator) evaluate(ctx context.Context, ex Example) Result {
	start := time.Now()
	res := Result{Example: ex}

	answer, err := e.target.Complete(ctx, llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: ex.Question},
	}})
	if err != nil {
		res.Error = fmt.Sprintf("answer: %v", err)
		telemetry.Warn("evaluate.answer_failed", map[string]any{"example": ex.ID, "error": err.Error()})
		res.Latency = time.Since(start).Milliseconds()
		return res
	}
	res.Output = strings.TrimSpace(answer.Content)
	res.Model = answer.Label()

	grade, err := e.grade(ctx, ex, res.Output)
	if err != nil {
		res.Error = fmt.Sprintf("judge: %v", err)
		telemetry.Warn("evaluate.judge_failed", map[string]any{"example": ex.ID, "error": err.Error()})
		res.Latency = time.Since(start).Milliseconds()
		return res
	}
	res.Correct = grade.correct
	res.Comment = grade.comment
	res.Judge = grade.judge
	res.Latency = time.Since(start).Milliseconds()
	return res
}

type grade struct {
	correct bool
	comment string
	judge   string
}

func (e *Evaluator) grade(ctx context.Context, ex Example, output string) (grade, error) {
	prompt := fmt.Sprintf("<input>\n%s\n</input>\n\n<output>\n%s\n</output>\n\n<reference>\n%s\n</reference>",
		ex.Question, output, ex.Answer)
	reply, err := e.judge.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: judgeSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		JSON: true,
	})
	if err != nil {
		return grade{}, err
	}
	parsed, err := analysis.Parse(reply.Content)
	if err != nil {
		return grade{}, fmt.Errorf("%w: %w", ErrJudgeResponse, err)
	}
	correct, ok := parsed["correct"].(bool)
	if !ok {
		return grade{}, fmt.Errorf("%w: missing correct flag", ErrJudgeResponse)
	}
	comment, _ := parsed["comment"].(string)
	return grade{correct: correct, comment: strings.TrimSpace(comment), judge: reply.Label()}, nil
}
