// Package thesis enriches scored candidates with an AI-generated investment
// narrative and extracts a verdict from the text.
package thesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sourcegraph/conc/pool"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/models"
	"strategy-engine/pkg/utils"
)

// LLMClient defines the interface for the narrative-generation collaborator.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements LLMClient using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CompleteWithSystem sends a prompt with a system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", enginerrors.NewServiceError("openai", "completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", enginerrors.NewServiceError("openai", "completion", fmt.Errorf("no response"))
	}
	return resp.Choices[0].Message.Content, nil
}

const systemPrompt = `You are an equity analyst writing a concise investment thesis.
End with a verdict line in the form VERDICT: BUY, VERDICT: WATCH, or VERDICT: AVOID.`

// Generator fans thesis generation out over a bounded worker pool with a
// per-call timeout and one retry; a failed thesis degrades the symbol to
// neutral/WATCH instead of aborting the run.
type Generator struct {
	client      LLMClient
	timeout     time.Duration
	concurrency int
}

// NewGenerator creates a thesis generator.
func NewGenerator(client LLMClient, timeout time.Duration, concurrency int) *Generator {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Generator{client: client, timeout: timeout, concurrency: concurrency}
}

// Result is the outcome of one thesis generation.
type Result struct {
	Symbol  string
	Thesis  string
	Verdict models.Verdict
	Err     error
}

// Generate produces a thesis and verdict for one candidate.
func (g *Generator) Generate(ctx context.Context, c models.Candidate, m models.StockMetrics) Result {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(c, m)

	text, err := utils.RetryWithResult(callCtx, utils.SingleRetryConfig(), func() (string, error) {
		return g.client.CompleteWithSystem(callCtx, systemPrompt, prompt)
	})
	if err != nil {
		return Result{
			Symbol:  c.Symbol,
			Verdict: models.VerdictWatch,
			Err:     enginerrors.NewStepError(c.Symbol, "thesis_generation", err),
		}
	}

	return Result{
		Symbol:  c.Symbol,
		Thesis:  text,
		Verdict: ExtractVerdict(text),
	}
}

// GenerateAll runs thesis generation for all candidates over the bounded
// pool. The returned map always has one entry per candidate; the phase is a
// synchronization barrier.
func (g *Generator) GenerateAll(ctx context.Context, candidates []models.Candidate, metrics map[string]models.StockMetrics) map[string]Result {
	results := make(map[string]Result, len(candidates))
	resultChan := make(chan Result, len(candidates))

	p := pool.New().WithMaxGoroutines(g.concurrency)
	for _, c := range candidates {
		c := c
		p.Go(func() {
			select {
			case <-ctx.Done():
				resultChan <- Result{Symbol: c.Symbol, Verdict: models.VerdictWatch, Err: ctx.Err()}
				return
			default:
			}
			resultChan <- g.Generate(ctx, c, metrics[c.Symbol])
		})
	}
	p.Wait()
	close(resultChan)

	for r := range resultChan {
		results[r.Symbol] = r
	}
	return results
}

func buildPrompt(c models.Candidate, m models.StockMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\nPrice: %.2f\nConviction score: %.0f\n", c.Symbol, c.Price, c.Conviction)
	if m.Symbol != "" {
		fmt.Fprintf(&sb, "P/E: %.1f  ROE: %.1f%%  Revenue growth: %.1f%%  Earnings growth: %.1f%%\n",
			m.PERatio, m.ReturnOnEquity*100, m.RevenueGrowth*100, m.EarningsGrowth*100)
		fmt.Fprintf(&sb, "Debt/equity: %.2f  Profit margin: %.1f%%  Sector: %s\n",
			m.DebtToEquity, m.ProfitMargin*100, m.Sector)
	}
	sb.WriteString("Write a short investment thesis for this stock.")
	return sb.String()
}

// verdict markers checked in order; explicit markers beat the keyword scan.
var verdictMarkers = []struct {
	marker  string
	verdict models.Verdict
}{
	{"**BUY**", models.VerdictBuy},
	{"**WATCH**", models.VerdictWatch},
	{"**AVOID**", models.VerdictAvoid},
	{"VERDICT: BUY", models.VerdictBuy},
	{"VERDICT: WATCH", models.VerdictWatch},
	{"VERDICT: AVOID", models.VerdictAvoid},
}

// ExtractVerdict pulls a BUY/WATCH/AVOID verdict out of narrative text by
// marker matching, falling back to a keyword scan of the first 500
// characters. Unrecognizable text maps to WATCH.
func ExtractVerdict(text string) models.Verdict {
	upper := strings.ToUpper(text)

	for _, m := range verdictMarkers {
		if strings.Contains(upper, m.marker) {
			return m.verdict
		}
	}

	head := upper
	if len(head) > 500 {
		head = head[:500]
	}
	best := models.VerdictWatch
	bestIdx := len(head) + 1
	for _, kw := range []struct {
		word    string
		verdict models.Verdict
	}{
		{"BUY", models.VerdictBuy},
		{"AVOID", models.VerdictAvoid},
		{"WATCH", models.VerdictWatch},
	} {
		if idx := strings.Index(head, kw.word); idx >= 0 && idx < bestIdx {
			bestIdx = idx
			best = kw.verdict
		}
	}
	return best
}
