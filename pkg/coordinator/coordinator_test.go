package coordinator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioagentlabs/bioagent/pkg/agent"
	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// cannedProvider answers every Generate call from a function.
type cannedProvider struct {
	mu sync.Mutex
	fn func(req llms.Request) *llms.Response
}

func (p *cannedProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fn(req), nil
}

func (p *cannedProvider) ModelName() string { return "canned" }

func endTurn(text string) *llms.Response {
	return &llms.Response{
		Message:    llms.TextMessage(llms.RoleAssistant, text),
		StopReason: llms.StopEndTurn,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Model:               "test",
		CoordinatorModel:    "test-small",
		SpecialistModel:     "test",
		QCModel:             "", // review off unless a test enables it
		MaxRounds:           5,
		MaxTokens:           1024,
		MultiAgent:          true,
		ParallelSpecialists: true,
		MaxSpecialists:      3,
		RouterConfidence:    0.6,
	}
}

func TestRouteByKeywordsUnambiguous(t *testing.T) {
	r := NewRouter(nil, "", 0.6, 3)

	routing, err := r.Route(context.Background(), "find papers about BRCA1 in pubmed")
	require.NoError(t, err)

	assert.Equal(t, agent.SpecialistLiterature, routing.Specialists[0])
	assert.False(t, routing.ViaLLM)
	assert.GreaterOrEqual(t, routing.Confidence, 0.6)
}

func TestRouteFallsBackToGeneral(t *testing.T) {
	// No provider and no keyword hits: general specialist.
	r := NewRouter(nil, "", 0.6, 3)

	routing, err := r.Route(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, []string{agent.SpecialistGeneral}, routing.Specialists)
}

func TestRouteByLLMWhenAmbiguous(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		return endTurn(`{"specialists": ["stats", "literature"], "reason": "needs both"}`)
	}}
	r := NewRouter(provider, "test-small", 0.6, 3)

	// "analyze" hits nothing; the LLM decides.
	routing, err := r.Route(context.Background(), "help me make sense of these results")
	require.NoError(t, err)

	assert.True(t, routing.ViaLLM)
	assert.Equal(t, []string{"stats", "literature"}, routing.Specialists)
}

func TestRouteLLMGarbageFallsBack(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		return endTurn("I think you should ask a statistician.")
	}}
	r := NewRouter(provider, "test-small", 0.6, 3)

	routing, err := r.Route(context.Background(), "help me understand this")
	require.NoError(t, err)
	assert.Equal(t, []string{agent.SpecialistGeneral}, routing.Specialists)
}

func TestHandleSingleAgentWhenMultiAgentOff(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		return endTurn("single agent answer")
	}}

	cfg := testConfig()
	cfg.MultiAgent = false

	c := New(cfg, provider, tools.NewRegistry(), nil)
	answer, err := c.Handle(context.Background(), "anything", nil)
	require.NoError(t, err)

	assert.Equal(t, "single agent answer", answer.Text)
	assert.Equal(t, []string{agent.SpecialistGeneral}, answer.Specialists)
}

func TestHandleFanOutAndSynthesis(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		switch {
		case strings.Contains(req.System, "route bioinformatics queries"):
			return endTurn(`{"specialists": ["stats", "literature"], "reason": "needs both"}`)
		case strings.Contains(req.System, "biostatistician"):
			return endTurn("The differential expression analysis shows 42 significant genes.")
		case strings.Contains(req.System, "literature curator"):
			return endTurn("Recent papers support this expression signature [1].")
		default:
			return endTurn("generic")
		}
	}}

	c := New(testConfig(), provider, tools.NewRegistry(), nil)

	// Stats and literature keywords tie, so the LLM splits the query.
	answer, err := c.Handle(context.Background(),
		"run differential expression with deseq and find papers supporting the result", nil)
	require.NoError(t, err)

	// Primary text first, supplement labeled.
	assert.True(t, strings.HasPrefix(answer.Text, "The differential expression analysis"))
	assert.Contains(t, answer.Text, "Additional context")
	assert.Contains(t, answer.Text, "Recent papers support")
	assert.Len(t, answer.Specialists, 2)
}

func TestSynthesizeDedupsNearIdenticalParagraphs(t *testing.T) {
	shared := "Both specialists agree that TP53 is the most frequently mutated gene in human cancers and a central tumor suppressor."

	outputs := []specialistOutput{
		{id: agent.SpecialistStats, result: &agent.Result{Text: shared + "\n\nStats detail paragraph."}},
		{id: agent.SpecialistLiterature, result: &agent.Result{Text: shared + "\n\nLiterature detail paragraph."}},
	}

	c := New(testConfig(), nil, tools.NewRegistry(), nil)
	answer := c.synthesize(outputs)

	assert.Equal(t, 1, strings.Count(answer.Text, "most frequently mutated"))
	assert.Contains(t, answer.Text, "Stats detail paragraph.")
	assert.Contains(t, answer.Text, "Literature detail paragraph.")
}

func TestQCReviewAppendsNotes(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		if strings.Contains(req.System, "Review this draft") {
			return endTurn("- the p-value threshold is not stated")
		}
		return endTurn("The stats analysis shows a differential expression signal.")
	}}

	cfg := testConfig()
	cfg.QCModel = "test-small"

	c := New(cfg, provider, tools.NewRegistry(), nil)
	answer, err := c.Handle(context.Background(), "differential expression with deseq please", nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "## Reviewer notes")
	assert.Contains(t, answer.Text, "p-value threshold")
}

func TestQCReviewOKAddsNothing(t *testing.T) {
	provider := &cannedProvider{fn: func(req llms.Request) *llms.Response {
		if strings.Contains(req.System, "Review this draft") {
			return endTurn("OK")
		}
		return endTurn("A clean stats answer about deseq normalization.")
	}}

	cfg := testConfig()
	cfg.QCModel = "test-small"

	c := New(cfg, provider, tools.NewRegistry(), nil)
	answer, err := c.Handle(context.Background(), "deseq normalization question", nil)
	require.NoError(t, err)
	assert.NotContains(t, answer.Text, "Reviewer notes")
}
