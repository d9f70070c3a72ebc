// Package coordinator orchestrates the multi-agent path: route a query
// to specialists, fan them out, synthesize their answers, and optionally
// run QC review over the result.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bioagentlabs/bioagent/pkg/agent"
	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/logger"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/stream"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// Coordinator drives a turn end to end.
type Coordinator struct {
	cfg      *config.Config
	provider llms.Provider
	registry *tools.Registry
	mem      *memory.Memory
	router   *Router
	log      *slog.Logger
}

// New creates a coordinator.
func New(cfg *config.Config, provider llms.Provider, registry *tools.Registry, mem *memory.Memory) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		mem:      mem,
		router:   NewRouter(provider, cfg.CoordinatorModel, cfg.RouterConfidence, cfg.MaxSpecialists),
		log:      logger.Component("coordinator"),
	}
}

// Answer is the final synthesized result of a turn.
type Answer struct {
	Text      string
	ToolsUsed []string
	Usage     llms.Usage
	Elapsed   time.Duration

	// Specialists that contributed, primary first.
	Specialists []string
}

// Handle runs one user query. With multi-agent disabled this is a plain
// single-agent turn; otherwise the query is routed, fanned out, and
// synthesized. Any orchestration failure falls back to the general
// specialist. The publisher may be nil.
func (c *Coordinator) Handle(ctx context.Context, query string, pub *stream.Publisher) (*Answer, error) {
	start := time.Now()

	if !c.cfg.MultiAgent {
		return c.singleAgent(ctx, query, pub, start)
	}

	answer, err := c.orchestrate(ctx, query, pub, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.log.Warn("orchestration failed, falling back to single agent", "error", err)
		return c.singleAgent(ctx, query, pub, start)
	}
	return answer, nil
}

func (c *Coordinator) singleAgent(ctx context.Context, query string, pub *stream.Publisher, start time.Time) (*Answer, error) {
	def, _ := agent.SpecialistByID(agent.SpecialistGeneral)
	a := agent.New(def, c.provider, c.registry, c.mem, c.cfg)

	result, err := a.Run(ctx, query, pub)
	if err != nil {
		return nil, err
	}
	return &Answer{
		Text:        result.Text,
		ToolsUsed:   result.ToolsUsed,
		Usage:       result.Usage,
		Elapsed:     time.Since(start),
		Specialists: []string{agent.SpecialistGeneral},
	}, nil
}

// specialistOutput pairs a specialist with its run result; order in the
// slice follows routing order.
type specialistOutput struct {
	id     string
	result *agent.Result
}

func (c *Coordinator) orchestrate(ctx context.Context, query string, pub *stream.Publisher, start time.Time) (*Answer, error) {
	routing, err := c.router.Route(ctx, query)
	if err != nil {
		return nil, err
	}

	if pub != nil {
		pub.Publish(stream.Thinking(fmt.Sprintf("Routing to %s: %s",
			strings.Join(routing.Specialists, ", "), routing.Reason)))
	}
	c.log.Info("routed", "specialists", routing.Specialists, "via_llm", routing.ViaLLM, "confidence", routing.Confidence)

	outputs, err := c.fanOut(ctx, query, routing.Specialists, pub)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no specialist produced output")
	}

	answer := c.synthesize(outputs)

	if qcNotes := c.review(ctx, query, answer.Text); qcNotes != "" {
		answer.Text += "\n\n## Reviewer notes\n" + qcNotes
	}

	if pub != nil {
		pub.Publish(stream.TextDelta(answer.Text))
	}

	answer.Elapsed = time.Since(start)
	c.recordTurn(query, answer.Text)
	return answer, nil
}

// fanOut runs the selected specialists, in parallel when configured.
// Each gets a private history and a per-specialist timeout; cancelling
// the outer turn cancels all of them. A specialist failure drops its
// contribution rather than failing the turn, unless every one fails.
func (c *Coordinator) fanOut(ctx context.Context, query string, ids []string, pub *stream.Publisher) ([]specialistOutput, error) {
	outputs := make([]specialistOutput, len(ids))

	var errMu sync.Mutex
	var firstErr error
	noteErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	run := func(ctx context.Context, i int, id string) error {
		def, ok := agent.SpecialistByID(id)
		if !ok {
			return fmt.Errorf("unknown specialist %q", id)
		}

		runCtx := ctx
		if c.cfg.SpecialistTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, c.cfg.SpecialistTimeout)
			defer cancel()
		}

		a := agent.New(def, c.provider, c.registry, c.mem, c.cfg,
			agent.WithModel(c.cfg.SpecialistModel), agent.WithPrivateHistory())
		result, err := a.Run(runCtx, query, pub)
		if err != nil {
			c.log.Warn("specialist failed", "specialist", id, "error", err)
			return err
		}
		outputs[i] = specialistOutput{id: id, result: result}
		return nil
	}

	if c.cfg.ParallelSpecialists && len(ids) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range ids {
			g.Go(func() error {
				if err := run(gctx, i, id); err != nil && gctx.Err() == nil {
					// Remember but do not abort siblings.
					noteErr(err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, id := range ids {
			if err := run(ctx, i, id); err != nil {
				noteErr(err)
			}
		}
	}

	var kept []specialistOutput
	for _, out := range outputs {
		if out.result != nil && strings.TrimSpace(out.result.Text) != "" {
			kept = append(kept, out)
		}
	}
	if len(kept) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return kept, nil
}

// synthesize composes the final answer: the primary specialist's text
// first, then supplements from the others with near-duplicate
// paragraphs removed.
func (c *Coordinator) synthesize(outputs []specialistOutput) *Answer {
	answer := &Answer{}

	var b strings.Builder
	var seen []string

	for i, out := range outputs {
		answer.Specialists = append(answer.Specialists, out.id)
		answer.Usage.InputTokens += out.result.Usage.InputTokens
		answer.Usage.OutputTokens += out.result.Usage.OutputTokens
		for _, tool := range out.result.ToolsUsed {
			answer.ToolsUsed = appendUnique(answer.ToolsUsed, tool)
		}

		fresh := dedupParagraphs(out.result.Text, seen)
		if fresh == "" {
			continue
		}
		seen = append(seen, strings.Split(fresh, "\n\n")...)

		if i == 0 {
			b.WriteString(fresh)
			continue
		}
		if def, ok := agent.SpecialistByID(out.id); ok {
			fmt.Fprintf(&b, "\n\n## Additional context (%s)\n%s", def.Name, fresh)
		} else {
			b.WriteString("\n\n" + fresh)
		}
	}

	answer.Text = strings.TrimSpace(b.String())
	return answer
}

// dedupParagraphs drops paragraphs near-identical to ones already seen.
func dedupParagraphs(text string, seen []string) string {
	var kept []string
	for _, para := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		dup := false
		for _, prev := range seen {
			if nearIdentical(trimmed, prev) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, trimmed)
			seen = append(seen, trimmed)
		}
	}
	return strings.Join(kept, "\n\n")
}

// nearIdentical compares paragraphs after normalization; short
// paragraphs must match exactly, longer ones by prefix.
func nearIdentical(a, b string) bool {
	na := normalizePara(a)
	nb := normalizePara(b)
	if na == nb {
		return true
	}
	const prefix = 80
	return len(na) >= prefix && len(nb) >= prefix && na[:prefix] == nb[:prefix]
}

func normalizePara(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

const qcPrompt = `Review this draft answer to a bioinformatics query. Checklist:
statistical validity, missing QC steps, overstated conclusions, missing
caveats, identifiers that look wrong. Reply "OK" if the draft is sound,
otherwise list the concrete problems, one per line. Never rewrite the draft.`

// review runs the QC model over the synthesized answer. An empty return
// means no notes (review disabled, model said OK, or review failed).
func (c *Coordinator) review(ctx context.Context, query, draft string) string {
	if c.cfg.QCModel == "" {
		return ""
	}

	resp, err := c.provider.Generate(ctx, llms.Request{
		Model:  c.cfg.QCModel,
		System: qcPrompt,
		Messages: []llms.Message{
			llms.TextMessage(llms.RoleUser, fmt.Sprintf("Query:\n%s\n\nDraft answer:\n%s", query, draft)),
		},
		MaxTokens: 1024,
	})
	if err != nil {
		c.log.Warn("qc review failed", "error", err)
		return ""
	}

	notes := strings.TrimSpace(resp.Message.Text())
	if notes == "" || strings.EqualFold(notes, "ok") || strings.HasPrefix(strings.ToLower(notes), "ok\n") {
		return ""
	}
	return notes
}

// recordTurn writes the multi-agent exchange to the shared transcript,
// which specialist runs deliberately bypassed.
func (c *Coordinator) recordTurn(query, answer string) {
	if c.mem == nil {
		return
	}
	c.mem.Transcript.Append(llms.TextMessage(llms.RoleUser, query))
	c.mem.Transcript.Append(llms.TextMessage(llms.RoleAssistant, answer))
	c.mem.EndRound(context.Background())
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
