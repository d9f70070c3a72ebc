// Package agent implements the single-agent tool-use loop and the
// specialist roster it runs under.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/logger"
	"github.com/bioagentlabs/bioagent/pkg/memory"
	"github.com/bioagentlabs/bioagent/pkg/stream"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// Stop reasons for a finished run.
const (
	StoppedEndTurn   = "end_turn"
	StoppedMaxRounds = "max_rounds"
)

// maxRoundsNote is the answer suffix when the loop runs out of rounds
// mid-task, and the whole answer when no round ever ran.
const maxRoundsNote = "[Stopped: reached the maximum number of tool rounds before completing the task.]"

// Result is the outcome of one agent run.
type Result struct {
	Text      string
	ToolsUsed []string
	Rounds    int
	Stopped   string
	Usage     llms.Usage
	Elapsed   time.Duration
}

// Agent runs the bounded tool-use loop for one specialist.
type Agent struct {
	def      Specialist
	provider llms.Provider
	registry *tools.Registry
	mem      *memory.Memory
	cfg      *config.Config
	model    string
	log      *slog.Logger

	// shareTranscript controls whether the run reads and appends the
	// session transcript. Coordinator fan-out runs privately.
	shareTranscript bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithModel overrides the model for this agent.
func WithModel(model string) Option {
	return func(a *Agent) {
		if model != "" {
			a.model = model
		}
	}
}

// WithPrivateHistory detaches the run from the session transcript:
// the loop starts from only the incoming message and writes nothing
// back. Used for specialist fan-out and QC review.
func WithPrivateHistory() Option {
	return func(a *Agent) { a.shareTranscript = false }
}

// New creates an agent for a specialist definition.
func New(def Specialist, provider llms.Provider, registry *tools.Registry, mem *memory.Memory, cfg *config.Config, opts ...Option) *Agent {
	a := &Agent{
		def:             def,
		provider:        provider,
		registry:        registry,
		mem:             mem,
		cfg:             cfg,
		model:           cfg.Model,
		log:             logger.Component("agent." + def.ID),
		shareTranscript: true,
	}
	if def.Tools != nil {
		registry.SetAllowlist(def.ID, def.Tools)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the loop for one user message. The publisher may be nil.
// A zero round budget returns immediately without calling the model.
func (a *Agent) Run(ctx context.Context, userMessage string, pub *stream.Publisher) (*Result, error) {
	start := time.Now()

	if a.cfg.MaxRounds == 0 {
		return &Result{Text: maxRoundsNote, Stopped: StoppedMaxRounds, Elapsed: time.Since(start)}, nil
	}

	system := a.def.Prompt
	if a.mem != nil {
		if addendum := a.mem.EnhancedContext(ctx, userMessage); addendum != "" {
			system += "\n\n# Session context\n" + addendum
		}
	}

	var messages []llms.Message
	if a.shareTranscript && a.mem != nil {
		messages = a.mem.Transcript.Messages()
	}
	userMsg := llms.TextMessage(llms.RoleUser, userMessage)
	messages = append(messages, userMsg)

	defs := a.registry.Definitions(a.def.ID)
	result := &Result{}

	for round := 1; round <= a.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := a.provider.Generate(ctx, llms.Request{
			Model:       a.model,
			System:      system,
			Messages:    messages,
			Tools:       defs,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed in round %d: %w", round, err)
		}

		result.Rounds = round
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		messages = append(messages, resp.Message)

		calls := resp.Message.ToolCalls()
		if resp.StopReason != llms.StopToolUse || len(calls) == 0 {
			text := resp.Message.Text()
			if text == "" && len(calls) == 0 {
				// Neither tool calls nor text: give up via the
				// max-rounds path rather than return nothing.
				break
			}
			if pub != nil && text != "" {
				pub.Publish(stream.TextDelta(text))
			}
			result.Text = text
			result.Stopped = StoppedEndTurn
			break
		}

		// Text accompanying tool calls is reasoning, not answer.
		if thinking := resp.Message.Text(); thinking != "" && pub != nil {
			pub.Publish(stream.Thinking(thinking))
		}

		results := a.dispatchCalls(ctx, calls, pub)
		blocks := make([]llms.ContentBlock, len(results))
		for i, r := range results {
			blocks[i] = r.Block()
			if !r.IsError && a.mem != nil {
				a.mem.ObserveToolOutput(r.Tool, r.Content)
			}
			result.ToolsUsed = appendUnique(result.ToolsUsed, r.Tool)
		}
		messages = append(messages, llms.Message{Role: llms.RoleUser, Content: blocks})

		if a.mem != nil && a.shareTranscript {
			a.mem.EndRound(ctx)
		}
	}

	if result.Stopped == "" {
		result.Stopped = StoppedMaxRounds
		if result.Text == "" {
			result.Text = maxRoundsNote
		} else {
			result.Text += "\n\n" + maxRoundsNote
		}
		a.log.Warn("round budget exhausted", "rounds", result.Rounds)
	}

	if a.shareTranscript && a.mem != nil {
		a.mem.Transcript.Append(userMsg)
		a.mem.Transcript.Append(llms.TextMessage(llms.RoleAssistant, result.Text))
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// dispatchCalls executes one round's tool calls and returns results in
// call order. Duplicate invocation ids and disallowed tools resolve to
// error results without reaching a handler.
func (a *Agent) dispatchCalls(ctx context.Context, calls []llms.ContentBlock, pub *stream.Publisher) []tools.Result {
	defs := a.registry.Definitions(a.def.ID)
	allowed := make(map[string]bool, len(defs))
	for _, d := range defs {
		allowed[d.Name] = true
	}

	results := make([]tools.Result, len(calls))
	seen := make(map[string]bool, len(calls))

	type pending struct {
		idx int
		inv tools.Invocation
	}
	var runnable []pending

	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = uuid.NewString()
		}
		inv := tools.Invocation{ID: id, Name: call.Name, Args: call.Input}

		switch {
		case seen[id]:
			results[i] = errorInvocation(inv, tools.CodeInvalidArgument,
				fmt.Sprintf("duplicate tool invocation id %q", id))
		case !allowed[call.Name]:
			results[i] = errorInvocation(inv, tools.CodeUnknownTool,
				fmt.Sprintf("tool %q is not available to this agent", call.Name))
		default:
			runnable = append(runnable, pending{idx: i, inv: inv})
		}
		seen[id] = true
	}

	if a.cfg.ParallelTools && len(runnable) > 1 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range runnable {
			g.Go(func() error {
				res := a.registry.Dispatch(gctx, p.inv, pub)
				mu.Lock()
				results[p.idx] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, p := range runnable {
			results[p.idx] = a.registry.Dispatch(ctx, p.inv, pub)
		}
	}

	return results
}

func errorInvocation(inv tools.Invocation, code, detail string) tools.Result {
	now := time.Now()
	return tools.Result{
		ID:      inv.ID,
		Tool:    inv.Name,
		Content: detail,
		IsError: true,
		Code:    code,
		Start:   now,
		End:     now,
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
