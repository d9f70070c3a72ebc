package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/logger"
	"github.com/bioagentlabs/bioagent/pkg/stream"
)

// DefaultTimeout bounds handlers whose spec declares none.
const DefaultTimeout = 5 * time.Minute

// DefaultMaxPreviewChars bounds tool_result event payloads.
const DefaultMaxPreviewChars = 4000

// Invocation is one tool call in flight.
type Invocation struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the resolved outcome of an invocation.
type Result struct {
	ID      string
	Tool    string
	Content string
	IsError bool
	Code    string // taxonomy code when IsError
	Start   time.Time
	End     time.Time
}

// Elapsed returns the handler wall time.
func (r Result) Elapsed() time.Duration { return r.End.Sub(r.Start) }

// Block renders the result as a tool_result content block.
func (r Result) Block() llms.ContentBlock {
	return llms.ContentBlock{
		Type:      llms.BlockToolResult,
		ToolUseID: r.ID,
		Content:   r.Content,
		IsError:   r.IsError,
	}
}

type entry struct {
	spec    Spec
	handler Handler
}

// Registry maps tool names to specs and handlers and dispatches
// invocations. Safe for concurrent use across sessions.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]entry
	allowlists map[string][]string

	defaultTimeout  time.Duration
	maxPreviewChars int
	log             *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultTimeout overrides the dispatcher-wide handler timeout.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.defaultTimeout = d }
}

// WithMaxPreviewChars overrides the event payload truncation bound.
func WithMaxPreviewChars(n int) RegistryOption {
	return func(r *Registry) { r.maxPreviewChars = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:         make(map[string]entry),
		allowlists:      make(map[string][]string),
		defaultTimeout:  DefaultTimeout,
		maxPreviewChars: DefaultMaxPreviewChars,
		log:             logger.Component("tools"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Re-registering a name replaces the handler.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler is required", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[spec.Name] = entry{spec: spec, handler: handler}
	return nil
}

// SetAllowlist restricts a specialist to the named tools.
func (r *Registry) SetAllowlist(specialistID string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowlists[specialistID] = append([]string(nil), names...)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Spec returns the spec for a registered tool.
func (r *Registry) Spec(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.spec, ok
}

// ToolsFor returns the specs available to a specialist, in allowlist
// order. An unknown specialist gets every registered tool.
func (r *Registry) ToolsFor(specialistID string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed, ok := r.allowlists[specialistID]
	if !ok {
		specs := make([]Spec, 0, len(r.entries))
		for _, e := range r.entries {
			specs = append(specs, e.spec)
		}
		return specs
	}

	specs := make([]Spec, 0, len(allowed))
	for _, name := range allowed {
		if e, ok := r.entries[name]; ok {
			specs = append(specs, e.spec)
		}
	}
	return specs
}

// Definitions renders the specs for a specialist in provider format.
func (r *Registry) Definitions(specialistID string) []llms.ToolDefinition {
	specs := r.ToolsFor(specialistID)
	defs := make([]llms.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, s.Definition())
	}
	return defs
}

// Dispatch validates and executes one invocation. The publisher may be
// nil (no events emitted). Errors resolve to is-error results; Dispatch
// itself never fails the caller.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, pub *stream.Publisher) Result {
	start := time.Now()

	r.mu.RLock()
	e, ok := r.entries[inv.Name]
	r.mu.RUnlock()

	if !ok {
		observeDispatch(inv.Name, CodeUnknownTool, 0)
		return errorResult(inv, start, NewToolError(CodeUnknownTool, inv.Name, "tool is not registered", nil))
	}

	args, err := e.spec.ValidateArgs(inv.Args)
	if err != nil {
		observeDispatch(inv.Name, CodeInvalidArgument, 0)
		return errorResult(inv, start, err)
	}

	if pub != nil {
		pub.Publish(stream.ToolStart(inv.Name, args))
		pub.RecordTool(inv.Name)
	}

	timeout := e.spec.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	if e.spec.AllowTimeoutArg {
		if secs, ok := args["timeout"].(int); ok && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if pub != nil {
		handlerCtx = stream.WithPublisher(handlerCtx, pub)
	}

	content, err := invokeSafely(handlerCtx, e.handler, args)

	res := Result{
		ID:    inv.ID,
		Tool:  inv.Name,
		Start: start,
		End:   time.Now(),
	}

	switch {
	case err == nil:
		res.Content = content
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.IsError = true
		res.Code = CodeTimeout
		res.Content = fmt.Sprintf("tool %s timed out after %s", inv.Name, timeout)
	case ctx.Err() != nil:
		res.IsError = true
		res.Code = CodeCancelled
		res.Content = fmt.Sprintf("tool %s cancelled", inv.Name)
	default:
		res.IsError = true
		res.Code = CodeOf(err)
		res.Content = fmt.Sprintf("tool %s failed: %v", inv.Name, err)
	}

	observeDispatch(inv.Name, res.Code, res.Elapsed())

	if res.IsError {
		r.log.Warn("tool dispatch failed", "tool", inv.Name, "code", res.Code, "elapsed", res.Elapsed())
	} else {
		r.log.Debug("tool dispatched", "tool", inv.Name, "elapsed", res.Elapsed())
	}

	if pub != nil {
		pub.Publish(stream.ToolResult(inv.Name, TruncatePreview(res.Content, r.maxPreviewChars), res.Elapsed()))
	}

	return res
}

// invokeSafely converts handler panics into handler_error values.
func invokeSafely(ctx context.Context, h Handler, args map[string]any) (string, error) {
	type outcome struct {
		content string
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: NewToolError(CodeHandlerError, "", fmt.Sprintf("handler panic: %v", rec), nil)}
			}
		}()
		content, err := h.Invoke(ctx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case o := <-done:
		return o.content, o.err
	case <-ctx.Done():
		// The handler goroutine is abandoned; it is expected to observe
		// ctx and return shortly.
		return "", ctx.Err()
	}
}

func errorResult(inv Invocation, start time.Time, err error) Result {
	return Result{
		ID:      inv.ID,
		Tool:    inv.Name,
		Content: err.Error(),
		IsError: true,
		Code:    CodeOf(err),
		Start:   start,
		End:     time.Now(),
	}
}

// TruncatePreview bounds a payload for event emission, preserving head
// and tail around a length-delta marker.
func TruncatePreview(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	head := max * 2 / 3
	tail := max - head
	omitted := len(s) - head - tail
	return fmt.Sprintf("%s\n... [%d chars omitted] ...\n%s", s[:head], omitted, s[len(s)-tail:])
}
