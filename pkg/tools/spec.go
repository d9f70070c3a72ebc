// Package tools holds the schema registry and dispatcher that bridge the
// LLM's structured tool calls to in-process handlers.
package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/llms"
)

// Param describes one named tool parameter.
type Param struct {
	Type        string // string, integer, number, boolean, array, object
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// Spec describes a registered tool. Names are stable; the schema is
// implicitly versioned by the system prompt baked alongside it.
type Spec struct {
	Name        string
	Description string
	Params      map[string]Param

	// Timeout bounds handler execution. Zero means the dispatcher default.
	Timeout time.Duration

	// AllowTimeoutArg lets callers override Timeout via a "timeout"
	// argument (seconds) where the schema declares one.
	AllowTimeoutArg bool
}

// Handler executes a tool invocation. Handlers must honor ctx
// cancellation and return errors as values.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Invoke calls the function.
func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// Definition renders the spec in the provider wire format.
func (s Spec) Definition() llms.ToolDefinition {
	properties := make(map[string]any, len(s.Params))
	var required []string

	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := s.Params[name]
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return llms.ToolDefinition{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: schema,
	}
}

// ValidateArgs checks LLM-supplied arguments against the schema:
// unknown fields are rejected, required fields must be present, values
// are coerced where the declared type permits, and defaults are applied.
// The returned map is a fresh copy.
func (s Spec) ValidateArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.Params))

	for name := range args {
		if _, ok := s.Params[name]; !ok {
			return nil, NewToolError(CodeInvalidArgument, s.Name,
				fmt.Sprintf("unknown field %q", name), nil)
		}
	}

	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := s.Params[name]
		raw, present := args[name]

		if !present || raw == nil {
			if p.Required {
				return nil, NewToolError(CodeInvalidArgument, s.Name,
					fmt.Sprintf("missing required field %q", name), nil)
			}
			if p.Default != nil {
				out[name] = p.Default
			}
			continue
		}

		coerced, err := coerce(raw, p.Type)
		if err != nil {
			return nil, NewToolError(CodeInvalidArgument, s.Name,
				fmt.Sprintf("field %q: %v", name, err), nil)
		}

		if len(p.Enum) > 0 {
			str, _ := coerced.(string)
			found := false
			for _, e := range p.Enum {
				if str == e {
					found = true
					break
				}
			}
			if !found {
				return nil, NewToolError(CodeInvalidArgument, s.Name,
					fmt.Sprintf("field %q: %v is not one of %v", name, coerced, p.Enum), nil)
			}
		}

		out[name] = coerced
	}

	return out, nil
}

// coerce converts a JSON-decoded value to the declared schema type.
func coerce(v any, typ string) (any, error) {
	switch typ {
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)

	case "integer":
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int(n), nil
		case int:
			return n, nil
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)

	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)

	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)

	case "array":
		if a, ok := v.([]any); ok {
			return a, nil
		}
		return nil, fmt.Errorf("expected array, got %T", v)

	case "object":
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)
	}

	return v, nil
}
