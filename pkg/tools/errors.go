package tools

import (
	"errors"
	"fmt"
)

// Error codes of the tool taxonomy. Tool errors never abort the agent
// loop; they are returned to the model as is-error tool results.
const (
	CodeUnknownTool     = "unknown_tool"
	CodeInvalidArgument = "invalid_argument"
	CodeHandlerError    = "handler_error"
	CodeTimeout         = "timeout"
	CodeCancelled       = "cancelled"
)

// ToolError is an error value with a taxonomy code.
type ToolError struct {
	Code   string
	Tool   string
	Detail string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Tool, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Tool)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError builds a ToolError.
func NewToolError(code, tool, detail string, err error) *ToolError {
	return &ToolError{Code: code, Tool: tool, Detail: detail, Err: err}
}

// CodeOf extracts the taxonomy code from an error, or handler_error when
// the error is not a ToolError.
func CodeOf(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeHandlerError
}
