package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMaxIterations indicates the loop hit its iteration cap.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no model provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolUnavailable indicates a registered tool reports itself
	// unusable in the current environment.
	ErrToolUnavailable = errors.New("tool unavailable")
)

// ToolErrorType categorizes tool failures.
type ToolErrorType string

const (
	// ToolErrorNotFound means the tool name is not registered.
	ToolErrorNotFound ToolErrorType = "not_found"

	// ToolErrorUnavailable means the tool exists but cannot run here.
	ToolErrorUnavailable ToolErrorType = "unavailable"

	// ToolErrorInvalidInput means the arguments failed schema validation.
	ToolErrorInvalidInput ToolErrorType = "invalid_input"

	// ToolErrorForbidden means a sandbox or policy check rejected the call.
	ToolErrorForbidden ToolErrorType = "forbidden"

	// ToolErrorTimeout means the tool exceeded its execution deadline.
	ToolErrorTimeout ToolErrorType = "timeout"

	// ToolErrorExecution means the tool itself failed at runtime.
	ToolErrorExecution ToolErrorType = "execution"
)

// ToolError is a classified tool failure. The loop converts these into
// tool-role result messages so the model can react instead of the turn
// aborting.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Cause != nil:
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError builds a classified tool error.
func NewToolError(kind ToolErrorType, toolName, message string) *ToolError {
	return &ToolError{Type: kind, ToolName: toolName, Message: message}
}

// AsToolError extracts a ToolError from an error chain.
func AsToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// classifyProviderError decides whether a provider failure is worth
// retrying. Auth and request-shape failures are permanent; everything
// else (network, 5xx, rate limits) is assumed transient.
func classifyProviderError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid api key",
		"authentication",
		"unauthorized",
		"invalid_request",
		"400",
		"401",
		"403",
		"404",
	} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
