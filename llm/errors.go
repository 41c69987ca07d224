package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/openai/openai-go"
)

// ErrNoModelAvailable indicates the registry has no enabled model that can
// serve the requested task.
var ErrNoModelAvailable = errors.New("no enabled model available for task")

// ErrEmptyResponse indicates the model returned no usable content.
var ErrEmptyResponse = errors.New("model returned empty response")

// ErrSchemaEcho indicates the model returned the output schema definition
// instead of an instance of it.
var ErrSchemaEcho = errors.New("model echoed the output schema instead of filling it")

// ModelError is a failure tied to a specific model invocation.
type ModelError struct {
	Model   string
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.Model != "" {
		return "model " + e.Model + ": " + e.Message
	}
	return e.Message
}

func (e *ModelError) Unwrap() error { return e.Cause }

// IsTransient reports whether an invocation error is worth retrying:
// rate limits, server-side failures, and network-level errors. Validation
// and authentication failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporarily", "reset by peer", "eof"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
