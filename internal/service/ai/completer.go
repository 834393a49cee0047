package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
)

var (
	// ErrMissingCredential means the completion service was never configured.
	ErrMissingCredential = errors.New("completion service credential not configured")
	// ErrCompletionUnavailable covers transport failures, timeouts and non-2xx replies.
	ErrCompletionUnavailable = errors.New("completion service unavailable")
	// ErrCompletionFormat means the service answered but not in the expected shape.
	ErrCompletionFormat = errors.New("unexpected completion response format")
)

// Request is one outbound completion call.
type Request struct {
	Messages  []chat.Turn
	MaxTokens int
}

// Completer turns a message list into the model's single best reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Unconfigured fails every call with ErrMissingCredential.
type Unconfigured struct {
	Reason string
}

// Complete implements Completer.
func (u Unconfigured) Complete(context.Context, Request) (string, error) {
	if u.Reason == "" {
		return "", ErrMissingCredential
	}
	return "", fmt.Errorf("%w: %s", ErrMissingCredential, u.Reason)
}
