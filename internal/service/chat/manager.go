package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
	"github.com/zhouzirui/ambermind/backend/internal/service/ai"
)

const (
	// DefaultMaxTokens caps the length of every generated reply.
	DefaultMaxTokens = 500
	// DefaultCompletionTimeout bounds one completion round trip.
	DefaultCompletionTimeout = 30 * time.Second
	// ChatTitle is the fixed title of the single conversation in a session.
	ChatTitle = "Your Chat"
)

var ErrIdentityMismatch = errors.New("chat id does not belong to this session")

// Options tunes Manager behaviour.
type Options struct {
	// SystemPrompt is prepended as the system turn of every completion request.
	SystemPrompt string
	// RejectMismatchedID fails requests whose path chat id differs from the
	// session's own id instead of silently using the session conversation.
	RejectMismatchedID bool
	Timeout            time.Duration
	MaxTokens          int
}

// TurnResult is what a successful HandleTurn returns to the caller.
type TurnResult struct {
	ChatID   string      `json:"chat_id"`
	Response string      `json:"response"`
	History  []chat.Turn `json:"history"`
}

// Manager owns the conversation lifecycle of every session.
type Manager struct {
	store     Store
	completer ai.Completer
	opts      Options
	locks     *keyedMutex
	newID     func() string
	logger    *zap.Logger
}

// NewManager wires a Manager around an injected store and completion handle.
func NewManager(store Store, completer ai.Completer, opts Options, logger *zap.Logger) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCompletionTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:     store,
		completer: completer,
		opts:      opts,
		locks:     newKeyedMutex(),
		newID:     uuid.NewString,
		logger:    logger,
	}
}

// EnsureInitialized returns the session for token, creating and persisting an
// empty conversation on first touch. Callers must hold the session lock.
func (m *Manager) EnsureInitialized(ctx context.Context, token string) (chat.Session, error) {
	session, ok, err := m.store.Load(ctx, token)
	if err != nil {
		return chat.Session{}, fmt.Errorf("load session: %w", err)
	}
	if ok && session.Initialized() {
		return session, nil
	}

	session = chat.Session{ID: m.newID(), History: []chat.Turn{}}
	if err := m.store.Save(ctx, token, session); err != nil {
		return chat.Session{}, fmt.Errorf("initialize session: %w", err)
	}

	m.logger.Info("conversation started", zap.String("chat_id", session.ID))
	return session, nil
}

// resolve binds the request to the session conversation and applies the chat id policy.
func (m *Manager) resolve(ctx context.Context, token, chatID string) (chat.Session, error) {
	session, err := m.EnsureInitialized(ctx, token)
	if err != nil {
		return chat.Session{}, err
	}

	if chatID != "" && chatID != session.ID {
		if m.opts.RejectMismatchedID {
			return chat.Session{}, fmt.Errorf("%w: %s", ErrIdentityMismatch, chatID)
		}
		m.logger.Debug("ignoring foreign chat id",
			zap.String("requested", chatID),
			zap.String("chat_id", session.ID))
	}
	return session, nil
}

// Chats lists the conversations of the session, which is always exactly one.
func (m *Manager) Chats(ctx context.Context, token string) ([]chat.Summary, error) {
	unlock := m.locks.Lock(token)
	defer unlock()

	session, err := m.EnsureInitialized(ctx, token)
	if err != nil {
		return nil, err
	}
	return []chat.Summary{{ChatID: session.ID, Title: ChatTitle}}, nil
}

// History returns the session conversation and its turns.
func (m *Manager) History(ctx context.Context, token, chatID string) (chat.Session, error) {
	unlock := m.locks.Lock(token)
	defer unlock()

	return m.resolve(ctx, token, chatID)
}

// HandleTurn appends prompt to the conversation, asks the completer for a
// reply and commits both turns together. Nothing is persisted on failure.
func (m *Manager) HandleTurn(ctx context.Context, token, chatID, prompt string) (TurnResult, error) {
	unlock := m.locks.Lock(token)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}

	session, err := m.resolve(ctx, token, chatID)
	if err != nil {
		return TurnResult{}, err
	}

	if err := CheckQuota(session.History); err != nil {
		return TurnResult{}, err
	}

	working := session.Clone()
	working.History = append(working.History, chat.UserTurn(prompt))

	// Detached from the client so a started turn commits whole or not at all.
	commitCtx := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(commitCtx, m.opts.Timeout)
	defer cancel()

	started := time.Now()
	reply, err := m.completer.Complete(callCtx, ai.Request{
		Messages:  m.BuildMessages(working.History),
		MaxTokens: m.opts.MaxTokens,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ai.ErrCompletionUnavailable) {
			err = fmt.Errorf("%w: %v", ai.ErrCompletionUnavailable, err)
		}
		m.logger.Warn("completion failed",
			zap.String("chat_id", session.ID),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return TurnResult{}, err
	}

	working.History = append(working.History, chat.AssistantTurn(reply))
	if err := m.store.Save(commitCtx, token, working); err != nil {
		return TurnResult{}, fmt.Errorf("save session: %w", err)
	}

	m.logger.Info("turn completed",
		zap.String("chat_id", working.ID),
		zap.Int("user_turns", CountUserTurns(working.History)),
		zap.Duration("elapsed", time.Since(started)))

	return TurnResult{
		ChatID:   working.ID,
		Response: reply,
		History:  chat.CloneHistory(working.History),
	}, nil
}

// BuildMessages places the system instruction ahead of history, preserving every turn verbatim.
func (m *Manager) BuildMessages(history []chat.Turn) []chat.Turn {
	messages := make([]chat.Turn, 0, len(history)+1)
	messages = append(messages, chat.SystemTurn(m.opts.SystemPrompt))
	return append(messages, history...)
}
