package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
	"github.com/zhouzirui/ambermind/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/ambermind/backend/internal/service/chat"
)

// scriptedCompleter answers "a1", "a2", ... unless err is set.
type scriptedCompleter struct {
	mu       sync.Mutex
	calls    int
	err      error
	delay    time.Duration
	onCall   func()
	requests []ai.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.requests = append(s.requests, req)
	err := s.err
	delay := s.delay
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("a%d", n), nil
}

func (s *scriptedCompleter) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newManager(t *testing.T, completer ai.Completer, opts chatservice.Options) (*chatservice.Manager, *chatservice.MemoryStore) {
	t.Helper()
	store := chatservice.NewMemoryStore(time.Hour, nil)
	return chatservice.NewManager(store, completer, opts, zaptest.NewLogger(t)), store
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	mgr, store := newManager(t, &scriptedCompleter{}, chatservice.Options{})
	ctx := context.Background()

	first, err := mgr.EnsureInitialized(ctx, "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Empty(t, first.History)

	second, err := mgr.EnsureInitialized(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, ok, err := store.Load(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, stored.ID)

	other, err := mgr.EnsureInitialized(ctx, "other")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestChatsReturnsSingleConversation(t *testing.T) {
	mgr, _ := newManager(t, &scriptedCompleter{}, chatservice.Options{})
	ctx := context.Background()

	chats, err := mgr.Chats(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Your Chat", chats[0].Title)

	session, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, chats[0].ChatID, session.ID)
}

func TestHandleTurnRoundTrip(t *testing.T) {
	completer := &scriptedCompleter{}
	mgr, _ := newManager(t, completer, chatservice.Options{SystemPrompt: "be brief"})
	ctx := context.Background()

	var result chatservice.TurnResult
	for _, prompt := range []string{"p1", "p2", "p3"} {
		var err error
		result, err = mgr.HandleTurn(ctx, "tok", "", prompt)
		require.NoError(t, err)
	}

	want := []chat.Turn{
		chat.UserTurn("p1"), chat.AssistantTurn("a1"),
		chat.UserTurn("p2"), chat.AssistantTurn("a2"),
		chat.UserTurn("p3"), chat.AssistantTurn("a3"),
	}
	assert.Equal(t, want, result.History)
	assert.Equal(t, "a3", result.Response)
	assert.Equal(t, result.History[len(result.History)-1].Content, result.Response)

	session, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, want, session.History)
	assert.Equal(t, session.ID, result.ChatID)

	last := completer.requests[2]
	assert.Equal(t, chatservice.DefaultMaxTokens, last.MaxTokens)
	require.Len(t, last.Messages, 6)
	assert.Equal(t, chat.SystemTurn("be brief"), last.Messages[0])
	assert.Equal(t, want[:5], last.Messages[1:])
}

func TestHandleTurnSuccessGrowsHistoryByTwo(t *testing.T) {
	mgr, _ := newManager(t, &scriptedCompleter{}, chatservice.Options{})
	ctx := context.Background()

	_, err := mgr.HandleTurn(ctx, "tok", "", "hello")
	require.NoError(t, err)
	before, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)

	result, err := mgr.HandleTurn(ctx, "tok", "", "again")
	require.NoError(t, err)

	after, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)
	assert.Len(t, after.History, len(before.History)+2)
	assert.Equal(t, chat.AssistantTurn(result.Response), after.History[len(after.History)-1])
}

func TestHandleTurnEnforcesQuota(t *testing.T) {
	completer := &scriptedCompleter{}
	mgr, _ := newManager(t, completer, chatservice.Options{})
	ctx := context.Background()

	for i := 0; i < chatservice.MaxUserTurns; i++ {
		_, err := mgr.HandleTurn(ctx, "tok", "", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	before, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)

	_, err = mgr.HandleTurn(ctx, "tok", "", "one too many")
	assert.ErrorIs(t, err, chatservice.ErrQuotaExceeded)
	assert.Equal(t, chatservice.MaxUserTurns, completer.calls, "rejected prompt must not reach the completer")

	after, err := mgr.History(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, before.History, after.History)
	assert.Equal(t, chatservice.MaxUserTurns, chatservice.CountUserTurns(after.History))
}

func TestHandleTurnFailureLeavesHistoryUntouched(t *testing.T) {
	failures := []error{
		fmt.Errorf("%w: dial tcp: connection refused", ai.ErrCompletionUnavailable),
		fmt.Errorf("%w: status 502", ai.ErrCompletionUnavailable),
		fmt.Errorf("%w: no choices", ai.ErrCompletionFormat),
		ai.ErrMissingCredential,
	}

	for _, failure := range failures {
		t.Run(failure.Error(), func(t *testing.T) {
			completer := &scriptedCompleter{}
			mgr, _ := newManager(t, completer, chatservice.Options{})
			ctx := context.Background()

			_, err := mgr.HandleTurn(ctx, "tok", "", "kept")
			require.NoError(t, err)
			before, err := mgr.History(ctx, "tok", "")
			require.NoError(t, err)

			completer.setErr(failure)
			_, err = mgr.HandleTurn(ctx, "tok", "", "lost")
			assert.ErrorIs(t, err, failure)

			after, err := mgr.History(ctx, "tok", "")
			require.NoError(t, err)
			assert.Equal(t, before.History, after.History)
			assert.Equal(t, 1, chatservice.CountUserTurns(after.History), "failed turn must not consume quota")
		})
	}
}

func TestHandleTurnTimeoutIsUnavailable(t *testing.T) {
	completer := &scriptedCompleter{delay: time.Second}
	mgr, _ := newManager(t, completer, chatservice.Options{Timeout: 20 * time.Millisecond})

	_, err := mgr.HandleTurn(context.Background(), "tok", "", "slow")
	assert.ErrorIs(t, err, ai.ErrCompletionUnavailable)

	session, err := mgr.History(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Empty(t, session.History)
}

func TestHandleTurnSurvivesClientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := &scriptedCompleter{delay: 50 * time.Millisecond, onCall: cancel}
	mgr, _ := newManager(t, completer, chatservice.Options{})

	_, err := mgr.HandleTurn(ctx, "tok", "", "hello")
	require.NoError(t, err)

	session, err := mgr.History(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Equal(t, []chat.Turn{chat.UserTurn("hello"), chat.AssistantTurn("a1")}, session.History)
}

func TestHandleTurnAcceptsEmptyPrompt(t *testing.T) {
	completer := &scriptedCompleter{}
	mgr, _ := newManager(t, completer, chatservice.Options{})

	result, err := mgr.HandleTurn(context.Background(), "tok", "", "")
	require.NoError(t, err)

	assert.Equal(t, chat.UserTurn(""), result.History[0])
	assert.Equal(t, chat.UserTurn(""), completer.requests[0].Messages[1])
}

func TestHandleTurnChatIDPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("ignore", func(t *testing.T) {
		mgr, _ := newManager(t, &scriptedCompleter{}, chatservice.Options{})
		session, err := mgr.EnsureInitialized(ctx, "tok")
		require.NoError(t, err)

		result, err := mgr.HandleTurn(ctx, "tok", "someone-else", "hi")
		require.NoError(t, err)
		assert.Equal(t, session.ID, result.ChatID)
	})

	t.Run("reject", func(t *testing.T) {
		completer := &scriptedCompleter{}
		mgr, _ := newManager(t, completer, chatservice.Options{RejectMismatchedID: true})
		session, err := mgr.EnsureInitialized(ctx, "tok")
		require.NoError(t, err)

		_, err = mgr.HandleTurn(ctx, "tok", "someone-else", "hi")
		assert.ErrorIs(t, err, chatservice.ErrIdentityMismatch)
		_, err = mgr.History(ctx, "tok", "someone-else")
		assert.ErrorIs(t, err, chatservice.ErrIdentityMismatch)
		assert.Zero(t, completer.calls)

		_, err = mgr.HandleTurn(ctx, "tok", session.ID, "hi")
		assert.NoError(t, err)
	})
}

func TestHandleTurnSerializesSameSession(t *testing.T) {
	completer := &scriptedCompleter{delay: 20 * time.Millisecond}
	mgr, _ := newManager(t, completer, chatservice.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, prompt := range []string{"left", "right"} {
		wg.Add(1)
		go func(prompt string) {
			defer wg.Done()
			_, err := mgr.HandleTurn(context.Background(), "tok", "", prompt)
			errs <- err
		}(prompt)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, completer.requests, 2)
	seen := []int{
		chatservice.CountUserTurns(completer.requests[0].Messages) - 1,
		chatservice.CountUserTurns(completer.requests[1].Messages) - 1,
	}
	assert.ElementsMatch(t, []int{0, 1}, seen)

	session, err := mgr.History(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Len(t, session.History, 4)
}

func TestHandleTurnSeparatesSessions(t *testing.T) {
	mgr, _ := newManager(t, &scriptedCompleter{}, chatservice.Options{})
	ctx := context.Background()

	a, err := mgr.HandleTurn(ctx, "tok-a", "", "from a")
	require.NoError(t, err)
	b, err := mgr.HandleTurn(ctx, "tok-b", "", "from b")
	require.NoError(t, err)

	assert.NotEqual(t, a.ChatID, b.ChatID)
	assert.Len(t, b.History, 2)
	assert.Equal(t, "from b", b.History[0].Content)
}

func TestHandleTurnRequiresToken(t *testing.T) {
	mgr, _ := newManager(t, &scriptedCompleter{}, chatservice.Options{})

	_, err := mgr.HandleTurn(context.Background(), "", "", "hi")
	assert.True(t, errors.Is(err, chatservice.ErrTokenRequired))
}
