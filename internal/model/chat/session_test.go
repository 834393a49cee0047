package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCloneIsIndependent(t *testing.T) {
	original := Session{ID: "c1", History: []Turn{UserTurn("hi"), AssistantTurn("hello")}}

	clone := original.Clone()
	clone.History = append(clone.History, UserTurn("more"))
	clone.History[0].Content = "changed"

	assert.Len(t, original.History, 2)
	assert.Equal(t, "hi", original.History[0].Content)
}

func TestCloneHistoryNeverNil(t *testing.T) {
	history := CloneHistory(nil)
	require.NotNil(t, history)

	raw, err := json.Marshal(Session{ID: "c1", History: history})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chat_id":"c1","history":[]}`, string(raw))
}

func TestInitialized(t *testing.T) {
	assert.False(t, Session{}.Initialized())
	assert.True(t, Session{ID: "c1"}.Initialized())
}
