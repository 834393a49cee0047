package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
)

// MaxUserTurns is the number of prompts one conversation accepts before it is exhausted.
// There is no time-based reset; only a new session starts a new count.
const MaxUserTurns = 5

var ErrQuotaExceeded = errors.New("conversation message limit reached")

// CountUserTurns counts user-authored turns in history.
func CountUserTurns(history []chat.Turn) int {
	count := 0
	for _, turn := range history {
		if turn.Role == chat.RoleUser {
			count++
		}
	}
	return count
}

// CheckQuota fails with ErrQuotaExceeded when history cannot take another user turn.
func CheckQuota(history []chat.Turn) error {
	if used := CountUserTurns(history); used >= MaxUserTurns {
		return fmt.Errorf("%w: %d of %d messages used", ErrQuotaExceeded, used, MaxUserTurns)
	}
	return nil
}
