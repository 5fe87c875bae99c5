package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusInQueue))
	assert.False(t, IsTerminal(StatusInProgress))
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusFailed))
}

func TestCanTransition(t *testing.T) {
	// 전진은 허용
	assert.True(t, CanTransition(StatusInQueue, StatusInProgress))
	assert.True(t, CanTransition(StatusInQueue, StatusCompleted))
	assert.True(t, CanTransition(StatusInProgress, StatusFailed))

	// 같은 단계 재보고도 허용 (no-op 갱신)
	assert.True(t, CanTransition(StatusInProgress, StatusInProgress))

	// 후퇴는 불허
	assert.False(t, CanTransition(StatusInProgress, StatusInQueue))

	// terminal에서는 어디로도 못 간다
	assert.False(t, CanTransition(StatusCompleted, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusInProgress))
	assert.False(t, CanTransition(StatusCompleted, StatusCompleted))

	// 모르는 상태는 불허
	assert.False(t, CanTransition("weird", StatusInProgress))
	assert.False(t, CanTransition(StatusInQueue, "weird"))
}
