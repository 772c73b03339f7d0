package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confessio/confessio/internal/session"
)

func TestGetDefaultsToIdle(t *testing.T) {
	t.Parallel()
	m := session.NewManager()
	st := m.Get(1)
	assert.Equal(t, session.ModeIdle, st.Mode)
	assert.Equal(t, int64(1), st.UserID)
}

func TestModeTransitions(t *testing.T) {
	t.Parallel()
	m := session.NewManager()

	m.StartDrafting(1, 7)
	st := m.Get(1)
	assert.Equal(t, session.ModeDrafting, st.Mode)
	assert.Equal(t, uint(7), st.ConfessionID)

	parent := uint(3)
	m.StartCommenting(1, 7, &parent)
	st = m.Get(1)
	assert.Equal(t, session.ModeCommenting, st.Mode)
	assert.Equal(t, &parent, st.ParentCommentID)

	m.Clear(1)
	assert.Equal(t, session.ModeIdle, m.Get(1).Mode)
}

func TestInChatWith(t *testing.T) {
	t.Parallel()
	m := session.NewManager()

	assert.False(t, m.InChatWith(1, 2))

	m.EnterChat(1, 9, 2)
	assert.True(t, m.InChatWith(1, 2))
	assert.False(t, m.InChatWith(1, 3), "presence is per counterpart")
	assert.False(t, m.InChatWith(2, 1), "presence is per side")

	m.Clear(1)
	assert.False(t, m.InChatWith(1, 2))
}
