// Package session tracks what each user is currently doing. The state is an
// explicit object keyed by user id and handed into engine calls, never read
// from ambient globals.
package session

import "sync"

// Mode is the user's current activity.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeDrafting   Mode = "drafting"
	ModeCommenting Mode = "commenting"
	ModeChatting   Mode = "chatting"
)

// State is one user's conversation context.
type State struct {
	UserID int64
	Mode   Mode

	// Drafting / commenting context.
	ConfessionID    uint
	ParentCommentID *uint

	// Chatting context.
	ChatID   uint
	ChatWith int64
}

// Manager holds the in-memory session table. Sessions are transient by
// design: a restart drops them and users simply re-enter their flow.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*State
}

// NewManager returns an empty session table.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*State)}
}

// Get returns the user's state, creating an idle one on first touch.
func (m *Manager) Get(userID int64) State {
	m.mu.RLock()
	st, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return *st
	}
	return State{UserID: userID, Mode: ModeIdle}
}

// StartDrafting marks the user as editing the given confession draft.
func (m *Manager) StartDrafting(userID int64, confID uint) {
	m.set(userID, &State{UserID: userID, Mode: ModeDrafting, ConfessionID: confID})
}

// StartCommenting marks the user as writing a comment or reply.
func (m *Manager) StartCommenting(userID int64, confID uint, parentCommentID *uint) {
	m.set(userID, &State{
		UserID:          userID,
		Mode:            ModeCommenting,
		ConfessionID:    confID,
		ParentCommentID: parentCommentID,
	})
}

// EnterChat marks the user as inside an open chat session.
func (m *Manager) EnterChat(userID int64, chatID uint, withUserID int64) {
	m.set(userID, &State{UserID: userID, Mode: ModeChatting, ChatID: chatID, ChatWith: withUserID})
}

// Clear returns the user to idle.
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// InChatWith reports whether userID currently has the chat with otherID
// open. Satisfies the chat engine's presence check.
func (m *Manager) InChatWith(userID, otherID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[userID]
	return ok && st.Mode == ModeChatting && st.ChatWith == otherID
}

func (m *Manager) set(userID int64, st *State) {
	m.mu.Lock()
	m.sessions[userID] = st
	m.mu.Unlock()
}
