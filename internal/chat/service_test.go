package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/chat"
	"github.com/confessio/confessio/internal/engage"
	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/session"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*models.ChatMessage
	notified  []string
}

func (f *fakeDeliverer) DeliverMessage(_ context.Context, _ int64, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, msg)
	return nil
}

func (f *fakeDeliverer) NotifyUser(_ context.Context, _ int64, event string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, event)
	return nil
}

type fixture struct {
	chats     *chat.Service
	engage    *engage.Service
	sessions  *session.Manager
	deliverer *fakeDeliverer
	db        *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := zap.NewNop()
	eng := engage.NewService(db, log)
	sessions := session.NewManager()
	deliverer := &fakeDeliverer{}
	return &fixture{
		chats:     chat.NewService(db, log, eng, deliverer, sessions),
		engage:    eng,
		sessions:  sessions,
		deliverer: deliverer,
		db:        db,
	}
}

func (f *fixture) openChat(t *testing.T, a, b int64) *models.ActiveChat {
	t.Helper()
	ctx := t.Context()
	res, err := f.chats.Request(ctx, a, b)
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	opened, err := f.chats.Respond(ctx, res.Request.ID, true)
	require.NoError(t, err)
	require.NotNil(t, opened)
	return opened
}

func TestRequestRejectsSelf(t *testing.T) {
	t.Parallel()
	f := setup(t)
	_, err := f.chats.Request(t.Context(), 1, 1)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRequestThenAcceptOpensSession(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	res, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	assert.Nil(t, res.Chat)
	assert.Equal(t, models.RequestPending, res.Request.Status)

	opened, err := f.chats.Respond(ctx, res.Request.ID, true)
	require.NoError(t, err)
	require.NotNil(t, opened)

	// Same session regardless of lookup direction.
	active, err := f.chats.Active(ctx, 2, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, opened.ID, active.ID)

	req, err := f.chats.FindRequest(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, models.RequestAccepted, req.Status)
}

func TestDuplicatePendingRequest(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	_, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	_, err = f.chats.Request(ctx, 1, 2)
	require.ErrorIs(t, err, apperr.ErrAlreadyRequested)
}

func TestMutualInterestAutoAccepts(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	first, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, first.Request)

	second, err := f.chats.Request(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, second.AutoAccepted)
	require.NotNil(t, second.Chat)

	// Exactly one session, on the canonical pair.
	var chats []models.ActiveChat
	require.NoError(t, f.db.Find(&chats).Error)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(1), chats[0].User1ID)
	assert.Equal(t, int64(2), chats[0].User2ID)

	// The consumed request is terminal.
	req, err := f.chats.FindRequest(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, models.RequestAccepted, req.Status)
}

func TestRequestWithExistingSessionRoutesIn(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	res, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, res.Chat)
	assert.Equal(t, opened.ID, res.Chat.ID)
	assert.Nil(t, res.Request)

	var n int64
	require.NoError(t, f.db.Model(&models.ChatRequest{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "no duplicate request row")
}

func TestDeclinedRequestCanBeRetried(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	res, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	opened, err := f.chats.Respond(ctx, res.Request.ID, false)
	require.NoError(t, err)
	assert.Nil(t, opened)

	// Responding again to a resolved request is refused.
	_, err = f.chats.Respond(ctx, res.Request.ID, true)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	// A fresh request reuses the row instead of violating the pair index.
	retry, err := f.chats.Request(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, retry.Request)
	assert.Equal(t, res.Request.ID, retry.Request.ID)
	assert.Equal(t, models.RequestPending, retry.Request.Status)
}

func TestRespondUnknownRequest(t *testing.T) {
	t.Parallel()
	f := setup(t)
	_, err := f.chats.Respond(t.Context(), 999, true)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBlockedUserCannotRequest(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	require.NoError(t, f.engage.Block(ctx, 2, 1))
	_, err := f.chats.Request(ctx, 1, 2)
	require.ErrorIs(t, err, apperr.ErrBlocked)

	// The block is one-directional: the blocker can still reach out.
	res, err := f.chats.Request(ctx, 2, 1)
	require.NoError(t, err)
	assert.NotNil(t, res.Request)
}

func TestSendMessagePersistsAndDelivers(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	msg, inSession, err := f.chats.SendMessage(ctx, opened.ID, 1, 2, "hello")
	require.NoError(t, err)
	assert.False(t, inSession, "counterpart has not opened the chat")
	assert.Equal(t, "hello", msg.Content)
	require.Len(t, f.deliverer.delivered, 1)
	assert.Equal(t, msg.ID, f.deliverer.delivered[0].ID)

	f.sessions.EnterChat(2, opened.ID, 1)
	_, inSession, err = f.chats.SendMessage(ctx, opened.ID, 1, 2, "there")
	require.NoError(t, err)
	assert.True(t, inSession)

	history, err := f.chats.Messages(ctx, opened.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "there", history[1].Content)
}

func TestSendMessageValidation(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	_, _, err := f.chats.SendMessage(ctx, opened.ID, 1, 2, "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = f.chats.SendMessage(ctx, opened.ID, 1, 3, "wrong pair")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = f.chats.SendMessage(ctx, opened.ID+1, 1, 2, "no such chat")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendMessageToBlockerFails(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	require.NoError(t, f.engage.Block(ctx, 2, 1))
	_, _, err := f.chats.SendMessage(ctx, opened.ID, 1, 2, "hello?")
	require.ErrorIs(t, err, apperr.ErrBlocked)
}

func TestLeaveClosesSession(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	require.NoError(t, f.chats.Leave(ctx, opened.ID, 1))
	active, err := f.chats.Active(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.ErrorIs(t, f.chats.Leave(ctx, opened.ID, 1), apperr.ErrNotFound)
}

func TestBlockFromChatClosesAndBlocks(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()
	opened := f.openChat(t, 1, 2)

	require.NoError(t, f.chats.Block(ctx, opened.ID, 1))

	active, err := f.chats.Active(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = f.chats.Request(ctx, 2, 1)
	require.ErrorIs(t, err, apperr.ErrBlocked)
}

func TestActiveForUser(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := t.Context()

	first := f.openChat(t, 1, 2)
	second := f.openChat(t, 3, 1)

	chats, err := f.chats.ActiveForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
	assert.Equal(t, second.ID, chats[1].ID)
	assert.Equal(t, int64(2), chats[0].Other(1))
	assert.Equal(t, int64(3), chats[1].Other(1))

	chats, err = f.chats.ActiveForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, chats, 1)
}
