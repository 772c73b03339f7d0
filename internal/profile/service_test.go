package profile_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/profile"
)

type fakeNotifier struct {
	events []string
	users  []int64
}

func (f *fakeNotifier) NotifyUser(_ context.Context, userID int64, event string) error {
	f.users = append(f.users, userID)
	f.events = append(f.events, event)
	return nil
}

func setup(t *testing.T, adminUserID int64) (*profile.Service, *fakeNotifier) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	notifier := &fakeNotifier{}
	return profile.NewService(db, zap.NewNop(), notifier, adminUserID), notifier
}

func TestGetCreatesWithDefaults(t *testing.T) {
	t.Parallel()
	svc, _ := setup(t, 0)
	ctx := t.Context()

	p, err := svc.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, models.DefaultBio, p.Bio)
	assert.Equal(t, models.DefaultDepartment, p.Department)
	assert.Equal(t, models.DefaultNickname, p.Nickname)
	assert.Zero(t, p.AuraPoints)

	// Second read returns the same row, not a fresh one.
	again, err := svc.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, again.CreatedAt)
}

func TestUpdateIsPartial(t *testing.T) {
	t.Parallel()
	svc, _ := setup(t, 0)
	ctx := t.Context()

	bio := "ships late, codes early"
	require.NoError(t, svc.Update(ctx, 7, models.ProfileUpdate{Bio: &bio}))

	p, err := svc.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, bio, p.Bio)
	assert.Equal(t, models.DefaultDepartment, p.Department, "untouched field keeps default")
	assert.Equal(t, models.DefaultNickname, p.Nickname)

	nick := "owl"
	accepted := true
	require.NoError(t, svc.Update(ctx, 7, models.ProfileUpdate{Nickname: &nick, TermsAccepted: &accepted}))

	p, err = svc.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, bio, p.Bio, "earlier update survives")
	assert.Equal(t, nick, p.Nickname)
	assert.True(t, p.TermsAccepted)
}

func TestUpdateWithNoFieldsIsNoop(t *testing.T) {
	t.Parallel()
	svc, _ := setup(t, 0)
	require.NoError(t, svc.Update(t.Context(), 7, models.ProfileUpdate{}))
}

func TestAddAuraAccumulates(t *testing.T) {
	t.Parallel()
	svc, _ := setup(t, 0)
	ctx := t.Context()

	require.NoError(t, svc.AddAura(ctx, 9, 5))
	require.NoError(t, svc.AddAura(ctx, 9, 3))
	require.NoError(t, svc.AddAura(ctx, 9, -2))

	p, err := svc.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 6, p.AuraPoints)
}

func TestReportNotifiesAdmin(t *testing.T) {
	t.Parallel()
	svc, notifier := setup(t, 100)
	ctx := t.Context()

	report, err := svc.Report(ctx, 1, 2, "harassment", "keeps spamming my comments")
	require.NoError(t, err)
	assert.NotZero(t, report.ID)
	assert.Equal(t, int64(1), report.ReporterID)
	assert.Equal(t, int64(2), report.ReportedUserID)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "user_reported", notifier.events[0])
	assert.Equal(t, int64(100), notifier.users[0])
}

func TestReportWithoutAdminSkipsNotification(t *testing.T) {
	t.Parallel()
	svc, notifier := setup(t, 0)

	_, err := svc.Report(t.Context(), 1, 2, "spam", "")
	require.NoError(t, err)
	assert.Empty(t, notifier.events)
}

func TestMessageAdmin(t *testing.T) {
	t.Parallel()
	svc, notifier := setup(t, 100)

	msg, err := svc.MessageAdmin(t.Context(), 5, "how do I change my nickname?")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, int64(5), msg.UserID)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "admin_message", notifier.events[0])
}
