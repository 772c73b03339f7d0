// Package profile manages lazily created user profiles, their aura score,
// and the user-to-admin side channel (reports and help messages).
package profile

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confessio/confessio/internal/models"
)

// Notifier forwards reports and help messages to the admin.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, event string) error
}

// Service reads and writes profiles. Profiles are created on first access
// with deterministic defaults and never deleted.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	notifier    Notifier
	adminUserID int64
}

// NewService wires the profile service. adminUserID receives report and help
// notifications; zero disables them.
func NewService(db *gorm.DB, log *zap.Logger, notifier Notifier, adminUserID int64) *Service {
	return &Service{db: db, log: log.Named("profile"), notifier: notifier, adminUserID: adminUserID}
}

// Get returns the user's profile, creating it with defaults on first access.
func (s *Service) Get(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p = models.UserProfile{
		UserID:     userID,
		Bio:        models.DefaultBio,
		Department: models.DefaultDepartment,
		Nickname:   models.DefaultNickname,
	}
	// FirstOrCreate absorbs the race when two events touch a fresh user at
	// the same time; the primary key keeps the row unique.
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		FirstOrCreate(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies a typed partial update; nil fields stay untouched.
func (s *Service) Update(ctx context.Context, userID int64, upd models.ProfileUpdate) error {
	fields := make(map[string]any)
	if upd.Bio != nil {
		fields["bio"] = *upd.Bio
	}
	if upd.Department != nil {
		fields["department"] = *upd.Department
	}
	if upd.Nickname != nil {
		fields["nickname"] = *upd.Nickname
	}
	if upd.TermsAccepted != nil {
		fields["terms_accepted"] = *upd.TermsAccepted
	}
	if upd.StartUsed != nil {
		fields["start_used"] = *upd.StartUsed
	}
	if len(fields) == 0 {
		return nil
	}

	// Ensure the row exists before the partial write.
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Updates(fields).Error
}

// AddAura adjusts the reputation score by delta (may be negative).
func (s *Service) AddAura(ctx context.Context, userID int64, delta int) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("aura_points", gorm.Expr("aura_points + ?", delta)).Error
}

// Report files a complaint about another user and pings the admin.
func (s *Service) Report(ctx context.Context, reporterID, reportedID int64, reason, customReason string) (*models.Report, error) {
	report := models.Report{
		ReporterID:     reporterID,
		ReportedUserID: reportedID,
		Reason:         reason,
		CustomReason:   customReason,
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, err
	}
	s.log.Info("user reported",
		zap.Int64("reporter", reporterID), zap.Int64("reported", reportedID))
	if s.adminUserID != 0 {
		if err := s.notifier.NotifyUser(ctx, s.adminUserID, "user_reported"); err != nil {
			s.log.Warn("admin notify failed", zap.Error(err))
		}
	}
	return &report, nil
}

// MessageAdmin stores a free-form help message and forwards it.
func (s *Service) MessageAdmin(ctx context.Context, userID int64, text string) (*models.AdminMessage, error) {
	msg := models.AdminMessage{UserID: userID, Text: text}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	if s.adminUserID != 0 {
		if err := s.notifier.NotifyUser(ctx, s.adminUserID, "admin_message"); err != nil {
			s.log.Warn("admin notify failed", zap.Error(err))
		}
	}
	return &msg, nil
}
