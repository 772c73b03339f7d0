// Package confession owns the moderation state machine:
// draft -> pending -> approved/rejected, with draft -> cancelled.
package confession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/keyed"
	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/profanity"
)

// MaxCategories is the cap on category tags per confession.
const MaxCategories = 3

// Categories is the fixed tag list offered to authors.
var Categories = []string{
	"School", "Relationship", "Family", "Work", "Personal Life",
	"Funny", "Random", "Gaming", "Study", "Tech",
	"Health", "Social", "Other",
}

// Outcome is an admin moderation decision.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// Publisher is the outward collaborator the pipeline calls after state
// transitions. Failures are logged, never rolled back.
type Publisher interface {
	// QueueForReview hands a freshly submitted confession to the admin queue.
	QueueForReview(ctx context.Context, conf *models.Confession) error
	// PublishConfession pushes an approved confession to the public feed.
	PublishConfession(ctx context.Context, conf *models.Confession) error
	// NotifyUser tells a user about a moderation event.
	NotifyUser(ctx context.Context, userID int64, event string) error
}

// Service runs the confession lifecycle against the database. Mutations of
// the same confession are serialized through a per-id lock; different
// confessions proceed in parallel.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	locks      *keyed.Mutex
	publisher  Publisher
	profane    profanity.Checker
	rateWindow time.Duration
}

// NewService wires the pipeline. rateWindow is the minimum gap between two
// accepted submissions from the same user.
func NewService(db *gorm.DB, log *zap.Logger, pub Publisher, profane profanity.Checker, rateWindow time.Duration) *Service {
	if profane == nil {
		profane = profanity.None
	}
	return &Service{
		db:         db,
		log:        log.Named("confession"),
		locks:      keyed.NewMutex(),
		publisher:  pub,
		profane:    profane,
		rateWindow: rateWindow,
	}
}

func confKey(id uint) string { return fmt.Sprintf("conf:%d", id) }

// StartOrResumeDraft returns the user's open draft, creating an empty one if
// none exists. A user holds at most one draft at a time.
func (s *Service) StartOrResumeDraft(ctx context.Context, userID int64) (*models.Confession, error) {
	key := fmt.Sprintf("draft:%d", userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var conf models.Confession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StatusDraft).
		Order("created_at DESC").
		First(&conf).Error
	if err == nil {
		return &conf, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conf = models.Confession{UserID: userID, Status: models.StatusDraft}
	if err := s.db.WithContext(ctx).Create(&conf).Error; err != nil {
		return nil, err
	}
	s.log.Info("draft created", zap.Uint("conf_id", conf.ID), zap.Int64("user_id", userID))
	return &conf, nil
}

// UpdateDraftContent replaces the content and media of a draft.
func (s *Service) UpdateDraftContent(ctx context.Context, confID uint, content string, media models.Media) error {
	if content == "" && !media.Present() {
		return fmt.Errorf("%w: confession needs text or media", apperr.ErrValidation)
	}
	if media.Present() && media.Kind != models.MediaPhoto && media.Kind != models.MediaDocument {
		return fmt.Errorf("%w: unsupported media kind %q", apperr.ErrValidation, media.Kind)
	}
	if s.profane(content) {
		return apperr.ErrProfanity
	}

	s.locks.Lock(confKey(confID))
	defer s.locks.Unlock(confKey(confID))

	conf, err := s.get(ctx, confID)
	if err != nil {
		return err
	}
	if conf.Status != models.StatusDraft {
		return fmt.Errorf("%w: cannot edit a %s confession", apperr.ErrInvalidState, conf.Status)
	}
	return s.db.WithContext(ctx).Model(conf).Updates(map[string]any{
		"content":   content,
		"file_id":   media.FileID,
		"file_kind": media.Kind,
	}).Error
}

// SetDraftCategories replaces the category tags of a draft. Between one and
// MaxCategories entries; order is preserved, duplicates dropped.
func (s *Service) SetDraftCategories(ctx context.Context, confID uint, categories []string) error {
	deduped := make([]string, 0, len(categories))
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		deduped = append(deduped, c)
	}
	if len(deduped) == 0 {
		return fmt.Errorf("%w: at least one category required", apperr.ErrValidation)
	}
	if len(deduped) > MaxCategories {
		return fmt.Errorf("%w: at most %d categories allowed", apperr.ErrValidation, MaxCategories)
	}

	s.locks.Lock(confKey(confID))
	defer s.locks.Unlock(confKey(confID))

	conf, err := s.get(ctx, confID)
	if err != nil {
		return err
	}
	if conf.Status != models.StatusDraft {
		return fmt.Errorf("%w: cannot edit a %s confession", apperr.ErrInvalidState, conf.Status)
	}
	return s.db.WithContext(ctx).Model(conf).Update("categories", deduped).Error
}

// Submit moves a draft to pending, records the submission timestamp and
// emits a moderation-queue entry. The edit lock is irreversible.
func (s *Service) Submit(ctx context.Context, confID uint) error {
	s.locks.Lock(confKey(confID))
	defer s.locks.Unlock(confKey(confID))

	conf, err := s.get(ctx, confID)
	if err != nil {
		return err
	}
	if conf.Status != models.StatusDraft {
		return fmt.Errorf("%w: cannot submit a %s confession", apperr.ErrInvalidState, conf.Status)
	}
	if len(conf.Categories) == 0 {
		return fmt.Errorf("%w: select at least one category before submitting", apperr.ErrValidation)
	}
	if remaining, err := s.SubmitWindowRemaining(ctx, conf.UserID); err != nil {
		return err
	} else if remaining > 0 {
		return fmt.Errorf("%w: wait %s before submitting again", apperr.ErrRateLimited, remaining.Round(time.Second))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(conf).Update("status", models.StatusPending).Error; err != nil {
			return err
		}
		stamp := models.SubmissionStamp{UserID: conf.UserID, LastAt: time.Now()}
		return tx.Save(&stamp).Error
	})
	if err != nil {
		return err
	}
	conf.Status = models.StatusPending
	s.log.Info("confession submitted", zap.Uint("conf_id", conf.ID), zap.Int64("user_id", conf.UserID))

	if err := s.publisher.QueueForReview(ctx, conf); err != nil {
		// At-least-once: the confession stays pending and the admin queue
		// can be refilled from the database.
		s.log.Warn("queue for review failed", zap.Uint("conf_id", conf.ID), zap.Error(err))
	}
	return nil
}

// Decide records an admin decision. Only a pending confession can be
// decided; any later decision is AlreadyProcessed and never re-publishes.
func (s *Service) Decide(ctx context.Context, confID uint, outcome Outcome) error {
	if outcome != OutcomeApprove && outcome != OutcomeReject {
		return fmt.Errorf("%w: unknown outcome %q", apperr.ErrValidation, outcome)
	}

	s.locks.Lock(confKey(confID))
	defer s.locks.Unlock(confKey(confID))

	conf, err := s.get(ctx, confID)
	if err != nil {
		return err
	}
	if conf.Status != models.StatusPending {
		return fmt.Errorf("%w: confession %d is %s", apperr.ErrAlreadyProcessed, confID, conf.Status)
	}

	next := models.StatusRejected
	if outcome == OutcomeApprove {
		next = models.StatusApproved
	}
	if err := s.db.WithContext(ctx).Model(conf).Update("status", next).Error; err != nil {
		return err
	}
	conf.Status = next
	s.log.Info("confession decided", zap.Uint("conf_id", conf.ID), zap.String("status", string(next)))

	if next == models.StatusApproved {
		if err := s.publisher.PublishConfession(ctx, conf); err != nil {
			s.log.Warn("publish failed", zap.Uint("conf_id", conf.ID), zap.Error(err))
		}
		if err := s.publisher.NotifyUser(ctx, conf.UserID, "confession_approved"); err != nil {
			s.log.Warn("notify failed", zap.Int64("user_id", conf.UserID), zap.Error(err))
		}
	} else {
		if err := s.publisher.NotifyUser(ctx, conf.UserID, "confession_rejected"); err != nil {
			s.log.Warn("notify failed", zap.Int64("user_id", conf.UserID), zap.Error(err))
		}
	}
	return nil
}

// Cancel abandons a draft. Anything past draft cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, confID uint) error {
	s.locks.Lock(confKey(confID))
	defer s.locks.Unlock(confKey(confID))

	conf, err := s.get(ctx, confID)
	if err != nil {
		return err
	}
	if conf.Status != models.StatusDraft {
		return fmt.Errorf("%w: cannot cancel a %s confession", apperr.ErrInvalidState, conf.Status)
	}
	return s.db.WithContext(ctx).Model(conf).Update("status", models.StatusCancelled).Error
}

// SubmitWindowRemaining returns how long the user must still wait before the
// next submission, zero if the window has elapsed.
func (s *Service) SubmitWindowRemaining(ctx context.Context, userID int64) (time.Duration, error) {
	var stamp models.SubmissionStamp
	err := s.db.WithContext(ctx).First(&stamp, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	remaining := s.rateWindow - time.Since(stamp.LastAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Get loads a confession by id.
func (s *Service) Get(ctx context.Context, confID uint) (*models.Confession, error) {
	return s.get(ctx, confID)
}

// SetAdminMessageID anchors the moderation-queue message on the confession.
func (s *Service) SetAdminMessageID(ctx context.Context, confID uint, messageID int64) error {
	return s.db.WithContext(ctx).Model(&models.Confession{}).
		Where("id = ?", confID).
		Update("admin_message_id", messageID).Error
}

// SetChannelMessageID anchors the published feed message on the confession.
func (s *Service) SetChannelMessageID(ctx context.Context, confID uint, messageID int64) error {
	return s.db.WithContext(ctx).Model(&models.Confession{}).
		Where("id = ?", confID).
		Update("channel_message_id", messageID).Error
}

// ListByUser returns the user's most recent confessions.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Confession, error) {
	if limit <= 0 {
		limit = 10
	}
	var confs []models.Confession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&confs).Error
	return confs, err
}

// CountByUser returns how many confessions the user has created.
func (s *Service) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Confession{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (s *Service) get(ctx context.Context, confID uint) (*models.Confession, error) {
	var conf models.Confession
	err := s.db.WithContext(ctx).First(&conf, confID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: confession %d", apperr.ErrNotFound, confID)
	}
	if err != nil {
		return nil, err
	}
	return &conf, nil
}
