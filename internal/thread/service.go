// Package thread builds and serves the comment threads under approved
// confessions.
package thread

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/profanity"
)

const (
	// PageSize is the default number of root comments per page.
	PageSize = 10
	// MaxPageSize caps a caller-supplied page size; one page plus its
	// nested replies is the largest read a single request may trigger.
	MaxPageSize = 50
)

// Service reads and writes comments. Comments are immutable after creation
// except for the rendered-message anchor, so no per-comment locking is
// needed; the votes on them live in the engage package.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	profane profanity.Checker
}

// NewService wires the thread engine.
func NewService(db *gorm.DB, log *zap.Logger, profane profanity.Checker) *Service {
	if profane == nil {
		profane = profanity.None
	}
	return &Service{db: db, log: log.Named("thread"), profane: profane}
}

// Add appends a comment to an approved confession. parentID nil means a root
// comment. Replies are accepted at any depth; only rendering flattens them.
func (s *Service) Add(ctx context.Context, confID uint, authorID int64, content string, media models.Media, parentID *uint) (*models.Comment, error) {
	if content == "" && !media.Present() {
		return nil, fmt.Errorf("%w: comment needs text or media", apperr.ErrValidation)
	}
	if s.profane(content) {
		return nil, apperr.ErrProfanity
	}

	var conf models.Confession
	err := s.db.WithContext(ctx).First(&conf, confID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: confession %d", apperr.ErrNotFound, confID)
	}
	if err != nil {
		return nil, err
	}
	if conf.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: confession %d is %s", apperr.ErrNotApproved, confID, conf.Status)
	}

	if parentID != nil {
		var parent models.Comment
		err := s.db.WithContext(ctx).First(&parent, *parentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: parent comment %d", apperr.ErrNotFound, *parentID)
		}
		if err != nil {
			return nil, err
		}
		if parent.ConfessionID != confID {
			return nil, fmt.Errorf("%w: parent comment belongs to another confession", apperr.ErrValidation)
		}
	}

	comment := models.Comment{
		ConfessionID: confID,
		UserID:       authorID,
		Content:      content,
		Media:        media,
		ParentID:     parentID,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, err
	}
	s.log.Info("comment added",
		zap.Uint("comment_id", comment.ID),
		zap.Uint("conf_id", confID),
		zap.Bool("reply", parentID != nil))
	return &comment, nil
}

// ListRoots returns one page of root comments ordered by creation time
// ascending, plus the total root count. The count is taken independently of
// the slice so page arithmetic stays consistent as comments arrive.
func (s *Service) ListRoots(ctx context.Context, confID uint, page, pageSize int) ([]models.Comment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var total int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("confession_id = ? AND parent_id IS NULL", confID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err = s.db.WithContext(ctx).
		Where("confession_id = ? AND parent_id IS NULL", confID).
		Order("created_at ASC, id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&comments).Error
	return comments, total, err
}

// ListReplies returns every direct child of a comment, oldest first. Always
// the full set; replies are never paginated.
func (s *Service) ListReplies(ctx context.Context, commentID uint) ([]models.Comment, error) {
	var replies []models.Comment
	err := s.db.WithContext(ctx).
		Where("parent_id = ?", commentID).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	return replies, err
}

// Subtree collects a comment's descendants breadth-first and returns the
// nested tree for those roots, ready for rendering.
func (s *Service) Subtree(ctx context.Context, roots []models.Comment) ([]*Node, error) {
	all := append([]models.Comment(nil), roots...)
	frontier := roots
	for len(frontier) > 0 {
		ids := make([]uint, 0, len(frontier))
		for _, c := range frontier {
			ids = append(ids, c.ID)
		}
		var children []models.Comment
		err := s.db.WithContext(ctx).
			Where("parent_id IN ?", ids).
			Order("created_at ASC, id ASC").
			Find(&children).Error
		if err != nil {
			return nil, err
		}
		all = append(all, children...)
		frontier = children
	}
	return Build(all), nil
}

// Depth walks parent links to the root. Root comments have depth zero.
func (s *Service) Depth(ctx context.Context, commentID uint) (int, error) {
	depth := 0
	id := commentID
	for {
		var c models.Comment
		err := s.db.WithContext(ctx).Select("id", "parent_id").First(&c, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
		}
		if err != nil {
			return 0, err
		}
		if c.ParentID == nil {
			return depth, nil
		}
		depth++
		id = *c.ParentID
	}
}

// Get loads one comment.
func (s *Service) Get(ctx context.Context, commentID uint) (*models.Comment, error) {
	var c models.Comment
	err := s.db.WithContext(ctx).First(&c, commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, commentID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetBotMessageID anchors the rendered transport message on the comment.
// The one post-creation mutation a comment allows.
func (s *Service) SetBotMessageID(ctx context.Context, commentID uint, messageID int64) error {
	return s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ?", commentID).
		Update("bot_message_id", messageID).Error
}

// CountForConfession returns the total comment count, nested included.
func (s *Service) CountForConfession(ctx context.Context, confID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("confession_id = ?", confID).
		Count(&n).Error
	return n, err
}

// CountByUser returns how many comments the user has written.
func (s *Service) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListByUser returns the user's most recent comments.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 10
	}
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	return comments, err
}
