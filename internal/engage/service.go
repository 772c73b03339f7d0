// Package engage holds the social edges around comments and users: votes,
// follows and blocks. Every operation is an idempotent toggle or overwrite.
package engage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/keyed"
	"github.com/confessio/confessio/internal/models"
)

// VoteAction is what a vote call actually did.
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteRemoved VoteAction = "removed"
	VoteChanged VoteAction = "changed"
)

// VoteCounts is the like/dislike tally of one comment.
type VoteCounts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Service mutates the engagement edges. Votes on the same (comment, user)
// pair are serialized through a per-pair lock on top of the composite
// primary key, so a read-modify-write never loses an update.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	locks *keyed.Mutex
}

// NewService wires the engagement graph.
func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log.Named("engage"), locks: keyed.NewMutex()}
}

// Vote applies toggle semantics: no existing vote inserts (added), the same
// value deletes (removed), the opposite value updates in place (changed).
// At most one row per (comment, user) at any time.
func (s *Service) Vote(ctx context.Context, commentID uint, userID int64, value models.VoteValue) (VoteAction, error) {
	if value != models.VoteLike && value != models.VoteDislike {
		return "", fmt.Errorf("%w: unknown vote value %q", apperr.ErrValidation, value)
	}

	key := fmt.Sprintf("vote:%d:%d", commentID, userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var action VoteAction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		err := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			action = VoteAdded
			return tx.Create(&models.Vote{CommentID: commentID, UserID: userID, Value: value}).Error
		case err != nil:
			return err
		case existing.Value == value:
			action = VoteRemoved
			return tx.Where("comment_id = ? AND user_id = ?", commentID, userID).
				Delete(&models.Vote{}).Error
		default:
			action = VoteChanged
			return tx.Model(&models.Vote{}).
				Where("comment_id = ? AND user_id = ?", commentID, userID).
				Update("value", value).Error
		}
	})
	if err != nil {
		return "", err
	}
	s.log.Debug("vote processed",
		zap.Uint("comment_id", commentID),
		zap.String("action", string(action)))
	return action, nil
}

// Counts tallies likes and dislikes for a comment.
func (s *Service) Counts(ctx context.Context, commentID uint) (VoteCounts, error) {
	var counts VoteCounts
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("comment_id = ? AND value = ?", commentID, models.VoteLike).
		Count(&counts.Likes).Error
	if err != nil {
		return counts, err
	}
	err = s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("comment_id = ? AND value = ?", commentID, models.VoteDislike).
		Count(&counts.Dislikes).Error
	return counts, err
}

// CurrentVote returns the user's vote on a comment, nil if none.
func (s *Service) CurrentVote(ctx context.Context, commentID uint, userID int64) (*models.VoteValue, error) {
	var vote models.Vote
	err := s.db.WithContext(ctx).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote.Value, nil
}

// ToggleFollow flips the follow edge and reports the new state.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followeeID int64) (bool, error) {
	key := fmt.Sprintf("follow:%d:%d", followerID, followeeID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var nowFollowing bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Follow
		err := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			nowFollowing = true
			return tx.Create(&models.Follow{FollowerID: followerID, FolloweeID: followeeID}).Error
		case err != nil:
			return err
		default:
			nowFollowing = false
			return tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
				Delete(&models.Follow{}).Error
		}
	})
	return nowFollowing, err
}

// IsFollowing reports whether the edge exists.
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	return n > 0, err
}

// FollowCounts is the follower/following tally of one user.
type FollowCounts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// CountFollows tallies both directions for a user.
func (s *Service) CountFollows(ctx context.Context, userID int64) (FollowCounts, error) {
	var counts FollowCounts
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Count(&counts.Followers).Error
	if err != nil {
		return counts, err
	}
	err = s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&counts.Following).Error
	return counts, err
}

// Following lists the user ids this user follows.
func (s *Service) Following(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Order("created_at ASC").
		Pluck("followee_id", &ids).Error
	return ids, err
}

// Followers lists the user ids following this user.
func (s *Service) Followers(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Order("created_at ASC").
		Pluck("follower_id", &ids).Error
	return ids, err
}

// Block inserts the block edge, overwriting any existing row (idempotent).
func (s *Service) Block(ctx context.Context, blockerID, blockedID int64) error {
	edge := models.Block{BlockerID: blockerID, BlockedID: blockedID}
	err := s.db.WithContext(ctx).Save(&edge).Error
	if err == nil {
		s.log.Info("user blocked", zap.Int64("blocker", blockerID), zap.Int64("blocked", blockedID))
	}
	return err
}

// Unblock removes the block edge; removing a missing edge is a no-op.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID int64) error {
	return s.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{}).Error
}

// IsBlocked reports whether blockerID has blocked blockedID.
func (s *Service) IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&n).Error
	return n > 0, err
}
