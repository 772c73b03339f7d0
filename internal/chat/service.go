// Package chat runs the private-chat negotiation between two users:
// request -> accept/decline -> active session -> leave/block.
package chat

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

// HistoryLimit caps how many messages a history fetch returns.
const HistoryLimit = 50

// Blocklist is the slice of the engagement graph the negotiation needs.
type Blocklist interface {
	IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error)
	Block(ctx context.Context, blockerID, blockedID int64) error
}

// Deliverer pushes chat traffic out through the transport. Failures are
// logged and never roll back the engine-side write.
type Deliverer interface {
	DeliverMessage(ctx context.Context, toUserID int64, msg *models.ChatMessage) error
	NotifyUser(ctx context.Context, userID int64, event string) error
}

// Presence answers whether a user currently has the chat open, so the
// caller can pick between a full reply affordance and a light notification.
type Presence interface {
	InChatWith(userID, otherID int64) bool
}

// RequestResult tells the dispatcher how a chat request resolved.
type RequestResult struct {
	// Chat is set when the caller should go straight into a session:
	// either one already existed or mutual interest auto-accepted.
	Chat *models.ActiveChat `json:"chat,omitempty"`
	// AutoAccepted marks the mutual-interest path: the reverse pending
	// request was consumed and the session created in one step.
	AutoAccepted bool `json:"autoAccepted,omitempty"`
	// Request is set when a fresh pending request was created.
	Request *models.ChatRequest `json:"request,omitempty"`
}

// Service owns chat requests, active sessions and messages. Operations on
// the same user pair are serialized through a lock on the canonical pair, so
// crossing requests from both sides cannot mint two sessions.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	locks     *keyed.Mutex
	blocklist Blocklist
	deliverer Deliverer
	presence  Presence
}

// NewService wires the negotiation engine.
func NewService(db *gorm.DB, log *zap.Logger, blocklist Blocklist, deliverer Deliverer, presence Presence) *Service {
	return &Service{
		db:        db,
		log:       log.Named("chat"),
		locks:     keyed.NewMutex(),
		blocklist: blocklist,
		deliverer: deliverer,
		presence:  presence,
	}
}

func pairKey(a, b int64) string {
	lo, hi := models.CanonicalPair(a, b)
	return fmt.Sprintf("pair:%d:%d", lo, hi)
}

// Request asks toID for a chat. Resolution order:
// an existing session routes the caller straight in; an own pending request
// is AlreadyRequested; a reverse pending request is auto-accepted into a
// session (mutual interest); otherwise a fresh pending request is created.
func (s *Service) Request(ctx context.Context, fromID, toID int64) (*RequestResult, error) {
	if fromID == toID {
		return nil, fmt.Errorf("%w: cannot request a chat with yourself", apperr.ErrValidation)
	}

	blocked, err := s.blocklist.IsBlocked(ctx, toID, fromID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperr.ErrBlocked
	}

	key := pairKey(fromID, toID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if existing, err := s.Active(ctx, fromID, toID); err != nil {
		return nil, err
	} else if existing != nil {
		return &RequestResult{Chat: existing}, nil
	}

	own, err := s.findRequest(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if own != nil && own.Status == models.RequestPending {
		return nil, apperr.ErrAlreadyRequested
	}

	reverse, err := s.findRequest(ctx, toID, fromID)
	if err != nil {
		return nil, err
	}
	if reverse != nil && reverse.Status == models.RequestPending {
		chat, err := s.acceptInto(ctx, reverse)
		if err != nil {
			return nil, err
		}
		s.log.Info("mutual chat interest, auto-accepted",
			zap.Int64("from", fromID), zap.Int64("to", toID))
		if err := s.deliverer.NotifyUser(ctx, toID, "chat_request_accepted"); err != nil {
			s.log.Warn("notify failed", zap.Int64("user_id", toID), zap.Error(err))
		}
		return &RequestResult{Chat: chat, AutoAccepted: true}, nil
	}

	req := models.ChatRequest{FromUserID: fromID, ToUserID: toID, Status: models.RequestPending}
	if own != nil {
		// A rejected earlier request is replaced; the unique pair index
		// keeps at most one row per direction.
		req.ID = own.ID
		if err := s.db.WithContext(ctx).Save(&req).Error; err != nil {
			return nil, err
		}
	} else if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}
	if err := s.deliverer.NotifyUser(ctx, toID, "chat_request"); err != nil {
		s.log.Warn("notify failed", zap.Int64("user_id", toID), zap.Error(err))
	}
	return &RequestResult{Request: &req}, nil
}

// Respond accepts or declines a pending request. Both outcomes are terminal
// for the request row; accept also opens the session.
func (s *Service) Respond(ctx context.Context, requestID uint, accept bool) (*models.ActiveChat, error) {
	var req models.ChatRequest
	err := s.db.WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chat request %d", apperr.ErrNotFound, requestID)
	}
	if err != nil {
		return nil, err
	}

	key := pairKey(req.FromUserID, req.ToUserID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-read under the lock; a crossing request may have consumed it.
	if err := s.db.WithContext(ctx).First(&req, requestID).Error; err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("%w: chat request %d is %s", apperr.ErrInvalidState, requestID, req.Status)
	}

	if !accept {
		err := s.db.WithContext(ctx).Model(&req).
			Update("status", models.RequestRejected).Error
		if err != nil {
			return nil, err
		}
		if err := s.deliverer.NotifyUser(ctx, req.FromUserID, "chat_request_declined"); err != nil {
			s.log.Warn("notify failed", zap.Int64("user_id", req.FromUserID), zap.Error(err))
		}
		return nil, nil
	}

	chat, err := s.acceptInto(ctx, &req)
	if err != nil {
		return nil, err
	}
	if err := s.deliverer.NotifyUser(ctx, req.FromUserID, "chat_request_accepted"); err != nil {
		s.log.Warn("notify failed", zap.Int64("user_id", req.FromUserID), zap.Error(err))
	}
	return chat, nil
}

// acceptInto marks req accepted and opens the session in one transaction.
// Callers hold the pair lock.
func (s *Service) acceptInto(ctx context.Context, req *models.ChatRequest) (*models.ActiveChat, error) {
	lo, hi := models.CanonicalPair(req.FromUserID, req.ToUserID)
	chat := models.ActiveChat{User1ID: lo, User2ID: hi}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(req).Update("status", models.RequestAccepted).Error; err != nil {
			return err
		}
		return tx.Create(&chat).Error
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// SendMessage persists a message and hands it to the transport. The returned
// flag tells whether the counterpart currently has the chat open.
func (s *Service) SendMessage(ctx context.Context, chatID uint, fromID, toID int64, content string) (*models.ChatMessage, bool, error) {
	if content == "" {
		return nil, false, fmt.Errorf("%w: empty message", apperr.ErrValidation)
	}

	chat, err := s.get(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	if chat.Other(fromID) != toID {
		return nil, false, fmt.Errorf("%w: user pair does not match chat %d", apperr.ErrValidation, chatID)
	}

	blocked, err := s.blocklist.IsBlocked(ctx, toID, fromID)
	if err != nil {
		return nil, false, err
	}
	if blocked {
		return nil, false, apperr.ErrBlocked
	}

	msg := models.ChatMessage{ChatID: chatID, FromUserID: fromID, ToUserID: toID, Content: content}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, false, err
	}

	if err := s.deliverer.DeliverMessage(ctx, toID, &msg); err != nil {
		s.log.Warn("message delivery failed",
			zap.Uint("chat_id", chatID), zap.Int64("to", toID), zap.Error(err))
	}
	inSession := s.presence != nil && s.presence.InChatWith(toID, fromID)
	return &msg, inSession, nil
}

// Leave closes the session for both parties and notifies the counterpart.
func (s *Service) Leave(ctx context.Context, chatID uint, userID int64) error {
	chat, err := s.get(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.ActiveChat{}, chatID).Error; err != nil {
		return err
	}
	s.log.Info("chat left", zap.Uint("chat_id", chatID), zap.Int64("user_id", userID))
	other := chat.Other(userID)
	if err := s.deliverer.NotifyUser(ctx, other, "chat_left"); err != nil {
		s.log.Warn("notify failed", zap.Int64("user_id", other), zap.Error(err))
	}
	return nil
}

// Block closes the session and inserts the one-directional block edge, so no
// further request or message from the blocked side gets through.
func (s *Service) Block(ctx context.Context, chatID uint, blockerID int64) error {
	chat, err := s.get(ctx, chatID)
	if err != nil {
		return err
	}
	blocked := chat.Other(blockerID)
	if err := s.blocklist.Block(ctx, blockerID, blocked); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.ActiveChat{}, chatID).Error; err != nil {
		return err
	}
	if err := s.deliverer.NotifyUser(ctx, blocked, "chat_ended"); err != nil {
		s.log.Warn("notify failed", zap.Int64("user_id", blocked), zap.Error(err))
	}
	return nil
}

// Active returns the session between two users, nil if none exists.
func (s *Service) Active(ctx context.Context, a, b int64) (*models.ActiveChat, error) {
	lo, hi := models.CanonicalPair(a, b)
	var chat models.ActiveChat
	err := s.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", lo, hi).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ActiveForUser lists every open session of a user.
func (s *Service) ActiveForUser(ctx context.Context, userID int64) ([]models.ActiveChat, error) {
	var chats []models.ActiveChat
	err := s.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&chats).Error
	return chats, err
}

// Messages returns the chat history, oldest first, capped at limit.
func (s *Service) Messages(ctx context.Context, chatID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// FindRequest returns the request for the ordered pair, nil if none.
func (s *Service) FindRequest(ctx context.Context, fromID, toID int64) (*models.ChatRequest, error) {
	return s.findRequest(ctx, fromID, toID)
}

func (s *Service) findRequest(ctx context.Context, fromID, toID int64) (*models.ChatRequest, error) {
	var req models.ChatRequest
	err := s.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) get(ctx context.Context, chatID uint) (*models.ActiveChat, error) {
	var chat models.ActiveChat
	err := s.db.WithContext(ctx).First(&chat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chat %d", apperr.ErrNotFound, chatID)
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}
