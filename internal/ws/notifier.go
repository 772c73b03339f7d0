package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/confessio/confessio/internal/models"
)

// Event is the envelope every websocket frame uses.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notifier is the engine's outward collaborator: publish to the public
// feed, deliver to a user, notify about events. Delivery is at-least-once;
// directed sends retry briefly with exponential backoff, and a final
// failure is logged, never propagated back into a state transition.
type Notifier struct {
	hub         *Hub
	log         *zap.Logger
	adminUserID int64
	maxRetry    time.Duration
}

// NewNotifier wires the notifier. adminUserID receives review-queue events.
func NewNotifier(hub *Hub, log *zap.Logger, adminUserID int64) *Notifier {
	return &Notifier{
		hub:         hub,
		log:         log.Named("notifier"),
		adminUserID: adminUserID,
		maxRetry:    10 * time.Second,
	}
}

// QueueForReview pushes a submitted confession to the admin.
func (n *Notifier) QueueForReview(ctx context.Context, conf *models.Confession) error {
	return n.sendToUser(ctx, n.adminUserID, Event{Type: "confession_pending", Data: conf})
}

// PublishConfession broadcasts an approved confession to the public feed.
func (n *Notifier) PublishConfession(ctx context.Context, conf *models.Confession) error {
	return n.broadcast(Event{Type: "confession_published", Data: conf})
}

// DeliverMessage pushes a chat message to its recipient.
func (n *Notifier) DeliverMessage(ctx context.Context, toUserID int64, msg *models.ChatMessage) error {
	return n.sendToUser(ctx, toUserID, Event{Type: "chat_message", Data: msg})
}

// NotifyUser pushes a named event to one user.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, event string) error {
	return n.sendToUser(ctx, userID, Event{Type: "notify", Data: event})
}

func (n *Notifier) broadcast(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	n.hub.Broadcast <- payload
	return nil
}

// sendToUser hands the frame to the hub without blocking the caller: the
// state transition behind the event is already committed, so the retry loop
// runs detached and outlives the request context. A recipient with no open
// connection is dropped up front; retries cover transient send failures of
// a connected user, not waiting for someone to come online.
func (n *Notifier) sendToUser(ctx context.Context, userID int64, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if !n.hub.Connected(userID) {
		n.log.Debug("user offline, dropping event",
			zap.Int64("user_id", userID),
			zap.String("type", ev.Type))
		return nil
	}

	retryCtx := context.WithoutCancel(ctx)
	go func() {
		policy := backoff.WithContext(backoff.NewExponentialBackOff(
			backoff.WithMaxElapsedTime(n.maxRetry),
		), retryCtx)
		err := backoff.Retry(func() error {
			return n.hub.SendToUser(userID, payload)
		}, policy)
		if err != nil {
			n.log.Warn("directed send failed",
				zap.Int64("user_id", userID),
				zap.String("type", ev.Type),
				zap.Error(err))
		}
	}()
	return nil
}
