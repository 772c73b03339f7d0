package models

import (
	"time"
)

// ConfessionStatus is the moderation lifecycle state of a confession.
type ConfessionStatus string

const (
	StatusDraft     ConfessionStatus = "draft"
	StatusPending   ConfessionStatus = "pending"
	StatusApproved  ConfessionStatus = "approved"
	StatusRejected  ConfessionStatus = "rejected"
	StatusCancelled ConfessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s ConfessionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// MediaKind tags the attached media reference of a confession or comment.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// Media is an opaque transport file reference plus its kind tag.
type Media struct {
	FileID string    `gorm:"column:file_id" json:"fileId,omitempty"`
	Kind   MediaKind `gorm:"column:file_kind" json:"fileKind,omitempty"`
}

// Present reports whether a media reference is attached.
func (m Media) Present() bool { return m.FileID != "" }

// Confession is a single anonymous submission moving through moderation.
type Confession struct {
	ID         uint             `gorm:"primarykey" json:"id"`
	UserID     int64            `gorm:"not null;index" json:"-"`
	Content    string           `json:"content"`
	Media      Media            `gorm:"embedded" json:"media"`
	Status     ConfessionStatus `gorm:"not null;default:draft;index" json:"status"`
	Categories []string         `gorm:"serializer:json" json:"categories"`

	// Transport anchors, set after delivery. Never part of a transition.
	AdminMessageID   *int64 `json:"-"`
	ChannelMessageID *int64 `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

// SubmissionStamp records a user's last accepted submission for rate limiting.
type SubmissionStamp struct {
	UserID int64     `gorm:"primaryKey"`
	LastAt time.Time `gorm:"not null"`
}

// Comment belongs to a confession; ParentID nil means root. Depth is derived
// by walking parent links, never stored.
type Comment struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	ConfessionID uint      `gorm:"not null;index" json:"confessionId"`
	UserID       int64     `gorm:"not null;index" json:"-"`
	Content      string    `json:"content"`
	Media        Media     `gorm:"embedded" json:"media"`
	ParentID     *uint     `gorm:"index" json:"parentId,omitempty"`
	BotMessageID *int64    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VoteValue is a like or dislike.
type VoteValue string

const (
	VoteLike    VoteValue = "like"
	VoteDislike VoteValue = "dislike"
)

// Vote is keyed by (comment, user); the composite primary key is the
// uniqueness constraint the toggle semantics lean on.
type Vote struct {
	CommentID uint      `gorm:"primaryKey" json:"commentId"`
	UserID    int64     `gorm:"primaryKey" json:"-"`
	Value     VoteValue `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Follow is a presence-based edge: a row means "following".
type Follow struct {
	FollowerID int64     `gorm:"primaryKey" json:"followerId"`
	FolloweeID int64     `gorm:"primaryKey" json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Block suppresses chat delivery from blocked to blocker.
type Block struct {
	BlockerID int64     `gorm:"primaryKey" json:"blockerId"`
	BlockedID int64     `gorm:"primaryKey" json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RequestStatus is the state of a chat request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ChatRequest is one ordered (from, to) negotiation row; the unique index on
// the pair keeps requests idempotent.
type ChatRequest struct {
	ID         uint          `gorm:"primarykey" json:"id"`
	FromUserID int64         `gorm:"not null;uniqueIndex:idx_chat_request_pair" json:"fromUserId"`
	ToUserID   int64         `gorm:"not null;uniqueIndex:idx_chat_request_pair" json:"toUserId"`
	Status     RequestStatus `gorm:"not null;default:pending" json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"-"`
}

// ActiveChat is a live session keyed by the canonical unordered user pair,
// smaller id stored first.
type ActiveChat struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	User1ID   int64     `gorm:"not null;uniqueIndex:idx_active_chat_pair" json:"user1Id"`
	User2ID   int64     `gorm:"not null;uniqueIndex:idx_active_chat_pair" json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

// CanonicalPair orders two user ids so (A,B) and (B,A) map to one session key.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Other returns the counterpart of userID in the chat.
func (c *ActiveChat) Other(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ChatMessage is one persisted message inside an active chat.
type ChatMessage struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ChatID     uint      `gorm:"not null;index" json:"chatId"`
	FromUserID int64     `gorm:"not null" json:"fromUserId"`
	ToUserID   int64     `gorm:"not null" json:"toUserId"`
	Content    string    `gorm:"not null" json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Default profile field values, applied on lazy creation.
const (
	DefaultBio        = "No bio set"
	DefaultDepartment = "Not specified"
	DefaultNickname   = "Anonymous"
)

// UserProfile is created lazily on first access and never deleted.
type UserProfile struct {
	UserID        int64     `gorm:"primaryKey" json:"userId"`
	AuraPoints    int       `gorm:"not null;default:0" json:"auraPoints"`
	Bio           string    `json:"bio"`
	Department    string    `json:"department"`
	Nickname      string    `json:"nickname"`
	TermsAccepted bool      `gorm:"not null;default:false" json:"termsAccepted"`
	StartUsed     bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt     time.Time `json:"-"`
}

// ProfileUpdate is a typed partial update: nil fields are left untouched.
type ProfileUpdate struct {
	Bio           *string
	Department    *string
	Nickname      *string
	TermsAccepted *bool
	StartUsed     *bool
}

// Report is a user-filed complaint about another user.
type Report struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ReporterID     int64     `gorm:"not null;index" json:"-"`
	ReportedUserID int64     `gorm:"not null;index" json:"reportedUserId"`
	Reason         string    `json:"reason,omitempty"`
	CustomReason   string    `json:"customReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AdminMessage is a free-form help message from a user to the admin.
type AdminMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"-"`
	Text      string    `gorm:"not null" json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// All lists every entity for migration, leaves first.
func All() []any {
	return []any{
		&UserProfile{},
		&Confession{},
		&SubmissionStamp{},
		&Comment{},
		&Vote{},
		&Follow{},
		&Block{},
		&ChatRequest{},
		&ActiveChat{},
		&ChatMessage{},
		&Report{},
		&AdminMessage{},
	}
}
