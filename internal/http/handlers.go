package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confessio/confessio/internal/apperr"
	"github.com/confessio/confessio/internal/chat"
	"github.com/confessio/confessio/internal/confession"
	"github.com/confessio/confessio/internal/engage"
	"github.com/confessio/confessio/internal/models"
	"github.com/confessio/confessio/internal/profile"
	"github.com/confessio/confessio/internal/session"
	"github.com/confessio/confessio/internal/thread"
)

// Env bundles the engine services the handlers dispatch into.
type Env struct {
	Confessions *confession.Service
	Threads     *thread.Service
	Engage      *engage.Service
	Chats       *chat.Service
	Profiles    *profile.Service
	Sessions    *session.Manager
	Log         *zap.Logger
}

// respondErr maps the engine's typed rejections onto HTTP statuses; anything
// unrecognized is a retryable storage or transport fault.
func (e *Env) respondErr(c *gin.Context, err error) {
	if !apperr.Recoverable(err) {
		e.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Temporary failure, please retry"})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrProfanity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrBlocked):
		// No detail beyond "not delivered".
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrBlocked.Error()})
	default:
		// InvalidState, NotApproved, AlreadyProcessed, AlreadyRequested.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// --- Structs for request binding ---

type mediaInput struct {
	FileID string `json:"fileId"`
	Kind   string `json:"fileKind" binding:"omitempty,oneof=photo document"`
}

func (m mediaInput) model() models.Media {
	return models.Media{FileID: m.FileID, Kind: models.MediaKind(m.Kind)}
}

type startDraftInput struct {
	UserID int64 `json:"userId" binding:"required"`
}

type draftContentInput struct {
	Content string     `json:"content"`
	Media   mediaInput `json:"media"`
}

type categoriesInput struct {
	Categories []string `json:"categories" binding:"required"`
}

type decideInput struct {
	Outcome string `json:"outcome" binding:"required,oneof=approve reject"`
}

type addCommentInput struct {
	UserID   int64      `json:"userId" binding:"required"`
	Content  string     `json:"content"`
	Media    mediaInput `json:"media"`
	ParentID *uint      `json:"parentId"`
}

// --- Moderation pipeline ---

// StartDraft returns the caller's open draft, creating one if needed. The
// submission window is checked up front so users aren't sent into a flow
// they cannot finish.
func (e *Env) StartDraft(c *gin.Context) {
	var input startDraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	remaining, err := e.Confessions.SubmitWindowRemaining(c.Request.Context(), input.UserID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	if remaining > 0 {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":            "You must wait before submitting a new confession",
			"retryAfterSecond": int(remaining.Seconds()),
		})
		return
	}

	conf, err := e.Confessions.StartOrResumeDraft(c.Request.Context(), input.UserID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	e.Sessions.StartDrafting(input.UserID, conf.ID)
	c.JSON(http.StatusOK, conf)
}

func (e *Env) UpdateDraftContent(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input draftContentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Confessions.UpdateDraftContent(c.Request.Context(), confID, input.Content, input.Media.model()); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (e *Env) SetDraftCategories(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input categoriesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Confessions.SetDraftCategories(c.Request.Context(), confID, input.Categories); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (e *Env) SubmitConfession(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := e.Confessions.Submit(c.Request.Context(), confID); err != nil {
		e.respondErr(c, err)
		return
	}
	if conf, err := e.Confessions.Get(c.Request.Context(), confID); err == nil {
		e.Sessions.Clear(conf.UserID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (e *Env) CancelConfession(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := e.Confessions.Cancel(c.Request.Context(), confID); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// DecideConfession records the admin outcome. Approval publishes to the
// public feed; a repeated decision is a conflict and never re-publishes.
func (e *Env) DecideConfession(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input decideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Confessions.Decide(c.Request.Context(), confID, confession.Outcome(input.Outcome)); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": input.Outcome + "d"})
}

func (e *Env) GetConfession(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	conf, err := e.Confessions.Get(c.Request.Context(), confID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	comments, err := e.Threads.CountForConfession(c.Request.Context(), confID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confession": conf, "commentCount": comments})
}

// --- Comment threads ---

func (e *Env) AddComment(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input addCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	e.Sessions.StartCommenting(input.UserID, confID, input.ParentID)
	comment, err := e.Threads.Add(c.Request.Context(), confID, input.UserID, input.Content, input.Media.model(), input.ParentID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	e.Sessions.Clear(input.UserID)
	c.JSON(http.StatusCreated, comment)
}

// ListComments returns one page of root comments with their full nested
// reply trees attached, plus page arithmetic for the keyboard.
func (e *Env) ListComments(c *gin.Context) {
	confID, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(thread.PageSize)))
	if pageSize <= 0 {
		pageSize = thread.PageSize
	}
	if pageSize > thread.MaxPageSize {
		pageSize = thread.MaxPageSize
	}

	roots, total, err := e.Threads.ListRoots(c.Request.Context(), confID, page, pageSize)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	nodes, err := e.Threads.Subtree(c.Request.Context(), roots)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"comments":   nodes,
		"totalCount": total,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (e *Env) ListReplies(c *gin.Context) {
	commentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	replies, err := e.Threads.ListReplies(c.Request.Context(), commentID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, replies)
}
