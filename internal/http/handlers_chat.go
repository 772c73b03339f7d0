package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/confessio/confessio/internal/chat"
	"github.com/confessio/confessio/internal/session"
)

type chatRequestInput struct {
	FromUserID int64 `json:"fromUserId" binding:"required"`
	ToUserID   int64 `json:"toUserId" binding:"required"`
}

type chatRespondInput struct {
	Outcome string `json:"outcome" binding:"required,oneof=accept reject"`
}

type chatMessageInput struct {
	FromUserID int64  `json:"fromUserId" binding:"required"`
	ToUserID   int64  `json:"toUserId" binding:"required"`
	Content    string `json:"content" binding:"required,min=1,max=4000"`
}

type chatLeaveInput struct {
	UserID int64 `json:"userId" binding:"required"`
}

// RequestChat resolves a chat request; depending on prior state the caller
// lands in an existing session, gets auto-accepted, or leaves a pending
// request behind.
func (e *Env) RequestChat(c *gin.Context) {
	var input chatRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	result, err := e.Chats.Request(c.Request.Context(), input.FromUserID, input.ToUserID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	if result.Chat != nil {
		e.Sessions.EnterChat(input.FromUserID, result.Chat.ID, input.ToUserID)
	}
	c.JSON(http.StatusOK, result)
}

func (e *Env) RespondToChatRequest(c *gin.Context) {
	requestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input chatRespondInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	activeChat, err := e.Chats.Respond(c.Request.Context(), requestID, input.Outcome == "accept")
	if err != nil {
		e.respondErr(c, err)
		return
	}
	if activeChat == nil {
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "chat": activeChat})
}

func (e *Env) SendChatMessage(c *gin.Context) {
	chatID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input chatMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	msg, inSession, err := e.Chats.SendMessage(c.Request.Context(), chatID, input.FromUserID, input.ToUserID, input.Content)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	// Sending counts as presence; only touch the session when it changed.
	if st := e.Sessions.Get(input.FromUserID); st.Mode != session.ModeChatting || st.ChatID != chatID {
		e.Sessions.EnterChat(input.FromUserID, chatID, input.ToUserID)
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":       msg,
		"peerInSession": inSession,
	})
}

func (e *Env) GetChatMessages(c *gin.Context) {
	chatID, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(chat.HistoryLimit)))
	msgs, err := e.Chats.Messages(c.Request.Context(), chatID, limit)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (e *Env) LeaveChat(c *gin.Context) {
	chatID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input chatLeaveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Chats.Leave(c.Request.Context(), chatID, input.UserID); err != nil {
		e.respondErr(c, err)
		return
	}
	e.Sessions.Clear(input.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// BlockFromChat ends the session and blocks the counterpart in one step.
func (e *Env) BlockFromChat(c *gin.Context) {
	chatID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input chatLeaveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Chats.Block(c.Request.Context(), chatID, input.UserID); err != nil {
		e.respondErr(c, err)
		return
	}
	e.Sessions.Clear(input.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "blocked"})
}

func (e *Env) ListUserChats(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	chats, err := e.Chats.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	type entry struct {
		ChatID      uint  `json:"chatId"`
		OtherUserID int64 `json:"otherUserId"`
	}
	out := make([]entry, 0, len(chats))
	for i := range chats {
		out = append(out, entry{ChatID: chats[i].ID, OtherUserID: chats[i].Other(userID)})
	}
	c.JSON(http.StatusOK, out)
}
