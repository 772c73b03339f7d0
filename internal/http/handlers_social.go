package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/confessio/confessio/internal/models"
)

type voteInput struct {
	UserID int64  `json:"userId" binding:"required"`
	Value  string `json:"value" binding:"required,oneof=like dislike"`
}

type followInput struct {
	FollowerID int64 `json:"followerId" binding:"required"`
}

type blockInput struct {
	BlockerID int64 `json:"blockerId" binding:"required"`
}

type profileUpdateInput struct {
	Bio           *string `json:"bio"`
	Department    *string `json:"department"`
	Nickname      *string `json:"nickname"`
	TermsAccepted *bool   `json:"termsAccepted"`
}

type reportInput struct {
	ReporterID   int64  `json:"reporterId" binding:"required"`
	Reason       string `json:"reason"`
	CustomReason string `json:"customReason"`
}

type adminMessageInput struct {
	UserID int64  `json:"userId" binding:"required"`
	Text   string `json:"text" binding:"required,min=1,max=2000"`
}

// VoteOnComment applies toggle voting and returns the fresh tally so the
// caller can redraw its buttons.
func (e *Env) VoteOnComment(c *gin.Context) {
	commentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input voteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	// The vote row does not reference the comment table, so existence is
	// checked here at the edge.
	if _, err := e.Threads.Get(c.Request.Context(), commentID); err != nil {
		e.respondErr(c, err)
		return
	}

	action, err := e.Engage.Vote(c.Request.Context(), commentID, input.UserID, models.VoteValue(input.Value))
	if err != nil {
		e.respondErr(c, err)
		return
	}
	counts, err := e.Engage.Counts(c.Request.Context(), commentID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	current, err := e.Engage.CurrentVote(c.Request.Context(), commentID, input.UserID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"action":      action,
		"counts":      counts,
		"currentVote": current,
	})
}

func (e *Env) GetVotes(c *gin.Context) {
	commentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	counts, err := e.Engage.Counts(c.Request.Context(), commentID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	resp := gin.H{"counts": counts}
	if raw := c.Query("userId"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid userId"})
			return
		}
		current, err := e.Engage.CurrentVote(c.Request.Context(), commentID, userID)
		if err != nil {
			e.respondErr(c, err)
			return
		}
		resp["currentVote"] = current
	}
	c.JSON(http.StatusOK, resp)
}

func (e *Env) ToggleFollow(c *gin.Context) {
	followeeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	var input followInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	nowFollowing, err := e.Engage.ToggleFollow(c.Request.Context(), input.FollowerID, followeeID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": nowFollowing})
}

func (e *Env) BlockUser(c *gin.Context) {
	blockedID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	var input blockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Engage.Block(c.Request.Context(), input.BlockerID, blockedID); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "blocked"})
}

func (e *Env) UnblockUser(c *gin.Context) {
	blockedID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	var input blockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Engage.Unblock(c.Request.Context(), input.BlockerID, blockedID); err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unblocked"})
}

// GetProfile returns the profile (created on first access) along with the
// follow tallies the profile view renders.
func (e *Env) GetProfile(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	p, err := e.Profiles.Get(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	follows, err := e.Engage.CountFollows(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	confessions, err := e.Confessions.CountByUser(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	comments, err := e.Threads.CountByUser(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":         p,
		"follows":         follows,
		"confessionCount": confessions,
		"commentCount":    comments,
	})
}

// ListUserConfessions returns the user's most recent confessions, newest
// first. The limit query parameter defaults to 10.
func (e *Env) ListUserConfessions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	confs, err := e.Confessions.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, confs)
}

func (e *Env) ListUserComments(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	comments, err := e.Threads.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (e *Env) ListFollowers(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	ids, err := e.Engage.Followers(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"followers": ids})
}

func (e *Env) ListFollowing(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	ids, err := e.Engage.Following(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": ids})
}

func (e *Env) UpdateProfile(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	var input profileUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	upd := models.ProfileUpdate{
		Bio:           input.Bio,
		Department:    input.Department,
		Nickname:      input.Nickname,
		TermsAccepted: input.TermsAccepted,
	}
	if err := e.Profiles.Update(c.Request.Context(), userID, upd); err != nil {
		e.respondErr(c, err)
		return
	}
	p, err := e.Profiles.Get(c.Request.Context(), userID)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (e *Env) ReportUser(c *gin.Context) {
	reportedID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	var input reportInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	report, err := e.Profiles.Report(c.Request.Context(), input.ReporterID, reportedID, input.Reason, input.CustomReason)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (e *Env) MessageAdmin(c *gin.Context) {
	var input adminMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	msg, err := e.Profiles.MessageAdmin(c.Request.Context(), input.UserID, input.Text)
	if err != nil {
		e.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
