package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/confessio/confessio/internal/ws"
)

const (
	// One submission-flow request every 3 seconds per IP; the engine's own
	// per-user submission window sits behind this.
	rateLimitRPS   = 1.0 / 3.0
	rateLimitBurst = 1
)

// Options carries the dispatcher's transport-level configuration.
type Options struct {
	CORSOrigin string
	AdminToken string
}

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, env *Env, hub *ws.Hub, opts Options) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	ws.SetAllowedOrigin(corsOrigin)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.Sweep()
		}
	}()

	api := router.Group("/api")
	{
		// Moderation pipeline
		api.POST("/confessions/draft", RateLimitMiddleware(limiter), env.StartDraft)
		api.GET("/confessions/:id", env.GetConfession)
		api.PUT("/confessions/:id/content", env.UpdateDraftContent)
		api.PUT("/confessions/:id/categories", env.SetDraftCategories)
		api.POST("/confessions/:id/submit", RateLimitMiddleware(limiter), env.SubmitConfession)
		api.POST("/confessions/:id/cancel", env.CancelConfession)
		api.POST("/confessions/:id/decide", AdminAuthMiddleware(opts.AdminToken), env.DecideConfession)

		// Comment threads
		api.GET("/confessions/:id/comments", env.ListComments)
		api.POST("/confessions/:id/comments", env.AddComment)
		api.GET("/comments/:id/replies", env.ListReplies)

		// Engagement graph
		api.POST("/comments/:id/vote", env.VoteOnComment)
		api.GET("/comments/:id/votes", env.GetVotes)
		api.POST("/users/:id/follow", env.ToggleFollow)
		api.POST("/users/:id/block", env.BlockUser)
		api.DELETE("/users/:id/block", env.UnblockUser)

		// Profiles and the admin side channel
		api.GET("/users/:id/profile", env.GetProfile)
		api.GET("/users/:id/confessions", env.ListUserConfessions)
		api.GET("/users/:id/comments", env.ListUserComments)
		api.GET("/users/:id/followers", env.ListFollowers)
		api.GET("/users/:id/following", env.ListFollowing)
		api.PATCH("/users/:id/profile", env.UpdateProfile)
		api.POST("/users/:id/report", env.ReportUser)
		api.POST("/help", env.MessageAdmin)

		// Chat negotiation
		api.POST("/chats/requests", env.RequestChat)
		api.POST("/chats/requests/:id/respond", env.RespondToChatRequest)
		api.POST("/chats/:id/messages", env.SendChatMessage)
		api.GET("/chats/:id/messages", env.GetChatMessages)
		api.POST("/chats/:id/leave", env.LeaveChat)
		api.POST("/chats/:id/block", env.BlockFromChat)
		api.GET("/users/:id/chats", env.ListUserChats)
	}

	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(hub, env.Log, c.Writer, c.Request)
	})
}
