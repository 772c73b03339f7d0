package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/confessio/confessio/internal/chat"
	"github.com/confessio/confessio/internal/confession"
	"github.com/confessio/confessio/internal/db"
	"github.com/confessio/confessio/internal/engage"
	routes "github.com/confessio/confessio/internal/http"
	"github.com/confessio/confessio/internal/profanity"
	"github.com/confessio/confessio/internal/profile"
	"github.com/confessio/confessio/internal/session"
	"github.com/confessio/confessio/internal/thread"
	"github.com/confessio/confessio/internal/ws"
)

const defaultRateWindow = 120 * time.Second

func main() {
	// Allows running in production (where env vars are set directly)
	// without a .env file.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Init(os.Getenv("DATABASE_URL"), logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	hub := ws.NewHub()
	go hub.Run()

	adminUserID, _ := strconv.ParseInt(os.Getenv("ADMIN_USER_ID"), 10, 64)
	notifier := ws.NewNotifier(hub, logger, adminUserID)

	rateWindow := defaultRateWindow
	if raw := os.Getenv("RATE_LIMIT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			rateWindow = time.Duration(secs) * time.Second
		}
	}

	var profane profanity.Checker = profanity.None
	if raw := os.Getenv("BANNED_WORDS"); raw != "" {
		profane = profanity.NewWordSet(strings.Split(raw, ","))
	}

	sessions := session.NewManager()
	engageSvc := engage.NewService(database, logger)
	env := &routes.Env{
		Confessions: confession.NewService(database, logger, notifier, profane, rateWindow),
		Threads:     thread.NewService(database, logger, profane),
		Engage:      engageSvc,
		Chats:       chat.NewService(database, logger, engageSvc, notifier, sessions),
		Profiles:    profile.NewService(database, logger, notifier, adminUserID),
		Sessions:    sessions,
		Log:         logger,
	}

	router := gin.Default()
	routes.SetupRoutes(router, env, hub, routes.Options{
		CORSOrigin: os.Getenv("CORS_ORIGIN"),
		AdminToken: os.Getenv("X_ADMIN_TOKEN"),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
