// Package api exposes task mutation and notification endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/live"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

// TaskService is the task surface the handlers drive.
type TaskService interface {
	Create(ctx context.Context, actorID string, in service.TaskInput) (*model.Task, error)
	Update(ctx context.Context, actorID, id string, patch service.TaskPatch) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, actorID string, f repository.TaskFilter) ([]model.Task, error)
	Delete(ctx context.Context, actorID, id string) error
	Follow(ctx context.Context, taskID, userID string) error
	Unfollow(ctx context.Context, taskID, userID string) error
}

type NotificationService interface {
	List(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Sessions registers live connections.
type Sessions interface {
	Add(userID string, s live.Session) (remove func())
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Tasks         TaskService
	Notifications NotificationService
	Sessions      Sessions
	Tokens        TokenVerifier
	Log           *zap.SugaredLogger
	// KeepAlive is the interval of comment pings on notification streams.
	KeepAlive time.Duration
}

type handler struct {
	Deps
	log *zap.SugaredLogger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(deps Deps) *gin.Engine {
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 25 * time.Second
	}
	h := &handler{Deps: deps, log: deps.Log.Named("api")}

	r := gin.New()
	setupMiddleware(r, h.log)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	private := r.Group("/api/v1")
	private.Use(authMiddleware(deps.Tokens))
	{
		private.POST("/tasks", h.createTask)
		private.GET("/tasks", h.listTasks)
		private.GET("/tasks/:id", h.getTask)
		private.PATCH("/tasks/:id", h.updateTask)
		private.DELETE("/tasks/:id", h.deleteTask)
		private.POST("/tasks/:id/follow", h.followTask)
		private.DELETE("/tasks/:id/follow", h.unfollowTask)

		private.GET("/notifications", h.listNotifications)
		private.PATCH("/notifications/:id/read", h.markRead)
		private.POST("/notifications/read-all", h.markAllRead)
		private.GET("/notifications/stream", h.streamNotifications)
	}
	return r
}

// Serve runs the router on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
