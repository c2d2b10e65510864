// Package live keeps track of connected client sessions and pushes notifications to them.
package live

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/internal/model"
)

var (
	// ErrSessionClosed is returned by sessions whose client went away.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionBusy is returned when a session cannot take another message right now.
	ErrSessionBusy = errors.New("session busy")
)

// Session is one connected client of a user.
type Session interface {
	Send(ctx context.Context, n model.Notification) error
}

// Registry maps users to their connected sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Session
	log      *zap.SugaredLogger
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		sessions: make(map[string]map[string]Session),
		log:      log.Named("live"),
	}
}

// Add registers s for userID. The returned func removes it again and is safe to call more than once.
func (r *Registry) Add(userID string, s Session) (remove func()) {
	id := uuid.NewString()

	r.mu.Lock()
	byID, ok := r.sessions[userID]
	if !ok {
		byID = make(map[string]Session)
		r.sessions[userID] = byID
	}
	byID[id] = s
	r.mu.Unlock()

	r.log.Debugw("session connected", "user_id", userID, "session_id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if byID, ok := r.sessions[userID]; ok {
				delete(byID, id)
				if len(byID) == 0 {
					delete(r.sessions, userID)
				}
			}
			r.log.Debugw("session disconnected", "user_id", userID, "session_id", id)
		})
	}
}

// Count returns how many sessions userID has open.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

// Push offers n to every session of userID and reports whether at least one took it.
// Failures are logged and otherwise ignored; the caller has already stored n.
func (r *Registry) Push(ctx context.Context, userID string, n model.Notification) bool {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions[userID]))
	for _, s := range r.sessions[userID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := false
	for _, s := range targets {
		if err := s.Send(ctx, n); err != nil {
			r.log.Debugw("live push failed", "user_id", userID, "notification_id", n.ID, "error", err)
			continue
		}
		delivered = true
	}
	return delivered
}
