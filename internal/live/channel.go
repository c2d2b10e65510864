package live

import (
	"context"
	"sync"

	"taskflow/internal/model"
)

// ChannelSession buffers notifications for a streaming connection such as SSE.
// Send never blocks: a full buffer reports ErrSessionBusy.
type ChannelSession struct {
	messages chan model.Notification
	done     chan struct{}
	once     sync.Once
}

func NewChannelSession(buffer int) *ChannelSession {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSession{
		messages: make(chan model.Notification, buffer),
		done:     make(chan struct{}),
	}
}

func (s *ChannelSession) Send(_ context.Context, n model.Notification) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.messages <- n:
		return nil
	default:
		return ErrSessionBusy
	}
}

// Messages yields notifications in push order.
func (s *ChannelSession) Messages() <-chan model.Notification {
	return s.messages
}

// Done is closed once the session is closed.
func (s *ChannelSession) Done() <-chan struct{} {
	return s.done
}

func (s *ChannelSession) Close() {
	s.once.Do(func() { close(s.done) })
}
