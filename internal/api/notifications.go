package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskflow/internal/live"
)

const streamBuffer = 16

func (h *handler) listNotifications(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Notifications.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	unread, err := h.Notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "unread": unread})
}

func (h *handler) markRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) markAllRead(c *gin.Context) {
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// streamNotifications keeps a server-sent event stream open and registers it as a
// live session of the caller for as long as the client stays connected.
func (h *handler) streamNotifications(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	session := live.NewChannelSession(streamBuffer)
	remove := h.Sessions.Add(userID, session)
	defer func() {
		remove()
		session.Close()
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"userId": userID})
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.KeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case n := <-session.Messages():
			c.SSEvent("notification", n)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}
