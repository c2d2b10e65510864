package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

// taskQuery is the query string of GET /tasks.
type taskQuery struct {
	Status       string `form:"status"`
	Priority     string `form:"priority"`
	AssigneeID   string `form:"assigneeId"`
	CreatorID    string `form:"creatorId"`
	CreatorName  string `form:"creatorName"`
	AssigneeName string `form:"assigneeName"`
	StartDate    string `form:"startDate"`
	EndDate      string `form:"endDate"`
	SortBy       string `form:"sortBy"`
	SortOrder    string `form:"sortOrder"`
	OnlyFollowed bool   `form:"onlyFollowed"`
}

func (q taskQuery) filter() (repository.TaskFilter, error) {
	f := repository.TaskFilter{
		Status:       model.TaskStatus(strings.ToUpper(q.Status)),
		Priority:     model.TaskPriority(strings.ToUpper(q.Priority)),
		AssigneeID:   q.AssigneeID,
		CreatorID:    q.CreatorID,
		CreatorName:  q.CreatorName,
		AssigneeName: q.AssigneeName,
		OnlyFollowed: q.OnlyFollowed,
		SortBy:       q.SortBy,
	}

	switch strings.ToUpper(q.SortOrder) {
	case "", "DESC":
		f.Descending = true
	case "ASC":
	default:
		return f, fmt.Errorf("%w: sortOrder must be ASC or DESC", service.ErrInvalidFilter)
	}

	var err error
	if f.CreatedFrom, err = parseQueryTime(q.StartDate, false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseQueryTime(q.EndDate, true); err != nil {
		return f, err
	}
	return f, nil
}

// parseQueryTime accepts RFC 3339 or a plain date. A plain end date covers the whole day.
func parseQueryTime(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", service.ErrInvalidFilter, raw)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// listTasks returns the caller's tasks, newest first unless sortOrder says otherwise.
func (h *handler) listTasks(c *gin.Context) {
	var q taskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	f, err := q.filter()
	if err != nil {
		h.fail(c, err)
		return
	}

	tasks, err := h.Tasks.List(c.Request.Context(), c.GetString(ctxUserID), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tasks})
}

func (h *handler) deleteTask(c *gin.Context) {
	if err := h.Tasks.Delete(c.Request.Context(), c.GetString(ctxUserID), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) createTask(c *gin.Context) {
	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.Tasks.Create(c.Request.Context(), c.GetString(ctxUserID), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *handler) getTask(c *gin.Context) {
	task, err := h.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// updateTask applies a partial update; a JSON null clears an optional field.
func (h *handler) updateTask(c *gin.Context) {
	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.Tasks.Update(c.Request.Context(), c.GetString(ctxUserID), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handler) followTask(c *gin.Context) {
	if err := h.Tasks.Follow(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) unfollowTask(c *gin.Context) {
	if err := h.Tasks.Unfollow(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
