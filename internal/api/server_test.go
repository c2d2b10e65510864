package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/auth"
	"taskflow/internal/live"
	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

type mockTasks struct {
	CreateFunc func(ctx context.Context, actorID string, in service.TaskInput) (*model.Task, error)
	UpdateFunc func(ctx context.Context, actorID, id string, patch service.TaskPatch) (*model.Task, error)
	GetFunc    func(ctx context.Context, id string) (*model.Task, error)
	ListFunc   func(ctx context.Context, actorID string, f repository.TaskFilter) ([]model.Task, error)
	followed   []string
	deleted    []string
}

func (m *mockTasks) Create(ctx context.Context, actorID string, in service.TaskInput) (*model.Task, error) {
	return m.CreateFunc(ctx, actorID, in)
}

func (m *mockTasks) Update(ctx context.Context, actorID, id string, patch service.TaskPatch) (*model.Task, error) {
	return m.UpdateFunc(ctx, actorID, id, patch)
}

func (m *mockTasks) Get(ctx context.Context, id string) (*model.Task, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockTasks) List(ctx context.Context, actorID string, f repository.TaskFilter) ([]model.Task, error) {
	return m.ListFunc(ctx, actorID, f)
}

func (m *mockTasks) Delete(_ context.Context, actorID, id string) error {
	if id == "missing" {
		return fmt.Errorf("delete task %s: %w", id, repository.ErrNotFound)
	}
	m.deleted = append(m.deleted, id+":"+actorID)
	return nil
}

func (m *mockTasks) Follow(_ context.Context, taskID, userID string) error {
	m.followed = append(m.followed, taskID+":"+userID)
	return nil
}

func (m *mockTasks) Unfollow(context.Context, string, string) error {
	return repository.ErrNotFound
}

type mockNotifications struct {
	items   []model.Notification
	read    []string
	lastLim int
}

func (m *mockNotifications) List(_ context.Context, _ string, limit int) ([]model.Notification, error) {
	m.lastLim = limit
	return m.items, nil
}

func (m *mockNotifications) UnreadCount(context.Context, string) (int64, error) {
	return int64(len(m.items)), nil
}

func (m *mockNotifications) MarkRead(_ context.Context, id, userID string) error {
	if id == "missing" {
		return fmt.Errorf("find notification %s: %w", id, repository.ErrNotFound)
	}
	m.read = append(m.read, id+":"+userID)
	return nil
}

func (m *mockNotifications) MarkAllRead(context.Context, string) (int64, error) {
	return 3, nil
}

type testServer struct {
	router   *gin.Engine
	tasks    *mockTasks
	inbox    *mockNotifications
	registry *live.Registry
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokens("test-secret")
	token, err := tokens.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	s := &testServer{
		tasks:    &mockTasks{},
		inbox:    &mockNotifications{},
		registry: live.NewRegistry(zap.NewNop().Sugar()),
		token:    token,
	}
	s.router = NewRouter(Deps{
		Tasks:         s.tasks,
		Notifications: s.inbox,
		Sessions:      s.registry,
		Tokens:        tokens,
		Log:           zap.NewNop().Sugar(),
		KeepAlive:     time.Hour,
	})
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	s.token = "garbage"
	if w := s.do(http.MethodGet, "/api/v1/notifications", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", w.Code)
	}
}

func TestCreateTaskUsesCaller(t *testing.T) {
	s := newTestServer(t)
	var gotActor string
	s.tasks.CreateFunc = func(_ context.Context, actorID string, in service.TaskInput) (*model.Task, error) {
		gotActor = actorID
		return &model.Task{ID: "t1", Title: in.Title, CreatorID: actorID}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/tasks", `{"title":"Write docs","priority":"HIGH"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotActor != "user-1" {
		t.Errorf("Expected actor user-1, got %s", gotActor)
	}
	var task model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Title != "Write docs" {
		t.Errorf("Expected title in response, got %+v", task)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("find task x: %w", repository.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: title is required", service.ErrInvalidTask), http.StatusBadRequest},
		{service.ErrHierarchyCycle, http.StatusBadRequest},
		{fmt.Errorf("%w: unsupported frequency", recurrence.ErrInvalidRule), http.StatusBadRequest},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		s.tasks.UpdateFunc = func(context.Context, string, string, service.TaskPatch) (*model.Task, error) {
			return nil, tt.err
		}
		w := s.do(http.MethodPatch, "/api/v1/tasks/t1", `{"title":"x"}`)
		if w.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
		if tt.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "locked") {
			t.Errorf("Expected internal error details hidden, got %s", w.Body.String())
		}
	}
}

func TestPatchNullClearsField(t *testing.T) {
	s := newTestServer(t)
	var got service.TaskPatch
	s.tasks.UpdateFunc = func(_ context.Context, _, _ string, patch service.TaskPatch) (*model.Task, error) {
		got = patch
		return &model.Task{ID: "t1"}, nil
	}

	if w := s.do(http.MethodPatch, "/api/v1/tasks/t1", `{"assigneeId":null}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !got.AssigneeID.Set || got.AssigneeID.Value != nil {
		t.Errorf("Expected assignee cleared, got %+v", got.AssigneeID)
	}
	if got.Title != nil || got.DueDate.Set {
		t.Errorf("Expected untouched fields to stay unset")
	}
}

func TestFollowEndpoints(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodPost, "/api/v1/tasks/t1/follow", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if len(s.tasks.followed) != 1 || s.tasks.followed[0] != "t1:user-1" {
		t.Errorf("Expected caller to follow t1, got %v", s.tasks.followed)
	}
	if w := s.do(http.MethodDelete, "/api/v1/tasks/t1/follow", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListTasksParsesFilter(t *testing.T) {
	s := newTestServer(t)
	var (
		gotActor  string
		gotFilter repository.TaskFilter
	)
	s.tasks.ListFunc = func(_ context.Context, actorID string, f repository.TaskFilter) ([]model.Task, error) {
		gotActor, gotFilter = actorID, f
		return []model.Task{{ID: "t1", Title: "Mine"}}, nil
	}

	w := s.do(http.MethodGet, "/api/v1/tasks?status=done&priority=HIGH&assigneeName=bo&onlyFollowed=true&sortBy=dueDate&sortOrder=asc&startDate=2024-02-01&endDate=2024-02-29", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotActor != "user-1" {
		t.Errorf("Expected actor user-1, got %s", gotActor)
	}
	if gotFilter.Status != model.StatusDone || gotFilter.Priority != model.PriorityHigh || gotFilter.AssigneeName != "bo" ||
		!gotFilter.OnlyFollowed || gotFilter.SortBy != "dueDate" || gotFilter.Descending {
		t.Errorf("Unexpected filter %+v", gotFilter)
	}
	wantFrom := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if gotFilter.CreatedFrom == nil || !gotFilter.CreatedFrom.Equal(wantFrom) {
		t.Errorf("Expected start %s, got %v", wantFrom, gotFilter.CreatedFrom)
	}
	if gotFilter.CreatedTo == nil || !gotFilter.CreatedTo.Equal(wantTo) {
		t.Errorf("Expected end of day %s, got %v", wantTo, gotFilter.CreatedTo)
	}

	var body struct {
		Items []model.Task `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != "t1" {
		t.Errorf("Unexpected items %+v", body.Items)
	}

	if w := s.do(http.MethodGet, "/api/v1/tasks", ""); w.Code != http.StatusOK || !gotFilter.Descending {
		t.Errorf("Expected newest first by default, got %d %+v", w.Code, gotFilter)
	}
	for _, bad := range []string{"sortOrder=sideways", "startDate=yesterday"} {
		if w := s.do(http.MethodGet, "/api/v1/tasks?"+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodDelete, "/api/v1/tasks/t1", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if len(s.tasks.deleted) != 1 || s.tasks.deleted[0] != "t1:user-1" {
		t.Errorf("Expected t1 deleted by caller, got %v", s.tasks.deleted)
	}
	if w := s.do(http.MethodDelete, "/api/v1/tasks/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.inbox.items = []model.Notification{{ID: "n1", UserID: "user-1", Content: "hello"}}

	w := s.do(http.MethodGet, "/api/v1/notifications?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Items  []model.Notification `json:"items"`
		Unread int64                `json:"unread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Unread != 1 || s.inbox.lastLim != 5 {
		t.Errorf("Unexpected list response %+v (limit %d)", body, s.inbox.lastLim)
	}

	if w := s.do(http.MethodPatch, "/api/v1/notifications/n1/read", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w := s.do(http.MethodPatch, "/api/v1/notifications/missing/read", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/v1/notifications/read-all", ""); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"updated":3`)) {
		t.Errorf("Expected read-all to report 3, got %d %s", w.Code, w.Body.String())
	}
}

func TestNotificationStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/notifications/stream?token="+s.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var event strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if line == "\n" {
				return event.String()
			}
			event.WriteString(line)
		}
	}

	if ready := readEvent(); !strings.Contains(ready, "event:ready") {
		t.Fatalf("Expected ready event, got %q", ready)
	}
	if n := s.registry.Count("user-1"); n != 1 {
		t.Fatalf("Expected one live session, got %d", n)
	}

	if !s.registry.Push(context.Background(), "user-1", model.Notification{ID: "n42", Content: "Reminder"}) {
		t.Fatalf("Expected push to reach the stream")
	}
	if event := readEvent(); !strings.Contains(event, "event:notification") || !strings.Contains(event, `"id":"n42"`) {
		t.Errorf("Expected notification event, got %q", event)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.registry.Count("user-1") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.registry.Count("user-1"); n != 0 {
		t.Errorf("Expected session removed after disconnect, got %d", n)
	}
}
