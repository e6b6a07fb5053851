package server

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/task"
)

// taskStore is the minimal metadata store the task service needs here.
type taskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newTaskStore() *taskStore {
	return &taskStore{tasks: make(map[string]*model.Task)}
}

func (s *taskStore) CreateDocument(ctx context.Context, doc *model.Document) error { return nil }
func (s *taskStore) UpdateDocument(ctx context.Context, doc *model.Document) error { return nil }
func (s *taskStore) UpdateDocumentStatus(ctx context.Context, id int64, status model.DocumentStatus) error {
	return nil
}
func (s *taskStore) GetDocument(ctx context.Context, ownerID, id int64) (*model.Document, error) {
	return nil, metastore.ErrNotFound
}
func (s *taskStore) ListDocuments(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Document, int64, error) {
	return nil, 0, nil
}
func (s *taskStore) SoftDeleteDocument(ctx context.Context, ownerID, id int64) error { return nil }

func (s *taskStore) CreateTask(ctx context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *taskStore) UpdateTask(ctx context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *taskStore) GetTask(ctx context.Context, ownerID int64, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, metastore.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *taskStore) ListTasks(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Task, int64, error) {
	return nil, 0, nil
}

func (s *taskStore) Close() error { return nil }

var _ metastore.Store = (*taskStore)(nil)

// raceBus delivers events synchronously to subscribed handlers, and fires
// onSubscribe before registering the handler. An event published inside the
// hook is therefore invisible to the new subscriber, which is exactly what a
// transition landing just before Subscribe looks like.
type raceBus struct {
	mu          sync.Mutex
	handlers    map[events.EventType][]events.EventHandler
	onSubscribe func()
}

func newRaceBus() *raceBus {
	return &raceBus{handlers: make(map[events.EventType][]events.EventHandler)}
}

func (b *raceBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	handlers := append([]events.EventHandler{}, b.handlers[event.Type]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *raceBus) Subscribe(eventType events.EventType, handler events.EventHandler) func() {
	b.mu.Lock()
	hook := b.onSubscribe
	b.onSubscribe = nil
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
	return func() {}
}

func (b *raceBus) SubscribeAll(handler events.EventHandler) func() { return func() {} }
func (b *raceBus) Close() error                                    { return nil }

var _ events.Bus = (*raceBus)(nil)

// A task that completes in the window between the stream handler's
// subscription and its snapshot read must still close the stream with the
// terminal state instead of idling.
func TestStreamTask_TerminalBeforeSnapshotClosesStream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	bus := newRaceBus()
	svc := task.NewService(newTaskStore(), bus)

	created, err := svc.Create(context.Background(), 1, task.TypeIngestion, "Ingest", nil,
		[]model.TaskStep{{Name: "parse", Type: "parse", Weight: 100}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	svc.Start(context.Background(), created.ID)

	bus.onSubscribe = func() {
		svc.Complete(context.Background(), created.ID)
	}

	srv := &Server{tasks: svc, bus: bus, logger: slog.Default()}
	router := gin.New()
	router.GET("/api/v1/tasks/:id/stream", srv.handleStreamTask)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/tasks/"+created.ID+"/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream handler did not return")
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("stream should end with the terminal snapshot, got:\n%s", body)
	}
	if ctx.Err() != nil {
		t.Error("handler should return from the terminal frame, not the client timeout")
	}
}
