package task

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// memStore is an in-memory metastore.Store for task lifecycle tests.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
	docs  map[int64]*model.Document
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*model.Task), docs: make(map[int64]*model.Document)}
}

func (m *memStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = int64(len(m.docs) + 1)
	m.docs[doc.ID] = doc
	return nil
}

func (m *memStore) UpdateDocument(ctx context.Context, doc *model.Document) error { return nil }

func (m *memStore) UpdateDocumentStatus(ctx context.Context, id int64, status model.DocumentStatus) error {
	return nil
}

func (m *memStore) GetDocument(ctx context.Context, ownerID, id int64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, metastore.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ListDocuments(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Document, int64, error) {
	return nil, 0, nil
}

func (m *memStore) SoftDeleteDocument(ctx context.Context, ownerID, id int64) error { return nil }

func (m *memStore) CreateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memStore) UpdateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return metastore.ErrNotFound
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memStore) GetTask(ctx context.Context, ownerID int64, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return nil, metastore.ErrNotFound
	}
	return task.Clone(), nil
}

func (m *memStore) ListTasks(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Task, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, task := range m.tasks {
		if task.OwnerID == ownerID {
			out = append(out, task.Clone())
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) Close() error { return nil }

var _ metastore.Store = (*memStore)(nil)

func testSteps() []model.TaskStep {
	return []model.TaskStep{
		{Name: "parse", Weight: 30},
		{Name: "extract", Weight: 70},
	}
}

func newTestService(t *testing.T) (*Service, *memStore, events.Bus) {
	t.Helper()
	store := newMemStore()
	bus := events.NewBus()
	t.Cleanup(func() { bus.Close() })
	return NewService(store, bus), store, bus
}

func TestCreateAndGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, TypeIngestion, "Ingest notes.md", nil, testSteps())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != model.TaskPending {
		t.Errorf("new task status = %s, want pending", created.Status)
	}
	if len(created.Steps) != 2 || created.Steps[0].Status != model.TaskPending {
		t.Errorf("steps not initialized pending: %+v", created.Steps)
	}

	got, err := svc.Get(ctx, 1, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got task %s, want %s", got.ID, created.ID)
	}

	if _, err := svc.Get(ctx, 2, created.ID); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("cross-owner Get should return not-found, got %v", err)
	}
}

func TestProgressIsMonotonicAndWeighted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id := created.ID

	svc.Start(ctx, id)
	svc.StepStart(ctx, id, "parse")
	svc.StepProgress(ctx, id, "parse", 50)

	got, _ := svc.Get(ctx, 1, id)
	if got.Progress != 15 { // 50% of weight 30
		t.Errorf("weighted progress = %f, want 15", got.Progress)
	}

	// A lower report must not move progress backwards
	svc.StepProgress(ctx, id, "parse", 10)
	got, _ = svc.Get(ctx, 1, id)
	if got.Progress != 15 {
		t.Errorf("progress went backwards to %f", got.Progress)
	}

	svc.StepComplete(ctx, id, "parse")
	got, _ = svc.Get(ctx, 1, id)
	if got.Progress != 30 {
		t.Errorf("after step complete progress = %f, want 30", got.Progress)
	}

	svc.StepComplete(ctx, id, "extract")
	got, _ = svc.Get(ctx, 1, id)
	if got.Progress != 100 {
		t.Errorf("all steps complete, progress = %f, want 100", got.Progress)
	}
}

func TestCompleteReleasesAndPersists(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	svc.Start(ctx, created.ID)
	svc.Complete(ctx, created.ID)

	// Get now falls through to the store
	got, err := svc.Get(ctx, 1, created.ID)
	if err != nil {
		t.Fatalf("Get after complete failed: %v", err)
	}
	if got.Status != model.TaskCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("completed task progress = %f, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("completed task missing CompletedAt")
	}

	stored, err := store.GetTask(ctx, 1, created.ID)
	if err != nil || stored.Status != model.TaskCompleted {
		t.Errorf("terminal state not persisted: %v %v", stored, err)
	}
}

func TestFailRecordsError(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	svc.Start(ctx, created.ID)
	svc.StepStart(ctx, created.ID, "parse")
	svc.StepFail(ctx, created.ID, "parse", errors.New("boom"))
	svc.Fail(ctx, created.ID, errors.New("boom"))

	got, err := svc.Get(ctx, 1, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.TaskFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "boom" {
		t.Errorf("task error = %q", got.Error)
	}
	if got.Steps[0].Status != model.TaskFailed || got.Steps[0].Error != "boom" {
		t.Errorf("step failure not recorded: %+v", got.Steps[0])
	}
}

func TestCancelInvokesBoundCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())

	runCtx, cancel := context.WithCancel(context.Background())
	svc.BindCancel(created.ID, cancel)

	if err := svc.Cancel(ctx, 1, created.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if runCtx.Err() == nil {
		t.Error("bound context should be cancelled")
	}

	// Runner observes cancellation and marks the task
	svc.MarkCancelled(ctx, created.ID)
	got, _ := svc.Get(ctx, 1, created.ID)
	if got.Status != model.TaskCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.Error != "cancelled by user" {
		t.Errorf("cancelled task error = %q, want %q", got.Error, "cancelled by user")
	}
}

func TestCancel_WrongOwnerRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	if err := svc.Cancel(ctx, 2, created.ID); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("cross-owner cancel should be rejected, got %v", err)
	}
}

func TestCancel_TerminalTaskIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	svc.Complete(ctx, created.ID)

	if err := svc.Cancel(ctx, 1, created.ID); err != nil {
		t.Errorf("cancelling a terminal task should be a no-op, got %v", err)
	}
}

func TestStepDetailAccumulates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, 1, TypeIngestion, "Ingest", nil, testSteps())
	svc.StepDetail(ctx, created.ID, "extract", "entities", 12)
	svc.StepDetail(ctx, created.ID, "extract", "relations", 4)

	got, _ := svc.Get(ctx, 1, created.ID)
	step := got.StepByName("extract")
	if step.Details["entities"] != 12 || step.Details["relations"] != 4 {
		t.Errorf("details not accumulated: %v", step.Details)
	}
}
