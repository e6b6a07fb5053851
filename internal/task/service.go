// Package task tracks durable, observable units of work. The service keeps
// running tasks in memory for low-latency updates, persists every
// transition to the metadata store, and publishes snapshots on the event
// bus for streaming clients.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Task types.
const (
	TypeIngestion   = "ingestion"
	TypeUnification = "unification"
	TypeCommunity   = "community_refresh"
)

type liveTask struct {
	task   *model.Task
	cancel context.CancelFunc
}

// Service manages task lifecycle and observation.
type Service struct {
	store  metastore.Store
	bus    events.Bus
	logger *slog.Logger

	mu   sync.RWMutex
	live map[string]*liveTask
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a task service.
func NewService(store metastore.Store, bus events.Bus, opts ...Option) *Service {
	s := &Service{
		store:  store,
		bus:    bus,
		logger: slog.Default(),
		live:   make(map[string]*liveTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new pending task with the given steps.
func (s *Service) Create(ctx context.Context, ownerID int64, taskType, name string, documentID *int64, steps []model.TaskStep) (*model.Task, error) {
	now := time.Now()
	task := &model.Task{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Type:       taskType,
		Name:       name,
		Status:     model.TaskPending,
		DocumentID: documentID,
		Steps:      steps,
		CreatedAt:  now,
	}
	for i := range task.Steps {
		task.Steps[i].Status = model.TaskPending
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persisting task; %w", err)
	}

	s.mu.Lock()
	s.live[task.ID] = &liveTask{task: task}
	s.mu.Unlock()

	s.publish(ctx, task)
	return task.Clone(), nil
}

// BindCancel attaches the runner's cancel function so user-initiated
// cancellation can interrupt the work.
func (s *Service) BindCancel(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lt, ok := s.live[taskID]; ok {
		lt.cancel = cancel
	}
}

// Start transitions a task to running.
func (s *Service) Start(ctx context.Context, taskID string) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		now := time.Now()
		t.Status = model.TaskRunning
		t.StartedAt = &now
	})
}

// StepStart marks a step running.
func (s *Service) StepStart(ctx context.Context, taskID, stepName string) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		if step := t.StepByName(stepName); step != nil {
			now := time.Now()
			step.Status = model.TaskRunning
			step.StartedAt = &now
		}
	})
}

// StepProgress updates a step's progress percentage.
func (s *Service) StepProgress(ctx context.Context, taskID, stepName string, progress float64) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		if step := t.StepByName(stepName); step != nil {
			if progress > step.Progress {
				step.Progress = progress
			}
			t.RecalcProgress()
		}
	})
}

// StepDetail records an intermediate result on a step.
func (s *Service) StepDetail(ctx context.Context, taskID, stepName, key string, value any) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		if step := t.StepByName(stepName); step != nil {
			if step.Details == nil {
				step.Details = make(map[string]any)
			}
			step.Details[key] = value
		}
	})
}

// StepComplete marks a step finished at full progress.
func (s *Service) StepComplete(ctx context.Context, taskID, stepName string) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		if step := t.StepByName(stepName); step != nil {
			now := time.Now()
			step.Status = model.TaskCompleted
			step.Progress = 100
			step.CompletedAt = &now
			t.RecalcProgress()
		}
	})
}

// StepFail marks a step failed with the error message.
func (s *Service) StepFail(ctx context.Context, taskID, stepName string, stepErr error) {
	s.mutate(ctx, taskID, func(t *model.Task) {
		if step := t.StepByName(stepName); step != nil {
			now := time.Now()
			step.Status = model.TaskFailed
			step.CompletedAt = &now
			step.Error = stepErr.Error()
		}
	})
}

// Complete transitions the task to completed and releases it from memory.
func (s *Service) Complete(ctx context.Context, taskID string) {
	s.finish(ctx, taskID, model.TaskCompleted, nil, events.TaskCompleted)
}

// Fail transitions the task to failed and releases it from memory.
func (s *Service) Fail(ctx context.Context, taskID string, taskErr error) {
	s.finish(ctx, taskID, model.TaskFailed, taskErr, events.TaskFailed)
}

// Cancel requests cancellation. The runner's context is cancelled; the
// task transitions when the runner observes it between steps.
func (s *Service) Cancel(ctx context.Context, ownerID int64, taskID string) error {
	s.mu.RLock()
	lt, ok := s.live[taskID]
	s.mu.RUnlock()

	if !ok {
		// Not running here; reject unless it exists and is already terminal
		task, err := s.store.GetTask(ctx, ownerID, taskID)
		if err != nil {
			return err
		}
		if task.Status.Terminal() {
			return nil
		}
		return fmt.Errorf("task %s is not cancellable", taskID)
	}

	if lt.task.OwnerID != ownerID {
		return metastore.ErrNotFound
	}
	if lt.cancel != nil {
		lt.cancel()
	}
	return nil
}

// MarkCancelled records that the runner stopped due to cancellation.
func (s *Service) MarkCancelled(ctx context.Context, taskID string) {
	s.finish(ctx, taskID, model.TaskCancelled, errors.New("cancelled by user"), events.TaskCancelled)
}

// Get returns a live snapshot if the task is running, otherwise the stored
// record.
func (s *Service) Get(ctx context.Context, ownerID int64, taskID string) (*model.Task, error) {
	s.mu.RLock()
	if lt, ok := s.live[taskID]; ok {
		defer s.mu.RUnlock()
		if lt.task.OwnerID != ownerID {
			return nil, metastore.ErrNotFound
		}
		return lt.task.Clone(), nil
	}
	s.mu.RUnlock()
	return s.store.GetTask(ctx, ownerID, taskID)
}

// List returns the owner's tasks from the store.
func (s *Service) List(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Task, int64, error) {
	return s.store.ListTasks(ctx, ownerID, limit, offset)
}

// mutate applies fn under the lock, persists, and publishes a snapshot.
func (s *Service) mutate(ctx context.Context, taskID string, fn func(*model.Task)) {
	s.mu.Lock()
	lt, ok := s.live[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(lt.task)
	snapshot := lt.task.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publish(ctx, snapshot)
}

func (s *Service) finish(ctx context.Context, taskID string, status model.TaskStatus, taskErr error, terminalEvent events.EventType) {
	s.mu.Lock()
	lt, ok := s.live[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	lt.task.Status = status
	lt.task.CompletedAt = &now
	if taskErr != nil {
		lt.task.Error = taskErr.Error()
	}
	if status == model.TaskCompleted {
		lt.task.Progress = 100
	}
	snapshot := lt.task.Clone()
	delete(s.live, taskID)
	s.mu.Unlock()

	s.persist(snapshot)
	s.publish(ctx, snapshot)
	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.NewEvent(terminalEvent, events.TaskUpdatePayload{Task: snapshot.Clone()})); err != nil {
			s.logger.Debug("terminal task event dropped", "task_id", taskID, "error", err)
		}
	}
}

func (s *Service) persist(task *model.Task) {
	// Persistence failures must not stall the pipeline; the live copy and
	// event stream still carry the state.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.logger.Warn("task persistence failed", "task_id", task.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, task *model.Task) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewTaskUpdated(task)); err != nil {
		s.logger.Debug("task event dropped", "task_id", task.ID, "error", err)
	}
}
