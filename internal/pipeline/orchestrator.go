package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/task"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

// job is one queued pipeline execution.
type job struct {
	taskID string
	steps  []Step
	state  *State
}

// Orchestrator runs pipelines on a worker pool over a bounded queue.
type Orchestrator struct {
	deps   *Deps
	logger *slog.Logger

	queue    chan *job
	workers  int
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewOrchestrator creates the orchestrator. Call Start before submitting.
func NewOrchestrator(deps *Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queueSize := deps.Cfg.Pipeline.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	workers := deps.Cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}

	return &Orchestrator{
		deps:     deps,
		logger:   logger,
		queue:    make(chan *job, queueSize),
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.logger.Info("pipeline orchestrator started",
		"workers", o.workers, "queue_size", cap(o.queue))
}

// Stop drains the queue and waits for running jobs.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopChan)
		close(o.queue)
	})
	o.wg.Wait()
	o.logger.Info("pipeline orchestrator stopped")
}

// SubmitIngestion queues a document ingestion task. pipelineName selects
// between the vector-only and full knowledge pipelines.
func (o *Orchestrator) SubmitIngestion(ctx context.Context, doc *model.Document, localPath, pipelineName string, mode unify.Mode) (*model.Task, error) {
	var steps []Step
	switch pipelineName {
	case PipelineRAG:
		steps = ragPipeline()
	case PipelineGraph, "":
		pipelineName = PipelineGraph
		steps = append(ragPipeline()[:2], graphPipeline()...)
	default:
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("unknown pipeline %q", pipelineName))
	}

	if mode == "" {
		mode = unify.Mode(o.deps.Cfg.Unification.DefaultMode)
	}

	state := &State{
		OwnerID:   doc.OwnerID,
		Document:  doc,
		Mode:      mode,
		LocalPath: localPath,
	}
	name := fmt.Sprintf("Ingest %s", doc.Name)
	return o.submit(ctx, doc.OwnerID, task.TypeIngestion, name, &doc.ID, steps, state)
}

// SubmitUnification queues a re-unification task for an ingested document.
func (o *Orchestrator) SubmitUnification(ctx context.Context, ownerID int64, doc *model.Document, mode unify.Mode) (*model.Task, error) {
	if !unify.ValidMode(string(mode)) {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("unknown unification mode %q", mode))
	}

	state := &State{OwnerID: ownerID, Document: doc, Mode: mode}
	name := fmt.Sprintf("Unify %s", doc.Name)
	return o.submit(ctx, ownerID, task.TypeUnification, name, &doc.ID, unificationPipeline(), state)
}

// SubmitCommunityRefresh queues a full community recomputation.
func (o *Orchestrator) SubmitCommunityRefresh(ctx context.Context, ownerID int64) (*model.Task, error) {
	state := &State{OwnerID: ownerID}
	return o.submit(ctx, ownerID, task.TypeCommunity, "Refresh communities", nil, communityPipeline(), state)
}

func (o *Orchestrator) submit(ctx context.Context, ownerID int64, taskType, name string, documentID *int64, steps []Step, state *State) (*model.Task, error) {
	t, err := o.deps.Tasks.Create(ctx, ownerID, taskType, name, documentID, stepsFor(steps))
	if err != nil {
		return nil, err
	}

	j := &job{taskID: t.ID, steps: steps, state: state}
	select {
	case o.queue <- j:
		return t, nil
	default:
		queueErr := errkind.New(errkind.KindCapacity,
			fmt.Errorf("pipeline queue full (%d)", cap(o.queue)))
		o.deps.Tasks.Fail(ctx, t.ID, queueErr)
		return nil, queueErr
	}
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	o.logger.Debug("pipeline worker started", "worker", id)
	for j := range o.queue {
		o.run(j)
	}
}

// run executes one job's steps sequentially, honoring the execution
// contract: cancellation between steps, failure stops the pipeline, temp
// files removed either way.
func (o *Orchestrator) run(j *job) {
	tasks := o.deps.Tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tasks.BindCancel(j.taskID, cancel)

	defer o.cleanup(j.state)
	defer func() {
		if r := recover(); r != nil {
			panicErr := errkind.New(errkind.KindLogic, fmt.Errorf("pipeline panic: %v", r))
			o.logger.Error("pipeline worker recovered from panic",
				"task_id", j.taskID, "panic", r)
			tasks.Fail(context.Background(), j.taskID, panicErr)
		}
	}()

	tasks.Start(ctx, j.taskID)

	for _, step := range j.steps {
		if err := ctx.Err(); err != nil {
			o.markCancelled(j)
			return
		}
		select {
		case <-o.stopChan:
			o.markCancelled(j)
			return
		default:
		}

		tasks.StepStart(ctx, j.taskID, step.Name)
		j.state.progress = func(pct float64) {
			tasks.StepProgress(ctx, j.taskID, step.Name, pct)
		}
		j.state.detail = func(key string, value any) {
			tasks.StepDetail(ctx, j.taskID, step.Name, key, value)
		}

		err := step.Run(ctx, o.deps, j.state)
		j.state.progress = nil
		j.state.detail = nil

		if err != nil {
			if errors.Is(err, context.Canceled) {
				o.markCancelled(j)
				return
			}
			o.failStep(ctx, j, step.Name, err)
			return
		}
		tasks.StepComplete(ctx, j.taskID, step.Name)
	}

	tasks.Complete(ctx, j.taskID)
	o.logger.Info("pipeline completed", "task_id", j.taskID)
}

// failStep records the failure kind, message, and a truncated stack on the
// step, then fails the task.
func (o *Orchestrator) failStep(ctx context.Context, j *job, stepName string, err error) {
	j.state.failed = true
	tasks := o.deps.Tasks
	tasks.StepDetail(ctx, j.taskID, stepName, "error_kind", string(errkind.KindOf(err)))
	tasks.StepDetail(ctx, j.taskID, stepName, "stack", truncateStack(debug.Stack(), 2048))
	tasks.StepFail(ctx, j.taskID, stepName, err)
	tasks.Fail(ctx, j.taskID, err)

	if j.state.Document != nil {
		if updateErr := o.deps.Meta.UpdateDocumentStatus(context.Background(),
			j.state.Document.ID, model.DocumentFailed); updateErr != nil {
			o.logger.Warn("failed to mark document failed",
				"document_id", j.state.Document.ID, "error", updateErr)
		}
	}
	o.logger.Warn("pipeline failed",
		"task_id", j.taskID, "step", stepName, "error", err)
}

func (o *Orchestrator) markCancelled(j *job) {
	o.deps.Tasks.MarkCancelled(context.Background(), j.taskID)
	o.logger.Info("pipeline cancelled", "task_id", j.taskID)
}

// cleanup removes the temporary working file. Failed jobs keep it only
// when retention is configured for debugging.
func (o *Orchestrator) cleanup(state *State) {
	if state.LocalPath == "" {
		return
	}
	if state.failed && o.deps.Cfg.Pipeline.RetainFailed {
		return
	}
	if err := os.Remove(state.LocalPath); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("working file cleanup failed",
			"path", state.LocalPath, "error", err)
	}
}

func truncateStack(stack []byte, n int) string {
	if len(stack) <= n {
		return string(stack)
	}
	return string(stack[:n])
}
