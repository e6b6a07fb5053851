package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/model"
)

func (s *Server) handleListTasks(c *gin.Context) {
	owner := ownerID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tasks, total, err := s.tasks.List(c.Request.Context(), owner, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": total})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.tasks.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleCancelTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := s.tasks.Cancel(c.Request.Context(), ownerID(c), taskID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": taskID})
}

// handleStreamTask streams task progress over SSE. Each event is
// {"event":"task_update","data":<task>}; the stream closes when the task
// reaches a terminal status or the client disconnects.
func (s *Server) handleStreamTask(c *gin.Context) {
	owner := ownerID(c)
	taskID := c.Param("id")

	// Subscribe before snapshotting so an update landing between the two
	// is never lost; a terminal transition in that window would otherwise
	// leave the stream idle forever.
	updates := make(chan *model.Task, 64)
	unsubscribe := s.bus.Subscribe(events.TaskUpdated, func(event events.Event) {
		payload, ok := event.Payload.(events.TaskUpdatePayload)
		if !ok || payload.Task == nil || payload.Task.ID != taskID {
			return
		}
		select {
		case updates <- payload.Task:
		default:
		}
	})
	defer unsubscribe()

	snapshot, err := s.tasks.Get(c.Request.Context(), owner, taskID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if !s.writeTaskEvent(c, snapshot) || snapshot.Status.Terminal() {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case t := <-updates:
			if !s.writeTaskEvent(c, t) {
				return
			}
			if t.Status.Terminal() {
				return
			}
		}
	}
}

func (s *Server) writeTaskEvent(c *gin.Context, t *model.Task) bool {
	frame := struct {
		Event string      `json:"event"`
		Data  *model.Task `json:"data"`
	}{Event: "task_update", Data: t}

	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Warn("task event marshal failed", "task_id", t.ID, "error", err)
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
