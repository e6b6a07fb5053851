package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

// uploadRequest is the JSON body for URL and inline-text ingestion. File
// ingestion uses multipart form fields instead.
type uploadRequest struct {
	URL      string         `json:"url"`
	Text     string         `json:"text"`
	Name     string         `json:"name"`
	Pipeline string         `json:"pipeline"`
	Mode     string         `json:"mode"`
	Metadata map[string]any `json:"metadata"`
}

// handleUpload accepts a file (multipart), a URL, or an inline text blob
// and queues an ingestion task. Returns the document record and task id.
func (s *Server) handleUpload(c *gin.Context) {
	owner := ownerID(c)

	var (
		localPath    string
		name         string
		pipelineName string
		mode         string
		metadata     map[string]any
		err          error
	)

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		localPath, name, pipelineName, mode, metadata, err = s.acceptMultipart(c)
	} else {
		localPath, name, pipelineName, mode, metadata, err = s.acceptJSON(c)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	doc := &model.Document{
		OwnerID:  owner,
		Name:     name,
		FileType: strings.TrimPrefix(filepath.Ext(name), "."),
		Status:   model.DocumentPending,
		Metadata: metadata,
	}
	if err := s.meta.CreateDocument(c.Request.Context(), doc); err != nil {
		s.removeQuietly(localPath)
		s.writeError(c, err)
		return
	}

	t, err := s.orchestrator.SubmitIngestion(c.Request.Context(), doc, localPath, pipelineName, unify.Mode(mode))
	if err != nil {
		s.removeQuietly(localPath)
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"document": doc,
		"task_id":  t.ID,
	})
}

// acceptMultipart stores the uploaded file in the work directory.
func (s *Server) acceptMultipart(c *gin.Context) (string, string, string, string, map[string]any, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", "", "", "", nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("multipart upload requires a file field; %w", err))
	}
	if max := s.cfg.MaxUploadBytes; max > 0 && file.Size > max {
		return "", "", "", "", nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("file exceeds %d bytes", max))
	}

	var metadata map[string]any
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return "", "", "", "", nil, errkind.New(errkind.KindInputInvalid,
				fmt.Errorf("metadata is not valid JSON; %w", err))
		}
	}

	dest, err := s.workFile(filepath.Base(file.Filename))
	if err != nil {
		return "", "", "", "", nil, err
	}
	if err := c.SaveUploadedFile(file, dest); err != nil {
		return "", "", "", "", nil, fmt.Errorf("saving upload; %w", err)
	}

	return dest, filepath.Base(file.Filename), c.PostForm("pipeline"), c.PostForm("mode"), metadata, nil
}

// acceptJSON handles URL fetch and inline text. Both are materialized as a
// markdown working file so the pipeline's parse step is uniform.
func (s *Server) acceptJSON(c *gin.Context) (string, string, string, string, map[string]any, error) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", "", "", "", nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid request body; %w", err))
	}

	var text, name string
	switch {
	case req.URL != "":
		result, err := s.fetcher.Fetch(c.Request.Context(), req.URL)
		if err != nil {
			return "", "", "", "", nil, err
		}
		text = result.Text
		name = req.Name
		if name == "" {
			name = result.Title
		}
		if name == "" {
			name = "page"
		}
		if !strings.HasSuffix(name, ".md") {
			name += ".md"
		}

	case strings.TrimSpace(req.Text) != "":
		text = req.Text
		name = req.Name
		if name == "" {
			name = "note.md"
		}
		if filepath.Ext(name) == "" {
			name += ".md"
		}

	default:
		return "", "", "", "", nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("request requires a url or text field"))
	}

	dest, err := s.workFile(name)
	if err != nil {
		return "", "", "", "", nil, err
	}
	if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
		return "", "", "", "", nil, fmt.Errorf("writing working file; %w", err)
	}

	return dest, name, req.Pipeline, req.Mode, req.Metadata, nil
}

func (s *Server) workFile(name string) (string, error) {
	workDir := s.pipelineCfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work dir; %w", err)
	}
	return filepath.Join(workDir, uuid.NewString()+"_"+name), nil
}

func (s *Server) handleListDocuments(c *gin.Context) {
	owner := ownerID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, total, err := s.meta.ListDocuments(c.Request.Context(), owner, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	owner := ownerID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid document id")))
		return
	}

	doc, err := s.meta.GetDocument(c.Request.Context(), owner, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleDeleteDocument soft-deletes the record and removes the document's
// graph contribution and stored bytes.
func (s *Server) handleDeleteDocument(c *gin.Context) {
	owner := ownerID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid document id")))
		return
	}

	ctx := c.Request.Context()
	doc, err := s.meta.GetDocument(ctx, owner, id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.meta.SoftDeleteDocument(ctx, owner, id); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.graph.DeleteDocumentGraph(ctx, id); err != nil {
		s.logger.Warn("graph cleanup failed", "document_id", id, "error", err)
	}
	if doc.Location.ObjectKey != "" {
		if err := s.objects.Delete(ctx, doc.Location.ObjectKey); err != nil {
			s.logger.Warn("object cleanup failed", "document_id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleUnify triggers a re-unification task for an ingested document.
func (s *Server) handleUnify(c *gin.Context) {
	owner := ownerID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("invalid document id")))
		return
	}

	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Mode == "" {
		s.writeError(c, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("request requires a mode field")))
		return
	}

	doc, err := s.meta.GetDocument(c.Request.Context(), owner, id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	t, err := s.orchestrator.SubmitUnification(c.Request.Context(), owner, doc, unify.Mode(body.Mode))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID})
}

// handleRefreshCommunities queues a community recomputation task.
func (s *Server) handleRefreshCommunities(c *gin.Context) {
	t, err := s.orchestrator.SubmitCommunityRefresh(c.Request.Context(), ownerID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID})
}

func (s *Server) removeQuietly(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("working file cleanup failed", "path", path, "error", err)
	}
}

// writeError maps error kinds to HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		status = http.StatusNotFound
	case errkind.Is(err, errkind.KindInputInvalid):
		status = http.StatusBadRequest
	case errkind.Is(err, errkind.KindCapacity):
		status = http.StatusTooManyRequests
	case errkind.Is(err, errkind.KindExternalTransient):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(errkind.KindOf(err))})
}
