package metastore

import (
	"testing"
	"time"

	"github.com/lodestone-kg/lodestone/internal/model"
)

func TestDocumentRecordRoundTrip(t *testing.T) {
	doc := &model.Document{
		ID:       7,
		OwnerID:  1,
		Name:     "report.pdf",
		FileType: "pdf",
		Status:   model.DocumentRunning,
		Location: model.StorageLocation{
			Bucket:      "lodestone-documents",
			ObjectKey:   "1/abc/report.pdf",
			ETag:        "\"d41d8cd98f\"",
			Size:        2048,
			ContentType: "application/pdf",
		},
		Metadata:  map[string]any{"source": "email", "pages": float64(12)},
		CreatedAt: time.Now(),
	}

	record, err := recordFromDocument(doc)
	if err != nil {
		t.Fatalf("recordFromDocument failed: %v", err)
	}
	got := record.ToDocument()

	if got.ID != doc.ID || got.OwnerID != doc.OwnerID || got.Name != doc.Name {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.Status != model.DocumentRunning {
		t.Errorf("status = %s", got.Status)
	}
	if got.Location != doc.Location {
		t.Errorf("storage location lost: %+v", got.Location)
	}
	if got.Metadata["source"] != "email" || got.Metadata["pages"] != float64(12) {
		t.Errorf("metadata lost: %v", got.Metadata)
	}
}

func TestDocumentRecord_NilMetadata(t *testing.T) {
	record, err := recordFromDocument(&model.Document{ID: 1, OwnerID: 1})
	if err != nil {
		t.Fatalf("recordFromDocument failed: %v", err)
	}
	if len(record.Metadata) != 0 {
		t.Errorf("nil metadata should stay null, got %s", record.Metadata)
	}
	if got := record.ToDocument(); got.Metadata != nil {
		t.Errorf("round trip invented metadata: %v", got.Metadata)
	}
}

func TestTaskRecordRoundTrip(t *testing.T) {
	docID := int64(7)
	task := &model.Task{
		ID:         "018f3c80-0000-7000-8000-000000000001",
		OwnerID:    1,
		Type:       "ingestion",
		Name:       "Ingest report.pdf",
		Status:     model.TaskRunning,
		Progress:   42.5,
		DocumentID: &docID,
		Steps: []model.TaskStep{
			{Name: "parse", Weight: 30, Status: model.TaskCompleted, Progress: 100},
			{Name: "extract", Weight: 70, Status: model.TaskRunning, Progress: 25,
				Details: map[string]any{"entities": float64(9)}},
		},
		CreatedAt: time.Now().UTC(),
	}

	record, err := recordFromTask(task)
	if err != nil {
		t.Fatalf("recordFromTask failed: %v", err)
	}

	// Indexed columns mirror the payload for list queries
	if record.Status != "running" || record.Progress != 42.5 || *record.DocumentID != 7 {
		t.Errorf("indexed columns wrong: %+v", record)
	}

	got, err := record.ToTask()
	if err != nil {
		t.Fatalf("ToTask failed: %v", err)
	}
	if got.ID != task.ID || got.Status != model.TaskRunning {
		t.Errorf("task identity lost: %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[1].Details["entities"] != float64(9) {
		t.Errorf("steps lost in payload: %+v", got.Steps)
	}
}
