// Package metastore persists document and task metadata in a relational
// database. The graph holds knowledge; this store holds ownership,
// lifecycle, and audit state.
package metastore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// DocumentRecord is the relational row backing a model.Document.
type DocumentRecord struct {
	ID       int64  `gorm:"primarykey"`
	OwnerID  int64  `gorm:"index:doc_owner_idx;not null"`
	Name     string `gorm:"size:255;not null;default:''"`
	FileType string `gorm:"size:32;not null;default:''"`
	Status   string `gorm:"size:16;index;not null;default:'pending'"`

	Bucket      string `gorm:"size:128;not null;default:''"`
	ObjectKey   string `gorm:"size:512;not null;default:''"`
	ETag        string `gorm:"size:128;not null;default:''"`
	Size        int64  `gorm:"not null;default:0"`
	ContentType string `gorm:"size:128;not null;default:''"`

	Metadata datatypes.JSON `gorm:"default:null"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (DocumentRecord) TableName() string {
	return "documents"
}

// ToDocument converts the row to the domain type.
func (r *DocumentRecord) ToDocument() *model.Document {
	doc := &model.Document{
		ID:       r.ID,
		OwnerID:  r.OwnerID,
		Name:     r.Name,
		FileType: r.FileType,
		Status:   model.DocumentStatus(r.Status),
		Location: model.StorageLocation{
			Bucket:      r.Bucket,
			ObjectKey:   r.ObjectKey,
			ETag:        r.ETag,
			Size:        r.Size,
			ContentType: r.ContentType,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(r.Metadata, &meta); err == nil {
			doc.Metadata = meta
		}
	}
	return doc
}

func recordFromDocument(doc *model.Document) (*DocumentRecord, error) {
	record := &DocumentRecord{
		ID:          doc.ID,
		OwnerID:     doc.OwnerID,
		Name:        doc.Name,
		FileType:    doc.FileType,
		Status:      string(doc.Status),
		Bucket:      doc.Location.Bucket,
		ObjectKey:   doc.Location.ObjectKey,
		ETag:        doc.Location.ETag,
		Size:        doc.Location.Size,
		ContentType: doc.Location.ContentType,
	}
	if doc.Metadata != nil {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, err
		}
		record.Metadata = datatypes.JSON(raw)
	}
	return record, nil
}

// TaskRecord is the relational row backing a model.Task. Steps and metadata
// are denormalized into the payload; indexed columns carry what list and
// filter queries need.
type TaskRecord struct {
	ID         string  `gorm:"primarykey;size:36"`
	OwnerID    int64   `gorm:"index:task_owner_idx;not null"`
	Type       string  `gorm:"size:32;index;not null;default:''"`
	Status     string  `gorm:"size:16;index;not null;default:'pending'"`
	Progress   float64 `gorm:"not null;default:0"`
	DocumentID *int64  `gorm:"index"`

	Payload datatypes.JSON `gorm:"default:null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TaskRecord) TableName() string {
	return "tasks"
}

// ToTask converts the row to the domain type.
func (r *TaskRecord) ToTask() (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(r.Payload, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func recordFromTask(task *model.Task) (*TaskRecord, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return &TaskRecord{
		ID:         task.ID,
		OwnerID:    task.OwnerID,
		Type:       task.Type,
		Status:     string(task.Status),
		Progress:   task.Progress,
		DocumentID: task.DocumentID,
		Payload:    datatypes.JSON(raw),
		CreatedAt:  task.CreatedAt,
	}, nil
}
