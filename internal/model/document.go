// Package model defines the core domain types shared across the ingestion
// pipeline, the unification subsystem, and the graph store.
package model

import "time"

// DocumentStatus is the processing status of an ingested document.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentRunning   DocumentStatus = "running"
	DocumentCompleted DocumentStatus = "completed"
	DocumentFailed    DocumentStatus = "failed"
	DocumentDeleted   DocumentStatus = "deleted"
)

// StorageLocation identifies where a document's original bytes live in the
// object store.
type StorageLocation struct {
	Bucket      string `json:"bucket"`
	ObjectKey   string `json:"object_key"`
	ETag        string `json:"etag"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Document is a user-owned record of an ingested source.
// Created when bytes are accepted; mutated only by the pipeline
// orchestrator; soft-deleted on explicit delete.
type Document struct {
	ID       int64           `json:"id"`
	OwnerID  int64           `json:"owner_id"`
	Name     string          `json:"name"`
	FileType string          `json:"file_type"`
	Status   DocumentStatus  `json:"status"`
	Location StorageLocation `json:"location"`
	Metadata map[string]any  `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
