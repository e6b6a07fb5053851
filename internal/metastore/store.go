package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// ErrNotFound is returned when a document or task does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("record not found")

// Store is the metadata persistence interface.
type Store interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	UpdateDocument(ctx context.Context, doc *model.Document) error
	UpdateDocumentStatus(ctx context.Context, id int64, status model.DocumentStatus) error
	GetDocument(ctx context.Context, ownerID, id int64) (*model.Document, error)
	ListDocuments(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Document, int64, error)
	SoftDeleteDocument(ctx context.Context, ownerID, id int64) error

	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, ownerID int64, id string) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Task, int64, error)

	Close() error
}

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on a MySQL-compatible database through gorm.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLStore) { s.logger = logger }
}

// Open connects to the database, runs migrations, and returns the store.
func Open(cfg config.MetaConfig, opts ...Option) (*SQLStore, error) {
	dsn := cfg.ResolveDSN()
	if dsn == "" {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("metadata store DSN is not configured"))
	}

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: dsn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("failed to open metadata database; %w", err))
	}

	s := &SQLStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}
	s.logger.Info("metadata store ready")
	return s, nil
}

func (s *SQLStore) migrate() error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&DocumentRecord{},
			&TaskRecord{},
		)
	})
	if err != nil {
		return fmt.Errorf("metadata migration failed; %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocument inserts the document and backfills its generated id and
// timestamps.
func (s *SQLStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	record, err := recordFromDocument(doc)
	if err != nil {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("encoding document metadata; %w", err))
	}
	record.ID = 0

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating document; %w", err)
	}

	doc.ID = record.ID
	doc.CreatedAt = record.CreatedAt
	doc.UpdatedAt = record.UpdatedAt
	return nil
}

// UpdateDocument saves the full document row.
func (s *SQLStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	record, err := recordFromDocument(doc)
	if err != nil {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("encoding document metadata; %w", err))
	}

	result := s.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"name":         record.Name,
			"file_type":    record.FileType,
			"status":       record.Status,
			"bucket":       record.Bucket,
			"object_key":   record.ObjectKey,
			"e_tag":        record.ETag,
			"size":         record.Size,
			"content_type": record.ContentType,
			"metadata":     record.Metadata,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("updating document %d; %w", doc.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentStatus transitions the document's status.
func (s *SQLStore) UpdateDocumentStatus(ctx context.Context, id int64, status model.DocumentStatus) error {
	result := s.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("updating document %d status; %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDocument returns the document if it exists and belongs to the owner.
func (s *SQLStore) GetDocument(ctx context.Context, ownerID, id int64) (*model.Document, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %d; %w", id, err)
	}
	return record.ToDocument(), nil
}

// ListDocuments returns the owner's documents newest first, plus the total
// count for pagination.
func (s *SQLStore) ListDocuments(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Document, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&DocumentRecord{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting documents; %w", err)
	}

	var records []DocumentRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents; %w", err)
	}

	docs := make([]*model.Document, len(records))
	for i := range records {
		docs[i] = records[i].ToDocument()
	}
	return docs, total, nil
}

// SoftDeleteDocument marks the document deleted; the row survives for audit.
func (s *SQLStore) SoftDeleteDocument(ctx context.Context, ownerID, id int64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&DocumentRecord{})
	if result.Error != nil {
		return fmt.Errorf("deleting document %d; %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTask inserts the task row.
func (s *SQLStore) CreateTask(ctx context.Context, task *model.Task) error {
	record, err := recordFromTask(task)
	if err != nil {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("encoding task; %w", err))
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating task %s; %w", task.ID, err)
	}
	return nil
}

// UpdateTask overwrites the task payload and its indexed columns.
func (s *SQLStore) UpdateTask(ctx context.Context, task *model.Task) error {
	record, err := recordFromTask(task)
	if err != nil {
		return errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("encoding task; %w", err))
	}

	result := s.db.WithContext(ctx).
		Model(&TaskRecord{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":     record.Status,
			"progress":   record.Progress,
			"payload":    record.Payload,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("updating task %s; %w", task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask returns the task if it belongs to the owner.
func (s *SQLStore) GetTask(ctx context.Context, ownerID int64, id string) (*model.Task, error) {
	var record TaskRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s; %w", id, err)
	}
	return record.ToTask()
}

// ListTasks returns the owner's tasks newest first, plus the total count.
func (s *SQLStore) ListTasks(ctx context.Context, ownerID int64, limit, offset int) ([]*model.Task, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&TaskRecord{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting tasks; %w", err)
	}

	var records []TaskRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing tasks; %w", err)
	}

	tasks := make([]*model.Task, 0, len(records))
	for i := range records {
		task, err := records[i].ToTask()
		if err != nil {
			s.logger.Warn("skipping undecodable task", "task_id", records[i].ID, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, total, nil
}
