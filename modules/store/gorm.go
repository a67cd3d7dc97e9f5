package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// taskRow is the GORM model of a task. Timestamps are stamped by the store,
// not by GORM callbacks, so UpdatedAt always advances.
type taskRow struct {
	ID          string     `gorm:"primarykey;size:36"`
	OwnerID     string     `gorm:"size:64;not null;index:idx_tasks_owner_created,priority:1"`
	Title       string     `gorm:"size:200;not null"`
	Description string     `gorm:"size:2000"`
	Status      string     `gorm:"size:20;not null;default:todo"`
	Priority    string     `gorm:"size:10;not null;default:medium"`
	DueDate     *time.Time `gorm:"type:date"`
	Labels      []string   `gorm:"serializer:json"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false;index:idx_tasks_owner_created,priority:2"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for the task model.
func (taskRow) TableName() string {
	return "tasks"
}

func rowFromTask(t domain.Task) taskRow {
	return taskRow{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Labels:      t.Labels,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (r taskRow) toTask() domain.Task {
	labels := r.Labels
	if labels == nil {
		labels = []string{}
	}
	var due *time.Time
	if r.DueDate != nil {
		d := time.Date(r.DueDate.Year(), r.DueDate.Month(), r.DueDate.Day(), 0, 0, 0, 0, time.UTC)
		due = &d
	}
	return domain.Task{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.Status(r.Status),
		Priority:    domain.Priority(r.Priority),
		DueDate:     due,
		Labels:      labels,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// GormStore persists tasks in SQLite through GORM.
type GormStore struct {
	mu     sync.RWMutex
	db     *gorm.DB
	dbPath string
	debug  bool
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates an unconnected SQLite store. Use ":memory:" for tests.
func NewGormStore(dbPath string, debug bool) *GormStore {
	if dbPath == "" {
		dbPath = "tasks.db"
	}
	return &GormStore{dbPath: dbPath, debug: debug}
}

func (s *GormStore) Driver() string {
	return DriverSQLite
}

// Connect opens the database and runs migrations.
func (s *GormStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	log.Printf("[store] Connecting to SQLite database: %s", s.dbPath)

	logLevel := logger.Silent
	if s.debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(s.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return unavailable("connect", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return unavailable("connect", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&taskRow{}); err != nil {
		_ = sqlDB.Close()
		return unavailable("migrate", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("[store] Database connection closed")
	return nil
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotConnected
	}
	return s.db.WithContext(ctx), nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *GormStore) FindByOwner(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Where("owner_id = ?", ownerID)
	if status, ok := filter.Status(); ok {
		query = query.Where("status = ?", string(status))
	}

	var rows []taskRow
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, unavailable("find tasks", err)
	}

	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (s *GormStore) FindOne(ctx context.Context, id, ownerID string) (domain.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Task{}, err
	}

	var row taskRow
	if err := db.First(&row, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, unavailable("find task", err)
	}
	return row.toTask(), nil
}

func (s *GormStore) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Task{}, err
	}

	row := rowFromTask(prepareInsert(t, time.Now()))
	if err := db.Create(&row).Error; err != nil {
		return domain.Task{}, unavailable("insert task", err)
	}
	return row.toTask(), nil
}

func (s *GormStore) UpdateFields(ctx context.Context, id, ownerID string, fields domain.Fields) (domain.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Task{}, err
	}

	var updated domain.Task
	err = db.Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.First(&row, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
			return err
		}

		t := row.toTask()
		fields.Apply(&t, time.Now())
		row = rowFromTask(t)

		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, unavailable("update task", err)
	}
	return updated, nil
}

// Delete reads and removes the row in one transaction. A concurrent delete
// that removed it first leaves RowsAffected at zero and reports ErrNotFound.
func (s *GormStore) Delete(ctx context.Context, id, ownerID string) (domain.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Task{}, err
	}

	var deleted domain.Task
	err = db.Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.First(&row, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
			return err
		}

		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&taskRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		deleted = row.toTask()
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, unavailable("delete task", err)
	}
	return deleted, nil
}
