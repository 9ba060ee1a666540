// Package ledger records every attempted event download in a SQLite table so
// batch runs can be audited and served over HTTP.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Status string

const (
	StatusDone    Status = "done"
	StatusAbsent  Status = "absent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("ledger: record not found")

// Record is one download attempt.
type Record struct {
	ID          int64          `json:"id"`
	RunID       string         `json:"run_id"`
	Exchange    string         `json:"exchange"`
	Symbol      string         `json:"symbol"`
	EventKey    string         `json:"event_key"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Status      Status         `json:"status"`
	Rows        int            `json:"rows"`
	Path        string         `json:"path,omitempty"`
	Error       string         `json:"error,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	RunID    string
	Exchange string
	Status   Status
	Limit    int
}

type downloadModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string         `gorm:"column:run_id;index"`
	Exchange    string         `gorm:"column:exchange;index"`
	Symbol      string         `gorm:"column:symbol"`
	EventKey    string         `gorm:"column:event_key;index"`
	WindowStart int64          `gorm:"column:window_start"`
	WindowEnd   int64          `gorm:"column:window_end"`
	Status      string         `gorm:"column:status;index"`
	Rows        int            `gorm:"column:rows"`
	Path        string         `gorm:"column:path"`
	Error       string         `gorm:"column:error"`
	Params      datatypes.JSON `gorm:"column:params"`
	StartedAt   int64          `gorm:"column:started_at"`
	FinishedAt  int64          `gorm:"column:finished_at;index"`
}

func (downloadModel) TableName() string { return "downloads" }

type Store struct {
	db *gorm.DB
}

// Open creates the ledger database at path, creating parent directories.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&downloadModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRunID returns an id grouping the records of one batch run.
func NewRunID() string {
	return uuid.NewString()
}

// Append inserts rec and sets rec.ID.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("ledger: nil record")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	model, err := toModel(*rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	rec.ID = model.ID
	return nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	var model downloadModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return fromModel(model), nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&downloadModel{})
	if v := strings.TrimSpace(f.RunID); v != "" {
		q = q.Where("run_id = ?", v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.Exchange)); v != "" {
		q = q.Where("exchange = ?", v)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var models []downloadModel
	if err := q.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(models))
	for _, m := range models {
		out = append(out, fromModel(m))
	}
	return out, nil
}

// Summary counts records of a run by status.
func (s *Store) Summary(ctx context.Context, runID string) (map[Status]int, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&downloadModel{}).
		Select("status, COUNT(1) AS n").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(rows))
	for _, r := range rows {
		out[Status(r.Status)] = r.N
	}
	return out, nil
}

func toModel(rec Record) (downloadModel, error) {
	params := []byte("{}")
	if len(rec.Params) > 0 {
		b, err := json.Marshal(rec.Params)
		if err != nil {
			return downloadModel{}, fmt.Errorf("ledger: marshal params: %w", err)
		}
		params = b
	}
	return downloadModel{
		RunID:       strings.TrimSpace(rec.RunID),
		Exchange:    strings.ToLower(strings.TrimSpace(rec.Exchange)),
		Symbol:      rec.Symbol,
		EventKey:    rec.EventKey,
		WindowStart: rec.WindowStart.UnixMilli(),
		WindowEnd:   rec.WindowEnd.UnixMilli(),
		Status:      string(rec.Status),
		Rows:        rec.Rows,
		Path:        rec.Path,
		Error:       rec.Error,
		Params:      datatypes.JSON(params),
		StartedAt:   rec.StartedAt.UnixMilli(),
		FinishedAt:  rec.FinishedAt.UnixMilli(),
	}, nil
}

func fromModel(m downloadModel) Record {
	rec := Record{
		ID:          m.ID,
		RunID:       m.RunID,
		Exchange:    m.Exchange,
		Symbol:      m.Symbol,
		EventKey:    m.EventKey,
		WindowStart: time.UnixMilli(m.WindowStart).UTC(),
		WindowEnd:   time.UnixMilli(m.WindowEnd).UTC(),
		Status:      Status(m.Status),
		Rows:        m.Rows,
		Path:        m.Path,
		Error:       m.Error,
		StartedAt:   time.UnixMilli(m.StartedAt).UTC(),
		FinishedAt:  time.UnixMilli(m.FinishedAt).UTC(),
	}
	if len(m.Params) > 0 {
		var params map[string]any
		if err := json.Unmarshal(m.Params, &params); err == nil && len(params) > 0 {
			rec.Params = params
		}
	}
	return rec
}
