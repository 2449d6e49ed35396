// Package archive persists committed vault events with gorm and fans them out
// to live subscribers.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"intentvault/core/events"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000

	subscriberBuffer = 64
)

var ErrUnsupportedDriver = errors.New("archive: unsupported driver")

// EventRecord is the stored form of one committed event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Timestamp  uint64    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Entry is the API view of an archived event.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Archive stores events and serves them to readers and subscribers.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.Mutex
	next   uint64
	subs   map[uint64]chan Entry
	nextID uint64
}

// Open connects to the archive database for driver ("sqlite" or "postgres").
func Open(driver, dsn string, logger *slog.Logger) (*Archive, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return New(db, logger)
}

// New migrates db and resumes numbering after the last stored event.
func New(db *gorm.DB, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	var last uint64
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("load archive cursor: %w", err)
	}
	return &Archive{db: db, logger: logger, next: last + 1, subs: make(map[uint64]chan Entry)}, nil
}

// Emit implements events.Emitter. Storage failures are logged; the event is
// still delivered to live subscribers.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	raw := evt.Event()
	if raw == nil {
		return
	}
	attrs, err := json.Marshal(raw.Attributes)
	if err != nil {
		a.logger.Error("archive: encode attributes", slog.String("type", raw.Type), slog.Any("error", err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	entry := Entry{Sequence: a.next, Type: raw.Type, Timestamp: raw.Timestamp, Attributes: cloneAttributes(raw.Attributes)}
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   entry.Sequence,
		Type:       entry.Type,
		Timestamp:  entry.Timestamp,
		Attributes: string(attrs),
	}
	if err := a.db.Create(&record).Error; err != nil {
		a.logger.Error("archive: store event", slog.String("type", raw.Type), slog.Any("error", err))
	}
	a.next++
	for id, ch := range a.subs {
		select {
		case ch <- entry:
		default:
			// slow subscriber; it resumes from the archive with its cursor
			close(ch)
			delete(a.subs, id)
		}
	}
}

// List returns up to limit events with a sequence above after, optionally
// filtered by type.
func (a *Archive) List(ctx context.Context, after uint64, eventType string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	query := a.db.WithContext(ctx).Where("sequence > ?", after)
	if eventType = strings.TrimSpace(eventType); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var records []EventRecord
	if err := query.Order("sequence asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, record := range records {
		entry := Entry{Sequence: record.Sequence, Type: record.Type, Timestamp: record.Timestamp}
		if err := json.Unmarshal([]byte(record.Attributes), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", record.Sequence, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Subscribe registers a live subscriber. Events stored after the cursor are
// returned as backlog; the channel closes when ctx ends or the subscriber
// falls behind.
func (a *Archive) Subscribe(ctx context.Context, after uint64) (<-chan Entry, func(), []Entry, error) {
	a.mu.Lock()
	backlog, err := a.List(ctx, after, "", MaxPageSize)
	if err != nil {
		a.mu.Unlock()
		return nil, nil, nil, err
	}
	updates := make(chan Entry, subscriberBuffer)
	id := a.nextID
	a.nextID++
	a.subs[id] = updates
	a.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			if sub, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(sub)
			}
			a.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return updates, cancel, backlog, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func cloneAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
