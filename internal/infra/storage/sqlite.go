package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/event"
	"paper_ledger/internal/ledger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed journal of applied ledger events and snapshots.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the journal database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.JournalEntry{}, &domain.SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// SaveEvent appends an applied event to the journal.
func (s *Storage) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	entry := &domain.JournalEntry{
		Seq:     ev.GetSeq(),
		Type:    uint16(ev.GetType()),
		Ts:      ev.GetTs(),
		Payload: payload,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert event %d: %w", ev.GetSeq(), err)
	}
	return nil
}

// LoadEvents loads journaled events with seq >= fromSeq in sequence order.
func (s *Storage) LoadEvents(ctx context.Context, fromSeq uint64) ([]event.Event, error) {
	var entries []domain.JournalEntry
	err := s.db.WithContext(ctx).
		Where("seq >= ?", fromSeq).
		Order("seq ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]event.Event, 0, len(entries))
	for _, e := range entries {
		ev, err := event.Decode(event.Type(e.Type), e.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e.Seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// LastSeq returns the highest journaled sequence number, or 0 for an empty journal.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	err := s.db.WithContext(ctx).
		Model(&domain.JournalEntry{}).
		Select("MAX(seq)").
		Row().
		Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !last.Valid {
		return 0, nil // No events yet
	}
	return uint64(last.Int64), nil
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// SaveSnapshot stores the ledger state taken right after event seq.
func (s *Storage) SaveSnapshot(ctx context.Context, seq uint64, state ledger.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	rec := &domain.SnapshotRecord{
		Seq:     seq,
		Ts:      time.Now().UnixMicro(),
		Payload: payload,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot %d: %w", seq, err)
	}
	return nil
}

// Snapshot is a decoded snapshot row.
type Snapshot struct {
	Seq   uint64       `json:"seq"`
	Ts    int64        `json:"ts"`
	State ledger.State `json:"state"`
}

// LatestSnapshot returns the snapshot with the highest seq.
// Returns nil if no snapshot exists.
func (s *Storage) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var rec domain.SnapshotRecord
	err := s.db.WithContext(ctx).Order("seq DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := &Snapshot{Seq: rec.Seq, Ts: rec.Ts}
	if err := json.Unmarshal(rec.Payload, &snap.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %d: %w", rec.Seq, err)
	}
	return snap, nil
}

// PruneSnapshots removes all but the newest keep snapshots.
func (s *Storage) PruneSnapshots(ctx context.Context, keep int) error {
	var seqs []uint64
	err := s.db.WithContext(ctx).
		Model(&domain.SnapshotRecord{}).
		Order("seq DESC").
		Offset(keep).
		Pluck("seq", &seqs).Error
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(seqs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("seq IN ?", seqs).Delete(&domain.SnapshotRecord{}).Error
}

// ======================================================================================
// Recovery
// ======================================================================================

// Recover rebuilds a ledger from the latest snapshot plus the events journaled after it.
// newLedger supplies the starting ledger when there is no snapshot.
// The returned events have not been applied yet; the caller replays them.
func (s *Storage) Recover(ctx context.Context, newLedger func() *ledger.Ledger) (*ledger.Ledger, uint64, []event.Event, error) {
	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, 0, nil, err
	}

	l := newLedger()
	var fromSeq uint64
	if snap != nil {
		l, err = ledger.FromState(snap.State)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("snapshot %d: %w", snap.Seq, err)
		}
		fromSeq = snap.Seq
	}

	events, err := s.LoadEvents(ctx, fromSeq+1)
	if err != nil {
		return nil, 0, nil, err
	}
	return l, fromSeq, events, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
