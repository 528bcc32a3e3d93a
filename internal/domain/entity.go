package domain

import (
	"time"
)

// JournalEntry is one applied ledger event as persisted in the journal table.
type JournalEntry struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Type      uint16 `gorm:"index" json:"type"`
	Ts        int64  `json:"ts"` // Unix microseconds
	Payload   []byte `json:"payload"`
	CreatedAt time.Time
}

// SnapshotRecord stores a serialized ledger state taken after event Seq.
type SnapshotRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Ts        int64  `json:"ts"`
	Payload   []byte `json:"payload"`
	CreatedAt time.Time
}

func (JournalEntry) TableName() string { return "journal_entries" }

func (SnapshotRecord) TableName() string { return "ledger_snapshots" }
