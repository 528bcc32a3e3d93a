package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/engine"
	"paper_ledger/internal/event"
	"paper_ledger/internal/infra"
	"paper_ledger/internal/infra/storage"
	"paper_ledger/internal/ledger"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Quiet      bool // log warnings to stderr only; used by the one-shot commands

	Config    *infra.Config
	Storage   *storage.Storage // nil when storage is disabled
	Metrics   *infra.Metrics
	Sequencer *engine.Sequencer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath, Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfigOrDefault(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	if b.Quiet {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	} else {
		slog.SetDefault(infra.NewLogger(cfg))
	}
	slog.Info("🚀 Bootstrapping Paper Ledger...", slog.String("version", cfg.App.Version))

	// 3. Initialize Storage (DB)
	if !cfg.Storage.Enabled {
		slog.Warn("⚠️ Storage disabled, ledger lives in memory only")
		return nil
	}
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	return nil
}

func (b *Bootstrap) newLedger() *ledger.Ledger {
	return ledger.NewWithBaseCurrency(b.Config.Ledger.BaseCurrency)
}

// BuildSequencer restores the ledger from the latest snapshot plus the journal
// tail and wraps it in a sequencer. onApplied may be nil.
func (b *Bootstrap) BuildSequencer(ctx context.Context, onApplied func(event.Event)) (*engine.Sequencer, error) {
	l := b.newLedger()
	var (
		fromSeq uint64
		pending []event.Event
	)
	if b.Storage != nil {
		var err error
		l, fromSeq, pending, err = b.Storage.Recover(ctx, b.newLedger)
		if err != nil {
			return nil, fmt.Errorf("recover ledger: %w", err)
		}
	}

	opts := engine.Options{
		InboxSize:     b.Config.Engine.InboxSize,
		SnapshotEvery: b.Config.Engine.SnapshotEvery,
		DumpFile:      b.Config.Engine.DumpFile,
		Metrics:       b.Metrics,
		OnApplied:     onApplied,
	}
	// A nil *storage.Storage inside the interface would not compare equal to nil.
	if b.Storage != nil {
		opts.Store = b.Storage
	}

	seq := engine.NewSequencer(l, fromSeq, opts)
	if err := seq.Replay(pending); err != nil {
		return nil, err
	}
	if b.Storage != nil {
		journaled, err := b.Storage.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("read journal tail: %w", err)
		}
		if seq.LastSeq() != journaled {
			return nil, fmt.Errorf("RECOVERY_MISMATCH: ledger at seq %d, journal ends at %d", seq.LastSeq(), journaled)
		}
	}
	slog.Info("✅ Ledger recovered",
		slog.Uint64("snapshot_seq", fromSeq),
		slog.Int("replayed", len(pending)),
		slog.Int("open_positions", len(seq.OpenPositions())))

	b.Sequencer = seq
	return seq, nil
}

// ReplayJournal rebuilds the ledger from the first journaled event, ignoring
// snapshots. It is used to audit that the journal alone reproduces the state.
func (b *Bootstrap) ReplayJournal(ctx context.Context) (*engine.Sequencer, error) {
	if b.Storage == nil {
		return nil, errors.New("storage is disabled")
	}
	events, err := b.Storage.LoadEvents(ctx, 1)
	if err != nil {
		return nil, err
	}
	seq := engine.NewSequencer(b.newLedger(), 0, engine.Options{Metrics: &infra.Metrics{}})
	if err := seq.Replay(events); err != nil {
		return nil, err
	}
	return seq, nil
}

// SeedInitialDeposit credits the configured deposit once, on an empty journal.
// The sequencer must already be running.
func (b *Bootstrap) SeedInitialDeposit(ctx context.Context) error {
	dep := b.Config.Ledger.InitialDeposit
	if b.Sequencer == nil || dep.IsZero() || b.Sequencer.LastSeq() > 0 {
		return nil
	}
	ev := &event.AssetAddedEvent{Asset: domain.NewAsset(b.Config.Ledger.BaseCurrency, dep)}
	if err := b.Sequencer.Submit(ctx, ev); err != nil {
		return fmt.Errorf("seed initial deposit: %w", err)
	}
	slog.Info("💰 Initial deposit credited",
		slog.String("symbol", ev.Asset.Symbol),
		slog.String("quantity", dep.String()))
	return nil
}

// Close releases the database handle.
func (b *Bootstrap) Close() {
	if b.Storage == nil {
		return
	}
	if err := b.Storage.Close(); err != nil {
		slog.Error("Failed to close storage", slog.Any("error", err))
	}
}
