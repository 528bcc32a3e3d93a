package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/event"
	"paper_ledger/internal/infra"
	"paper_ledger/internal/ledger"

	"github.com/shopspring/decimal"
)

// ErrStopped is returned by Submit once the event loop has exited.
var ErrStopped = errors.New("sequencer stopped")

// Store is the journal the sequencer writes applied events to.
type Store interface {
	SaveEvent(ctx context.Context, ev event.Event) error
	SaveSnapshot(ctx context.Context, seq uint64, state ledger.State) error
}

// Options configures a Sequencer. Zero values are usable.
type Options struct {
	InboxSize     int
	Store         Store  // nil disables journaling
	SnapshotEvery uint64 // 0 disables periodic snapshots
	DumpFile      string
	Metrics       *infra.Metrics

	// OnApplied is called from the event loop after an event is applied and journaled.
	OnApplied func(event.Event)
}

// snapshotPruner is implemented by stores that can drop old snapshots.
type snapshotPruner interface {
	PruneSnapshots(ctx context.Context, keep int) error
}

const keepSnapshots = 3

type command struct {
	ev    event.Event
	reply chan error
}

// Sequencer owns one ledger and applies every mutation from a single goroutine.
type Sequencer struct {
	inbox   chan command
	done    chan struct{}
	ledger  *ledger.Ledger
	nextSeq uint64

	store         Store
	snapshotEvery uint64
	dumpFile      string
	metrics       *infra.Metrics
	onApplied     func(event.Event)

	mu sync.RWMutex // held for writing while an event is applied
}

// NewSequencer creates a sequencer for l. lastSeq is the sequence number of the
// last event already reflected in l (0 for a fresh ledger).
func NewSequencer(l *ledger.Ledger, lastSeq uint64, opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.DumpFile == "" {
		opts.DumpFile = "panic_dump.json"
	}
	return &Sequencer{
		inbox:         make(chan command, opts.InboxSize),
		done:          make(chan struct{}),
		ledger:        l,
		nextSeq:       lastSeq + 1,
		store:         opts.Store,
		snapshotEvery: opts.SnapshotEvery,
		dumpFile:      opts.DumpFile,
		metrics:       opts.Metrics,
		onApplied:     opts.OnApplied,
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq))
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpFile)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Uint64("last_seq", s.LastSeq()))
			return
		case cmd := <-s.inbox:
			cmd.reply <- s.processEvent(cmd.ev)
		}
	}
}

// Submit hands ev to the event loop and waits for the ledger's verdict.
// If ctx ends after the event was queued, the event may still be applied.
func (s *Sequencer) Submit(ctx context.Context, ev event.Event) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- command{ev: ev, reply: reply}:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) processEvent(ev event.Event) error {
	start := time.Now()

	s.mu.Lock()
	err := s.apply(ev)
	if err != nil {
		s.mu.Unlock()
		s.metrics.RecordRejected()
		if domain.IsRejection(err) {
			slog.Warn("Command rejected",
				slog.String("type", ev.GetType().String()),
				slog.Any("error", err))
		} else {
			s.metrics.RecordError()
			slog.Error("Command failed",
				slog.String("type", ev.GetType().String()),
				slog.Any("error", err))
		}
		return err
	}
	seq := s.nextSeq
	ev.Stamp(seq, start.UnixMicro())
	s.nextSeq++
	s.mu.Unlock()

	// Journal after the ledger accepted the event; rejected commands never reach it.
	if s.store != nil {
		if err := s.store.SaveEvent(context.Background(), ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: seq %d: %v", seq, err))
		}
	}

	s.metrics.RecordApplied(seq, time.Since(start).Nanoseconds())
	switch ev.GetType() {
	case event.EvPositionOpened:
		s.metrics.RecordPositionOpened()
	case event.EvPositionClosed:
		s.metrics.RecordPositionClosed()
	}
	s.maybeSnapshot(seq)

	if s.onApplied != nil {
		s.onApplied(ev)
	}
	return nil
}

// apply mutates the ledger. Must be called with mu held.
func (s *Sequencer) apply(ev event.Event) error {
	switch e := ev.(type) {
	case *event.AssetAddedEvent:
		s.ledger.AddAsset(e.Asset)
		e.Balance = s.balance(e.Asset.Symbol)
	case *event.AssetRemovedEvent:
		s.ledger.RemoveAsset(e.Asset)
		e.Balance = s.balance(e.Asset.Symbol)
	case *event.PositionOpenedEvent:
		pos := s.ledger.OpenPosition(e.Request)
		e.PositionID = pos.ID
		e.Position = &pos
	case *event.PositionClosedEvent:
		closed, err := s.ledger.ClosePosition(e.Request)
		if err != nil {
			return err
		}
		e.ClosedID = closed.ID
		e.Closed = &closed
	default:
		return fmt.Errorf("%w: unknown event type %v", domain.ErrInvalidRequest, ev.GetType())
	}
	return nil
}

// Replay re-applies journaled events without writing them back to the store.
// Events must continue the sequence exactly; a gap halts the process.
func (s *Sequencer) Replay(events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if ev.GetSeq() != s.nextSeq {
			panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
		}

		want := mintedID(ev)
		if err := s.apply(ev); err != nil {
			return fmt.Errorf("REPLAY_DIVERGENCE: seq %d rejected: %w", ev.GetSeq(), err)
		}
		if got := mintedID(ev); want != "" && got != want {
			return fmt.Errorf("REPLAY_DIVERGENCE: seq %d produced %s, journal has %s", ev.GetSeq(), got, want)
		}
		s.nextSeq++
	}

	slog.Info("Replay completed",
		slog.Int("events", len(events)),
		slog.Uint64("last_seq", s.nextSeq-1))
	return nil
}

func (s *Sequencer) balance(symbol string) *domain.Asset {
	a, ok := s.ledger.Asset(symbol)
	if !ok {
		return nil
	}
	return &a
}

func mintedID(ev event.Event) string {
	switch e := ev.(type) {
	case *event.PositionOpenedEvent:
		return e.PositionID
	case *event.PositionClosedEvent:
		return e.ClosedID
	}
	return ""
}

func (s *Sequencer) maybeSnapshot(seq uint64) {
	if s.store == nil || s.snapshotEvery == 0 || seq%s.snapshotEvery != 0 {
		return
	}
	if err := s.store.SaveSnapshot(context.Background(), seq, s.State()); err != nil {
		// The journal is still complete, so recovery only gets slower.
		s.metrics.RecordError()
		slog.Warn("Snapshot failed", slog.Uint64("seq", seq), slog.Any("error", err))
		return
	}
	slog.Debug("Snapshot saved", slog.Uint64("seq", seq))

	if p, ok := s.store.(snapshotPruner); ok {
		if err := p.PruneSnapshots(context.Background(), keepSnapshots); err != nil {
			slog.Warn("Snapshot prune failed", slog.Any("error", err))
		}
	}
}

// ======================================================================================
// External reads
// ======================================================================================

// Assets returns the current balances.
func (s *Sequencer) Assets() []domain.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Assets()
}

// Asset returns the current balance for symbol.
func (s *Sequencer) Asset(symbol string) (domain.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Asset(symbol)
}

// OpenPositions returns the current open positions.
func (s *Sequencer) OpenPositions() []domain.OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.OpenPositions()
}

// ClosedPositions returns all closed-position records.
func (s *Sequencer) ClosedPositions() []domain.ClosedPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.ClosedPositions()
}

// View is a consistent read of the ledger as of sequence number Seq.
type View struct {
	Seq         uint64
	State       ledger.State
	RealizedPnL map[string]decimal.Decimal // per quote currency
}

// View returns the state, realized gains and last sequence number under one read lock.
func (s *Sequencer) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Seq:         s.nextSeq - 1,
		State:       s.ledger.State(),
		RealizedPnL: s.ledger.RealizedPnL(),
	}
}

// State returns a copy of the full ledger state.
func (s *Sequencer) State() ledger.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.State()
}

// LastSeq returns the sequence number of the last applied event.
func (s *Sequencer) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq - 1
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	// Called from the panic path, possibly with mu held; read without locking.
	data := struct {
		LastSeq uint64       `json:"lastSeq"`
		Ledger  ledger.State `json:"ledger"`
	}{
		LastSeq: s.nextSeq - 1,
		Ledger:  s.ledger.State(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
