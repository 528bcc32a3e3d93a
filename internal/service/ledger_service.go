package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/engine"
	"paper_ledger/internal/event"

	"github.com/shopspring/decimal"
)

// LedgerService turns wire requests into sequencer commands.
type LedgerService struct {
	seq *engine.Sequencer
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(seq *engine.Sequencer) *LedgerService {
	return &LedgerService{seq: seq}
}

// AddAsset credits a balance and returns it as updated.
func (s *LedgerService) AddAsset(ctx context.Context, req AssetRequest) (domain.Asset, error) {
	a, err := req.toAsset()
	if err != nil {
		return domain.Asset{}, err
	}
	ev := &event.AssetAddedEvent{Asset: a}
	if err := s.seq.Submit(ctx, ev); err != nil {
		return domain.Asset{}, fmt.Errorf("add asset %s: %w", a.Symbol, err)
	}
	return *ev.Balance, nil
}

// RemoveAsset debits a balance and returns it as updated.
func (s *LedgerService) RemoveAsset(ctx context.Context, req AssetRequest) (domain.Asset, error) {
	a, err := req.toAsset()
	if err != nil {
		return domain.Asset{}, err
	}
	ev := &event.AssetRemovedEvent{Asset: a}
	if err := s.seq.Submit(ctx, ev); err != nil {
		return domain.Asset{}, fmt.Errorf("remove asset %s: %w", a.Symbol, err)
	}
	return *ev.Balance, nil
}

// OpenPosition opens a position, or adds to the one already open on the pair.
func (s *LedgerService) OpenPosition(ctx context.Context, req OpenPositionRequest) (domain.OpenPosition, error) {
	r, err := req.toDomain()
	if err != nil {
		return domain.OpenPosition{}, err
	}
	ev := &event.PositionOpenedEvent{Request: r}
	if err := s.seq.Submit(ctx, ev); err != nil {
		return domain.OpenPosition{}, fmt.Errorf("open %s: %w", r.Pair, err)
	}
	slog.Debug("Position opened",
		slog.String("id", ev.PositionID),
		slog.String("pair", r.Pair.String()),
		slog.String("quantity", r.Quantity.String()))
	return *ev.Position, nil
}

// ClosePosition sells part or all of an open position.
func (s *LedgerService) ClosePosition(ctx context.Context, req ClosePositionRequest) (domain.ClosedPosition, error) {
	r, err := req.toDomain()
	if err != nil {
		return domain.ClosedPosition{}, err
	}
	ev := &event.PositionClosedEvent{Request: r}
	if err := s.seq.Submit(ctx, ev); err != nil {
		return domain.ClosedPosition{}, err
	}
	slog.Debug("Position closed",
		slog.String("id", ev.ClosedID),
		slog.String("original", r.ID),
		slog.String("quantity", r.Quantity.String()))
	return *ev.Closed, nil
}

// Assets returns all balances in ledger order.
func (s *LedgerService) Assets() []domain.Asset {
	return s.seq.Assets()
}

// OpenPositions returns all open positions.
func (s *LedgerService) OpenPositions() []domain.OpenPosition {
	return s.seq.OpenPositions()
}

// ClosedPositions returns all closed-position records.
func (s *LedgerService) ClosedPositions() []domain.ClosedPosition {
	return s.seq.ClosedPositions()
}

// QuoteSummary aggregates positions denominated in one quote currency.
type QuoteSummary struct {
	Quote       string          `json:"quote"`
	CostBasis   decimal.Decimal `json:"costBasis"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
}

// Portfolio is a point-in-time summary of the ledger.
type Portfolio struct {
	Seq             uint64                `json:"seq"`
	Assets          []domain.Asset        `json:"assets"`
	OpenPositions   []domain.OpenPosition `json:"openPositions"`
	ClosedPositions int                   `json:"closedPositions"`
	Quotes          []QuoteSummary        `json:"quotes"`
}

// Portfolio summarizes balances, open cost basis and realized gains per quote currency.
func (s *LedgerService) Portfolio() Portfolio {
	view := s.seq.View()
	st := view.State

	byQuote := make(map[string]*QuoteSummary)
	get := func(q string) *QuoteSummary {
		if qs, ok := byQuote[q]; ok {
			return qs
		}
		qs := &QuoteSummary{Quote: q}
		byQuote[q] = qs
		return qs
	}
	for _, p := range st.OpenPositions {
		qs := get(p.Pair.Quote)
		qs.CostBasis = qs.CostBasis.Add(p.CostBasis())
	}
	for quote, pnl := range view.RealizedPnL {
		get(quote).RealizedPnL = pnl
	}

	quotes := make([]QuoteSummary, 0, len(byQuote))
	for _, qs := range byQuote {
		quotes = append(quotes, *qs)
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Quote < quotes[j].Quote
	})

	return Portfolio{
		Seq:             view.Seq,
		Assets:          st.Assets,
		OpenPositions:   st.OpenPositions,
		ClosedPositions: len(st.ClosedPositions),
		Quotes:          quotes,
	}
}
