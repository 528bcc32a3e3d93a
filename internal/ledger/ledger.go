// Package ledger keeps the balances and positions of one paper trading account.
//
// A Ledger performs no internal synchronization. Callers that share one across
// goroutines must serialize access themselves (see engine.Sequencer).
package ledger

import (
	"fmt"

	"paper_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

const idPrefix = "trade_"

// priceScale is the number of decimal places kept for a merged buying price.
const priceScale = 18

// Ledger owns the assets, open positions and closed positions of one account,
// together with the counter used to mint every position id.
type Ledger struct {
	assets []domain.Asset
	open   []domain.OpenPosition
	closed []domain.ClosedPosition
	lastID uint64
}

// New creates a ledger seeded with a zero "usd" balance.
func New() *Ledger {
	return NewWithBaseCurrency(domain.DefaultBaseCurrency)
}

// NewWithBaseCurrency creates a ledger whose first asset is symbol at zero.
func NewWithBaseCurrency(symbol string) *Ledger {
	return &Ledger{
		assets: []domain.Asset{{Symbol: symbol, Quantity: decimal.Zero}},
		open:   make([]domain.OpenPosition, 0),
		closed: make([]domain.ClosedPosition, 0),
	}
}

// AddAsset credits delta.Quantity to delta.Symbol, appending the symbol if it is new.
func (l *Ledger) AddAsset(delta domain.Asset) {
	if i := l.assetIndex(delta.Symbol); i >= 0 {
		l.assets[i].Quantity = l.assets[i].Quantity.Add(delta.Quantity)
		return
	}
	l.assets = append(l.assets, domain.Asset{Symbol: delta.Symbol, Quantity: delta.Quantity})
}

// RemoveAsset debits delta.Quantity from delta.Symbol. Balances may go negative.
func (l *Ledger) RemoveAsset(delta domain.Asset) {
	l.AddAsset(delta.Negated())
}

// OpenPosition pays quantity*buyingPrice of the quote currency for quantity of
// the base currency and records the position. An existing position on the same
// pair absorbs the new quantity and its buying price becomes the
// quantity-weighted average of both. It returns the position as it now stands.
func (l *Ledger) OpenPosition(req domain.OpenRequest) domain.OpenPosition {
	cost := req.Quantity.Mul(req.BuyingPrice)
	l.RemoveAsset(domain.Asset{Symbol: req.Pair.Quote, Quantity: cost})
	l.AddAsset(domain.Asset{Symbol: req.Pair.Base, Quantity: req.Quantity})

	i := l.pairIndex(req.Pair)
	if i < 0 {
		pos := domain.OpenPosition{
			ID:          l.mintID(),
			Pair:        req.Pair,
			Quantity:    req.Quantity,
			BuyingPrice: req.BuyingPrice,
		}
		l.open = append(l.open, pos)
		return pos
	}

	pos := &l.open[i]
	newQty := pos.Quantity.Add(req.Quantity)
	if !newQty.IsZero() {
		pos.BuyingPrice = pos.CostBasis().Add(cost).DivRound(newQty, priceScale)
	}
	pos.Quantity = newQty
	return *pos
}

// ClosePosition sells req.Quantity of position req.ID at req.SellingPrice and
// appends a closed-position record. Closing the full remaining quantity removes
// the open position. On error the ledger is left untouched.
func (l *Ledger) ClosePosition(req domain.CloseRequest) (domain.ClosedPosition, error) {
	i := l.idIndex(req.ID)
	if i < 0 {
		return domain.ClosedPosition{}, &domain.PositionError{Op: "close", PositionID: req.ID, Err: domain.ErrUnknownPositionID}
	}
	pos := l.open[i]
	if !pos.Pair.Equal(req.Pair) {
		return domain.ClosedPosition{}, &domain.PositionError{
			Op:         "close",
			PositionID: req.ID,
			Err:        fmt.Errorf("%w: position is %s, request is %s", domain.ErrPairMismatch, pos.Pair, req.Pair),
		}
	}
	if req.Quantity.GreaterThan(pos.Quantity) {
		return domain.ClosedPosition{}, &domain.PositionError{
			Op:         "close",
			PositionID: req.ID,
			Err:        fmt.Errorf("%w: requested %s, remaining %s", domain.ErrInsufficientPositionQuantity, req.Quantity, pos.Quantity),
		}
	}

	if req.Quantity.Equal(pos.Quantity) {
		l.open = append(l.open[:i], l.open[i+1:]...)
	} else {
		l.open[i].Quantity = pos.Quantity.Sub(req.Quantity)
	}

	l.AddAsset(domain.Asset{Symbol: pos.Pair.Quote, Quantity: req.Quantity.Mul(req.SellingPrice)})
	l.RemoveAsset(domain.Asset{Symbol: pos.Pair.Base, Quantity: req.Quantity})

	closed := domain.ClosedPosition{
		ID:              l.mintID(),
		OriginalTradeID: req.ID,
		Pair:            pos.Pair,
		Quantity:        req.Quantity,
		BuyingPrice:     pos.BuyingPrice,
		SellingPrice:    req.SellingPrice,
	}
	l.closed = append(l.closed, closed)
	return closed, nil
}

// Assets returns a copy of the balances in insertion order.
func (l *Ledger) Assets() []domain.Asset {
	out := make([]domain.Asset, len(l.assets))
	copy(out, l.assets)
	return out
}

// OpenPositions returns a copy of the open positions.
func (l *Ledger) OpenPositions() []domain.OpenPosition {
	out := make([]domain.OpenPosition, len(l.open))
	copy(out, l.open)
	return out
}

// ClosedPositions returns a copy of the closed-position records.
func (l *Ledger) ClosedPositions() []domain.ClosedPosition {
	out := make([]domain.ClosedPosition, len(l.closed))
	copy(out, l.closed)
	return out
}

// Asset returns the balance for symbol.
func (l *Ledger) Asset(symbol string) (domain.Asset, bool) {
	if i := l.assetIndex(symbol); i >= 0 {
		return l.assets[i], true
	}
	return domain.Asset{}, false
}

// RealizedPnL sums the realized gains of all closed positions per quote currency.
func (l *Ledger) RealizedPnL() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, c := range l.closed {
		out[c.Pair.Quote] = out[c.Pair.Quote].Add(c.RealizedPnL())
	}
	return out
}

func (l *Ledger) mintID() string {
	l.lastID++
	return fmt.Sprintf("%s%d", idPrefix, l.lastID)
}

func (l *Ledger) assetIndex(symbol string) int {
	for i := range l.assets {
		if l.assets[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

func (l *Ledger) pairIndex(pair domain.Pair) int {
	for i := range l.open {
		if l.open[i].Pair.Equal(pair) {
			return i
		}
	}
	return -1
}

func (l *Ledger) idIndex(id string) int {
	for i := range l.open {
		if l.open[i].ID == id {
			return i
		}
	}
	return -1
}
