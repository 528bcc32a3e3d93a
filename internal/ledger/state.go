package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"paper_ledger/internal/domain"
)

// State is a plain-data copy of a ledger, used for snapshots and state dumps.
type State struct {
	Assets          []domain.Asset          `json:"assets"`
	OpenPositions   []domain.OpenPosition   `json:"openPositions"`
	ClosedPositions []domain.ClosedPosition `json:"closedPositions"`
	LastID          uint64                  `json:"lastId"`
}

// State captures the ledger, including the id counter.
func (l *Ledger) State() State {
	return State{
		Assets:          l.Assets(),
		OpenPositions:   l.OpenPositions(),
		ClosedPositions: l.ClosedPositions(),
		LastID:          l.lastID,
	}
}

// FromState rebuilds a ledger from s. It rejects states that break the ledger
// invariants: duplicate symbols, duplicate ids, two open positions on one pair,
// or an id the counter has not minted yet.
func FromState(s State) (*Ledger, error) {
	if len(s.Assets) == 0 {
		return nil, fmt.Errorf("state has no assets")
	}

	symbols := make(map[string]bool, len(s.Assets))
	for _, a := range s.Assets {
		if symbols[a.Symbol] {
			return nil, fmt.Errorf("duplicate asset symbol %q", a.Symbol)
		}
		symbols[a.Symbol] = true
	}

	ids := make(map[string]bool, len(s.OpenPositions)+len(s.ClosedPositions))
	pairs := make(map[domain.Pair]bool, len(s.OpenPositions))
	checkID := func(id string) error {
		if ids[id] {
			return fmt.Errorf("duplicate position id %q", id)
		}
		ids[id] = true
		n, err := parseID(id)
		if err != nil {
			return err
		}
		if n > s.LastID {
			return fmt.Errorf("position id %q is ahead of counter %d", id, s.LastID)
		}
		return nil
	}
	for _, p := range s.OpenPositions {
		if err := checkID(p.ID); err != nil {
			return nil, err
		}
		if pairs[p.Pair] {
			return nil, fmt.Errorf("duplicate open position on %s", p.Pair)
		}
		pairs[p.Pair] = true
	}
	for _, c := range s.ClosedPositions {
		if err := checkID(c.ID); err != nil {
			return nil, err
		}
	}

	l := &Ledger{
		assets: make([]domain.Asset, len(s.Assets)),
		open:   make([]domain.OpenPosition, len(s.OpenPositions)),
		closed: make([]domain.ClosedPosition, len(s.ClosedPositions)),
		lastID: s.LastID,
	}
	copy(l.assets, s.Assets)
	copy(l.open, s.OpenPositions)
	copy(l.closed, s.ClosedPositions)
	return l, nil
}

func parseID(id string) (uint64, error) {
	digits, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, fmt.Errorf("malformed position id %q", id)
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("malformed position id %q", id)
	}
	return n, nil
}
