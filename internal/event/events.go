package event

import (
	"encoding/json"
	"fmt"

	"paper_ledger/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvAssetAdded Type = iota + 1
	EvAssetRemoved
	EvPositionOpened
	EvPositionClosed
)

// String returns the wire name of the event type.
func (t Type) String() string {
	switch t {
	case EvAssetAdded:
		return "asset_added"
	case EvAssetRemoved:
		return "asset_removed"
	case EvPositionOpened:
		return "position_opened"
	case EvPositionClosed:
		return "position_closed"
	default:
		return "unknown"
	}
}

// Event is the interface for all ledger commands handled by the sequencer.
// Seq and Ts are zero until the sequencer has applied the event.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
	Stamp(seq uint64, ts int64)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // Unix microseconds
}

func (e *BaseEvent) GetSeq() uint64 { return e.Seq }
func (e *BaseEvent) GetTs() int64   { return e.Ts }

// Stamp assigns the journal sequence number and timestamp.
func (e *BaseEvent) Stamp(seq uint64, ts int64) {
	e.Seq = seq
	e.Ts = ts
}

// AssetAddedEvent credits a balance.
type AssetAddedEvent struct {
	BaseEvent
	Asset   domain.Asset  `json:"asset"`
	Balance *domain.Asset `json:"balance,omitempty"` // set once applied
}

func (e *AssetAddedEvent) GetType() Type { return EvAssetAdded }

// AssetRemovedEvent debits a balance.
type AssetRemovedEvent struct {
	BaseEvent
	Asset   domain.Asset  `json:"asset"`
	Balance *domain.Asset `json:"balance,omitempty"` // set once applied
}

func (e *AssetRemovedEvent) GetType() Type { return EvAssetRemoved }

// PositionOpenedEvent opens or adds to a position.
// PositionID and Position are filled in by the sequencer with the position
// as it stands after the open.
type PositionOpenedEvent struct {
	BaseEvent
	Request    domain.OpenRequest   `json:"request"`
	PositionID string               `json:"positionId,omitempty"`
	Position   *domain.OpenPosition `json:"position,omitempty"`
}

func (e *PositionOpenedEvent) GetType() Type { return EvPositionOpened }

// PositionClosedEvent closes part or all of a position.
// ClosedID and Closed are filled in by the sequencer with the minted record.
type PositionClosedEvent struct {
	BaseEvent
	Request  domain.CloseRequest    `json:"request"`
	ClosedID string                 `json:"closedId,omitempty"`
	Closed   *domain.ClosedPosition `json:"closed,omitempty"`
}

func (e *PositionClosedEvent) GetType() Type { return EvPositionClosed }

// Decode rebuilds a typed event from its journaled JSON payload.
func Decode(t Type, payload []byte) (Event, error) {
	var ev Event
	switch t {
	case EvAssetAdded:
		ev = &AssetAddedEvent{}
	case EvAssetRemoved:
		ev = &AssetRemovedEvent{}
	case EvPositionOpened:
		ev = &PositionOpenedEvent{}
	case EvPositionClosed:
		ev = &PositionClosedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %d", t)
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", t, err)
	}
	return ev, nil
}

// Envelope is the JSON shape pushed to stream subscribers.
type Envelope struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// Wrap pairs an event with its type name.
func Wrap(ev Event) Envelope {
	return Envelope{Type: ev.GetType().String(), Event: ev}
}
