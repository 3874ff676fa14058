// Package chain subscribes to the auction contract's event log and decodes
// raw logs into typed domain events at the boundary, so nothing downstream
// handles untyped payloads.
package chain

import (
	"math/big"
	"time"
)

// Position is the source-assigned log position of an event. It is the
// authoritative order key for conflict resolution; wall-clock arrival order
// is never trusted because reconnects redeliver.
type Position struct {
	Block uint64
	Index uint64
}

func (p Position) Less(o Position) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	return p.Index < o.Index
}

// Event is the tagged domain event variant over created/bid/ended.
type Event interface {
	Auction() int64
	Position() Position
}

// EventMeta carries the fields shared by every event kind.
type EventMeta struct {
	AuctionID int64
	Pos       Position
}

func (m EventMeta) Auction() int64     { return m.AuctionID }
func (m EventMeta) Position() Position { return m.Pos }

// CreatedEvent mirrors the contract's AuctionCreated.
type CreatedEvent struct {
	EventMeta
	ArtifactID int64
	Seller     string
	StartPrice *big.Int
	StartTime  time.Time
	EndTime    time.Time
}

// BidEvent mirrors the contract's NewBid. The contract only emits events
// for bids it accepted, so Amount is valid by construction on an ordered,
// duplicate-free stream.
type BidEvent struct {
	EventMeta
	Bidder string
	Amount *big.Int
}

// EndedEvent mirrors the contract's AuctionEnded. A zero-address winner
// means the auction closed without bids.
type EndedEvent struct {
	EventMeta
	Winner string
	Amount *big.Int
}

// ZeroAddress is the contract's null account value.
const ZeroAddress = "0x0000000000000000000000000000000000000000"
