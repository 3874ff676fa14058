package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Auction is the read model projection of one on-chain auction.
//
// All amount fields are wei-scale values that exceed the safe native
// integer range, so they are stored as decimal strings and compared as
// big integers, never as floats or int64.
//
// Invariants: once Bids is non-empty, HighestBid/HighestBidder mirror its
// last element; once Ended is true they are final and no bid is appended;
// AuctionID is immutable. Records are never physically deleted — an ended
// auction is retained as history.
type Auction struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AuctionID     int64              `bson:"auctionId" json:"auctionId"`
	ArtifactID    int64              `bson:"artifactId" json:"artifactId"`
	Seller        string             `bson:"seller" json:"seller"`
	StartTime     time.Time          `bson:"startTime" json:"startTime"`
	EndTime       time.Time          `bson:"endTime" json:"endTime"`
	StartPrice    string             `bson:"startPrice" json:"startPrice"`
	HighestBidder *string            `bson:"highestBidder" json:"highestBidder"`
	HighestBid    string             `bson:"highestBid" json:"highestBid"`
	Ended         bool               `bson:"ended" json:"ended"`
	Bids          []Bid              `bson:"bids" json:"bids"`
}

// Bid is one accepted bid. Insertion order is arrival order; entries are
// never reordered or pruned.
type Bid struct {
	Bidder    string    `bson:"bidder" json:"bidder"`
	Amount    string    `bson:"amount" json:"amount"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// HasBid reports whether a bid with the same bidder and amount was already
// recorded. Used for duplicate-delivery detection, which is only correct
// under per-auction ordered application.
func (a *Auction) HasBid(bidder, amount string) bool {
	for _, b := range a.Bids {
		if b.Bidder == bidder && b.Amount == amount {
			return true
		}
	}
	return false
}
