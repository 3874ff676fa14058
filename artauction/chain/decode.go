package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// RawLog is a contract log as delivered by the JSON-RPC endpoint, before
// any typing. Quantities are hex strings per the wire encoding.
type RawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// topic0 values identifying the three event kinds, keccak256 over the
// canonical event signatures.
var (
	topicAuctionCreated = eventTopic("AuctionCreated(uint256,uint256,address,uint256,uint256,uint256)")
	topicNewBid         = eventTopic("NewBid(uint256,address,uint256)")
	topicAuctionEnded   = eventTopic("AuctionEnded(uint256,address,uint256)")
)

func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Decode converts a raw log into a typed domain event. A failure here is
// fatal for this single log only; the caller records the position and
// continues the stream.
func Decode(l RawLog) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	pos, err := decodePosition(l)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(l.Topics[0]) {
	case topicAuctionCreated:
		return decodeCreated(l, pos)
	case topicNewBid:
		return decodeBid(l, pos)
	case topicAuctionEnded:
		return decodeEnded(l, pos)
	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0])
	}
}

func decodePosition(l RawLog) (Position, error) {
	block, err := parseHexUint64(l.BlockNumber)
	if err != nil {
		return Position{}, fmt.Errorf("bad blockNumber %q: %w", l.BlockNumber, err)
	}
	index, err := parseHexUint64(l.LogIndex)
	if err != nil {
		return Position{}, fmt.Errorf("bad logIndex %q: %w", l.LogIndex, err)
	}
	return Position{Block: block, Index: index}, nil
}

func decodeCreated(l RawLog, pos Position) (Event, error) {
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("AuctionCreated: want 3 topics, got %d", len(l.Topics))
	}
	auctionID, err := topicInt64(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("AuctionCreated auctionId: %w", err)
	}
	artifactID, err := topicInt64(l.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("AuctionCreated tokenId: %w", err)
	}

	words, err := dataWords(l.Data, 4)
	if err != nil {
		return nil, fmt.Errorf("AuctionCreated data: %w", err)
	}

	startTime, err := wordUnixTime(words[2])
	if err != nil {
		return nil, fmt.Errorf("AuctionCreated startTime: %w", err)
	}
	endTime, err := wordUnixTime(words[3])
	if err != nil {
		return nil, fmt.Errorf("AuctionCreated endTime: %w", err)
	}

	return CreatedEvent{
		EventMeta:  EventMeta{AuctionID: auctionID, Pos: pos},
		ArtifactID: artifactID,
		Seller:     wordAddress(words[0]),
		StartPrice: words[1],
		StartTime:  startTime,
		EndTime:    endTime,
	}, nil
}

func decodeBid(l RawLog, pos Position) (Event, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("NewBid: want 2 topics, got %d", len(l.Topics))
	}
	auctionID, err := topicInt64(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("NewBid auctionId: %w", err)
	}

	words, err := dataWords(l.Data, 2)
	if err != nil {
		return nil, fmt.Errorf("NewBid data: %w", err)
	}

	return BidEvent{
		EventMeta: EventMeta{AuctionID: auctionID, Pos: pos},
		Bidder:    wordAddress(words[0]),
		Amount:    words[1],
	}, nil
}

func decodeEnded(l RawLog, pos Position) (Event, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("AuctionEnded: want 2 topics, got %d", len(l.Topics))
	}
	auctionID, err := topicInt64(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("AuctionEnded auctionId: %w", err)
	}

	words, err := dataWords(l.Data, 2)
	if err != nil {
		return nil, fmt.Errorf("AuctionEnded data: %w", err)
	}

	return EndedEvent{
		EventMeta: EventMeta{AuctionID: auctionID, Pos: pos},
		Winner:    wordAddress(words[0]),
		Amount:    words[1],
	}, nil
}

func parseHexUint64(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("not a hex quantity")
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("quantity out of range")
	}
	return n.Uint64(), nil
}

// topicInt64 reads an indexed uint256 topic as an identifier. Identifiers
// are contract-assigned counters, unlike amounts, so they fit int64.
func topicInt64(topic string) (int64, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(topic, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("not a hex topic")
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("identifier out of int64 range")
	}
	return n.Int64(), nil
}

// dataWords splits the ABI-encoded data blob into exactly n 32-byte words.
func dataWords(data string, n int) ([]*big.Int, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("not hex: %w", err)
	}
	if len(raw) != n*32 {
		return nil, fmt.Errorf("want %d words, got %d bytes", n, len(raw))
	}
	words := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		words[i] = new(big.Int).SetBytes(raw[i*32 : (i+1)*32])
	}
	return words, nil
}

// wordAddress renders a 32-byte word holding a left-padded address.
func wordAddress(w *big.Int) string {
	var buf [20]byte
	w.FillBytes(buf[:])
	return "0x" + hex.EncodeToString(buf[:])
}

func wordUnixTime(w *big.Int) (time.Time, error) {
	if !w.IsInt64() {
		return time.Time{}, fmt.Errorf("timestamp out of range")
	}
	return time.Unix(w.Int64(), 0).UTC(), nil
}
