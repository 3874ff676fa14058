package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout      = 10 * time.Second
	callTimeout      = 15 * time.Second
	pingInterval     = 30 * time.Second
	readLimit        = 8 << 20
	maxBackoff       = 30 * time.Second
	steadySessionAge = time.Minute
)

// WatermarkSource exposes the log position of the last event confirmed
// applied. The subscriber resumes delivery from it after every reconnect,
// which makes delivery at-least-once and leaves dedup to the projector.
type WatermarkSource interface {
	Watermark() Position
}

type SubscriberConfig struct {
	WSURL      string
	Contract   string
	StartBlock uint64
	QueueSize  int
}

// Subscriber maintains one long-lived websocket subscription to the
// contract's logs and delivers decoded domain events, in received order,
// into a bounded channel. A slow consumer backpressures the read loop
// rather than dropping events.
type Subscriber struct {
	cfg       SubscriberConfig
	watermark WatermarkSource
	out       chan Event
	connected atomic.Bool
	nextID    uint64
}

func NewSubscriber(cfg SubscriberConfig, watermark WatermarkSource) *Subscriber {
	if watermark == nil {
		panic("watermark source cannot be nil")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Subscriber{
		cfg:       cfg,
		watermark: watermark,
		out:       make(chan Event, cfg.QueueSize),
	}
}

// Events is the delivery channel. It is closed when Run returns.
func (s *Subscriber) Events() <-chan Event {
	return s.out
}

// Connected reports whether the live subscription is currently up.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// Run drives the subscription until ctx is canceled. Connectivity failures
// are never terminal: the loop resubscribes with capped exponential backoff
// and replays from the watermark.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.out)

	backoff := time.Second
	for {
		started := time.Now()
		err := s.stream(ctx)
		s.connected.Store(false)

		if ctx.Err() != nil {
			slog.Info("Event subscription stopped",
				slog.String("type", "chain"))
			return nil
		}

		slog.Warn("Event subscription lost, resubscribing",
			slog.String("type", "chain"),
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
			slog.Uint64("watermark_block", s.watermark.Watermark().Block))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if time.Since(started) > steadySessionAge {
			backoff = time.Second
		} else {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (s *Subscriber) stream(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.WSURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial event source: %w", err)
	}
	conn.SetReadLimit(readLimit)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	// Subscribe before requesting the backfill range: a log emitted between
	// the range snapshot and subscription activation would otherwise reach
	// neither path. The overlap this ordering creates is plain redelivery,
	// which the projector absorbs.
	subID, pending, err := s.subscribe(conn)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	// Replay everything at or after the watermark block. Events already
	// applied inside that block come again.
	from := s.cfg.StartBlock
	if wm := s.watermark.Watermark(); wm.Block > from {
		from = wm.Block
	}
	if err := s.backfill(ctx, conn, from); err != nil {
		return fmt.Errorf("failed to backfill from block %d: %w", from, err)
	}
	for _, l := range pending {
		if err := s.deliver(ctx, l); err != nil {
			return err
		}
	}

	s.connected.Store(true)
	slog.Info("Event subscription established",
		slog.String("type", "chain"),
		slog.String("contract", s.cfg.Contract),
		slog.String("subscription", subID),
		slog.Uint64("from_block", from))

	go keepalive(conn, done)

	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}

		var l RawLog
		if err := json.Unmarshal(msg.Params.Result, &l); err != nil {
			slog.Error("Failed to parse subscription payload",
				slog.String("type", "chain"),
				slog.Any("error", err))
			continue
		}
		if err := s.deliver(ctx, l); err != nil {
			return err
		}
	}
}

func (s *Subscriber) backfill(ctx context.Context, conn *websocket.Conn, from uint64) error {
	result, deferred, err := s.call(conn, "eth_getLogs", []any{map[string]any{
		"fromBlock": hexQuantity(from),
		"toBlock":   "latest",
		"address":   s.cfg.Contract,
	}})
	if err != nil {
		return err
	}

	var logs []RawLog
	if err := json.Unmarshal(result, &logs); err != nil {
		return fmt.Errorf("failed to parse log range: %w", err)
	}

	if len(logs) > 0 {
		slog.Info("Replaying log range",
			slog.String("type", "chain"),
			slog.Int("count", len(logs)),
			slog.Uint64("from_block", from))
	}

	for _, l := range logs {
		if err := s.deliver(ctx, l); err != nil {
			return err
		}
	}
	// Live logs that interleaved with the range response follow the
	// snapshot. Anything present in both is redelivery.
	for _, l := range deferred {
		if err := s.deliver(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) subscribe(conn *websocket.Conn) (string, []RawLog, error) {
	result, deferred, err := s.call(conn, "eth_subscribe", []any{"logs", map[string]any{
		"address": s.cfg.Contract,
	}})
	if err != nil {
		return "", nil, err
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return "", nil, fmt.Errorf("failed to parse subscription id: %w", err)
	}
	return subID, deferred, nil
}

// deliver decodes one raw log and hands it to the consumer. A decode
// failure is fatal for that single log only: its position is logged and
// the stream continues.
func (s *Subscriber) deliver(ctx context.Context, l RawLog) error {
	if l.Removed {
		slog.Warn("Skipping removed log",
			slog.String("type", "chain"),
			slog.String("block", l.BlockNumber),
			slog.String("log_index", l.LogIndex))
		return nil
	}

	ev, err := Decode(l)
	if err != nil {
		slog.Error("Failed to decode event, skipping",
			slog.String("type", "chain"),
			slog.String("block", l.BlockNumber),
			slog.String("log_index", l.LogIndex),
			slog.Any("error", err))
		return nil
	}

	select {
	case s.out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call performs one synchronous JSON-RPC exchange. The subscription may
// already be live while the exchange is in flight, so notifications that
// interleave with the response are collected and handed back for the caller
// to replay, never discarded.
func (s *Subscriber) call(conn *websocket.Conn, method string, params []any) (json.RawMessage, []RawLog, error) {
	s.nextID++
	id := s.nextID

	conn.SetWriteDeadline(time.Now().Add(callTimeout))
	if err := conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}); err != nil {
		return nil, nil, fmt.Errorf("%s write failed: %w", method, err)
	}

	conn.SetReadDeadline(time.Now().Add(callTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var deferred []RawLog
	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, nil, fmt.Errorf("%s read failed: %w", method, err)
		}
		if msg.Method == "eth_subscription" && msg.Params != nil {
			var l RawLog
			if err := json.Unmarshal(msg.Params.Result, &l); err != nil {
				slog.Error("Failed to parse subscription payload",
					slog.String("type", "chain"),
					slog.Any("error", err))
				continue
			}
			deferred = append(deferred, l)
			continue
		}
		if msg.ID == nil || *msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return nil, nil, fmt.Errorf("%s rejected: %s (code %d)", method, msg.Error.Message, msg.Error.Code)
		}
		return msg.Result, deferred, nil
	}
}

func keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(dialTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func hexQuantity(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      *uint64            `json:"id,omitempty"`
	Result  json.RawMessage    `json:"result,omitempty"`
	Error   *rpcError          `json:"error,omitempty"`
	Method  string             `json:"method,omitempty"`
	Params  *subscriptionFrame `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscriptionFrame struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
