// Package projector applies domain events to the read model through
// idempotent, order-aware transitions. Conceptual states per auction,
// derived from the record itself: Unknown (no record) → Open (ended=false)
// → Closed (ended=true, terminal).
package projector

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/chain"
	"github.com/chainpalette/art-auction/artauction/database/models"
	"github.com/chainpalette/art-auction/artauction/database/repositories"
	"github.com/chainpalette/art-auction/artauction/logger"
	"golang.org/x/sync/errgroup"
)

const (
	checkpointName = "auction-events"
	defaultShards  = 8
	defaultQueue   = 64
	retryBase      = time.Second
	retryMax       = 10 * time.Second
)

type Config struct {
	Shards    int
	QueueSize int
}

// Projector consumes the subscriber's channel and fans events out to shard
// workers keyed by auctionId, so events for one auction apply in received
// order while different auctions proceed in parallel. The duplicate-bid
// check in applyBid is only correct under that per-auction ordering.
type Projector struct {
	cfg         Config
	auctions    repositories.AuctionRepository
	artifacts   repositories.ArtifactRepository
	checkpoints repositories.CheckpointRepository
	tracker     *watermarkTracker
	anomalies   atomic.Uint64
}

func New(cfg Config, auctions repositories.AuctionRepository, artifacts repositories.ArtifactRepository, checkpoints repositories.CheckpointRepository) *Projector {
	if auctions == nil {
		panic("auction repository cannot be nil")
	}
	if artifacts == nil {
		panic("artifact repository cannot be nil")
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueue
	}
	return &Projector{
		cfg:         cfg,
		auctions:    auctions,
		artifacts:   artifacts,
		checkpoints: checkpoints,
		tracker:     newWatermarkTracker(),
	}
}

// Restore primes the watermark from the persisted checkpoint, if any.
func (p *Projector) Restore(ctx context.Context) error {
	if p.checkpoints == nil {
		return nil
	}
	cp, err := p.checkpoints.Load(ctx, checkpointName)
	if apperror.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	p.tracker.reset(chain.Position{Block: cp.Block, Index: cp.Index})
	slog.Info("Restored projection checkpoint",
		slog.String("type", "chain"),
		slog.Uint64("block", cp.Block),
		slog.Uint64("log_index", cp.Index))
	return nil
}

// Watermark implements chain.WatermarkSource.
func (p *Projector) Watermark() chain.Position {
	return p.tracker.watermark()
}

// AnomalyCount reports how many transitions were no-ops against
// expectation since startup.
func (p *Projector) AnomalyCount() uint64 {
	return p.anomalies.Load()
}

type job struct {
	seq uint64
	ev  chain.Event
}

// Run processes events until the channel closes or ctx is canceled.
// Cancellation stops delivery without discarding the watermark.
func (p *Projector) Run(ctx context.Context, events <-chan chain.Event) error {
	g, ctx := errgroup.WithContext(ctx)

	shards := make([]chan job, p.cfg.Shards)
	for i := range shards {
		ch := make(chan job, p.cfg.QueueSize)
		shards[i] = ch
		g.Go(func() error {
			return p.worker(ctx, ch)
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				j := job{seq: p.tracker.assign(), ev: ev}
				shard := shards[uint64(ev.Auction())%uint64(len(shards))]
				select {
				case shard <- j:
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (p *Projector) worker(ctx context.Context, jobs <-chan job) error {
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			if err := p.applyWithRetry(ctx, j.ev); err != nil {
				return err
			}
			p.confirm(ctx, j.seq, j.ev.Position())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applyWithRetry retries storage failures indefinitely: transitions are
// idempotent and the store path is the retryable error class, so giving up
// would lose an update and stopping the stream would stall every auction.
// Only context cancellation breaks the loop.
func (p *Projector) applyWithRetry(ctx context.Context, ev chain.Event) error {
	backoff := retryBase
	for {
		start := time.Now()
		err := p.apply(ctx, ev)
		logger.LogEvent(eventKind(ev), ev.Auction(), time.Since(start), err)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > retryMax {
			backoff = retryMax
		}
	}
}

func (p *Projector) confirm(ctx context.Context, seq uint64, pos chain.Position) {
	wm, advanced := p.tracker.complete(seq, pos)
	if !advanced || p.checkpoints == nil {
		return
	}
	// Best effort: a lost checkpoint only widens the redelivery window.
	if err := p.checkpoints.Save(ctx, repositories.Checkpoint{
		Name:  checkpointName,
		Block: wm.Block,
		Index: wm.Index,
	}); err != nil && ctx.Err() == nil {
		slog.Warn("Failed to persist checkpoint",
			slog.String("type", "db"),
			slog.String("error", err.Error()))
	}
}

func (p *Projector) apply(ctx context.Context, ev chain.Event) error {
	switch e := ev.(type) {
	case chain.CreatedEvent:
		return p.applyCreated(ctx, e)
	case chain.BidEvent:
		return p.applyBid(ctx, e)
	case chain.EndedEvent:
		return p.applyEnded(ctx, e)
	default:
		p.anomaly("Unhandled event variant", slog.Int64("auction_id", ev.Auction()))
		return nil
	}
}

// applyCreated: Unknown → Open. Duplicate delivery against Open or Closed
// leaves the record unchanged.
func (p *Projector) applyCreated(ctx context.Context, ev chain.CreatedEvent) error {
	inserted, err := p.auctions.CreateIfAbsent(ctx, &models.Auction{
		AuctionID:  ev.AuctionID,
		ArtifactID: ev.ArtifactID,
		Seller:     ev.Seller,
		StartTime:  ev.StartTime,
		EndTime:    ev.EndTime,
		StartPrice: ev.StartPrice.String(),
		HighestBid: "0",
		Bids:       []models.Bid{},
	})
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("Duplicate AuctionCreated absorbed",
			slog.String("type", "chain"),
			slog.Int64("auction_id", ev.AuctionID))
		return nil
	}

	// The auction must not depend on off-chain metadata having arrived;
	// the join stays null at read time until the artifact record lands.
	if _, err := p.artifacts.GetByArtifactID(ctx, ev.ArtifactID); apperror.IsNotFound(err) {
		p.anomaly("Auction created before its artifact record",
			slog.Int64("auction_id", ev.AuctionID),
			slog.Int64("artifact_id", ev.ArtifactID))
	}

	slog.Info("Auction record created",
		slog.String("type", "chain"),
		slog.Int64("auction_id", ev.AuctionID),
		slog.Int64("artifact_id", ev.ArtifactID),
		slog.String("start_price", ev.StartPrice.String()))
	return nil
}

// applyBid: only valid against Open. The contract is the source of truth
// for bid validity, so a non-increasing amount is either a duplicate
// delivery (detected by bids membership) or an inconsistency worth logging,
// never an error.
func (p *Projector) applyBid(ctx context.Context, ev chain.BidEvent) error {
	auction, err := p.auctions.GetByAuctionID(ctx, ev.AuctionID)
	if apperror.IsNotFound(err) {
		p.anomaly("Bid for unknown auction",
			slog.Int64("auction_id", ev.AuctionID),
			slog.String("bidder", ev.Bidder))
		return nil
	}
	if err != nil {
		return err
	}

	amount := ev.Amount.String()

	if auction.Ended {
		if auction.HasBid(ev.Bidder, amount) {
			slog.Debug("Duplicate NewBid after close absorbed",
				slog.String("type", "chain"),
				slog.Int64("auction_id", ev.AuctionID))
		} else {
			p.anomaly("Bid for closed auction",
				slog.Int64("auction_id", ev.AuctionID),
				slog.String("bidder", ev.Bidder))
		}
		return nil
	}

	highest, ok := new(big.Int).SetString(auction.HighestBid, 10)
	if !ok {
		p.anomaly("Unparseable highestBid in record",
			slog.Int64("auction_id", ev.AuctionID),
			slog.String("highest_bid", auction.HighestBid))
		highest = big.NewInt(0)
	}

	if ev.Amount.Cmp(highest) > 0 {
		matched, err := p.auctions.AppendBid(ctx, ev.AuctionID, models.Bid{
			Bidder:    ev.Bidder,
			Amount:    amount,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !matched {
			p.anomaly("Bid guard did not match an open auction",
				slog.Int64("auction_id", ev.AuctionID))
		}
		return nil
	}

	if auction.HasBid(ev.Bidder, amount) {
		slog.Debug("Duplicate NewBid absorbed",
			slog.String("type", "chain"),
			slog.Int64("auction_id", ev.AuctionID),
			slog.String("amount", amount))
		return nil
	}

	p.anomaly("Non-increasing bid observed",
		slog.Int64("auction_id", ev.AuctionID),
		slog.String("amount", amount),
		slog.String("highest_bid", auction.HighestBid))
	return nil
}

// applyEnded: Open → Closed, exactly once. The payload is authoritative
// for the final highest fields in case the last NewBid was missed; a
// zero-address winner means no bids and leaves the fields alone.
func (p *Projector) applyEnded(ctx context.Context, ev chain.EndedEvent) error {
	auction, err := p.auctions.GetByAuctionID(ctx, ev.AuctionID)
	if apperror.IsNotFound(err) {
		p.anomaly("Ended for unknown auction",
			slog.Int64("auction_id", ev.AuctionID))
		return nil
	}
	if err != nil {
		return err
	}
	if auction.Ended {
		slog.Debug("Duplicate AuctionEnded absorbed",
			slog.String("type", "chain"),
			slog.Int64("auction_id", ev.AuctionID))
		return nil
	}

	var winner *string
	if ev.Winner != chain.ZeroAddress {
		w := ev.Winner
		winner = &w
	}

	matched, err := p.auctions.Finalize(ctx, ev.AuctionID, winner, ev.Amount.String())
	if err != nil {
		return err
	}
	if !matched {
		p.anomaly("Finalize guard did not match an open auction",
			slog.Int64("auction_id", ev.AuctionID))
		return nil
	}

	slog.Info("Auction finalized",
		slog.String("type", "chain"),
		slog.Int64("auction_id", ev.AuctionID),
		slog.String("final_amount", ev.Amount.String()),
		slog.Bool("had_winner", winner != nil))
	return nil
}

func (p *Projector) anomaly(msg string, attrs ...any) {
	p.anomalies.Add(1)
	logger.LogAnomaly(msg, attrs...)
}

func eventKind(ev chain.Event) string {
	switch ev.(type) {
	case chain.CreatedEvent:
		return "AuctionCreated"
	case chain.BidEvent:
		return "NewBid"
	case chain.EndedEvent:
		return "AuctionEnded"
	default:
		return "unknown"
	}
}
