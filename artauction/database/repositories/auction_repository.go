package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database"
	"github.com/chainpalette/art-auction/artauction/database/models"
	"github.com/chainpalette/art-auction/artauction/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuctionRepository exposes the per-record atomic operations the projector
// builds its idempotent transitions on. Every write touches exactly one
// auction document; there are no multi-record transactions.
type AuctionRepository interface {
	// CreateIfAbsent inserts the auction keyed by auctionId and reports
	// whether this call inserted. Duplicate creation leaves the existing
	// record unchanged.
	CreateIfAbsent(ctx context.Context, auction *models.Auction) (bool, error)
	GetByAuctionID(ctx context.Context, auctionID int64) (*models.Auction, error)
	// GetActive returns auctions with ended=false and endTime strictly
	// after now, most recently started first.
	GetActive(ctx context.Context, now time.Time) ([]*models.Auction, error)
	// AppendBid appends the bid and updates the derived highest fields in
	// one guarded update. It reports false when the guard (auction exists
	// and is still open) did not match.
	AppendBid(ctx context.Context, auctionID int64, bid models.Bid) (bool, error)
	// Finalize flips ended to true exactly once. A nil winner leaves the
	// highest fields untouched (no-bid ending); otherwise the payload
	// overwrites them as the authoritative final state.
	Finalize(ctx context.Context, auctionID int64, winner *string, amount string) (bool, error)
}

type auctionRepository struct {
	db *database.DB
}

func NewAuctionRepository(db *database.DB) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) CreateIfAbsent(ctx context.Context, auction *models.Auction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	if auction.HighestBid == "" {
		auction.HighestBid = "0"
	}
	if auction.Bids == nil {
		auction.Bids = []models.Bid{}
	}

	start := time.Now()
	res, err := r.db.Collection(database.CollectionAuctions).UpdateOne(ctx,
		bson.M{"auctionId": auction.AuctionID},
		bson.M{"$setOnInsert": auction},
		options.Update().SetUpsert(true),
	)
	logger.LogQuery("auctions.createIfAbsent", time.Since(start), err)
	if err != nil {
		return false, apperror.Storage("failed to create auction", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *auctionRepository) GetByAuctionID(ctx context.Context, auctionID int64) (*models.Auction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	auction := new(models.Auction)
	start := time.Now()
	err := r.db.Collection(database.CollectionAuctions).
		FindOne(ctx, bson.M{"auctionId": auctionID}).
		Decode(auction)
	// A miss is an answer, not a store failure.
	logErr := err
	if errors.Is(err, mongo.ErrNoDocuments) {
		logErr = nil
	}
	logger.LogQuery("auctions.getByAuctionId", time.Since(start), logErr)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("auction", auctionID)
		}
		return nil, apperror.Storage("failed to get auction", err)
	}
	return auction, nil
}

func (r *auctionRepository) GetActive(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	start := time.Now()
	cursor, err := r.db.Collection(database.CollectionAuctions).Find(ctx,
		bson.M{
			"ended":   false,
			"endTime": bson.M{"$gt": now},
		},
		options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}}),
	)
	logger.LogQuery("auctions.getActive", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("failed to list active auctions", err)
	}

	var auctions []*models.Auction
	if err := cursor.All(ctx, &auctions); err != nil {
		return nil, apperror.Storage("failed to decode active auctions", err)
	}
	return auctions, nil
}

func (r *auctionRepository) AppendBid(ctx context.Context, auctionID int64, bid models.Bid) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	start := time.Now()
	res, err := r.db.Collection(database.CollectionAuctions).UpdateOne(ctx,
		bson.M{"auctionId": auctionID, "ended": false},
		bson.M{
			"$push": bson.M{"bids": bid},
			"$set": bson.M{
				"highestBid":    bid.Amount,
				"highestBidder": bid.Bidder,
			},
		},
	)
	logger.LogQuery("auctions.appendBid", time.Since(start), err)
	if err != nil {
		return false, apperror.Storage("failed to append bid", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *auctionRepository) Finalize(ctx context.Context, auctionID int64, winner *string, amount string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	set := bson.M{"ended": true}
	if winner != nil {
		set["highestBidder"] = *winner
		set["highestBid"] = amount
	}

	start := time.Now()
	res, err := r.db.Collection(database.CollectionAuctions).UpdateOne(ctx,
		bson.M{"auctionId": auctionID, "ended": false},
		bson.M{"$set": set},
	)
	logger.LogQuery("auctions.finalize", time.Since(start), err)
	if err != nil {
		return false, apperror.Storage("failed to finalize auction", err)
	}
	return res.MatchedCount > 0, nil
}
