package database

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultOpTimeout     = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second

	CollectionArtifacts   = "artifacts"
	CollectionAuctions    = "auctions"
	CollectionCheckpoints = "checkpoints"
)

type DBConfig struct {
	URI         string
	Database    string
	OpTimeout   time.Duration
	MinPoolSize uint64
	MaxPoolSize uint64
}

type DB struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(defaultConnTimeout).
		SetServerSelectionTimeout(defaultConnTimeout)
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	// Connect is lazy; ping with retries so a cold-started store gets a
	// chance to come up before we give up.
	for i := 0; i < defaultMaxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err == nil {
			break
		}
		slog.Warn("Read model store not reachable yet, retrying",
			slog.String("type", "db"),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), defaultConnTimeout)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, apperror.Unavailable(
			fmt.Sprintf("read model store unreachable after %d attempts", defaultMaxRetries), err)
	}

	return &DB{
		client:    client,
		db:        client.Database(cfg.Database),
		opTimeout: cfg.OpTimeout,
	}, nil
}

func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

// OpTimeout is the bound applied to every single store call.
func (d *DB) OpTimeout() time.Duration {
	return d.opTimeout
}

func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()
	return d.client.Ping(ctx, readpref.Primary())
}

func (d *DB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnTimeout)
	defer cancel()
	if err := d.client.Disconnect(ctx); err != nil {
		slog.Error("Failed to disconnect from read model store",
			slog.String("type", "db"),
			slog.String("error", err.Error()))
	}
}

// EnsureIndexes creates the unique key indexes the projection relies on.
// Safe to call on every startup.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)

	_, err := d.db.Collection(CollectionArtifacts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "artifactId", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("failed to create artifacts index: %w", err)
	}

	_, err = d.db.Collection(CollectionAuctions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "auctionId", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("failed to create auctions index: %w", err)
	}

	_, err = d.db.Collection(CollectionAuctions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ended", Value: 1}, {Key: "endTime", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create active auctions index: %w", err)
	}

	return nil
}
