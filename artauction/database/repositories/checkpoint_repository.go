package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database"
	"github.com/chainpalette/art-auction/artauction/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Checkpoint is the persisted watermark of one event stream. A restart
// resumes delivery from here; redelivery of anything at or after it is
// expected and absorbed by the idempotent projector.
type Checkpoint struct {
	Name      string    `bson:"_id"`
	Block     uint64    `bson:"blockNumber"`
	Index     uint64    `bson:"logIndex"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type CheckpointRepository interface {
	Load(ctx context.Context, name string) (*Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

type checkpointRepository struct {
	db *database.DB
}

func NewCheckpointRepository(db *database.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Load(ctx context.Context, name string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	cp := new(Checkpoint)
	start := time.Now()
	err := r.db.Collection(database.CollectionCheckpoints).
		FindOne(ctx, bson.M{"_id": name}).
		Decode(cp)
	logErr := err
	if errors.Is(err, mongo.ErrNoDocuments) {
		logErr = nil
	}
	logger.LogQuery("checkpoints.load", time.Since(start), logErr)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("checkpoint", name)
		}
		return nil, apperror.Storage("failed to load checkpoint", err)
	}
	return cp, nil
}

func (r *checkpointRepository) Save(ctx context.Context, cp Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	cp.UpdatedAt = time.Now().UTC()
	start := time.Now()
	_, err := r.db.Collection(database.CollectionCheckpoints).ReplaceOne(ctx,
		bson.M{"_id": cp.Name},
		cp,
		options.Replace().SetUpsert(true),
	)
	logger.LogQuery("checkpoints.save", time.Since(start), err)
	if err != nil {
		return apperror.Storage("failed to save checkpoint", err)
	}
	return nil
}
