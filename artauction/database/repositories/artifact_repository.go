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

type ArtifactRepository interface {
	// CreateIfAbsent writes the catalog entry exactly once, keyed by
	// artifactId. A second call with the same id is a no-op; it reports
	// whether this call inserted.
	CreateIfAbsent(ctx context.Context, artifact *models.Artifact) (bool, error)
	GetByArtifactID(ctx context.Context, artifactID int64) (*models.Artifact, error)
	GetAll(ctx context.Context) ([]*models.Artifact, error)
}

type artifactRepository struct {
	db *database.DB
}

func NewArtifactRepository(db *database.DB) ArtifactRepository {
	return &artifactRepository{db: db}
}

func (r *artifactRepository) CreateIfAbsent(ctx context.Context, artifact *models.Artifact) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	artifact.CreatedAt = time.Now().UTC()

	start := time.Now()
	res, err := r.db.Collection(database.CollectionArtifacts).UpdateOne(ctx,
		bson.M{"artifactId": artifact.ArtifactID},
		bson.M{"$setOnInsert": artifact},
		options.Update().SetUpsert(true),
	)
	logger.LogQuery("artifacts.createIfAbsent", time.Since(start), err)
	if err != nil {
		return false, apperror.Storage("failed to save artifact", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *artifactRepository) GetByArtifactID(ctx context.Context, artifactID int64) (*models.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	artifact := new(models.Artifact)
	start := time.Now()
	err := r.db.Collection(database.CollectionArtifacts).
		FindOne(ctx, bson.M{"artifactId": artifactID}).
		Decode(artifact)
	logErr := err
	if errors.Is(err, mongo.ErrNoDocuments) {
		logErr = nil
	}
	logger.LogQuery("artifacts.getByArtifactId", time.Since(start), logErr)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("artifact", artifactID)
		}
		return nil, apperror.Storage("failed to get artifact", err)
	}
	return artifact, nil
}

func (r *artifactRepository) GetAll(ctx context.Context) ([]*models.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.OpTimeout())
	defer cancel()

	start := time.Now()
	cursor, err := r.db.Collection(database.CollectionArtifacts).Find(ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	logger.LogQuery("artifacts.getAll", time.Since(start), err)
	if err != nil {
		return nil, apperror.Storage("failed to list artifacts", err)
	}

	var artifacts []*models.Artifact
	if err := cursor.All(ctx, &artifacts); err != nil {
		return nil, apperror.Storage("failed to decode artifacts", err)
	}
	return artifacts, nil
}
