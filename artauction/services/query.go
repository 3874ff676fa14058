package services

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database/models"
	"github.com/chainpalette/art-auction/artauction/database/repositories"
)

const artifactCacheSize = 512

// AuctionView is an auction record joined with its artifact. The join is
// optional: an auction whose metadata has not arrived yet carries a null
// artifact, never an error.
type AuctionView struct {
	*models.Auction
	Artifact *models.Artifact `json:"artifact"`
}

// QueryService is the read-only composition layer over the read model.
type QueryService struct {
	auctions  repositories.AuctionRepository
	artifacts repositories.ArtifactRepository
	cache     *lru.Cache
}

func NewQueryService(auctions repositories.AuctionRepository, artifacts repositories.ArtifactRepository) *QueryService {
	if auctions == nil {
		panic("auction repository cannot be nil")
	}
	if artifacts == nil {
		panic("artifact repository cannot be nil")
	}

	cache, err := lru.New(artifactCacheSize)
	if err != nil {
		panic(err)
	}

	return &QueryService{
		auctions:  auctions,
		artifacts: artifacts,
		cache:     cache,
	}
}

// ListActiveAuctions returns every auction that is not ended and whose
// endTime lies strictly after now, most recently started first.
func (s *QueryService) ListActiveAuctions(ctx context.Context) ([]AuctionView, error) {
	auctions, err := s.auctions.GetActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	views := make([]AuctionView, 0, len(auctions))
	for _, auction := range auctions {
		views = append(views, AuctionView{
			Auction:  auction,
			Artifact: s.lookupArtifact(ctx, auction.ArtifactID),
		})
	}
	return views, nil
}

// GetAuction returns one joined auction or a NotFound error.
func (s *QueryService) GetAuction(ctx context.Context, auctionID int64) (*AuctionView, error) {
	auction, err := s.auctions.GetByAuctionID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return &AuctionView{
		Auction:  auction,
		Artifact: s.lookupArtifact(ctx, auction.ArtifactID),
	}, nil
}

// ListArtifacts returns the minted catalog, newest first.
func (s *QueryService) ListArtifacts(ctx context.Context) ([]*models.Artifact, error) {
	return s.artifacts.GetAll(ctx)
}

// lookupArtifact degrades to nil on any miss. Artifacts are immutable so
// hits are cached; misses are not, letting late-arriving metadata resolve
// on a later read.
func (s *QueryService) lookupArtifact(ctx context.Context, artifactID int64) *models.Artifact {
	if cached, ok := s.cache.Get(artifactID); ok {
		return cached.(*models.Artifact)
	}

	artifact, err := s.artifacts.GetByArtifactID(ctx, artifactID)
	if err != nil {
		if !apperror.IsNotFound(err) {
			slog.Warn("Artifact join degraded to null",
				slog.String("type", "db"),
				slog.Int64("artifact_id", artifactID),
				slog.String("error", err.Error()))
		}
		return nil
	}

	s.cache.Add(artifactID, artifact)
	return artifact
}
