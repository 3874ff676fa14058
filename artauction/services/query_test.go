package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database/models"
)

type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[int64]*models.Auction
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: make(map[int64]*models.Auction)}
}

func (r *fakeAuctionRepo) CreateIfAbsent(ctx context.Context, auction *models.Auction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return false, nil
	}
	if auction.HighestBid == "" {
		auction.HighestBid = "0"
	}
	if auction.Bids == nil {
		auction.Bids = []models.Bid{}
	}
	r.auctions[auction.AuctionID] = auction
	return true, nil
}

func (r *fakeAuctionRepo) GetByAuctionID(ctx context.Context, auctionID int64) (*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	auction, ok := r.auctions[auctionID]
	if !ok {
		return nil, apperror.NotFound("auction", auctionID)
	}
	return auction, nil
}

func (r *fakeAuctionRepo) GetActive(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*models.Auction
	for _, auction := range r.auctions {
		if !auction.Ended && auction.EndTime.After(now) {
			active = append(active, auction)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime.After(active[j].StartTime)
	})
	return active, nil
}

func (r *fakeAuctionRepo) AppendBid(ctx context.Context, auctionID int64, bid models.Bid) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	auction, ok := r.auctions[auctionID]
	if !ok || auction.Ended {
		return false, nil
	}
	auction.Bids = append(auction.Bids, bid)
	auction.HighestBid = bid.Amount
	bidder := bid.Bidder
	auction.HighestBidder = &bidder
	return true, nil
}

func (r *fakeAuctionRepo) Finalize(ctx context.Context, auctionID int64, winner *string, amount string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	auction, ok := r.auctions[auctionID]
	if !ok || auction.Ended {
		return false, nil
	}
	auction.Ended = true
	if winner != nil {
		auction.HighestBidder = winner
		auction.HighestBid = amount
	}
	return true, nil
}

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[int64]*models.Artifact
	gets      int
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{artifacts: make(map[int64]*models.Artifact)}
}

func (r *fakeArtifactRepo) CreateIfAbsent(ctx context.Context, artifact *models.Artifact) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[artifact.ArtifactID]; ok {
		return false, nil
	}
	artifact.CreatedAt = time.Now().UTC()
	r.artifacts[artifact.ArtifactID] = artifact
	return true, nil
}

func (r *fakeArtifactRepo) GetByArtifactID(ctx context.Context, artifactID int64) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	artifact, ok := r.artifacts[artifactID]
	if !ok {
		return nil, apperror.NotFound("artifact", artifactID)
	}
	return artifact, nil
}

func (r *fakeArtifactRepo) GetAll(ctx context.Context) ([]*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*models.Artifact, 0, len(r.artifacts))
	for _, artifact := range r.artifacts {
		all = append(all, artifact)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (r *fakeArtifactRepo) delete(artifactID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.artifacts, artifactID)
}

func openAuction(auctionID, artifactID int64, startedAgo time.Duration) *models.Auction {
	now := time.Now().UTC()
	return &models.Auction{
		AuctionID:  auctionID,
		ArtifactID: artifactID,
		Seller:     "0xaaaa567890abcdef1234567890abcdef12345678",
		StartTime:  now.Add(-startedAgo),
		EndTime:    now.Add(time.Hour),
		StartPrice: "1000000000000000000",
	}
}

func TestListActiveAuctions(t *testing.T) {
	ctx := context.Background()
	auctions := newFakeAuctionRepo()
	artifacts := newFakeArtifactRepo()

	artifacts.CreateIfAbsent(ctx, &models.Artifact{ArtifactID: 7, Name: "Sunrise"})

	auctions.CreateIfAbsent(ctx, openAuction(1, 7, 3*time.Hour))
	auctions.CreateIfAbsent(ctx, openAuction(2, 8, time.Hour))

	expired := openAuction(3, 7, 5*time.Hour)
	expired.EndTime = time.Now().UTC().Add(-time.Minute)
	auctions.CreateIfAbsent(ctx, expired)

	closed := openAuction(4, 7, 2*time.Hour)
	closed.Ended = true
	auctions.CreateIfAbsent(ctx, closed)

	svc := NewQueryService(auctions, artifacts)
	views, err := svc.ListActiveAuctions(ctx)
	if err != nil {
		t.Fatalf("ListActiveAuctions() error = %v", err)
	}

	if len(views) != 2 {
		t.Fatalf("len(views) = %d, want 2 (ended and expired excluded)", len(views))
	}
	if views[0].AuctionID != 2 || views[1].AuctionID != 1 {
		t.Errorf("order = [%d %d], want most recently started first [2 1]",
			views[0].AuctionID, views[1].AuctionID)
	}
	if views[1].Artifact == nil || views[1].Artifact.Name != "Sunrise" {
		t.Errorf("auction 1 artifact = %+v, want joined Sunrise", views[1].Artifact)
	}
	if views[0].Artifact != nil {
		t.Errorf("auction 2 artifact = %+v, want nil for missing metadata", views[0].Artifact)
	}
}

func TestGetAuctionNotFound(t *testing.T) {
	svc := NewQueryService(newFakeAuctionRepo(), newFakeArtifactRepo())

	_, err := svc.GetAuction(context.Background(), 404)
	if !apperror.IsNotFound(err) {
		t.Errorf("GetAuction() error = %v, want not found", err)
	}
}

func TestArtifactJoinCachesHitsOnly(t *testing.T) {
	ctx := context.Background()
	auctions := newFakeAuctionRepo()
	artifacts := newFakeArtifactRepo()
	auctions.CreateIfAbsent(ctx, openAuction(1, 7, time.Hour))

	svc := NewQueryService(auctions, artifacts)

	// Miss: the artifact record has not arrived yet.
	view, err := svc.GetAuction(ctx, 1)
	if err != nil {
		t.Fatalf("GetAuction() error = %v", err)
	}
	if view.Artifact != nil {
		t.Fatalf("Artifact = %+v, want nil before metadata lands", view.Artifact)
	}

	// Late-arriving metadata resolves on the next read because misses
	// are never cached.
	artifacts.CreateIfAbsent(ctx, &models.Artifact{ArtifactID: 7, Name: "Sunrise"})
	view, err = svc.GetAuction(ctx, 1)
	if err != nil {
		t.Fatalf("GetAuction() error = %v", err)
	}
	if view.Artifact == nil || view.Artifact.Name != "Sunrise" {
		t.Fatalf("Artifact = %+v, want Sunrise after metadata lands", view.Artifact)
	}

	// The hit is cached: deleting the backing record does not affect
	// subsequent reads, and the repository is not consulted again.
	artifacts.delete(7)
	getsBefore := artifacts.gets
	view, err = svc.GetAuction(ctx, 1)
	if err != nil {
		t.Fatalf("GetAuction() error = %v", err)
	}
	if view.Artifact == nil {
		t.Error("Artifact = nil, want cached record")
	}
	if artifacts.gets != getsBefore {
		t.Errorf("repository consulted %d extra times, want cache hit", artifacts.gets-getsBefore)
	}
}

func TestListArtifactsNewestFirst(t *testing.T) {
	ctx := context.Background()
	artifacts := newFakeArtifactRepo()
	artifacts.CreateIfAbsent(ctx, &models.Artifact{ArtifactID: 1, Name: "First"})
	time.Sleep(2 * time.Millisecond)
	artifacts.CreateIfAbsent(ctx, &models.Artifact{ArtifactID: 2, Name: "Second"})

	svc := NewQueryService(newFakeAuctionRepo(), artifacts)
	all, err := svc.ListArtifacts(ctx)
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}

	if len(all) != 2 || all[0].ArtifactID != 2 {
		t.Errorf("ListArtifacts() = %+v, want newest first", all)
	}
}

// End-to-end over the fakes: ingest an artwork, record its artifact, open
// an auction on it, and read the joined view back.
func TestIngestThenAuctionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeBlobStore()
	auctions := newFakeAuctionRepo()
	artifacts := newFakeArtifactRepo()

	ingestion := NewIngestionService(store, t.TempDir(), 1<<20)
	result, err := ingestion.Ingest(ctx, strings.NewReader("fake-png-bytes"), IngestRequest{
		Name:    "Sunrise",
		Creator: "Mona",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	artifacts.CreateIfAbsent(ctx, &models.Artifact{
		ArtifactID:      7,
		Name:            result.Metadata.Name,
		Image:           result.Metadata.Image,
		ImageAddress:    result.ImageAddress,
		MetadataAddress: result.MetadataAddress,
		Creator:         result.Metadata.Creator,
	})
	auctions.CreateIfAbsent(ctx, openAuction(9, 7, time.Minute))

	svc := NewQueryService(auctions, artifacts)
	views, err := svc.ListActiveAuctions(ctx)
	if err != nil {
		t.Fatalf("ListActiveAuctions() error = %v", err)
	}

	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}
	view := views[0]
	if view.AuctionID != 9 || view.StartPrice != "1000000000000000000" {
		t.Errorf("view = %+v, want auction 9 at its wei-scale start price", view.Auction)
	}
	if view.Artifact == nil || view.Artifact.ImageAddress != result.ImageAddress {
		t.Errorf("joined artifact = %+v, want ingested image address", view.Artifact)
	}
}
