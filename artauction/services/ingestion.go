package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/chain"
)

type IngestRequest struct {
	Name           string
	Description    string
	Creator        string
	CreatorAddress string
}

// ArtworkMetadata is the derived document persisted next to the image,
// itself content-addressed.
type ArtworkMetadata struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Image          string              `json:"image"`
	Creator        string              `json:"creator"`
	CreatorAddress string              `json:"creatorAddress"`
	CreatedAt      time.Time           `json:"createdAt"`
	Attributes     []MetadataAttribute `json:"attributes"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type IngestResult struct {
	ImageAddress    string          `json:"imageAddress"`
	MetadataAddress string          `json:"metadataAddress"`
	Metadata        ArtworkMetadata `json:"metadata"`
}

// IngestionService runs the artwork upload pipeline: spool → store image →
// derive metadata → store metadata. The artifact catalog record is NOT
// written here; that happens later, as one atomic upsert, once the caller
// has minted the token and knows its artifactId.
type IngestionService struct {
	store    BlobStore
	tempDir  string
	maxBytes int64
}

func NewIngestionService(store BlobStore, tempDir string, maxBytes int64) *IngestionService {
	if store == nil {
		panic("blob store cannot be nil")
	}
	return &IngestionService{
		store:    store,
		tempDir:  tempDir,
		maxBytes: maxBytes,
	}
}

// Ingest runs the pipeline. The temporary spool file is removed on every
// exit path. If the image put fails, nothing was written; if the metadata
// put fails, the image blob stays behind — content-addressed orphans are
// harmless because re-running with identical bytes lands on the same
// address.
func (s *IngestionService) Ingest(ctx context.Context, upload io.Reader, req IngestRequest) (*IngestResult, error) {
	if upload == nil {
		return nil, apperror.Validation("no image payload provided")
	}

	tmp, err := os.CreateTemp(s.tempDir, "artwork-upload-*")
	if err != nil {
		return nil, apperror.Storage("failed to spool upload", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			slog.Warn("Failed to remove upload spool file",
				slog.String("path", tmp.Name()),
				slog.String("error", err.Error()))
		}
	}()

	src := upload
	if s.maxBytes > 0 {
		src = io.LimitReader(upload, s.maxBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		return nil, apperror.Storage("failed to spool upload", err)
	}
	if size == 0 {
		return nil, apperror.Validation("empty image payload")
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, apperror.Validationf("image exceeds the %d byte upload limit", s.maxBytes)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, apperror.Storage("failed to read upload spool file", err)
	}

	imageAddress, err := s.store.Put(ctx, data)
	if err != nil {
		return nil, err
	}

	metadata := buildMetadata(req, s.store.GatewayURL(imageAddress))
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperror.Storage("failed to encode metadata document", err)
	}

	metadataAddress, err := s.store.Put(ctx, raw)
	if err != nil {
		return nil, err
	}

	slog.Info("Artwork ingested",
		slog.String("name", metadata.Name),
		slog.Int64("image_bytes", size),
		slog.String("image_address", imageAddress),
		slog.String("metadata_address", metadataAddress))

	return &IngestResult{
		ImageAddress:    imageAddress,
		MetadataAddress: metadataAddress,
		Metadata:        metadata,
	}, nil
}

func buildMetadata(req IngestRequest, imageURL string) ArtworkMetadata {
	name := req.Name
	if name == "" {
		name = "Untitled Artwork"
	}
	creator := req.Creator
	if creator == "" {
		creator = "Unknown Artist"
	}
	creatorAddress := req.CreatorAddress
	if creatorAddress == "" {
		creatorAddress = chain.ZeroAddress
	}

	return ArtworkMetadata{
		Name:           name,
		Description:    req.Description,
		Image:          imageURL,
		Creator:        creator,
		CreatorAddress: creatorAddress,
		CreatedAt:      time.Now().UTC(),
		Attributes:     []MetadataAttribute{},
	}
}
