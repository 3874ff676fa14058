package artauction

import (
	"context"

	"github.com/chainpalette/art-auction/artauction/chain"
	"github.com/chainpalette/art-auction/artauction/database"
	"github.com/chainpalette/art-auction/artauction/database/repositories"
	"github.com/chainpalette/art-auction/artauction/projector"
	"github.com/chainpalette/art-auction/artauction/services"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// App holds the process-wide collaborators. Everything is wired explicitly
// in main and passed by handle; there are no ambient singletons.
type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB                   *database.DB
	ArtifactRepository   repositories.ArtifactRepository
	AuctionRepository    repositories.AuctionRepository
	CheckpointRepository repositories.CheckpointRepository

	ContentStore *services.ContentStore
	Ingestion    *services.IngestionService
	Query        *services.QueryService

	Subscriber *chain.Subscriber
	Projector  *projector.Projector
}

// Readiness reports one status string per dependency for the health
// endpoint.
func (a *App) Readiness(ctx context.Context) map[string]string {
	statuses := make(map[string]string, 3)

	if a.DB != nil && a.DB.Ping(ctx) == nil {
		statuses["mongodb"] = "Connected"
	} else {
		statuses["mongodb"] = "Disconnected"
	}

	if a.Subscriber != nil && a.Subscriber.Connected() {
		statuses["blockchain"] = "Connected"
	} else {
		statuses["blockchain"] = "Disconnected"
	}

	if a.ContentStore != nil {
		statuses["contentStore"] = "Configured"
	} else {
		statuses["contentStore"] = "Unconfigured"
	}

	return statuses
}
