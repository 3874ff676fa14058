// Package handlers is the thin HTTP transport over the ingestion pipeline
// and the query service. Request validation and status mapping live here;
// no business logic does.
package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chainpalette/art-auction/artauction"
	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database/models"
	"github.com/chainpalette/art-auction/artauction/services"
)

// SetupRoutes configures all application routes.
func SetupRoutes(router *fiber.App, app *artauction.App) {
	api := router.Group("/api")

	api.Get("/health", Health(app))
	api.Post("/upload-artwork", UploadArtwork(app))
	api.Post("/nft-metadata", SaveArtifact(app))
	api.Get("/nfts", ListArtifacts(app))
	api.Get("/active-auctions", ListActiveAuctions(app))
	api.Get("/auction/:auctionId", GetAuction(app))
}

// Health reports per-dependency readiness.
func Health(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		statuses := app.Readiness(c.Context())

		status := "OK"
		if statuses["mongodb"] != "Connected" {
			status = "Degraded"
		}

		payload := fiber.Map{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   app.Version,
			"services":  statuses,
		}
		if app.Projector != nil {
			payload["anomalies"] = app.Projector.AnomalyCount()
		}
		return c.JSON(payload)
	}
}

// UploadArtwork accepts a multipart image and runs the ingestion pipeline.
func UploadArtwork(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		file, err := c.FormFile("image")
		if err != nil {
			return apperror.Validation("no image file provided")
		}

		src, err := file.Open()
		if err != nil {
			return apperror.Validation("unreadable image file")
		}
		defer src.Close()

		result, err := app.Ingestion.Ingest(c.Context(), src, services.IngestRequest{
			Name:           c.FormValue("name"),
			Description:    c.FormValue("description"),
			Creator:        c.FormValue("creator"),
			CreatorAddress: c.FormValue("creatorAddress"),
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"success":         true,
			"imageAddress":    result.ImageAddress,
			"metadataAddress": result.MetadataAddress,
			"metadata":        result.Metadata,
		})
	}
}

type saveArtifactRequest struct {
	ArtifactID      int64  `json:"artifactId"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Image           string `json:"image"`
	ImageAddress    string `json:"imageAddress"`
	MetadataAddress string `json:"metadataAddress"`
	Creator         string `json:"creator"`
	CreatorAddress  string `json:"creatorAddress"`
}

// SaveArtifact writes the catalog record for a minted token, once.
func SaveArtifact(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req saveArtifactRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.Validation("malformed artifact payload")
		}
		if req.ArtifactID <= 0 {
			return apperror.Validation("artifactId is required")
		}
		if req.Name == "" {
			return apperror.Validation("name is required")
		}

		artifact := &models.Artifact{
			ArtifactID:      req.ArtifactID,
			Name:            req.Name,
			Description:     req.Description,
			Image:           req.Image,
			ImageAddress:    req.ImageAddress,
			MetadataAddress: req.MetadataAddress,
			Creator:         req.Creator,
			CreatorAddress:  req.CreatorAddress,
		}

		created, err := app.ArtifactRepository.CreateIfAbsent(c.Context(), artifact)
		if err != nil {
			return err
		}
		if !created {
			// The catalog is immutable; echoing the resubmitted fields
			// could contradict it, so return the stored record.
			artifact, err = app.ArtifactRepository.GetByArtifactID(c.Context(), req.ArtifactID)
			if err != nil {
				return err
			}
		}

		return c.JSON(fiber.Map{
			"success":  true,
			"created":  created,
			"artifact": artifact,
		})
	}
}

// ListArtifacts returns the minted catalog, newest first.
func ListArtifacts(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		artifacts, err := app.Query.ListArtifacts(c.Context())
		if err != nil {
			return err
		}
		if artifacts == nil {
			artifacts = []*models.Artifact{}
		}
		return c.JSON(artifacts)
	}
}

// ListActiveAuctions returns open auctions joined with their artifacts.
func ListActiveAuctions(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		views, err := app.Query.ListActiveAuctions(c.Context())
		if err != nil {
			return err
		}
		return c.JSON(views)
	}
}

// GetAuction returns one joined auction or 404.
func GetAuction(app *artauction.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auctionID, err := strconv.ParseInt(c.Params("auctionId"), 10, 64)
		if err != nil {
			return apperror.Validation("auctionId must be an integer")
		}

		view, err := app.Query.GetAuction(c.Context(), auctionID)
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}
