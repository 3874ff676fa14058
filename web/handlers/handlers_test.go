package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chainpalette/art-auction/artauction"
	"github.com/chainpalette/art-auction/artauction/apperror"
	"github.com/chainpalette/art-auction/artauction/database/models"
	"github.com/chainpalette/art-auction/web/middleware"
)

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[int64]*models.Artifact
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
	cp := *artifact
	r.artifacts[artifact.ArtifactID] = &cp
	return true, nil
}

func (r *fakeArtifactRepo) GetByArtifactID(ctx context.Context, artifactID int64) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.artifacts[artifactID]
	if !ok {
		return nil, apperror.NotFound("artifact", artifactID)
	}
	cp := *artifact
	return &cp, nil
}

func (r *fakeArtifactRepo) GetAll(ctx context.Context) ([]*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*models.Artifact, 0, len(r.artifacts))
	for _, artifact := range r.artifacts {
		cp := *artifact
		all = append(all, &cp)
	}
	return all, nil
}

func newTestRouter(artifacts *fakeArtifactRepo) *fiber.App {
	app := artauction.New(artauction.Config{}, "test", "none")
	app.ArtifactRepository = artifacts

	router := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
	})
	SetupRoutes(router, app)
	return router
}

func postJSON(t *testing.T, router *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := router.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

type saveArtifactResponse struct {
	Success  bool            `json:"success"`
	Created  bool            `json:"created"`
	Artifact models.Artifact `json:"artifact"`
}

func decodeSave(t *testing.T, resp *http.Response) saveArtifactResponse {
	t.Helper()
	defer resp.Body.Close()
	var out saveArtifactResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestSaveArtifact(t *testing.T) {
	router := newTestRouter(newFakeArtifactRepo())

	resp := postJSON(t, router, "/api/nft-metadata", map[string]any{
		"artifactId": 7,
		"name":       "Sunrise",
		"creator":    "Mona",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeSave(t, resp)
	if !out.Created || out.Artifact.Name != "Sunrise" {
		t.Errorf("response = %+v, want created Sunrise", out)
	}
}

func TestSaveArtifactDuplicateReturnsStoredRecord(t *testing.T) {
	router := newTestRouter(newFakeArtifactRepo())

	postJSON(t, router, "/api/nft-metadata", map[string]any{
		"artifactId": 7,
		"name":       "Sunrise",
		"creator":    "Mona",
	}).Body.Close()

	// A resubmission with different fields must echo the immutable stored
	// record, not the contradicting input.
	resp := postJSON(t, router, "/api/nft-metadata", map[string]any{
		"artifactId": 7,
		"name":       "Forgery",
		"creator":    "Impostor",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeSave(t, resp)
	if out.Created {
		t.Error("Created = true for a duplicate artifactId")
	}
	if out.Artifact.Name != "Sunrise" || out.Artifact.Creator != "Mona" {
		t.Errorf("artifact = %+v, want the stored record", out.Artifact)
	}
}

func TestSaveArtifactValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{name: "MissingArtifactID", payload: map[string]any{"name": "Sunrise"}},
		{name: "MissingName", payload: map[string]any{"artifactId": 7}},
	}

	router := newTestRouter(newFakeArtifactRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, router, "/api/nft-metadata", tt.payload)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}
