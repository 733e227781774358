// Package persist writes reconstructed recipes to durable storage:
// the recipe record to Postgres, its thumbnail to S3-compatible object
// storage.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/recipe"
)

// Column limits in the recipes table. Longer values are truncated
// rather than rejected.
const (
	maxNameLen = 255
	maxLinkLen = 500
)

const insertRecipeSQL = `
INSERT INTO recipes (name, ingredients, steps, original_link, thumbnail_url, owner_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

// rowQuerier is the slice of pgxpool.Pool the store needs.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecipeStore persists recipes to Postgres, uploading the thumbnail
// beforehand when a thumbnail store is configured.
type RecipeStore struct {
	db     rowQuerier
	thumbs *ThumbnailStore
	logger *zap.Logger
}

// NewRecipeStore creates a store on the given pool. thumbs may be nil
// to skip thumbnail uploads.
func NewRecipeStore(pool *pgxpool.Pool, thumbs *ThumbnailStore, logger *zap.Logger) *RecipeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecipeStore{db: pool, thumbs: thumbs, logger: logger}
}

// Save writes the recipe and returns the new record id.
//
// The thumbnail upload runs first and is best-effort: on failure the
// recipe row is still written, without a thumbnail reference.
func (s *RecipeStore) Save(ctx context.Context, rec *recipe.Recipe, ownerID, sourceURL, thumbnailURL string) (string, error) {
	storedThumb := ""
	if s.thumbs != nil && thumbnailURL != "" {
		url, err := s.thumbs.Upload(ctx, ownerID, thumbnailURL)
		if err != nil {
			s.logger.Warn("Thumbnail upload failed, saving recipe without it",
				zap.String("owner_id", ownerID), zap.Error(err))
		} else {
			storedThumb = url
		}
	}

	// JSONB columns take explicit JSON so pgx does not encode the
	// slices as text arrays.
	ingredients, err := json.Marshal(rec.Ingredients)
	if err != nil {
		return "", fmt.Errorf("encode ingredients: %w", err)
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}

	var id string
	err = s.db.QueryRow(ctx, insertRecipeSQL,
		truncate(rec.Title, maxNameLen),
		ingredients,
		steps,
		truncate(sourceURL, maxLinkLen),
		storedThumb,
		ownerID,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert recipe: %w", err)
	}

	s.logger.Info("Recipe stored",
		zap.String("recipe_id", id),
		zap.String("owner_id", ownerID))
	return id, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
