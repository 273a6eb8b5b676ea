package repositories

import (
	"context"

	"github.com/genmedia-studio/api/internal/domain"
)

// MediaQuery filters and paginates library listings. Listings sort by
// generation date, newest first unless DateAscending is set.
type MediaQuery struct {
	OwnerID       string
	Tag           string
	Mode          domain.MediaMode
	DateAscending bool
	PageSize      int
	PageToken     string
}

// MediaPage is one page of persisted library records.
type MediaPage struct {
	Items         []domain.MediaRecord
	NextPageToken string
}

// MediaRepository persists generated media records per user.
type MediaRepository interface {
	SaveAll(ctx context.Context, ownerID string, records []domain.MediaRecord) error
	Get(ctx context.Context, ownerID, mediaID string) (domain.MediaRecord, error)
	List(ctx context.Context, query MediaQuery) (MediaPage, error)
	UpdateTags(ctx context.Context, ownerID, mediaID string, tags []string) (domain.MediaRecord, error)
	Delete(ctx context.Context, ownerID, mediaID string) error
}

// HealthRepository probes the service's dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
