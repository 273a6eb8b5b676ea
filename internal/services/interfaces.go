package services

import (
	"context"
	"time"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/pagination"
	pstorage "github.com/genmedia-studio/api/internal/platform/storage"
	"github.com/genmedia-studio/api/internal/platform/vertex"
)

// DescriptionProvider resolves natural-language descriptions for reference
// images. Describe yields the short phrase shown on the form; DescribeFull
// yields the long description appended to the outbound request prompt.
type DescriptionProvider interface {
	Describe(ctx context.Context, image []byte, mime string, refType domain.ReferenceType) (string, error)
	DescribeFull(ctx context.Context, image []byte, mime string, refType domain.ReferenceType) (string, error)
}

// GenerationBackend invokes the generative model and returns raw predictions.
type GenerationBackend interface {
	Predict(ctx context.Context, req vertex.PredictRequest) (vertex.PredictResponse, error)
}

// ObjectPersister writes generated payloads into object storage and returns
// the stored object's gs:// URI.
type ObjectPersister interface {
	Write(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error)
}

// ObjectCopier moves backend-written artifacts between storage locations.
type ObjectCopier interface {
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// DownloadURLSigner issues time-limited access URLs for stored objects.
type DownloadURLSigner interface {
	SignedDownloadURL(ctx context.Context, bucket, object string, opts pstorage.DownloadOptions) (pstorage.SignedURLResult, error)
}

// GenerateCommand carries the form state of one generation request.
type GenerateCommand struct {
	UserID     string
	Context    domain.PromptContext
	References *domain.ReferenceSet
	Mode       domain.MediaMode
}

// VideoCommand extends GenerateCommand with video-only options.
type VideoCommand struct {
	GenerateCommand
	LastFrame       []byte
	LastFrameMime   string
	CameraPreset    string
	DurationSeconds int
}

// GenerationResult is the classified, enriched outcome of one request.
type GenerationResult struct {
	Outcomes     []domain.MediaOutcome
	UsedPrompt   string
	ModelVersion string
}

// GenerationService runs the full prompt-assembly and generation pipeline.
type GenerationService interface {
	GenerateImages(ctx context.Context, cmd GenerateCommand) (GenerationResult, error)
	GenerateVideo(ctx context.Context, cmd VideoCommand) (GenerationResult, error)
}

// EnrichParams carries the batch-level context shared by every item.
type EnrichParams struct {
	UserID       string
	UsedPrompt   string
	Mode         domain.MediaMode
	ModelVersion string
	Ratio        string
	Width        int
	Height       int
}

// ResultEnricher converts classified raw predictions into displayable media
// outcomes with per-item failure isolation.
type ResultEnricher interface {
	EnrichAll(ctx context.Context, predictions []vertex.Prediction, params EnrichParams) []domain.MediaOutcome
}

// MediaListQuery filters and paginates library browsing.
type MediaListQuery struct {
	OwnerID string
	Tag     string
	Mode    domain.MediaMode
	Page    pagination.Params
}

// MediaPage is one page of library records.
type MediaPage struct {
	Items         []domain.MediaRecord
	NextPageToken string
}

// LibraryService persists enriched media records and serves library browsing.
type LibraryService interface {
	SaveBatch(ctx context.Context, userID string, outcomes []domain.MediaOutcome) ([]string, error)
	List(ctx context.Context, query MediaListQuery) (MediaPage, error)
	UpdateTags(ctx context.Context, userID, mediaID string, tags []string) (domain.MediaRecord, error)
	Delete(ctx context.Context, userID, mediaID string) error
}

// MediaSavedMessage is published after a generation batch lands in the library.
type MediaSavedMessage struct {
	BatchID  string    `json:"batchId"`
	OwnerID  string    `json:"ownerId"`
	MediaIDs []string  `json:"mediaIds"`
	Mode     string    `json:"mode"`
	SavedAt  time.Time `json:"savedAt"`
}

// MediaEventPublisher fans saved-media events out to downstream consumers.
type MediaEventPublisher interface {
	PublishMediaSaved(ctx context.Context, message MediaSavedMessage) (string, error)
}
