package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/auth"
	pstorage "github.com/genmedia-studio/api/internal/platform/storage"
	"github.com/genmedia-studio/api/internal/platform/vertex"
)

const defaultSignedURLTTL = 15 * time.Minute

// MediaEnricherDeps configures NewMediaEnricher.
type MediaEnricherDeps struct {
	Persister ObjectPersister
	Signer    DownloadURLSigner
	Copier    ObjectCopier
	Bucket    string
	URLTTL    time.Duration
	Clock     func() time.Time
	FolderID  func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type mediaEnricher struct {
	persister ObjectPersister
	signer    DownloadURLSigner
	copier    ObjectCopier
	bucket    string
	urlTTL    time.Duration
	clock     func() time.Time
	folderID  func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewMediaEnricher validates dependencies and constructs a ResultEnricher.
func NewMediaEnricher(deps MediaEnricherDeps) (ResultEnricher, error) {
	if deps.Persister == nil {
		return nil, errors.New("media enricher: object persister is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("media enricher: url signer is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("media enricher: bucket is required")
	}
	enricher := &mediaEnricher{
		persister: deps.Persister,
		signer:    deps.Signer,
		copier:    deps.Copier,
		bucket:    strings.TrimSpace(deps.Bucket),
		urlTTL:    deps.URLTTL,
		clock:     deps.Clock,
		folderID:  deps.FolderID,
		logger:    deps.Logger,
	}
	if enricher.urlTTL <= 0 {
		enricher.urlTTL = defaultSignedURLTTL
	}
	if enricher.clock == nil {
		enricher.clock = time.Now
	}
	if enricher.folderID == nil {
		enricher.folderID = func() string {
			return fmt.Sprintf("%06d", rand.IntN(1_000_000))
		}
	}
	return enricher, nil
}

// EnrichAll enriches every prediction concurrently and waits for all of them.
// One item's failure becomes an error outcome for that item only; the rest of
// the batch is unaffected. Output order matches input order.
func (e *mediaEnricher) EnrichAll(ctx context.Context, predictions []vertex.Prediction, params EnrichParams) []domain.MediaOutcome {
	if len(predictions) == 0 {
		return nil
	}

	// One folder id per batch; items are distinguished by their index.
	folderID := e.folderID()

	results := make([]domain.MediaOutcome, len(predictions))
	var wg sync.WaitGroup
	for i, prediction := range predictions {
		wg.Add(1)
		go func(index int, prediction vertex.Prediction) {
			defer wg.Done()
			results[index] = e.enrichOne(ctx, prediction, index, folderID, params)
		}(i, prediction)
	}
	wg.Wait()

	outcomes := make([]domain.MediaOutcome, 0, len(results))
	for _, outcome := range results {
		if outcome.Kind == "" {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *mediaEnricher) enrichOne(ctx context.Context, prediction vertex.Prediction, index int, folderID string, params EnrichParams) domain.MediaOutcome {
	switch prediction.Classify() {
	case vertex.KindSuppressed:
		return domain.WarningOutcome(strings.TrimSpace(prediction.RAIFilteredReason))
	case vertex.KindInline:
		return e.enrichInline(ctx, prediction, index, folderID, params)
	case vertex.KindRemote:
		return e.enrichRemote(ctx, prediction, index, folderID, params)
	default:
		// Unrecognized shapes are dropped from the final list.
		return domain.MediaOutcome{}
	}
}

func (e *mediaEnricher) enrichInline(ctx context.Context, prediction vertex.Prediction, index int, folderID string, params EnrichParams) domain.MediaOutcome {
	data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("decode payload: %w", err))
	}

	object, err := pstorage.MediaObjectPath(params.UserID, folderForMode(params.Mode), folderID, index, pstorage.ExtensionForMime(prediction.MimeType))
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("build object path: %w", err))
	}

	gcsURI, err := e.persister.Write(ctx, e.bucket, object, data, prediction.MimeType)
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("persist payload: %w", err))
	}

	signed, err := e.sign(ctx, e.bucket, object, params)
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("sign url: %w", err))
	}

	return domain.SuccessOutcome(e.record(prediction, params, object, gcsURI, signed.URL))
}

func (e *mediaEnricher) enrichRemote(ctx context.Context, prediction vertex.Prediction, index int, folderID string, params EnrichParams) domain.MediaOutcome {
	bucket, object, err := pstorage.ParseGCSURI(prediction.GCSURI)
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("parse artifact uri: %w", err))
	}

	gcsURI := prediction.GCSURI
	// Backends write into a request-scoped bucket; relocate those artifacts
	// into the library bucket so their lifetime is ours to manage.
	if e.copier != nil && bucket != e.bucket {
		dest, err := pstorage.MediaObjectPath(params.UserID, folderForMode(params.Mode), folderID, index, pstorage.ExtensionForMime(prediction.MimeType))
		if err != nil {
			return e.failure(ctx, index, fmt.Errorf("build object path: %w", err))
		}
		if err := e.copier.CopyObject(ctx, bucket, object, e.bucket, dest); err != nil {
			return e.failure(ctx, index, fmt.Errorf("relocate artifact: %w", err))
		}
		bucket, object = e.bucket, dest
		gcsURI = fmt.Sprintf("gs://%s/%s", bucket, object)
	}

	signed, err := e.sign(ctx, bucket, object, params)
	if err != nil {
		return e.failure(ctx, index, fmt.Errorf("sign url: %w", err))
	}

	return domain.SuccessOutcome(e.record(prediction, params, object, gcsURI, signed.URL))
}

func (e *mediaEnricher) sign(ctx context.Context, bucket, object string, params EnrichParams) (pstorage.SignedURLResult, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	return e.signer.SignedDownloadURL(ctx, bucket, object, pstorage.DownloadOptions{
		ExpiresIn:      e.urlTTL,
		OwnerID:        params.UserID,
		Identity:       identity,
		AllowAnonymous: !ok,
	})
}

func (e *mediaEnricher) record(prediction vertex.Prediction, params EnrichParams, object, gcsURI, srcURL string) domain.MediaRecord {
	prompt := strings.TrimSpace(prediction.Prompt)
	if prompt == "" {
		prompt = params.UsedPrompt
	}
	return domain.MediaRecord{
		Key:          pstorage.MediaKeyFromObject(params.UserID, object),
		SrcURL:       srcURL,
		GCSURI:       gcsURI,
		Format:       prediction.MimeType,
		Prompt:       prompt,
		Width:        params.Width,
		Height:       params.Height,
		Ratio:        params.Ratio,
		Date:         e.clock().UTC(),
		Author:       params.UserID,
		ModelVersion: params.ModelVersion,
		Mode:         params.Mode,
	}
}

func (e *mediaEnricher) failure(ctx context.Context, index int, err error) domain.MediaOutcome {
	if e.logger != nil {
		e.logger(ctx, "media.enrich.failed", map[string]any{
			"index": index,
			"error": err.Error(),
		})
	}
	return domain.ErrorOutcome(userMessage(err))
}

func folderForMode(mode domain.MediaMode) string {
	if mode == domain.ModeEdited {
		return pstorage.FolderEdited
	}
	return pstorage.FolderGenerated
}
