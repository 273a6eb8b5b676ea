package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/pagination"
	"github.com/genmedia-studio/api/internal/repositories"
)

const maxTagsPerRecord = 20

// LibraryServiceDeps configures NewLibraryService.
type LibraryServiceDeps struct {
	Repo      repositories.MediaRepository
	Publisher MediaEventPublisher
	IDFunc    func() string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type libraryService struct {
	repo      repositories.MediaRepository
	publisher MediaEventPublisher
	idFunc    func() string
	clock     func() time.Time
	sanitizer *bluemonday.Policy
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewLibraryService validates dependencies and constructs a LibraryService.
func NewLibraryService(deps LibraryServiceDeps) (LibraryService, error) {
	if deps.Repo == nil {
		return nil, errors.New("library service: media repository is required")
	}
	if deps.IDFunc == nil {
		return nil, errors.New("library service: id function is required")
	}
	svc := &libraryService{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		idFunc:    deps.IDFunc,
		clock:     deps.Clock,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    deps.Logger,
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	return svc, nil
}

// SaveBatch persists the successful outcomes of one generation batch and
// returns the minted media IDs. Warnings and errors are not persisted.
func (s *libraryService) SaveBatch(ctx context.Context, userID string, outcomes []domain.MediaOutcome) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var records []domain.MediaRecord
	for _, outcome := range outcomes {
		if outcome.Kind != domain.OutcomeSuccess {
			continue
		}
		record := outcome.Record
		record.ID = s.idFunc()
		record.Tags = s.sanitizeTags(record.Tags)
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, nil
	}

	if err := s.repo.SaveAll(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("library service: save batch: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	s.publishSaved(ctx, userID, records, ids)
	return ids, nil
}

// List serves library browsing with cursor pagination.
func (s *libraryService) List(ctx context.Context, query MediaListQuery) (MediaPage, error) {
	ownerID := strings.TrimSpace(query.OwnerID)
	if ownerID == "" {
		return MediaPage{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}

	page := pagination.Must(query.Page)
	repoQuery := repositories.MediaQuery{
		OwnerID:   ownerID,
		Tag:       s.sanitizeTag(query.Tag),
		Mode:      query.Mode,
		PageSize:  page.PageSize,
		PageToken: page.PageToken,
	}
	if err := s.applyListParams(&repoQuery, page); err != nil {
		return MediaPage{}, err
	}

	result, err := s.repo.List(ctx, repoQuery)
	if err != nil {
		return MediaPage{}, fmt.Errorf("library service: list: %w", err)
	}
	return MediaPage{Items: result.Items, NextPageToken: result.NextPageToken}, nil
}

// UpdateTags replaces a record's tags after sanitization.
func (s *libraryService) UpdateTags(ctx context.Context, userID, mediaID string, tags []string) (domain.MediaRecord, error) {
	userID = strings.TrimSpace(userID)
	mediaID = strings.TrimSpace(mediaID)
	if userID == "" || mediaID == "" {
		return domain.MediaRecord{}, fmt.Errorf("%w: user id and media id are required", ErrInvalidInput)
	}

	record, err := s.repo.UpdateTags(ctx, userID, mediaID, s.sanitizeTags(tags))
	if errors.Is(err, repositories.ErrMediaNotFound) {
		return domain.MediaRecord{}, ErrMediaNotFound
	}
	if err != nil {
		return domain.MediaRecord{}, fmt.Errorf("library service: update tags: %w", err)
	}
	return record, nil
}

// Delete removes one media record from the caller's library.
func (s *libraryService) Delete(ctx context.Context, userID, mediaID string) error {
	userID = strings.TrimSpace(userID)
	mediaID = strings.TrimSpace(mediaID)
	if userID == "" || mediaID == "" {
		return fmt.Errorf("%w: user id and media id are required", ErrInvalidInput)
	}

	err := s.repo.Delete(ctx, userID, mediaID)
	if errors.Is(err, repositories.ErrMediaNotFound) {
		return ErrMediaNotFound
	}
	if err != nil {
		return fmt.Errorf("library service: delete: %w", err)
	}
	return nil
}

// applyListParams folds the parsed orderBy and filter clauses into the
// repository query. Explicit tag/mode values win over filter clauses.
func (s *libraryService) applyListParams(query *repositories.MediaQuery, page pagination.Params) error {
	for _, order := range page.Orders {
		if order.Field == "date" {
			query.DateAscending = !order.Desc
		}
	}
	for _, filter := range page.Filters {
		switch filter.Field {
		case "tags":
			if query.Tag == "" {
				query.Tag = s.sanitizeTag(filter.Value)
			}
		case "mode":
			mode := domain.MediaMode(strings.ToLower(strings.TrimSpace(filter.Value)))
			if mode != domain.ModeGenerated && mode != domain.ModeEdited {
				return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, filter.Value)
			}
			if query.Mode == "" {
				query.Mode = mode
			}
		}
	}
	return nil
}

// publishSaved emits the saved-media event. Publish failures are logged and
// never fail the save.
func (s *libraryService) publishSaved(ctx context.Context, userID string, records []domain.MediaRecord, ids []string) {
	if s.publisher == nil {
		return
	}
	message := MediaSavedMessage{
		BatchID:  s.idFunc(),
		OwnerID:  userID,
		MediaIDs: ids,
		Mode:     string(records[0].Mode),
		SavedAt:  s.clock().UTC(),
	}
	if _, err := s.publisher.PublishMediaSaved(ctx, message); err != nil && s.logger != nil {
		s.logger(ctx, "library.publish.failed", map[string]any{
			"owner_id": userID,
			"error":    err.Error(),
		})
	}
}

func (s *libraryService) sanitizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := s.sanitizeTag(tag)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
		if len(out) == maxTagsPerRecord {
			break
		}
	}
	return out
}

func (s *libraryService) sanitizeTag(tag string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(tag))
}
