package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/genmedia-studio/api/internal/domain"
	pfirestore "github.com/genmedia-studio/api/internal/platform/firestore"
	"github.com/genmedia-studio/api/internal/repositories"
)

const mediaCollectionPattern = "users/%s/media"

// MediaRepository persists generated media records per user.
type MediaRepository struct {
	provider *pfirestore.Provider
}

// NewMediaRepository constructs a Firestore-backed media repository.
func NewMediaRepository(provider *pfirestore.Provider) (*MediaRepository, error) {
	if provider == nil {
		return nil, errors.New("media repository requires firestore provider")
	}
	return &MediaRepository{provider: provider}, nil
}

// records binds a typed repository to the owner's media subcollection.
func (r *MediaRepository) records(ownerID string) (*pfirestore.BaseRepository[mediaDocument], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("media repository not initialised")
	}
	uid := strings.TrimSpace(ownerID)
	if uid == "" {
		return nil, errors.New("media repository: owner id is required")
	}
	return pfirestore.NewBaseRepository[mediaDocument](r.provider, fmt.Sprintf(mediaCollectionPattern, uid), nil, nil), nil
}

// SaveAll writes every record in one batch. Records must carry an ID.
func (r *MediaRepository) SaveAll(ctx context.Context, ownerID string, records []domain.MediaRecord) error {
	base, err := r.records(ownerID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(records))
	for _, record := range records {
		ref, err := base.DocumentRef(ctx, record.ID)
		if err != nil {
			writer.End()
			return err
		}
		job, err := writer.Set(ref, encodeMediaDocument(record))
		if err != nil {
			writer.End()
			return pfirestore.WrapError("media.save", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return pfirestore.WrapError("media.save", err)
		}
	}
	return nil
}

// Get fetches one media record by ID.
func (r *MediaRepository) Get(ctx context.Context, ownerID, mediaID string) (domain.MediaRecord, error) {
	base, err := r.records(ownerID)
	if err != nil {
		return domain.MediaRecord{}, err
	}

	doc, err := base.Get(ctx, mediaID)
	if err != nil {
		return domain.MediaRecord{}, mapMediaError("media.get", err)
	}
	return recordFromDocument(doc), nil
}

// List returns records ordered by generation date, newest first unless the
// query asks for ascending order.
func (r *MediaRepository) List(ctx context.Context, query repositories.MediaQuery) (repositories.MediaPage, error) {
	base, err := r.records(query.OwnerID)
	if err != nil {
		return repositories.MediaPage{}, err
	}

	limit := query.PageSize
	if limit < 0 {
		limit = 0
	}
	direction := firestore.Desc
	if query.DateAscending {
		direction = firestore.Asc
	}

	var (
		tokenTime time.Time
		tokenID   string
		hasToken  bool
	)
	if token := strings.TrimSpace(query.PageToken); token != "" {
		tokenTime, tokenID, err = decodeMediaToken(token)
		if err != nil {
			return repositories.MediaPage{}, fmt.Errorf("media.list: invalid page token: %w", err)
		}
		hasToken = true
	}

	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		if tag := strings.TrimSpace(query.Tag); tag != "" {
			q = q.Where("tags", "array-contains", tag)
		}
		if query.Mode != "" {
			q = q.Where("mode", "==", string(query.Mode))
		}
		q = q.OrderBy("date", direction).OrderBy(firestore.DocumentID, direction)
		if hasToken {
			q = q.StartAfter(tokenTime, tokenID)
		}
		if limit > 0 {
			q = q.Limit(limit + 1)
		}
		return q
	})
	if err != nil {
		return repositories.MediaPage{}, err
	}

	items := make([]domain.MediaRecord, 0, len(docs))
	for _, doc := range docs {
		items = append(items, recordFromDocument(doc))
	}

	items, nextToken := trimToPage(items, limit)
	return repositories.MediaPage{Items: items, NextPageToken: nextToken}, nil
}

// UpdateTags replaces the record's tag list and returns the updated record.
// The read and write happen inside one transaction.
func (r *MediaRepository) UpdateTags(ctx context.Context, ownerID, mediaID string, tags []string) (domain.MediaRecord, error) {
	base, err := r.records(ownerID)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	if tags == nil {
		tags = []string{}
	}
	ref, err := base.DocumentRef(ctx, mediaID)
	if err != nil {
		return domain.MediaRecord{}, err
	}

	var record domain.MediaRecord
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.ErrMediaNotFound
		}
		if err != nil {
			return err
		}
		var doc mediaDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode media %s: %w", snap.Ref.ID, err)
		}
		doc.Tags = tags
		record = doc.toRecord()
		record.ID = snap.Ref.ID
		return tx.Update(ref, []firestore.Update{{Path: "tags", Value: tags}})
	})
	if errors.Is(err, repositories.ErrMediaNotFound) {
		return domain.MediaRecord{}, repositories.ErrMediaNotFound
	}
	if err != nil {
		return domain.MediaRecord{}, pfirestore.WrapError("media.update_tags", err)
	}
	return record, nil
}

// Delete removes one media record. Missing documents are reported as not found.
func (r *MediaRepository) Delete(ctx context.Context, ownerID, mediaID string) error {
	base, err := r.records(ownerID)
	if err != nil {
		return err
	}
	if _, err := base.Delete(ctx, mediaID, firestore.Exists); err != nil {
		return mapMediaError("media.delete", err)
	}
	return nil
}

// mapMediaError surfaces missing documents as the repository sentinel.
func mapMediaError(op string, err error) error {
	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return repositories.ErrMediaNotFound
	}
	return pfirestore.WrapError(op, err)
}

// trimToPage drops the probe row fetched past the page limit and derives the
// next-page token from the last row that stays on the page, so StartAfter
// resumes exactly one row later.
func trimToPage(items []domain.MediaRecord, limit int) ([]domain.MediaRecord, string) {
	if limit <= 0 || len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	last := items[limit-1]
	return items, encodeMediaToken(last.Date, last.ID)
}

type mediaDocument struct {
	Key          string    `firestore:"key"`
	GCSURI       string    `firestore:"gcsUri"`
	Format       string    `firestore:"format"`
	Prompt       string    `firestore:"prompt"`
	Width        int       `firestore:"width"`
	Height       int       `firestore:"height"`
	Ratio        string    `firestore:"ratio"`
	Date         time.Time `firestore:"date"`
	Author       string    `firestore:"author"`
	ModelVersion string    `firestore:"modelVersion"`
	Mode         string    `firestore:"mode"`
	Tags         []string  `firestore:"tags"`
}

func encodeMediaDocument(record domain.MediaRecord) mediaDocument {
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	return mediaDocument{
		Key:          record.Key,
		GCSURI:       record.GCSURI,
		Format:       record.Format,
		Prompt:       record.Prompt,
		Width:        record.Width,
		Height:       record.Height,
		Ratio:        record.Ratio,
		Date:         record.Date.UTC(),
		Author:       record.Author,
		ModelVersion: record.ModelVersion,
		Mode:         string(record.Mode),
		Tags:         tags,
	}
}

func (d mediaDocument) toRecord() domain.MediaRecord {
	return domain.MediaRecord{
		Key:          d.Key,
		GCSURI:       d.GCSURI,
		Format:       d.Format,
		Prompt:       d.Prompt,
		Width:        d.Width,
		Height:       d.Height,
		Ratio:        d.Ratio,
		Date:         d.Date,
		Author:       d.Author,
		ModelVersion: d.ModelVersion,
		Mode:         domain.MediaMode(d.Mode),
		Tags:         d.Tags,
	}
}

func recordFromDocument(doc pfirestore.Document[mediaDocument]) domain.MediaRecord {
	record := doc.Data.toRecord()
	record.ID = doc.ID
	return record
}

func encodeMediaToken(date time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", date.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeMediaToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

// Ensure interface compliance.
var _ repositories.MediaRepository = (*MediaRepository)(nil)
