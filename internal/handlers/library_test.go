package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/services"
)

func newLibraryServer(t *testing.T, library services.LibraryService) http.Handler {
	t.Helper()
	h, err := NewLibraryHandlers(library)
	if err != nil {
		t.Fatalf("NewLibraryHandlers returned error: %v", err)
	}
	return NewRouter(WithLibraryRoutes(h.Routes))
}

func TestLibraryListRequiresIdentity(t *testing.T) {
	library := &stubLibraryService{}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/library/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLibraryList(t *testing.T) {
	library := &stubLibraryService{
		page: services.MediaPage{
			Items: []domain.MediaRecord{
				{
					ID:     "media-1",
					Key:    "482915/0",
					SrcURL: "https://signed.example.com/media/sample_0.png",
					Format: "png",
					Date:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
					Mode:   domain.ModeGenerated,
					Tags:   []string{"nature"},
				},
			},
			NextPageToken: "next-token",
		},
	}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/library/?tag=nature&mode=generated&pageSize=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if library.listQuery.OwnerID != "user_1" {
		t.Errorf("unexpected owner %q", library.listQuery.OwnerID)
	}
	if library.listQuery.Tag != "nature" || library.listQuery.Mode != domain.ModeGenerated {
		t.Errorf("unexpected filters %+v", library.listQuery)
	}
	if library.listQuery.Page.PageSize != 10 {
		t.Errorf("unexpected page size %d", library.listQuery.Page.PageSize)
	}

	var response struct {
		Items []struct {
			ID   string `json:"id"`
			Key  string `json:"key"`
			Src  string `json:"src"`
			Date string `json:"date"`
			Mode string `json:"mode"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(response.Items))
	}
	item := response.Items[0]
	if item.ID != "media-1" || item.Key != "482915/0" || item.Mode != "generated" {
		t.Errorf("unexpected item %+v", item)
	}
	if item.Date != "2025-06-01T12:00:00Z" {
		t.Errorf("unexpected date %q", item.Date)
	}
	if response.NextPageToken != "next-token" {
		t.Errorf("unexpected next token %q", response.NextPageToken)
	}
}

func TestLibraryListParsesOrderAndFilter(t *testing.T) {
	library := &stubLibraryService{}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	target := "/api/v1/library/?orderBy=date%20asc&filter=tags%20array-contains%20nature"
	server.ServeHTTP(rec, authedRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	orders := library.listQuery.Page.Orders
	if len(orders) != 1 || orders[0].Field != "date" || orders[0].Desc {
		t.Errorf("unexpected orders %+v", orders)
	}
	filters := library.listQuery.Page.Filters
	if len(filters) != 1 || filters[0].Field != "tags" || filters[0].Value != "nature" {
		t.Errorf("unexpected filters %+v", filters)
	}
}

func TestLibraryListRejectsUnknownOrderField(t *testing.T) {
	library := &stubLibraryService{}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/library/?orderBy=prompt", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLibraryListRejectsUnknownMode(t *testing.T) {
	library := &stubLibraryService{}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/library/?mode=drafts", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLibraryUpdateTags(t *testing.T) {
	library := &stubLibraryService{
		record: domain.MediaRecord{ID: "media-1", Tags: []string{"nature", "fox"}},
	}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/v1/library/media-1/tags", []byte(`{"tags":["nature","fox"]}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if library.updatedID != "media-1" {
		t.Errorf("unexpected media id %q", library.updatedID)
	}
	if len(library.updatedTags) != 2 || library.updatedTags[0] != "nature" {
		t.Errorf("unexpected tags %v", library.updatedTags)
	}

	var response struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Tags) != 2 {
		t.Errorf("unexpected response tags %v", response.Tags)
	}
}

func TestLibraryUpdateTagsNotFound(t *testing.T) {
	library := &stubLibraryService{updateErr: services.ErrMediaNotFound}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/v1/library/missing/tags", []byte(`{"tags":[]}`)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLibraryDelete(t *testing.T) {
	library := &stubLibraryService{}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/library/media-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if library.deletedID != "media-1" {
		t.Errorf("unexpected media id %q", library.deletedID)
	}
}

func TestLibraryDeleteNotFound(t *testing.T) {
	library := &stubLibraryService{deleteErr: services.ErrMediaNotFound}
	server := newLibraryServer(t, library)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/library/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
