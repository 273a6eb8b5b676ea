package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/httpx"
	"github.com/genmedia-studio/api/internal/platform/pagination"
	"github.com/genmedia-studio/api/internal/services"
)

// LibraryHandlers serves the media library endpoints.
type LibraryHandlers struct {
	library services.LibraryService
}

// NewLibraryHandlers validates dependencies and constructs the handlers.
func NewLibraryHandlers(library services.LibraryService) (*LibraryHandlers, error) {
	if library == nil {
		return nil, errors.New("library handlers: library service is required")
	}
	return &LibraryHandlers{library: library}, nil
}

// Routes registers the library endpoints on the provided router.
func (h *LibraryHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Patch("/{mediaID}/tags", h.updateTags)
	r.Delete("/{mediaID}", h.remove)
}

type listResponse struct {
	Items         []mediaPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (h *LibraryHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	mode, ok := parseMode(r.URL.Query().Get("mode"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown mode filter", http.StatusBadRequest))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		AllowedOrderFields: []string{"date"},
		AllowedFilterFields: map[string][]pagination.Operator{
			"tags": {pagination.OperatorArrayContains},
			"mode": {pagination.OperatorEqual},
		},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.library.List(ctx, services.MediaListQuery{
		OwnerID: identity.UID,
		Tag:     r.URL.Query().Get("tag"),
		Mode:    mode,
		Page:    params,
	})
	if err != nil {
		writeLibraryError(r, w, err)
		return
	}

	items := make([]mediaPayload, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, *buildMediaPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, listResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

type updateTagsPayload struct {
	Tags []string `json:"tags"`
}

func (h *LibraryHandlers) updateTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var payload updateTagsPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	record, err := h.library.UpdateTags(ctx, identity.UID, chi.URLParam(r, "mediaID"), payload.Tags)
	if err != nil {
		writeLibraryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildMediaPayload(record))
}

func (h *LibraryHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.library.Delete(ctx, identity.UID, chi.URLParam(r, "mediaID")); err != nil {
		writeLibraryError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseMode(raw string) (domain.MediaMode, bool) {
	switch domain.MediaMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return "", true
	case domain.ModeGenerated:
		return domain.ModeGenerated, true
	case domain.ModeEdited:
		return domain.ModeEdited, true
	default:
		return "", false
	}
}

func writeLibraryError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrMediaNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("media_not_found", "media not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", userFacing(err), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
