package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/auth"
	"github.com/genmedia-studio/api/internal/platform/httpx"
	"github.com/genmedia-studio/api/internal/services"
)

const maxGenerateBodyBytes = 32 << 20

// GenerationHandlersDeps configures NewGenerationHandlers.
type GenerationHandlersDeps struct {
	Generator     services.GenerationService
	Library       services.LibraryService
	MaxReferences int
	VideoEnabled  bool
}

// GenerationHandlers serves the generation endpoints.
type GenerationHandlers struct {
	generator     services.GenerationService
	library       services.LibraryService
	maxReferences int
	videoEnabled  bool
}

// NewGenerationHandlers validates dependencies and constructs the handlers.
func NewGenerationHandlers(deps GenerationHandlersDeps) (*GenerationHandlers, error) {
	if deps.Generator == nil {
		return nil, errors.New("generation handlers: generation service is required")
	}
	maxReferences := deps.MaxReferences
	if maxReferences <= 0 {
		maxReferences = domain.DefaultMaxReferences
	}
	return &GenerationHandlers{
		generator:     deps.Generator,
		library:       deps.Library,
		maxReferences: maxReferences,
		videoEnabled:  deps.VideoEnabled,
	}, nil
}

// Routes registers the generation endpoints on the provided router.
func (h *GenerationHandlers) Routes(r chi.Router) {
	r.Post("/", h.generateImages)
	r.Post("/video", h.generateVideo)
}

type referencePayload struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Additional  bool   `json:"additional"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Ratio       string `json:"ratio"`
}

type generatePayload struct {
	Prompt         string             `json:"prompt"`
	Style          string             `json:"style"`
	SecondaryStyle string             `json:"secondary_style"`
	UseCase        string             `json:"use_case"`
	Model          string             `json:"model"`
	AspectRatio    string             `json:"aspect_ratio"`
	SampleCount    int                `json:"sample_count"`
	NegativePrompt string             `json:"negative_prompt"`
	Composition    map[string]string  `json:"composition"`
	References     []referencePayload `json:"references"`
	Edit           bool               `json:"edit"`
	SaveToLibrary  bool               `json:"save_to_library"`
}

type videoPayload struct {
	generatePayload
	LastFrameBase64 string `json:"last_frame_base64"`
	LastFrameMime   string `json:"last_frame_mime"`
	CameraPreset    string `json:"camera_preset"`
	DurationSeconds int    `json:"duration_seconds"`
}

type mediaPayload struct {
	ID           string   `json:"id,omitempty"`
	Key          string   `json:"key"`
	Src          string   `json:"src"`
	GCSURI       string   `json:"gcs_uri"`
	Format       string   `json:"format"`
	Prompt       string   `json:"prompt"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Ratio        string   `json:"ratio"`
	Date         string   `json:"date"`
	Author       string   `json:"author"`
	ModelVersion string   `json:"model_version"`
	Mode         string   `json:"mode"`
	Tags         []string `json:"tags,omitempty"`
}

type outcomePayload struct {
	Kind    string        `json:"kind"`
	Media   *mediaPayload `json:"media,omitempty"`
	Warning string        `json:"warning,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type generateResponse struct {
	UsedPrompt   string           `json:"used_prompt"`
	ModelVersion string           `json:"model_version"`
	Results      []outcomePayload `json:"results"`
	SavedMediaID []string         `json:"saved_media_ids,omitempty"`
}

func (h *GenerationHandlers) generateImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var payload generatePayload
	if !decodeBody(w, r, &payload) {
		return
	}

	cmd, ok := h.buildCommand(ctx, w, identity.UID, payload)
	if !ok {
		return
	}

	result, err := h.generator.GenerateImages(ctx, cmd)
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	h.respond(ctx, w, identity.UID, payload.SaveToLibrary, result)
}

func (h *GenerationHandlers) generateVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.videoEnabled {
		httpx.WriteError(ctx, w, httpx.NewError("video_disabled", "video generation is not enabled", http.StatusForbidden))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var payload videoPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	cmd, ok := h.buildCommand(ctx, w, identity.UID, payload.generatePayload)
	if !ok {
		return
	}

	videoCmd := services.VideoCommand{
		GenerateCommand: cmd,
		CameraPreset:    payload.CameraPreset,
		DurationSeconds: payload.DurationSeconds,
	}
	if raw := strings.TrimSpace(payload.LastFrameBase64); raw != "" {
		frame, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "last frame is not valid base64", http.StatusBadRequest))
			return
		}
		videoCmd.LastFrame = frame
		videoCmd.LastFrameMime = payload.LastFrameMime
	}

	result, err := h.generator.GenerateVideo(ctx, videoCmd)
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	h.respond(ctx, w, identity.UID, payload.SaveToLibrary, result)
}

func (h *GenerationHandlers) buildCommand(ctx context.Context, w http.ResponseWriter, userID string, payload generatePayload) (services.GenerateCommand, bool) {
	refs, err := h.buildReferences(payload.References)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.GenerateCommand{}, false
	}

	composition := domain.DefaultCompositionFields()
	for i := range composition {
		if value, ok := payload.Composition[composition[i].Name]; ok {
			composition[i].Value = value
		}
	}

	mode := domain.ModeGenerated
	if payload.Edit {
		mode = domain.ModeEdited
	}

	return services.GenerateCommand{
		UserID: userID,
		Context: domain.PromptContext{
			Prompt:         payload.Prompt,
			Style:          payload.Style,
			SecondaryStyle: payload.SecondaryStyle,
			UseCase:        payload.UseCase,
			Model:          payload.Model,
			AspectRatio:    payload.AspectRatio,
			SampleCount:    payload.SampleCount,
			NegativePrompt: payload.NegativePrompt,
			Composition:    composition,
		},
		References: refs,
		Mode:       mode,
	}, true
}

// buildReferences replays the submitted reference list into a fresh set,
// keeping primary/additional grouping intact.
func (h *GenerationHandlers) buildReferences(payloads []referencePayload) (*domain.ReferenceSet, error) {
	refs := domain.NewReferenceSet(h.maxReferences)
	if len(payloads) == 0 {
		return refs, nil
	}

	lastPrimaryKey := ""
	for i, payload := range payloads {
		var (
			key string
			ok  bool
		)
		switch {
		case i == 0:
			if payload.Additional {
				return nil, errors.New("an additional reference needs a preceding primary reference")
			}
			key = refs.Entries()[0].Key
			ok = true
		case payload.Additional && lastPrimaryKey != "":
			key, ok = refs.AddAdditional(lastPrimaryKey)
		default:
			key, ok = refs.Add()
		}
		if !ok {
			return nil, errors.New("too many references")
		}
		if !payload.Additional {
			lastPrimaryKey = key
		}

		if raw := strings.TrimSpace(payload.ImageBase64); raw != "" {
			image, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, errors.New("reference image is not valid base64")
			}
			refs.SetImage(key, image, payload.MimeType, payload.Width, payload.Height, payload.Ratio)
		}
		if desc := strings.TrimSpace(payload.Description); desc != "" {
			refs.SetDescription(key, desc)
		}
		if raw := strings.TrimSpace(payload.Type); raw != "" {
			refType, ok := domain.ParseReferenceType(raw)
			if !ok {
				return nil, errors.New("unknown reference type " + raw)
			}
			refs.SetType(key, refType)
		}
	}
	return refs, nil
}

func (h *GenerationHandlers) respond(ctx context.Context, w http.ResponseWriter, userID string, save bool, result services.GenerationResult) {
	response := generateResponse{
		UsedPrompt:   result.UsedPrompt,
		ModelVersion: result.ModelVersion,
		Results:      make([]outcomePayload, 0, len(result.Outcomes)),
	}

	if save && h.library != nil {
		ids, err := h.library.SaveBatch(ctx, userID, result.Outcomes)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("library_save_failed", err.Error(), http.StatusInternalServerError))
			return
		}
		response.SavedMediaID = ids
	}

	for _, outcome := range result.Outcomes {
		response.Results = append(response.Results, buildOutcomePayload(outcome))
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func buildOutcomePayload(outcome domain.MediaOutcome) outcomePayload {
	payload := outcomePayload{Kind: string(outcome.Kind)}
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		payload.Media = buildMediaPayload(outcome.Record)
	case domain.OutcomeWarning:
		payload.Warning = outcome.Warning
	case domain.OutcomeError:
		payload.Error = outcome.Error
	}
	return payload
}

func buildMediaPayload(record domain.MediaRecord) *mediaPayload {
	return &mediaPayload{
		ID:           record.ID,
		Key:          record.Key,
		Src:          record.SrcURL,
		GCSURI:       record.GCSURI,
		Format:       record.Format,
		Prompt:       record.Prompt,
		Width:        record.Width,
		Height:       record.Height,
		Ratio:        record.Ratio,
		Date:         formatTime(record.Date),
		Author:       record.Author,
		ModelVersion: record.ModelVersion,
		Mode:         string(record.Mode),
		Tags:         record.Tags,
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxGenerateBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeGenerationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", userFacing(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrBlocked):
		httpx.WriteError(ctx, w, httpx.NewError("generation_blocked", userFacing(err), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrAuthentication):
		httpx.WriteError(ctx, w, httpx.NewError("backend_auth_failed", "could not authenticate with the generation backend", http.StatusBadGateway))
	case errors.Is(err, services.ErrBackend):
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", userFacing(err), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

// userFacing strips the sentinel prefix so clients see the descriptive part.
func userFacing(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
