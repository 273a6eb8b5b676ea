package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/auth"
	"github.com/genmedia-studio/api/internal/services"
)

type stubGenerationService struct {
	imageCmd *services.GenerateCommand
	videoCmd *services.VideoCommand
	result   services.GenerationResult
	err      error
}

func (s *stubGenerationService) GenerateImages(_ context.Context, cmd services.GenerateCommand) (services.GenerationResult, error) {
	s.imageCmd = &cmd
	return s.result, s.err
}

func (s *stubGenerationService) GenerateVideo(_ context.Context, cmd services.VideoCommand) (services.GenerationResult, error) {
	s.videoCmd = &cmd
	return s.result, s.err
}

type stubLibraryService struct {
	savedUserID   string
	savedOutcomes []domain.MediaOutcome
	saveIDs       []string
	saveErr       error

	listQuery services.MediaListQuery
	page      services.MediaPage
	listErr   error

	updatedID   string
	updatedTags []string
	record      domain.MediaRecord
	updateErr   error

	deletedID string
	deleteErr error
}

func (s *stubLibraryService) SaveBatch(_ context.Context, userID string, outcomes []domain.MediaOutcome) ([]string, error) {
	s.savedUserID = userID
	s.savedOutcomes = outcomes
	return s.saveIDs, s.saveErr
}

func (s *stubLibraryService) List(_ context.Context, query services.MediaListQuery) (services.MediaPage, error) {
	s.listQuery = query
	return s.page, s.listErr
}

func (s *stubLibraryService) UpdateTags(_ context.Context, _, mediaID string, tags []string) (domain.MediaRecord, error) {
	s.updatedID = mediaID
	s.updatedTags = tags
	return s.record, s.updateErr
}

func (s *stubLibraryService) Delete(_ context.Context, _, mediaID string) error {
	s.deletedID = mediaID
	return s.deleteErr
}

func newGenerateServer(t *testing.T, generator services.GenerationService, library services.LibraryService, videoEnabled bool) http.Handler {
	t.Helper()
	h, err := NewGenerationHandlers(GenerationHandlersDeps{
		Generator:     generator,
		Library:       library,
		MaxReferences: 4,
		VideoEnabled:  videoEnabled,
	})
	if err != nil {
		t.Fatalf("NewGenerationHandlers returned error: %v", err)
	}
	return NewRouter(WithGenerateRoutes(h.Routes))
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestGenerateImagesRequiresIdentity(t *testing.T) {
	generator := &stubGenerationService{}
	server := newGenerateServer(t, generator, nil, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if generator.imageCmd != nil {
		t.Errorf("generator must not be invoked without identity")
	}
}

func TestGenerateImagesBuildsCommand(t *testing.T) {
	generator := &stubGenerationService{
		result: services.GenerationResult{
			UsedPrompt:   "A watercolor painting of a fox, 4K",
			ModelVersion: "imagen-3.0-capability-001",
			Outcomes: []domain.MediaOutcome{
				domain.SuccessOutcome(domain.MediaRecord{
					Key:    "482915/0",
					SrcURL: "https://signed.example.com/media/sample_0.png",
					GCSURI: "gs://media/user_1/generated-images/482915/sample_0.png",
					Format: "png",
					Date:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
					Mode:   domain.ModeGenerated,
				}),
				domain.WarningOutcome("blocked by safety filters"),
			},
		},
	}
	server := newGenerateServer(t, generator, nil, false)

	image := base64.StdEncoding.EncodeToString([]byte("fox-bytes"))
	body := mustJSON(t, map[string]any{
		"prompt":          "a fox",
		"style":           "watercolor",
		"secondary_style": "painting",
		"use_case":        "Food, insects, plants (still life)",
		"composition":     map[string]string{"background_color": "red"},
		"references": []map[string]any{
			{"type": "animal", "description": "a red fox", "image_base64": image, "mime_type": "image/png"},
			{"additional": true, "image_base64": image, "mime_type": "image/png"},
			{"type": "style", "description": "a watercolor texture", "image_base64": image, "mime_type": "image/png"},
		},
	})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cmd := generator.imageCmd
	if cmd == nil {
		t.Fatal("generator was not invoked")
	}
	if cmd.UserID != "user_1" {
		t.Errorf("unexpected user id %q", cmd.UserID)
	}
	if cmd.Mode != domain.ModeGenerated {
		t.Errorf("unexpected mode %q", cmd.Mode)
	}
	if cmd.Context.Prompt != "a fox" || cmd.Context.Style != "watercolor" || cmd.Context.SecondaryStyle != "painting" {
		t.Errorf("unexpected prompt context %+v", cmd.Context)
	}

	foundComposition := false
	for _, field := range cmd.Context.Composition {
		if field.Name == "background_color" && field.Value == "red" {
			foundComposition = true
		}
	}
	if !foundComposition {
		t.Errorf("composition value not carried: %+v", cmd.Context.Composition)
	}

	entries := cmd.References.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 reference entries, got %d", len(entries))
	}
	if entries[0].RefID != 1 || entries[0].Type != domain.ReferenceAnimal || entries[0].Description != "a red fox" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if !entries[1].Additional || entries[1].RefID != 1 {
		t.Errorf("expected second entry to be additional of ref 1, got %+v", entries[1])
	}
	if entries[2].RefID != 2 || entries[2].Type != domain.ReferenceStyle {
		t.Errorf("unexpected third entry %+v", entries[2])
	}
	if !bytes.Equal(entries[0].Image, []byte("fox-bytes")) {
		t.Errorf("reference image not decoded")
	}

	var response struct {
		UsedPrompt   string `json:"used_prompt"`
		ModelVersion string `json:"model_version"`
		Results      []struct {
			Kind    string `json:"kind"`
			Warning string `json:"warning"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.UsedPrompt != "A watercolor painting of a fox, 4K" {
		t.Errorf("unexpected used prompt %q", response.UsedPrompt)
	}
	if len(response.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(response.Results))
	}
	if response.Results[0].Kind != "success" || response.Results[1].Kind != "warning" {
		t.Errorf("unexpected result kinds %+v", response.Results)
	}
	if response.Results[1].Warning != "blocked by safety filters" {
		t.Errorf("unexpected warning %q", response.Results[1].Warning)
	}
}

func TestGenerateImagesSavesToLibrary(t *testing.T) {
	generator := &stubGenerationService{
		result: services.GenerationResult{
			Outcomes: []domain.MediaOutcome{
				domain.SuccessOutcome(domain.MediaRecord{Key: "482915/0"}),
			},
		},
	}
	library := &stubLibraryService{saveIDs: []string{"media-1"}}
	server := newGenerateServer(t, generator, library, false)

	body := mustJSON(t, map[string]any{"prompt": "a fox", "save_to_library": true})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if library.savedUserID != "user_1" || len(library.savedOutcomes) != 1 {
		t.Errorf("library save not invoked as expected: user=%q outcomes=%d", library.savedUserID, len(library.savedOutcomes))
	}

	var response struct {
		SavedMediaIDs []string `json:"saved_media_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.SavedMediaIDs) != 1 || response.SavedMediaIDs[0] != "media-1" {
		t.Errorf("unexpected saved ids %v", response.SavedMediaIDs)
	}
}

func TestGenerateImagesErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", fmt.Errorf("%w: prompt is required", services.ErrInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"blocked", fmt.Errorf("%w: unsafe prompt", services.ErrBlocked), http.StatusUnprocessableEntity, "generation_blocked"},
		{"auth", fmt.Errorf("%w: token expired", services.ErrAuthentication), http.StatusBadGateway, "backend_auth_failed"},
		{"backend", fmt.Errorf("%w: no images were generated", services.ErrBackend), http.StatusBadGateway, "generation_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			generator := &stubGenerationService{err: tc.err}
			server := newGenerateServer(t, generator, nil, false)

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/", []byte(`{"prompt":"a fox"}`)))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var envelope struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if envelope.Error != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, envelope.Error)
			}
		})
	}
}

func TestGenerateImagesRejectsUnknownReferenceType(t *testing.T) {
	generator := &stubGenerationService{}
	server := newGenerateServer(t, generator, nil, false)

	body := mustJSON(t, map[string]any{
		"prompt": "a fox",
		"references": []map[string]any{
			{"type": "building", "description": "a tower"},
		},
	})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if generator.imageCmd != nil {
		t.Errorf("generator must not be invoked for invalid references")
	}
}

func TestGenerateImagesRejectsLeadingAdditionalReference(t *testing.T) {
	generator := &stubGenerationService{}
	server := newGenerateServer(t, generator, nil, false)

	image := base64.StdEncoding.EncodeToString([]byte("fox-bytes"))
	body := mustJSON(t, map[string]any{
		"prompt": "a fox",
		"references": []map[string]any{
			{"additional": true, "image_base64": image, "mime_type": "image/png"},
		},
	})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if generator.imageCmd != nil {
		t.Errorf("an additional reference without a primary must not reach the generator")
	}
}

func TestGenerateVideoDisabled(t *testing.T) {
	generator := &stubGenerationService{}
	server := newGenerateServer(t, generator, nil, false)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/video", []byte(`{"prompt":"a fox"}`)))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if generator.videoCmd != nil {
		t.Errorf("generator must not be invoked while video is disabled")
	}
}

func TestGenerateVideoBuildsCommand(t *testing.T) {
	generator := &stubGenerationService{result: services.GenerationResult{ModelVersion: "veo-2.0-generate-001"}}
	server := newGenerateServer(t, generator, nil, true)

	frame := base64.StdEncoding.EncodeToString([]byte("frame-bytes"))
	body := mustJSON(t, map[string]any{
		"prompt":            "a fox running",
		"last_frame_base64": frame,
		"last_frame_mime":   "image/png",
		"duration_seconds":  8,
	})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/generate/video", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cmd := generator.videoCmd
	if cmd == nil {
		t.Fatal("generator was not invoked")
	}
	if cmd.Context.Prompt != "a fox running" {
		t.Errorf("unexpected prompt %q", cmd.Context.Prompt)
	}
	if !bytes.Equal(cmd.LastFrame, []byte("frame-bytes")) || cmd.LastFrameMime != "image/png" {
		t.Errorf("last frame not decoded: %+v", cmd)
	}
	if cmd.DurationSeconds != 8 {
		t.Errorf("unexpected duration %d", cmd.DurationSeconds)
	}
}
