package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/vertex"
)

type stubBackend struct {
	req   vertex.PredictRequest
	calls int
	resp  vertex.PredictResponse
	err   error
}

func (b *stubBackend) Predict(_ context.Context, req vertex.PredictRequest) (vertex.PredictResponse, error) {
	b.calls++
	b.req = req
	if b.err != nil {
		return vertex.PredictResponse{}, b.err
	}
	return b.resp, nil
}

type stubEnricher struct {
	calls       int
	predictions []vertex.Prediction
	params      EnrichParams
	outcomes    []domain.MediaOutcome
}

func (e *stubEnricher) EnrichAll(_ context.Context, predictions []vertex.Prediction, params EnrichParams) []domain.MediaOutcome {
	e.calls++
	e.predictions = predictions
	e.params = params
	return e.outcomes
}

func newGenerationService(t *testing.T, backend GenerationBackend, enricher ResultEnricher) GenerationService {
	t.Helper()
	assembler := newAssembler(t, &stubDescriptions{full: map[string]string{
		"fox-bytes":   "a red fox with a bushy tail",
		"style-bytes": "loose watercolor brushwork",
	}})
	svc, err := NewGenerationService(GenerationServiceDeps{
		Backend:   backend,
		Assembler: assembler,
		Enricher:  enricher,
		Config: GenerationConfig{
			ImageModel:      "imagen-3.0-capability-001",
			VideoModel:      "veo-2.0-generate-001",
			ImageModelLabel: "Imagen 3",
			VideoModelLabel: "Veo 2",
			SampleCount:     4,
			AspectRatio:     "1:1",
			OutputMimeType:  "image/png",
		},
	})
	if err != nil {
		t.Fatalf("NewGenerationService returned error: %v", err)
	}
	return svc
}

func imageCommand(refs *domain.ReferenceSet) GenerateCommand {
	return GenerateCommand{
		UserID:     "user_1",
		Context:    domain.PromptContext{Prompt: "a fox in the woods", Style: "painting"},
		References: refs,
		Mode:       domain.ModeGenerated,
	}
}

func TestGenerateImagesValidation(t *testing.T) {
	backend := &stubBackend{}
	svc := newGenerationService(t, backend, &stubEnricher{})

	cmd := imageCommand(nil)
	cmd.Context.Prompt = ""
	if _, err := svc.GenerateImages(context.Background(), cmd); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty prompt, got %v", err)
	}

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	if !refs.SetImage(first, []byte("fox-bytes"), "image/png", 512, 512, "1:1") {
		t.Fatalf("SetImage failed")
	}
	if _, err := svc.GenerateImages(context.Background(), imageCommand(refs)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for incomplete reference, got %v", err)
	}

	if backend.calls != 0 {
		t.Fatalf("backend must not be called on validation failure, got %d calls", backend.calls)
	}
}

func TestGenerateImagesRequestConstruction(t *testing.T) {
	backend := &stubBackend{resp: vertex.PredictResponse{
		Predictions:  []vertex.Prediction{{BytesBase64Encoded: "aGk=", MimeType: "image/png"}},
		ModelVersion: "imagen-3.0-capability-001@2",
	}}
	enricher := &stubEnricher{outcomes: []domain.MediaOutcome{domain.SuccessOutcome(domain.MediaRecord{Key: "1/0"})}}
	svc := newGenerationService(t, backend, enricher)

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	completeReference(t, refs, first, "a red fox", domain.ReferenceAnimal, "fox-bytes")
	second, ok := refs.Add()
	if !ok {
		t.Fatalf("Add failed")
	}
	completeReference(t, refs, second, "watercolor", domain.ReferenceStyle, "style-bytes")

	result, err := svc.GenerateImages(context.Background(), imageCommand(refs))
	if err != nil {
		t.Fatalf("GenerateImages returned error: %v", err)
	}

	if len(backend.req.Instances) != 1 {
		t.Fatalf("expected one instance, got %d", len(backend.req.Instances))
	}
	instance := backend.req.Instances[0]
	if !strings.Contains(instance.Prompt, "\n\n[1] a red fox with a bushy tail") {
		t.Fatalf("request prompt missing subject augmentation: %q", instance.Prompt)
	}
	if !strings.Contains(instance.Prompt, "\n\n[2] loose watercolor brushwork") {
		t.Fatalf("request prompt missing style augmentation: %q", instance.Prompt)
	}
	if strings.Contains(result.UsedPrompt, "\n\n[1]") {
		t.Fatalf("used prompt must not carry request-only augmentation: %q", result.UsedPrompt)
	}

	if len(instance.ReferenceImages) != 2 {
		t.Fatalf("expected 2 reference images, got %d", len(instance.ReferenceImages))
	}
	subject := instance.ReferenceImages[0]
	if subject.ReferenceType != "REFERENCE_TYPE_SUBJECT" || subject.ReferenceID != 1 {
		t.Fatalf("unexpected subject reference %+v", subject)
	}
	if subject.SubjectImageConfig == nil || subject.SubjectImageConfig.SubjectType != "SUBJECT_TYPE_ANIMAL" {
		t.Fatalf("unexpected subject config %+v", subject.SubjectImageConfig)
	}
	style := instance.ReferenceImages[1]
	if style.ReferenceType != "REFERENCE_TYPE_STYLE" || style.StyleImageConfig == nil {
		t.Fatalf("unexpected style reference %+v", style)
	}
	if style.StyleImageConfig.StyleDescription != "watercolor" {
		t.Fatalf("unexpected style description %q", style.StyleImageConfig.StyleDescription)
	}

	if backend.req.Parameters.SampleCount != 4 {
		t.Fatalf("expected default sample count 4, got %d", backend.req.Parameters.SampleCount)
	}
	if backend.req.Parameters.OutputOptions == nil || backend.req.Parameters.OutputOptions.MimeType != "image/png" {
		t.Fatalf("unexpected output options %+v", backend.req.Parameters.OutputOptions)
	}
	if enricher.params.ModelVersion != "imagen-3.0-capability-001@2" {
		t.Fatalf("unexpected model version %q", enricher.params.ModelVersion)
	}
	if enricher.params.UsedPrompt != result.UsedPrompt {
		t.Fatalf("enricher must receive the used prompt")
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("expected enricher outcomes to pass through, got %d", len(result.Outcomes))
	}
}

func TestGenerateImagesEmptyResponse(t *testing.T) {
	backend := &stubBackend{resp: vertex.PredictResponse{}}
	enricher := &stubEnricher{}
	svc := newGenerationService(t, backend, enricher)

	_, err := svc.GenerateImages(context.Background(), imageCommand(nil))
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if !strings.Contains(err.Error(), "no images were generated") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if enricher.calls != 0 {
		t.Fatalf("enricher must not run for an empty response")
	}
}

func TestGenerateImagesFullSuppression(t *testing.T) {
	backend := &stubBackend{resp: vertex.PredictResponse{Predictions: []vertex.Prediction{
		{RAIFilteredReason: "Error: blocked by safety filters"},
		{BytesBase64Encoded: "aGk=", MimeType: "image/png"},
	}}}
	enricher := &stubEnricher{}
	svc := newGenerationService(t, backend, enricher)

	_, err := svc.GenerateImages(context.Background(), imageCommand(nil))
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "blocked by safety filters") {
		t.Fatalf("expected suppression reason in message, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "Error: blocked") {
		t.Fatalf("expected Error prefix to be stripped, got %q", err.Error())
	}
	if enricher.calls != 0 {
		t.Fatalf("enricher must not run after full suppression")
	}
}

func TestGenerateImagesErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name        string
		backendErr  error
		wantErr     error
		wantMessage string
	}{
		{
			name:       "authentication",
			backendErr: fmt.Errorf("%w: token expired", vertex.ErrUnauthenticated),
			wantErr:    ErrAuthentication,
		},
		{
			name:        "model not found rewritten",
			backendErr:  fmt.Errorf("%w: publisher model does not exist", vertex.ErrModelNotFound),
			wantErr:     ErrBackend,
			wantMessage: "the Imagen 3 model was not found",
		},
		{
			name:        "content policy",
			backendErr:  fmt.Errorf("%w: Error: prompt violates policy", vertex.ErrRejected),
			wantErr:     ErrBlocked,
			wantMessage: "prompt violates policy",
		},
		{
			name:       "generic",
			backendErr: errors.New("connection reset"),
			wantErr:    ErrBackend,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newGenerationService(t, &stubBackend{err: tc.backendErr}, &stubEnricher{})
			_, err := svc.GenerateImages(context.Background(), imageCommand(nil))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantMessage != "" && !strings.Contains(err.Error(), tc.wantMessage) {
				t.Fatalf("expected message to contain %q, got %q", tc.wantMessage, err.Error())
			}
		})
	}
}

func TestGenerateVideoConflictingOptions(t *testing.T) {
	backend := &stubBackend{}
	svc := newGenerationService(t, backend, &stubEnricher{})

	cmd := VideoCommand{
		GenerateCommand: imageCommand(nil),
		LastFrame:       []byte("frame"),
		CameraPreset:    "pan_left",
	}
	if _, err := svc.GenerateVideo(context.Background(), cmd); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend must not be called when options conflict")
	}
}

func TestGenerateVideoRequest(t *testing.T) {
	backend := &stubBackend{resp: vertex.PredictResponse{Predictions: []vertex.Prediction{
		{GCSURI: "gs://media-out/user_1/generated-images/9/sample_0.mp4", MimeType: "video/mp4"},
	}}}
	enricher := &stubEnricher{outcomes: []domain.MediaOutcome{domain.SuccessOutcome(domain.MediaRecord{Key: "9/0"})}}
	svc := newGenerationService(t, backend, enricher)

	cmd := VideoCommand{
		GenerateCommand: imageCommand(nil),
		LastFrame:       []byte("frame"),
		LastFrameMime:   "image/png",
		DurationSeconds: 6,
	}
	if _, err := svc.GenerateVideo(context.Background(), cmd); err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}

	if backend.req.Model != "veo-2.0-generate-001" {
		t.Fatalf("unexpected model %q", backend.req.Model)
	}
	if backend.req.Instances[0].LastFrame == nil {
		t.Fatalf("expected last frame on the instance")
	}
	if backend.req.Parameters.DurationSeconds != 6 {
		t.Fatalf("unexpected duration %d", backend.req.Parameters.DurationSeconds)
	}
	if backend.req.Parameters.OutputOptions == nil || backend.req.Parameters.OutputOptions.MimeType != "video/mp4" {
		t.Fatalf("unexpected output options %+v", backend.req.Parameters.OutputOptions)
	}
}
