package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/genmedia-studio/api/internal/domain"
	"github.com/genmedia-studio/api/internal/platform/vertex"
)

// GenerationConfig carries the model and sampling defaults for one deployment.
type GenerationConfig struct {
	ImageModel       string
	VideoModel       string
	ImageModelLabel  string
	VideoModelLabel  string
	SampleCount      int
	AspectRatio      string
	PersonGeneration string
	OutputMimeType   string
	StorageURIPrefix string
}

// GenerationServiceDeps configures NewGenerationService.
type GenerationServiceDeps struct {
	Backend   GenerationBackend
	Assembler *PromptAssembler
	Enricher  ResultEnricher
	Config    GenerationConfig
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type generationService struct {
	backend   GenerationBackend
	assembler *PromptAssembler
	enricher  ResultEnricher
	cfg       GenerationConfig
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewGenerationService validates dependencies and constructs the service.
func NewGenerationService(deps GenerationServiceDeps) (GenerationService, error) {
	if deps.Backend == nil {
		return nil, errors.New("generation service: backend is required")
	}
	if deps.Assembler == nil {
		return nil, errors.New("generation service: prompt assembler is required")
	}
	if deps.Enricher == nil {
		return nil, errors.New("generation service: result enricher is required")
	}
	if strings.TrimSpace(deps.Config.ImageModel) == "" {
		return nil, errors.New("generation service: image model is required")
	}
	cfg := deps.Config
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = 4
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "1:1"
	}
	return &generationService{
		backend:   deps.Backend,
		assembler: deps.Assembler,
		enricher:  deps.Enricher,
		cfg:       cfg,
		logger:    deps.Logger,
	}, nil
}

func (s *generationService) GenerateImages(ctx context.Context, cmd GenerateCommand) (GenerationResult, error) {
	if err := s.validate(cmd); err != nil {
		return GenerationResult{}, err
	}

	s.assembler.EnsureDescriptions(ctx, cmd.References)
	usedPrompt := s.assembler.Assemble(cmd.Context, cmd.References)
	requestPrompt := s.assembler.AugmentForRequest(ctx, usedPrompt, cmd.References)

	model := strings.TrimSpace(cmd.Context.Model)
	if model == "" {
		model = s.cfg.ImageModel
	}
	req := vertex.PredictRequest{
		Model: model,
		Instances: []vertex.Instance{{
			Prompt:          requestPrompt,
			ReferenceImages: s.referenceImages(cmd.References),
		}},
		Parameters: s.parameters(cmd),
	}

	resp, err := s.backend.Predict(ctx, req)
	if err != nil {
		return GenerationResult{}, s.classifyBackendError(ctx, err, s.cfg.ImageModelLabel)
	}
	predictions, err := classifyResponse(resp)
	if err != nil {
		return GenerationResult{}, err
	}

	ratio := s.ratio(cmd)
	width, height := dimensionsForRatio(ratio)
	outcomes := s.enricher.EnrichAll(ctx, predictions, EnrichParams{
		UserID:       cmd.UserID,
		UsedPrompt:   usedPrompt,
		Mode:         cmd.Mode,
		ModelVersion: modelVersion(resp, model),
		Ratio:        ratio,
		Width:        width,
		Height:       height,
	})

	return GenerationResult{
		Outcomes:     outcomes,
		UsedPrompt:   usedPrompt,
		ModelVersion: modelVersion(resp, model),
	}, nil
}

func (s *generationService) GenerateVideo(ctx context.Context, cmd VideoCommand) (GenerationResult, error) {
	if err := s.validate(cmd.GenerateCommand); err != nil {
		return GenerationResult{}, err
	}
	if len(cmd.LastFrame) > 0 && strings.TrimSpace(cmd.CameraPreset) != "" {
		return GenerationResult{}, fmt.Errorf("%w: a last frame image and a camera preset cannot be combined", ErrInvalidInput)
	}
	if strings.TrimSpace(s.cfg.VideoModel) == "" {
		return GenerationResult{}, fmt.Errorf("%w: video generation is not configured", ErrInvalidInput)
	}

	s.assembler.EnsureDescriptions(ctx, cmd.References)
	usedPrompt := s.assembler.Assemble(cmd.Context, cmd.References)
	requestPrompt := s.assembler.AugmentForRequest(ctx, usedPrompt, cmd.References)
	if preset := strings.TrimSpace(cmd.CameraPreset); preset != "" {
		requestPrompt += ", " + preset
	}

	instance := vertex.Instance{Prompt: requestPrompt}
	if len(cmd.LastFrame) > 0 {
		instance.LastFrame = &vertex.InlineImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(cmd.LastFrame),
			MimeType:           cmd.LastFrameMime,
		}
	}

	params := s.parameters(cmd.GenerateCommand)
	params.DurationSeconds = cmd.DurationSeconds
	params.OutputOptions = &vertex.OutputOptions{MimeType: "video/mp4"}

	resp, err := s.backend.Predict(ctx, vertex.PredictRequest{
		Model:      s.cfg.VideoModel,
		Instances:  []vertex.Instance{instance},
		Parameters: params,
	})
	if err != nil {
		return GenerationResult{}, s.classifyBackendError(ctx, err, s.cfg.VideoModelLabel)
	}
	predictions, err := classifyResponse(resp)
	if err != nil {
		return GenerationResult{}, err
	}

	ratio := s.ratio(cmd.GenerateCommand)
	width, height := dimensionsForRatio(ratio)
	outcomes := s.enricher.EnrichAll(ctx, predictions, EnrichParams{
		UserID:       cmd.UserID,
		UsedPrompt:   usedPrompt,
		Mode:         cmd.Mode,
		ModelVersion: modelVersion(resp, s.cfg.VideoModel),
		Ratio:        ratio,
		Width:        width,
		Height:       height,
	})

	return GenerationResult{
		Outcomes:     outcomes,
		UsedPrompt:   usedPrompt,
		ModelVersion: modelVersion(resp, s.cfg.VideoModel),
	}, nil
}

func (s *generationService) validate(cmd GenerateCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.Context.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if cmd.References != nil && cmd.References.HasUsableReferences() && !cmd.References.AllComplete() {
		return fmt.Errorf("%w: every reference needs an image, a description, and a type", ErrInvalidInput)
	}
	return nil
}

func (s *generationService) parameters(cmd GenerateCommand) vertex.Parameters {
	sampleCount := cmd.Context.SampleCount
	if sampleCount <= 0 {
		sampleCount = s.cfg.SampleCount
	}
	params := vertex.Parameters{
		SampleCount:      sampleCount,
		AspectRatio:      s.ratio(cmd),
		NegativePrompt:   cmd.Context.NegativePrompt,
		PersonGeneration: s.cfg.PersonGeneration,
	}
	if s.cfg.OutputMimeType != "" {
		params.OutputOptions = &vertex.OutputOptions{MimeType: s.cfg.OutputMimeType}
	}
	if prefix := strings.TrimRight(s.cfg.StorageURIPrefix, "/"); prefix != "" {
		params.StorageURI = prefix + "/" + cmd.UserID
	}
	return params
}

func (s *generationService) ratio(cmd GenerateCommand) string {
	if ratio := strings.TrimSpace(cmd.Context.AspectRatio); ratio != "" {
		return ratio
	}
	return s.cfg.AspectRatio
}

// referenceImages converts the complete reference entries into backend
// referenceImage declarations. Incomplete sets never reach this point.
func (s *generationService) referenceImages(refs *domain.ReferenceSet) []vertex.ReferenceImage {
	if refs == nil || !refs.HasUsableReferences() || !refs.AllComplete() {
		return nil
	}
	entries := refs.Entries()
	images := make([]vertex.ReferenceImage, 0, len(entries))
	for _, entry := range entries {
		kind, ok := entry.Type.Kind()
		if !ok {
			continue
		}
		ri := vertex.ReferenceImage{
			ReferenceType: kind.BackendType,
			ReferenceID:   entry.RefID,
			ReferenceImage: vertex.InlineImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(entry.Image),
				MimeType:           entry.ImageMime,
			},
		}
		if kind.Class == domain.ClassStyle {
			ri.StyleImageConfig = &vertex.StyleImageConfig{StyleDescription: entry.Description}
		} else {
			ri.SubjectImageConfig = &vertex.SubjectImageConfig{
				SubjectDescription: entry.Description,
				SubjectType:        kind.SubjectKind,
			}
		}
		images = append(images, ri)
	}
	return images
}

func (s *generationService) classifyBackendError(ctx context.Context, err error, modelLabel string) error {
	switch {
	case errors.Is(err, vertex.ErrUnauthenticated):
		s.logEvent(ctx, "generation.auth.failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: could not authenticate with the generation backend", ErrAuthentication)
	case errors.Is(err, vertex.ErrModelNotFound):
		if modelLabel == "" {
			modelLabel = "requested"
		}
		return fmt.Errorf("%w: the %s model was not found", ErrBackend, modelLabel)
	case errors.Is(err, vertex.ErrRejected):
		return fmt.Errorf("%w: %s", ErrBlocked, userMessage(err))
	default:
		s.logEvent(ctx, "generation.backend.failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %s", ErrBackend, userMessage(err))
	}
}

func (s *generationService) logEvent(ctx context.Context, event string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger(ctx, event, fields)
}

// classifyResponse applies the fatal checks before any per-item enrichment:
// an empty batch and a suppressed first item both abort the whole request.
func classifyResponse(resp vertex.PredictResponse) ([]vertex.Prediction, error) {
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("%w: no images were generated", ErrBackend)
	}
	if resp.Predictions[0].Classify() == vertex.KindSuppressed {
		reason := strings.TrimSpace(resp.Predictions[0].RAIFilteredReason)
		for strings.HasPrefix(reason, "Error: ") {
			reason = strings.TrimSpace(strings.TrimPrefix(reason, "Error: "))
		}
		return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	return resp.Predictions, nil
}

func modelVersion(resp vertex.PredictResponse, fallback string) string {
	if v := strings.TrimSpace(resp.ModelVersion); v != "" {
		return v
	}
	return fallback
}

// dimensionsForRatio maps the supported aspect ratios to their output pixel
// dimensions. Unknown ratios fall back to square.
func dimensionsForRatio(ratio string) (int, int) {
	switch ratio {
	case "16:9":
		return 1408, 768
	case "9:16":
		return 768, 1408
	case "4:3":
		return 1280, 896
	case "3:4":
		return 896, 1280
	default:
		return 1024, 1024
	}
}
