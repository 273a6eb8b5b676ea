package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/genmedia-studio/api/internal/domain"
)

const defaultModel = "gemini-2.0-flash"

// Config carries the connection settings for the description model.
type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Describer produces natural-language descriptions of reference images using
// a Gemini vision model. It implements the description-lookup collaborators
// of the prompt assembly pipeline.
type Describer struct {
	models contentGenerator
	model  string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewDescriber constructs a Describer backed by the Vertex AI Gemini API.
func NewDescriber(ctx context.Context, cfg Config) (*Describer, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("vision: project id is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("vision: region is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.ProjectID,
		Location: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Describer{models: client.Models, model: model}, nil
}

// Describe returns a short phrase naming the subject or style of the image.
func (d *Describer) Describe(ctx context.Context, image []byte, mime string, refType domain.ReferenceType) (string, error) {
	return d.generate(ctx, image, mime, shortInstruction(refType))
}

// DescribeFull returns the long, detailed description used to augment the
// outbound generation prompt.
func (d *Describer) DescribeFull(ctx context.Context, image []byte, mime string, refType domain.ReferenceType) (string, error) {
	return d.generate(ctx, image, mime, fullInstruction(refType))
}

func (d *Describer) generate(ctx context.Context, image []byte, mime, instruction string) (string, error) {
	if d == nil || d.models == nil {
		return "", errors.New("vision: describer not initialised")
	}
	if len(image) == 0 {
		return "", errors.New("vision: image payload is empty")
	}
	if strings.TrimSpace(mime) == "" {
		mime = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mime),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := d.models.GenerateContent(ctx, d.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("vision: generate description: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("vision: model returned no description")
	}
	return text, nil
}

func shortInstruction(refType domain.ReferenceType) string {
	if refType.Class() == domain.ClassStyle {
		return "Name the visual style of this image in a short phrase of at most five words. Respond with the phrase only."
	}
	return "Name the main subject of this image in a short phrase of at most five words. Respond with the phrase only."
}

func fullInstruction(refType domain.ReferenceType) string {
	if refType.Class() == domain.ClassStyle {
		return "Describe the visual style of this image in full detail: medium, palette, lighting, texture, and technique. Respond with the description only."
	}
	return "Describe the main subject of this image in full detail: appearance, colors, distinguishing features, and pose. Respond with the description only."
}
