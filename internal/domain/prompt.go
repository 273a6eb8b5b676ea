package domain

import "strings"

// Style values carry the primary rendering medium selected on the form.
const (
	StylePhoto = "photo"
)

// Use-case categories that contribute a fixed lens modifier to the prompt.
const (
	UseCaseStillLife = "Food, insects, plants (still life)"
	UseCaseMotion    = "Sports, wildlife (motion)"
	UseCaseWideAngle = "Astronomical, landscape (wide-angle)"
)

// CompositionField is one optional free-form generation parameter. The Name is
// the form field identifier; underscores are replaced by spaces when the field
// is written into the prompt.
type CompositionField struct {
	Name  string
	Value string
}

// DefaultCompositionFields returns the ordered full-prompt composition fields.
// Callers receive a fresh slice each time so form state never leaks between
// requests through shared field definitions.
func DefaultCompositionFields() []CompositionField {
	return []CompositionField{
		{Name: "lighting"},
		{Name: "light_origin"},
		{Name: "view_angle"},
		{Name: "perspective"},
		{Name: "background_color"},
	}
}

// UseCaseModifier returns the fixed modifier phrase for the given use case,
// or the empty string when the use case carries none.
func UseCaseModifier(useCase string) string {
	switch strings.TrimSpace(useCase) {
	case UseCaseStillLife:
		return ", Macro lens, 100mm"
	case UseCaseMotion:
		return ", Fast shutter speed, movement tracking"
	case UseCaseWideAngle:
		return ", Wide angle lens, 10mm"
	default:
		return ""
	}
}

// PromptContext bundles the generation form fields consumed by prompt
// assembly and request construction. It is read-only input to the pipeline.
type PromptContext struct {
	Prompt         string
	Style          string
	SecondaryStyle string
	UseCase        string
	Model          string
	AspectRatio    string
	SampleCount    int
	NegativePrompt string
	Composition    []CompositionField
}
