package vertex

import "strings"

// PredictRequest is one predict call against a publisher model.
type PredictRequest struct {
	Model      string
	Instances  []Instance
	Parameters Parameters
}

type predictEnvelope struct {
	Instances  []Instance `json:"instances"`
	Parameters Parameters `json:"parameters"`
}

// Instance carries the prompt and optional reference images for one request.
type Instance struct {
	Prompt          string           `json:"prompt"`
	ReferenceImages []ReferenceImage `json:"referenceImages,omitempty"`
	LastFrame       *InlineImage     `json:"lastFrame,omitempty"`
}

// InlineImage is an image payload, either embedded or referenced by GCS URI.
type InlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
}

// ReferenceImage declares one exemplar image steering the generation.
type ReferenceImage struct {
	ReferenceType      string              `json:"referenceType"`
	ReferenceID        int                 `json:"referenceId"`
	ReferenceImage     InlineImage         `json:"referenceImage"`
	SubjectImageConfig *SubjectImageConfig `json:"subjectImageConfig,omitempty"`
	StyleImageConfig   *StyleImageConfig   `json:"styleImageConfig,omitempty"`
}

// SubjectImageConfig describes a subject-class reference.
type SubjectImageConfig struct {
	SubjectDescription string `json:"subjectDescription"`
	SubjectType        string `json:"subjectType"`
}

// StyleImageConfig describes a style-class reference.
type StyleImageConfig struct {
	StyleDescription string `json:"styleDescription"`
}

// OutputOptions select the encoding of generated artifacts.
type OutputOptions struct {
	MimeType string `json:"mimeType,omitempty"`
}

// Parameters carry the sampling and output settings of a predict call.
type Parameters struct {
	SampleCount      int            `json:"sampleCount"`
	AspectRatio      string         `json:"aspectRatio,omitempty"`
	NegativePrompt   string         `json:"negativePrompt,omitempty"`
	PersonGeneration string         `json:"personGeneration,omitempty"`
	StorageURI       string         `json:"storageUri,omitempty"`
	DurationSeconds  int            `json:"durationSeconds,omitempty"`
	OutputOptions    *OutputOptions `json:"outputOptions,omitempty"`
}

// PredictResponse is the raw predict reply before classification.
type PredictResponse struct {
	Predictions  []Prediction `json:"predictions"`
	ModelVersion string       `json:"modelVersionId,omitempty"`
}

// Prediction is one backend output item. Exactly one of the three shapes is
// populated: a suppression reason, an inline payload, or a GCS reference.
type Prediction struct {
	RAIFilteredReason  string `json:"raiFilteredReason,omitempty"`
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	Prompt             string `json:"prompt,omitempty"`
}

// PredictionKind classifies the shape of a raw prediction.
type PredictionKind int

const (
	// KindUnknown marks a prediction carrying none of the expected fields.
	KindUnknown PredictionKind = iota
	// KindSuppressed marks an item the backend filtered for content policy.
	KindSuppressed
	// KindInline marks an item with an embedded base64 payload.
	KindInline
	// KindRemote marks an item referencing a stored artifact by GCS URI.
	KindRemote
)

// Classify resolves the prediction shape. Suppression wins over payload fields
// so a reason is never silently dropped.
func (p Prediction) Classify() PredictionKind {
	switch {
	case strings.TrimSpace(p.RAIFilteredReason) != "":
		return KindSuppressed
	case strings.TrimSpace(p.BytesBase64Encoded) != "":
		return KindInline
	case strings.TrimSpace(p.GCSURI) != "":
		return KindRemote
	default:
		return KindUnknown
	}
}
