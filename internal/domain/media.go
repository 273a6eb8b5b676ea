package domain

import "time"

// MediaMode distinguishes how a media record was produced.
type MediaMode string

const (
	ModeGenerated MediaMode = "generated"
	ModeEdited    MediaMode = "edited"
)

// MediaRecord is an enriched, displayable generation result.
type MediaRecord struct {
	ID           string
	Key          string
	SrcURL       string
	GCSURI       string
	Format       string
	Prompt       string
	Width        int
	Height       int
	Ratio        string
	Date         time.Time
	Author       string
	ModelVersion string
	Mode         MediaMode
	Tags         []string
}

// MediaOutcomeKind discriminates the per-item pipeline result.
type MediaOutcomeKind string

const (
	// OutcomeSuccess carries a fully enriched media record.
	OutcomeSuccess MediaOutcomeKind = "success"
	// OutcomeWarning marks an item the backend suppressed for content policy.
	OutcomeWarning MediaOutcomeKind = "warning"
	// OutcomeError marks an item whose enrichment failed locally.
	OutcomeError MediaOutcomeKind = "error"
)

// MediaOutcome is the tagged per-item result of the generation pipeline.
// Exactly one of Record, Warning, or Error is meaningful, selected by Kind.
type MediaOutcome struct {
	Kind    MediaOutcomeKind
	Record  MediaRecord
	Warning string
	Error   string
}

// SuccessOutcome wraps an enriched record.
func SuccessOutcome(record MediaRecord) MediaOutcome {
	return MediaOutcome{Kind: OutcomeSuccess, Record: record}
}

// WarningOutcome wraps a per-item suppression reason.
func WarningOutcome(reason string) MediaOutcome {
	return MediaOutcome{Kind: OutcomeWarning, Warning: reason}
}

// ErrorOutcome wraps a per-item enrichment failure message.
func ErrorOutcome(message string) MediaOutcome {
	return MediaOutcome{Kind: OutcomeError, Error: message}
}
