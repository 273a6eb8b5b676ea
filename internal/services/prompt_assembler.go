package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/genmedia-studio/api/internal/domain"
)

// PromptAssemblerDeps configures NewPromptAssembler.
type PromptAssemblerDeps struct {
	Descriptions DescriptionProvider
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// PromptAssembler turns form state and reference descriptions into the final
// prompt string sent to the generation backend.
type PromptAssembler struct {
	descriptions DescriptionProvider
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// NewPromptAssembler validates dependencies and constructs a PromptAssembler.
func NewPromptAssembler(deps PromptAssemblerDeps) (*PromptAssembler, error) {
	if deps.Descriptions == nil {
		return nil, errors.New("prompt assembler: description provider is required")
	}
	return &PromptAssembler{
		descriptions: deps.Descriptions,
		logger:       deps.Logger,
	}, nil
}

// EnsureDescriptions fills in missing descriptions for reference entries that
// already carry an image. Lookup failures leave the entry untouched.
func (a *PromptAssembler) EnsureDescriptions(ctx context.Context, refs *domain.ReferenceSet) {
	if refs == nil {
		return
	}
	for _, entry := range refs.Entries() {
		if len(entry.Image) == 0 || strings.TrimSpace(entry.Description) != "" {
			continue
		}
		desc, err := a.descriptions.Describe(ctx, entry.Image, entry.ImageMime, entry.Type)
		if err != nil {
			a.logEvent(ctx, "reference.describe.failed", map[string]any{
				"ref_id": entry.RefID,
				"error":  err.Error(),
			})
			continue
		}
		refs.SetDescription(entry.Key, desc)
	}
}

// Assemble builds the user-visible prompt. The result is what callers store
// and echo back as the prompt actually used.
func (a *PromptAssembler) Assemble(pctx domain.PromptContext, refs *domain.ReferenceSet) string {
	base := fmt.Sprintf("A %s %s of %s", pctx.SecondaryStyle, pctx.Style, pctx.Prompt)

	appended := false
	for _, field := range pctx.Composition {
		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}
		if !appended {
			base += ","
			appended = true
		}
		base += " " + value + " " + strings.ReplaceAll(field.Name, "_", " ") + ", "
	}

	if refs != nil && refs.HasUsableReferences() && refs.AllComplete() {
		base = referencePreamble(refs) + base
	}

	base = normalizeSentence(base)

	if pctx.Style == domain.StylePhoto {
		base = appendClause(base, ", 4K")
	} else {
		base = appendClause(base, ", by a professional, detailed")
	}
	if modifier := domain.UseCaseModifier(pctx.UseCase); modifier != "" {
		base = appendClause(base, modifier)
	}
	return base
}

// AugmentForRequest appends the full AI-derived description of each unique
// complete reference to the outbound request prompt. The returned string is
// for the backend request only and is never shown back to the user. Lookup
// failures skip that reference.
func (a *PromptAssembler) AugmentForRequest(ctx context.Context, prompt string, refs *domain.ReferenceSet) string {
	if refs == nil {
		return prompt
	}
	seen := map[int]bool{}
	for _, entry := range refs.Entries() {
		if !entry.Complete() || seen[entry.RefID] {
			continue
		}
		seen[entry.RefID] = true
		full, err := a.descriptions.DescribeFull(ctx, entry.Image, entry.ImageMime, entry.Type)
		if err != nil {
			a.logEvent(ctx, "reference.describe_full.failed", map[string]any{
				"ref_id": entry.RefID,
				"error":  err.Error(),
			})
			continue
		}
		prompt += fmt.Sprintf("\n\n[%d] %s", entry.RefID, full)
	}
	return prompt
}

func (a *PromptAssembler) logEvent(ctx context.Context, event string, fields map[string]any) {
	if a.logger == nil {
		return
	}
	a.logger(ctx, event, fields)
}

// referencePreamble describes the attached references in refId order, subjects
// first, then styles, each tagged with its bracketed refId.
func referencePreamble(refs *domain.ReferenceSet) string {
	var subjects, styles []string
	seen := map[int]bool{}
	for _, entry := range refs.Entries() {
		if seen[entry.RefID] {
			continue
		}
		seen[entry.RefID] = true
		desc := strings.ToLower(strings.TrimSpace(entry.Description))
		kind, ok := entry.Type.Kind()
		if !ok {
			continue
		}
		if kind.Class == domain.ClassStyle {
			styles = append(styles, fmt.Sprintf("in a %s style [%d]", desc, entry.RefID))
		} else {
			subjects = append(subjects, fmt.Sprintf("a %s [%d]", desc, entry.RefID))
		}
	}

	var sb strings.Builder
	sb.WriteString("Generate an image ")
	if len(subjects) > 0 {
		sb.WriteString("about ")
		sb.WriteString(strings.Join(subjects, ", "))
	}
	if len(styles) > 0 {
		if len(subjects) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strings.Join(styles, ", "))
	}
	sb.WriteString(" to match the description: ")
	return sb.String()
}

// appendClause joins a fixed ", ..." clause onto base without doubling the
// separator when base already ends in a comma.
func appendClause(base, clause string) string {
	return strings.TrimRight(base, " ,") + clause
}

// normalizeSentence lowercases the input, re-capitalizes the first letter of
// each sentence, collapses runs of spaces and periods, trims, and collapses
// the ", ," artifacts left behind by the builder steps.
func normalizeSentence(s string) string {
	runes := []rune(strings.ToLower(s))

	var out []rune
	capitalizeNext := true
	for _, r := range runes {
		switch {
		case r == ' ':
			if len(out) > 0 && out[len(out)-1] == ' ' {
				continue
			}
		case r == '.':
			if len(out) > 0 && out[len(out)-1] == '.' {
				continue
			}
			capitalizeNext = true
		case r == '!' || r == '?':
			capitalizeNext = true
		case unicode.IsLetter(r):
			if capitalizeNext {
				r = unicode.ToUpper(r)
				capitalizeNext = false
			}
		}
		out = append(out, r)
	}

	result := strings.TrimSpace(string(out))
	for strings.Contains(result, ", ,") {
		result = strings.ReplaceAll(result, ", ,", ",")
	}
	return result
}
