package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/genmedia-studio/api/internal/domain"
)

type stubDescriptions struct {
	short     string
	shortErr  error
	full      map[string]string
	fullErr   error
	fullCalls int
}

func (s *stubDescriptions) Describe(_ context.Context, _ []byte, _ string, _ domain.ReferenceType) (string, error) {
	if s.shortErr != nil {
		return "", s.shortErr
	}
	return s.short, nil
}

func (s *stubDescriptions) DescribeFull(_ context.Context, image []byte, _ string, _ domain.ReferenceType) (string, error) {
	s.fullCalls++
	if s.fullErr != nil {
		return "", s.fullErr
	}
	if desc, ok := s.full[string(image)]; ok {
		return desc, nil
	}
	return "", errors.New("unknown image")
}

func newAssembler(t *testing.T, descriptions DescriptionProvider) *PromptAssembler {
	t.Helper()
	assembler, err := NewPromptAssembler(PromptAssemblerDeps{Descriptions: descriptions})
	if err != nil {
		t.Fatalf("NewPromptAssembler returned error: %v", err)
	}
	return assembler
}

func completeReference(t *testing.T, refs *domain.ReferenceSet, key, description string, refType domain.ReferenceType, image string) {
	t.Helper()
	if !refs.SetImage(key, []byte(image), "image/png", 512, 512, "1:1") {
		t.Fatalf("SetImage failed for %q", key)
	}
	if !refs.SetDescription(key, description) {
		t.Fatalf("SetDescription failed for %q", key)
	}
	if !refs.SetType(key, refType) {
		t.Fatalf("SetType failed for %q", key)
	}
}

func TestNormalizeSentence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"AN apple.   sits on A table..", "An apple. Sits on a table."},
		{"  hello world  ", "Hello world"},
		{"one! two? three.", "One! Two? Three."},
		{"a fox, , 4k", "A fox, 4k"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeSentence(tc.in); got != tc.want {
			t.Fatalf("normalizeSentence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAssemblePhotoStyleQualityModifier(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})
	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)

	got := assembler.Assemble(domain.PromptContext{
		Prompt:      "a red apple on a table",
		Style:       domain.StylePhoto,
		Composition: domain.DefaultCompositionFields(),
	}, refs)

	if !strings.HasSuffix(got, ", 4K") {
		t.Fatalf("expected photo quality suffix, got %q", got)
	}
	if strings.Contains(got, "Generate an image") {
		t.Fatalf("unexpected reference preamble in %q", got)
	}
}

func TestAssembleNonPhotoQualityModifier(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})

	got := assembler.Assemble(domain.PromptContext{
		Prompt: "a lighthouse at dusk",
		Style:  "sketch",
	}, nil)

	if !strings.HasSuffix(got, ", by a professional, detailed") {
		t.Fatalf("expected default quality suffix, got %q", got)
	}
}

func TestAssembleCompositionFields(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})

	fields := domain.DefaultCompositionFields()
	for i := range fields {
		if fields[i].Name == "background_color" {
			fields[i].Value = "red"
		}
	}

	got := assembler.Assemble(domain.PromptContext{
		Prompt:      "a vase of tulips",
		Style:       "sketch",
		Composition: fields,
	}, nil)

	if !strings.Contains(got, "red background color") {
		t.Fatalf("expected composition clause with underscores replaced, got %q", got)
	}
}

func TestAssembleUseCaseModifier(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})

	got := assembler.Assemble(domain.PromptContext{
		Prompt:  "a dragonfly on a leaf",
		Style:   domain.StylePhoto,
		UseCase: domain.UseCaseStillLife,
	}, nil)

	if !strings.HasSuffix(got, ", Macro lens, 100mm") {
		t.Fatalf("expected still-life modifier, got %q", got)
	}
	if !strings.Contains(got, ", 4K") {
		t.Fatalf("expected quality modifier before use-case modifier, got %q", got)
	}
}

func TestAssembleReferencePreamble(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	completeReference(t, refs, first, "a red fox", domain.ReferenceAnimal, "fox-bytes")

	second, ok := refs.Add()
	if !ok {
		t.Fatalf("Add failed")
	}
	completeReference(t, refs, second, "watercolor", domain.ReferenceStyle, "style-bytes")

	got := assembler.Assemble(domain.PromptContext{
		Prompt: "a fox in the woods",
		Style:  "painting",
	}, refs)

	wantPrefix := "Generate an image about a red fox [1], in a watercolor style [2] to match the description: "
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("prompt %q does not start with %q", got, wantPrefix)
	}
}

func TestAssembleSkipsPreambleWhenIncomplete(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{})

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	completeReference(t, refs, first, "a red fox", domain.ReferenceAnimal, "fox-bytes")
	if _, ok := refs.Add(); !ok {
		t.Fatalf("Add failed")
	}

	got := assembler.Assemble(domain.PromptContext{Prompt: "a fox", Style: "painting"}, refs)
	if strings.Contains(got, "Generate an image") {
		t.Fatalf("expected no preamble with an incomplete entry, got %q", got)
	}
}

func TestAugmentForRequest(t *testing.T) {
	descriptions := &stubDescriptions{full: map[string]string{
		"fox-bytes":   "a red fox with a bushy tail",
		"style-bytes": "loose watercolor brushwork",
	}}
	assembler := newAssembler(t, descriptions)

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	completeReference(t, refs, first, "a red fox", domain.ReferenceAnimal, "fox-bytes")

	additional, ok := refs.AddAdditional(first)
	if !ok {
		t.Fatalf("AddAdditional failed")
	}
	completeReference(t, refs, additional, "a red fox", domain.ReferenceAnimal, "fox-extra-bytes")

	second, ok := refs.Add()
	if !ok {
		t.Fatalf("Add failed")
	}
	completeReference(t, refs, second, "watercolor", domain.ReferenceStyle, "style-bytes")

	got := assembler.AugmentForRequest(context.Background(), "base prompt", refs)

	want := "base prompt" +
		fmt.Sprintf("\n\n[1] %s", "a red fox with a bushy tail") +
		fmt.Sprintf("\n\n[2] %s", "loose watercolor brushwork")
	if got != want {
		t.Fatalf("augmented prompt = %q, want %q", got, want)
	}
	if descriptions.fullCalls != 2 {
		t.Fatalf("expected one lookup per unique refId, got %d", descriptions.fullCalls)
	}
}

func TestAugmentForRequestSkipsFailedLookups(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{fullErr: errors.New("describe unavailable")})

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	completeReference(t, refs, first, "a red fox", domain.ReferenceAnimal, "fox-bytes")

	got := assembler.AugmentForRequest(context.Background(), "base prompt", refs)
	if got != "base prompt" {
		t.Fatalf("expected augmentation to be skipped, got %q", got)
	}
}

func TestEnsureDescriptions(t *testing.T) {
	assembler := newAssembler(t, &stubDescriptions{short: "a ceramic mug"})

	refs := domain.NewReferenceSet(domain.DefaultMaxReferences)
	first := refs.Entries()[0].Key
	if !refs.SetImage(first, []byte("mug-bytes"), "image/png", 256, 256, "1:1") {
		t.Fatalf("SetImage failed")
	}

	assembler.EnsureDescriptions(context.Background(), refs)

	if got := refs.Entries()[0].Description; got != "a ceramic mug" {
		t.Fatalf("description = %q, want %q", got, "a ceramic mug")
	}
}
