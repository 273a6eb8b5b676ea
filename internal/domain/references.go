package domain

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultMaxReferences caps the number of reference entries in the composed form.
const DefaultMaxReferences = 4

// ReferenceType enumerates the closed set of reference categories a user can pick.
type ReferenceType string

const (
	ReferenceUnset   ReferenceType = ""
	ReferencePerson  ReferenceType = "person"
	ReferenceAnimal  ReferenceType = "animal"
	ReferenceProduct ReferenceType = "product"
	ReferenceDefault ReferenceType = "default"
	ReferenceStyle   ReferenceType = "style"
)

// ReferenceClass groups reference types by how they steer generation.
type ReferenceClass int

const (
	ClassUnknown ReferenceClass = iota
	ClassSubject
	ClassStyle
)

// ReferenceKind maps a reference type onto the backend wire vocabulary.
type ReferenceKind struct {
	Class       ReferenceClass
	BackendType string
	SubjectKind string
}

var referenceKinds = map[ReferenceType]ReferenceKind{
	ReferencePerson:  {Class: ClassSubject, BackendType: "REFERENCE_TYPE_SUBJECT", SubjectKind: "SUBJECT_TYPE_PERSON"},
	ReferenceAnimal:  {Class: ClassSubject, BackendType: "REFERENCE_TYPE_SUBJECT", SubjectKind: "SUBJECT_TYPE_ANIMAL"},
	ReferenceProduct: {Class: ClassSubject, BackendType: "REFERENCE_TYPE_SUBJECT", SubjectKind: "SUBJECT_TYPE_PRODUCT"},
	ReferenceDefault: {Class: ClassSubject, BackendType: "REFERENCE_TYPE_SUBJECT", SubjectKind: "SUBJECT_TYPE_DEFAULT"},
	ReferenceStyle:   {Class: ClassStyle, BackendType: "REFERENCE_TYPE_STYLE"},
}

// Kind resolves the backend mapping for the reference type.
func (t ReferenceType) Kind() (ReferenceKind, bool) {
	kind, ok := referenceKinds[t]
	return kind, ok
}

// Class reports whether the type steers the subject or the style of generation.
func (t ReferenceType) Class() ReferenceClass {
	kind, ok := referenceKinds[t]
	if !ok {
		return ClassUnknown
	}
	return kind.Class
}

// ParseReferenceType normalises a raw string into the closed enum.
func ParseReferenceType(raw string) (ReferenceType, bool) {
	candidate := ReferenceType(strings.ToLower(strings.TrimSpace(raw)))
	if candidate == ReferenceUnset {
		return ReferenceUnset, true
	}
	if _, ok := referenceKinds[candidate]; !ok {
		return ReferenceUnset, false
	}
	return candidate, true
}

// ReferenceEntry is one exemplar image steering subject or style of generation.
// Entries sharing a RefID form one identity: a primary entry plus its
// additional-image siblings.
type ReferenceEntry struct {
	Key         string
	RefID       int
	Type        ReferenceType
	Description string
	Image       []byte
	ImageMime   string
	Additional  bool
	Width       int
	Height      int
	Ratio       string
}

// Complete reports whether image, description, and type are all set.
func (e ReferenceEntry) Complete() bool {
	return len(e.Image) > 0 && strings.TrimSpace(e.Description) != "" && e.Type != ReferenceUnset
}

// Empty reports whether image, description, and type are all unset.
func (e ReferenceEntry) Empty() bool {
	return len(e.Image) == 0 && strings.TrimSpace(e.Description) == "" && e.Type == ReferenceUnset
}

// ReferenceSet holds the ordered reference entries of one generation request.
//
// Invariants maintained by every operation:
//   - RefIDs of non-additional entries are exactly the contiguous range 1..N.
//   - Additional entries carry their parent's RefID and sit immediately after
//     their parent group in list order.
//   - The set never exceeds its capacity and never becomes empty; removing the
//     last identity resets the set to a single empty entry with RefID 1.
//
// The set is transient per request and not safe for concurrent mutation.
type ReferenceSet struct {
	max     int
	entries []ReferenceEntry
	newKey  func() string
}

// ReferenceSetOption customises ReferenceSet construction.
type ReferenceSetOption func(*ReferenceSet)

// WithKeyFunc overrides entry key minting (useful for tests).
func WithKeyFunc(fn func() string) ReferenceSetOption {
	return func(s *ReferenceSet) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// NewReferenceSet constructs a set seeded with one empty entry at RefID 1.
func NewReferenceSet(max int, opts ...ReferenceSetOption) *ReferenceSet {
	if max <= 0 {
		max = DefaultMaxReferences
	}
	set := &ReferenceSet{
		max:    max,
		newKey: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(set)
		}
	}
	set.entries = []ReferenceEntry{{Key: set.newKey(), RefID: 1}}
	return set
}

// Len returns the total number of entries, additional images included.
func (s *ReferenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the entries in display order.
func (s *ReferenceSet) Entries() []ReferenceEntry {
	if s == nil {
		return nil
	}
	out := make([]ReferenceEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Entry looks up an entry by its opaque key.
func (s *ReferenceSet) Entry(key string) (ReferenceEntry, bool) {
	idx := s.indexOf(key)
	if idx < 0 {
		return ReferenceEntry{}, false
	}
	return s.entries[idx], true
}

// Add appends a new empty primary entry. A full set is a silent no-op.
func (s *ReferenceSet) Add() (string, bool) {
	if s == nil || len(s.entries) >= s.max {
		return "", false
	}
	refID := 0
	for _, e := range s.entries {
		if e.RefID > refID {
			refID = e.RefID
		}
	}
	entry := ReferenceEntry{Key: s.newKey(), RefID: refID + 1}
	s.entries = append(s.entries, entry)
	return entry.Key, true
}

// AddAdditional inserts an additional-image entry for the parent identified by
// parentKey. It clones the parent's type and description, leaves the image
// empty, and positions the new entry immediately after the parent's group.
// A full set or an unknown parent is a silent no-op.
func (s *ReferenceSet) AddAdditional(parentKey string) (string, bool) {
	if s == nil || len(s.entries) >= s.max {
		return "", false
	}
	parentIdx := s.indexOf(parentKey)
	if parentIdx < 0 || s.entries[parentIdx].Additional {
		return "", false
	}

	parent := s.entries[parentIdx]
	entry := ReferenceEntry{
		Key:         s.newKey(),
		RefID:       parent.RefID,
		Type:        parent.Type,
		Description: parent.Description,
		Additional:  true,
	}

	// Insert after the last entry of the parent's group.
	insertAt := parentIdx + 1
	for insertAt < len(s.entries) && s.entries[insertAt].RefID == parent.RefID {
		insertAt++
	}

	s.entries = append(s.entries, ReferenceEntry{})
	copy(s.entries[insertAt+1:], s.entries[insertAt:])
	s.entries[insertAt] = entry
	return entry.Key, true
}

// Remove deletes the entry identified by key. Removing an additional image
// removes only that entry; removing a primary entry removes its whole RefID
// group and renumbers the remaining identities to close the gap. Removing the
// sole empty default entry is a no-op.
func (s *ReferenceSet) Remove(key string) {
	if s == nil {
		return
	}
	idx := s.indexOf(key)
	if idx < 0 {
		return
	}
	if len(s.entries) == 1 && s.entries[0].Empty() {
		return
	}

	target := s.entries[idx]
	if target.Additional {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		return
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.RefID == target.RefID {
			continue
		}
		if e.RefID > target.RefID {
			e.RefID--
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if len(s.entries) == 0 {
		s.entries = []ReferenceEntry{{Key: s.newKey(), RefID: 1}}
	}
}

// SetImage stores the image payload and dimensions on the entry.
func (s *ReferenceSet) SetImage(key string, data []byte, mime string, width, height int, ratio string) bool {
	idx := s.indexOf(key)
	if idx < 0 {
		return false
	}
	s.entries[idx].Image = data
	s.entries[idx].ImageMime = mime
	s.entries[idx].Width = width
	s.entries[idx].Height = height
	s.entries[idx].Ratio = ratio
	return true
}

// SetDescription updates the entry description in place.
func (s *ReferenceSet) SetDescription(key, description string) bool {
	idx := s.indexOf(key)
	if idx < 0 {
		return false
	}
	s.entries[idx].Description = description
	return true
}

// SetType updates the entry reference type in place.
func (s *ReferenceSet) SetType(key string, t ReferenceType) bool {
	idx := s.indexOf(key)
	if idx < 0 {
		return false
	}
	if _, ok := t.Kind(); !ok && t != ReferenceUnset {
		return false
	}
	s.entries[idx].Type = t
	return true
}

// HasUsableReferences reports whether at least one entry carries an image.
func (s *ReferenceSet) HasUsableReferences() bool {
	if s == nil {
		return false
	}
	for _, e := range s.entries {
		if len(e.Image) > 0 {
			return true
		}
	}
	return false
}

// AllComplete reports whether every entry is complete.
func (s *ReferenceSet) AllComplete() bool {
	if s == nil || len(s.entries) == 0 {
		return false
	}
	for _, e := range s.entries {
		if !e.Complete() {
			return false
		}
	}
	return true
}

func (s *ReferenceSet) indexOf(key string) int {
	if s == nil || strings.TrimSpace(key) == "" {
		return -1
	}
	for i, e := range s.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}
