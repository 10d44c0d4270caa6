package structs

import (
	"sort"

	"github.com/embermud/ember"
	"github.com/pkg/errors"
)

// ItemAttr identifies one typed attribute slot on an item. The numeric
// values are part of the stored attribute stream and must stay stable.
type ItemAttr uint8

const (
	AttrNone ItemAttr = iota
	AttrActionID
	AttrUniqueID
	AttrDuration
	AttrDurationTimestamp
	AttrDecayState
	AttrFluidType
	AttrCharges
	AttrTier
	AttrClassification
	AttrOwner
	AttrCorpseOwner
	AttrDate
	AttrText
	AttrWriter
	AttrName
	AttrArticle
	AttrPluralName
	AttrDescription

	// attrCustom tags the custom-attribute block in the serialized stream.
	// It is not addressable as a typed slot.
	attrCustom ItemAttr = 0xff
)

var attrNames = map[string]ItemAttr{
	"aid":               AttrActionID,
	"actionid":          AttrActionID,
	"uid":               AttrUniqueID,
	"uniqueid":          AttrUniqueID,
	"duration":          AttrDuration,
	"durationtimestamp": AttrDurationTimestamp,
	"decaystate":        AttrDecayState,
	"fluidtype":         AttrFluidType,
	"charges":           AttrCharges,
	"tier":              AttrTier,
	"classification":    AttrClassification,
	"owner":             AttrOwner,
	"corpseowner":       AttrCorpseOwner,
	"date":              AttrDate,
	"text":              AttrText,
	"writer":            AttrWriter,
	"name":              AttrName,
	"article":           AttrArticle,
	"pluralname":        AttrPluralName,
	"description":       AttrDescription,
}

// AttrByName resolves a script-facing attribute key. Unknown keys resolve
// to AttrNone, which no category accepts.
func AttrByName(name string) ItemAttr {
	return attrNames[name]
}

func (a ItemAttr) IsInteger() bool {
	switch a {
	case AttrActionID, AttrUniqueID, AttrDuration, AttrDurationTimestamp,
		AttrDecayState, AttrFluidType, AttrCharges, AttrTier,
		AttrClassification, AttrOwner, AttrCorpseOwner, AttrDate:
		return true
	}
	return false
}

func (a ItemAttr) IsString() bool {
	switch a {
	case AttrText, AttrWriter, AttrName, AttrArticle, AttrPluralName, AttrDescription:
		return true
	}
	return false
}

// Protected returns true for slots scripts may never write or erase: the
// unique id is owned by the handle registry, the duration timestamp is
// derived from decay scheduling.
func (a ItemAttr) Protected() bool {
	return a == AttrUniqueID || a == AttrDurationTimestamp
}

var (
	// ErrProtectedKey rejects writes/removals of protected slots. Distinct
	// from not-found so callers can surface it as a rejected operation.
	ErrProtectedKey = errors.New("attempt to modify protected attribute")
	// ErrInvalidAttr rejects unknown keys or value kinds.
	ErrInvalidAttr = errors.New("invalid attribute key or value")
)

// AttributeSet holds the typed slots and the open custom map of one item.
// The zero value is usable.
type AttributeSet struct {
	ints    map[ItemAttr]int64
	strings map[ItemAttr]string
	custom  map[string]CustomValue
}

func (s *AttributeSet) Has(a ItemAttr) bool {
	if a.IsInteger() {
		_, found := s.ints[a]
		return found
	}
	if a.IsString() {
		_, found := s.strings[a]
		return found
	}
	return false
}

func (s *AttributeSet) Int(a ItemAttr) int64 {
	return s.ints[a]
}

func (s *AttributeSet) String(a ItemAttr) string {
	return s.strings[a]
}

// SetInt writes an integer slot. Protected slots are rejected; the decay
// engine and handle registry write them through setInternal.
func (s *AttributeSet) SetInt(a ItemAttr, v int64) error {
	if a.Protected() {
		return ember.WithStack(ErrProtectedKey)
	}
	if !a.IsInteger() {
		return ember.WithStack(ErrInvalidAttr)
	}
	s.setIntInternal(a, v)
	return nil
}

func (s *AttributeSet) SetString(a ItemAttr, v string) error {
	if a.Protected() {
		return ember.WithStack(ErrProtectedKey)
	}
	if !a.IsString() {
		return ember.WithStack(ErrInvalidAttr)
	}
	if s.strings == nil {
		s.strings = map[ItemAttr]string{}
	}
	s.strings[a] = v
	return nil
}

func (s *AttributeSet) setIntInternal(a ItemAttr, v int64) {
	if s.ints == nil {
		s.ints = map[ItemAttr]int64{}
	}
	s.ints[a] = v
}

func (s *AttributeSet) Remove(a ItemAttr) error {
	if a.Protected() {
		return ember.WithStack(ErrProtectedKey)
	}
	if a.IsInteger() {
		delete(s.ints, a)
		return nil
	}
	if a.IsString() {
		delete(s.strings, a)
		return nil
	}
	return ember.WithStack(ErrInvalidAttr)
}

func (s *AttributeSet) removeInternal(a ItemAttr) {
	delete(s.ints, a)
	delete(s.strings, a)
}

// Custom returns the custom attribute stored under key. Keys are
// case-sensitive.
func (s *AttributeSet) Custom(key string) (CustomValue, bool) {
	v, found := s.custom[key]
	return v, found
}

func (s *AttributeSet) SetCustom(key string, v CustomValue) {
	if s.custom == nil {
		s.custom = map[string]CustomValue{}
	}
	s.custom[key] = v
}

func (s *AttributeSet) RemoveCustom(key string) bool {
	_, found := s.custom[key]
	delete(s.custom, key)
	return found
}

func (s *AttributeSet) Empty() bool {
	return len(s.ints) == 0 && len(s.strings) == 0 && len(s.custom) == 0
}

// Clone deep-copies the set. Used by item cloning and stack splits.
func (s *AttributeSet) Clone() AttributeSet {
	result := AttributeSet{}
	for a, v := range s.ints {
		result.setIntInternal(a, v)
	}
	for a, v := range s.strings {
		if result.strings == nil {
			result.strings = map[ItemAttr]string{}
		}
		result.strings[a] = v
	}
	for k, v := range s.custom {
		result.SetCustom(k, v)
	}
	return result
}

func (s *AttributeSet) sortedInts() []ItemAttr {
	keys := make([]ItemAttr, 0, len(s.ints))
	for a := range s.ints {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *AttributeSet) sortedStrings() []ItemAttr {
	keys := make([]ItemAttr, 0, len(s.strings))
	for a := range s.strings {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *AttributeSet) sortedCustomKeys() []string {
	keys := make([]string, 0, len(s.custom))
	for k := range s.custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
