package structs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestProtectedSlots(t *testing.T) {
	s := &AttributeSet{}
	if err := s.SetInt(AttrUniqueID, 42); !errors.Is(err, ErrProtectedKey) {
		t.Errorf("got %v, want ErrProtectedKey", err)
	}
	if err := s.SetInt(AttrDurationTimestamp, 42); !errors.Is(err, ErrProtectedKey) {
		t.Errorf("got %v, want ErrProtectedKey", err)
	}
	if err := s.Remove(AttrUniqueID); !errors.Is(err, ErrProtectedKey) {
		t.Errorf("got %v, want ErrProtectedKey", err)
	}
	s.setIntInternal(AttrUniqueID, 42)
	if got := s.Int(AttrUniqueID); got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestAttrCategories(t *testing.T) {
	s := &AttributeSet{}
	if err := s.SetInt(AttrText, 1); !errors.Is(err, ErrInvalidAttr) {
		t.Errorf("got %v, want ErrInvalidAttr", err)
	}
	if err := s.SetString(AttrActionID, "x"); !errors.Is(err, ErrInvalidAttr) {
		t.Errorf("got %v, want ErrInvalidAttr", err)
	}
	if err := s.SetInt(AttrActionID, 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetString(AttrText, "do not read me"); err != nil {
		t.Fatal(err)
	}
	if !s.Has(AttrActionID) || !s.Has(AttrText) {
		t.Errorf("expected both slots set")
	}
	if err := s.Remove(AttrActionID); err != nil {
		t.Fatal(err)
	}
	if s.Has(AttrActionID) {
		t.Errorf("expected slot removed")
	}
}

func TestAttrByName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want ItemAttr
	}{
		{"aid", AttrActionID},
		{"actionid", AttrActionID},
		{"duration", AttrDuration},
		{"pluralname", AttrPluralName},
		{"bogus", AttrNone},
	} {
		if got := AttrByName(tc.name); got != tc.want {
			t.Errorf("AttrByName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCustomNumberInference(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want CustomValue
	}{
		{3.5, CustomValue{Kind: CustomDouble, Double: 3.5}},
		{3.0, CustomValue{Kind: CustomInt64, Int: 3}},
		{0, CustomValue{Kind: CustomInt64, Int: 0}},
		{-2.25, CustomValue{Kind: CustomDouble, Double: -2.25}},
		{-2, CustomValue{Kind: CustomInt64, Int: -2}},
	} {
		if got := CustomNumber(tc.in); got != tc.want {
			t.Errorf("CustomNumber(%v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestCustomKeysCaseSensitive(t *testing.T) {
	s := &AttributeSet{}
	s.SetCustom("Quest", CustomInt(1))
	s.SetCustom("quest", CustomInt(2))
	v, found := s.Custom("Quest")
	if !found || v.Int != 1 {
		t.Errorf("got %+v %v, want Int 1", v, found)
	}
	v, found = s.Custom("quest")
	if !found || v.Int != 2 {
		t.Errorf("got %+v %v, want Int 2", v, found)
	}
	if !s.RemoveCustom("quest") {
		t.Errorf("expected removal to report presence")
	}
	if s.RemoveCustom("quest") {
		t.Errorf("expected second removal to report absence")
	}
	if _, found := s.Custom("Quest"); !found {
		t.Errorf("expected differently cased key to survive")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := &AttributeSet{}
	if err := s.SetInt(AttrActionID, 4711); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInt(AttrCharges, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.SetString(AttrText, "scribbled note"); err != nil {
		t.Fatal(err)
	}
	s.setIntInternal(AttrUniqueID, 9001)
	s.SetCustom("questStage", CustomInt(2))
	s.SetCustom("bossTimer", CustomValue{Kind: CustomDouble, Double: 12.5})
	s.SetCustom("seen", CustomBoolean(true))
	s.SetCustom("lastKiller", CustomStr("Ghazbaran"))

	b := s.Serialize()
	restored, err := DeserializeAttr(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, restored, cmp.AllowUnexported(AttributeSet{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%v", diff)
	}
	// Canonical ordering makes re-serialization byte stable.
	if diff := cmp.Diff(b, restored.Serialize()); diff != "" {
		t.Errorf("byte stream not stable (-want +got):\n%v", diff)
	}
}

func TestSerializeEmpty(t *testing.T) {
	s := &AttributeSet{}
	if got := len(s.Serialize()); got != 0 {
		t.Errorf("got %v bytes, want 0", got)
	}
	restored, err := DeserializeAttr(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Empty() {
		t.Errorf("expected empty set")
	}
}
