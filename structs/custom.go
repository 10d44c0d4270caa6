package structs

import (
	"math"

	"github.com/embermud/ember"
	"github.com/pkg/errors"

	goccy "github.com/goccy/go-json"
)

// CustomKind discriminates the active member of a CustomValue. The numeric
// values are part of the stored attribute stream.
type CustomKind uint8

const (
	CustomInt64 CustomKind = iota
	CustomDouble
	CustomString
	CustomBool
)

// CustomValue is a tagged union; exactly one member is active, selected by
// Kind.
type CustomValue struct {
	Kind   CustomKind
	Int    int64
	Double float64
	Str    string
	Bool   bool
}

func CustomInt(v int64) CustomValue {
	return CustomValue{Kind: CustomInt64, Int: v}
}

func CustomStr(v string) CustomValue {
	return CustomValue{Kind: CustomString, Str: v}
}

func CustomBoolean(v bool) CustomValue {
	return CustomValue{Kind: CustomBool, Bool: v}
}

// CustomNumber picks the Double member only when v has a non-zero
// fractional part, otherwise Int64. Scripts depend on this exact rule for
// what a read-back returns, so it is kept verbatim even though truncating
// very large doubles to int64 is lossy.
func CustomNumber(v float64) CustomValue {
	if math.Floor(v) < v {
		return CustomValue{Kind: CustomDouble, Double: v}
	}
	return CustomValue{Kind: CustomInt64, Int: int64(v)}
}

// Native returns the active member as a plain value, for handing to the
// script runtime.
func (v CustomValue) Native() any {
	switch v.Kind {
	case CustomInt64:
		return v.Int
	case CustomDouble:
		return v.Double
	case CustomString:
		return v.Str
	case CustomBool:
		return v.Bool
	}
	return nil
}

func (v CustomValue) MarshalJSON() ([]byte, error) {
	return goccy.Marshal(v.Native())
}

func (v *CustomValue) UnmarshalJSON(b []byte) error {
	var raw any
	if err := goccy.Unmarshal(b, &raw); err != nil {
		return ember.WithStack(err)
	}
	switch val := raw.(type) {
	case float64:
		*v = CustomNumber(val)
	case string:
		*v = CustomStr(val)
	case bool:
		*v = CustomBoolean(val)
	default:
		return ember.WithStack(errors.Errorf("unsupported custom attribute value %v", raw))
	}
	return nil
}
