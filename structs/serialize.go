package structs

import (
	"github.com/embermud/ember"
	"github.com/pkg/errors"

	bstd "github.com/deneonet/benc/std"
)

// Attribute wire format: a stream of length-prefixed records, each tagged
// with its slot byte. Integer slots carry a fixed int64, string slots a
// length-prefixed string. Custom attributes follow under a single 0xff tag
// as a counted list of key/kind/value records. Records are emitted in
// sorted slot/key order so equal sets serialize to equal bytes. The layout
// is a compatibility contract with the persistence collaborator; changing
// it requires a version marker.

func (s *AttributeSet) SerializeSize() int {
	size := 0
	for range s.ints {
		size += bstd.SizeByte() + bstd.SizeInt64()
	}
	for _, v := range s.strings {
		size += bstd.SizeByte() + bstd.SizeString(v)
	}
	if len(s.custom) > 0 {
		size += bstd.SizeByte() + bstd.SizeUint16()
		for k, v := range s.custom {
			size += bstd.SizeString(k) + bstd.SizeByte()
			switch v.Kind {
			case CustomInt64:
				size += bstd.SizeInt64()
			case CustomDouble:
				size += bstd.SizeFloat64()
			case CustomString:
				size += bstd.SizeString(v.Str)
			case CustomBool:
				size += bstd.SizeBool()
			}
		}
	}
	return size
}

func (s *AttributeSet) SerializeAttr(b []byte) int {
	n := 0
	for _, a := range s.sortedInts() {
		n = bstd.MarshalByte(n, b, byte(a))
		n = bstd.MarshalInt64(n, b, s.ints[a])
	}
	for _, a := range s.sortedStrings() {
		n = bstd.MarshalByte(n, b, byte(a))
		n = bstd.MarshalString(n, b, s.strings[a])
	}
	if len(s.custom) > 0 {
		n = bstd.MarshalByte(n, b, byte(attrCustom))
		n = bstd.MarshalUint16(n, b, uint16(len(s.custom)))
		for _, k := range s.sortedCustomKeys() {
			v := s.custom[k]
			n = bstd.MarshalString(n, b, k)
			n = bstd.MarshalByte(n, b, byte(v.Kind))
			switch v.Kind {
			case CustomInt64:
				n = bstd.MarshalInt64(n, b, v.Int)
			case CustomDouble:
				n = bstd.MarshalFloat64(n, b, v.Double)
			case CustomString:
				n = bstd.MarshalString(n, b, v.Str)
			case CustomBool:
				n = bstd.MarshalBool(n, b, v.Bool)
			}
		}
	}
	return n
}

// Serialize returns the canonical byte stream of all currently set
// attributes.
func (s *AttributeSet) Serialize() []byte {
	b := make([]byte, s.SerializeSize())
	s.SerializeAttr(b)
	return b
}

// DeserializeAttr reconstructs an attribute set from b. The result
// re-serializes to the identical byte stream.
func DeserializeAttr(b []byte) (*AttributeSet, error) {
	result := &AttributeSet{}
	n := 0
	for n < len(b) {
		var tag byte
		var err error
		if n, tag, err = bstd.UnmarshalByte(n, b); err != nil {
			return nil, ember.WithStack(err)
		}
		attr := ItemAttr(tag)
		switch {
		case attr == attrCustom:
			var count uint16
			if n, count, err = bstd.UnmarshalUint16(n, b); err != nil {
				return nil, ember.WithStack(err)
			}
			for i := uint16(0); i < count; i++ {
				var key string
				if n, key, err = bstd.UnmarshalString(n, b); err != nil {
					return nil, ember.WithStack(err)
				}
				var kind byte
				if n, kind, err = bstd.UnmarshalByte(n, b); err != nil {
					return nil, ember.WithStack(err)
				}
				value := CustomValue{Kind: CustomKind(kind)}
				switch value.Kind {
				case CustomInt64:
					if n, value.Int, err = bstd.UnmarshalInt64(n, b); err != nil {
						return nil, ember.WithStack(err)
					}
				case CustomDouble:
					if n, value.Double, err = bstd.UnmarshalFloat64(n, b); err != nil {
						return nil, ember.WithStack(err)
					}
				case CustomString:
					if n, value.Str, err = bstd.UnmarshalString(n, b); err != nil {
						return nil, ember.WithStack(err)
					}
				case CustomBool:
					if n, value.Bool, err = bstd.UnmarshalBool(n, b); err != nil {
						return nil, ember.WithStack(err)
					}
				default:
					return nil, ember.WithStack(errors.Errorf("unknown custom attribute kind %d", kind))
				}
				result.SetCustom(key, value)
			}
		case attr.IsInteger():
			var v int64
			if n, v, err = bstd.UnmarshalInt64(n, b); err != nil {
				return nil, ember.WithStack(err)
			}
			result.setIntInternal(attr, v)
		case attr.IsString():
			var v string
			if n, v, err = bstd.UnmarshalString(n, b); err != nil {
				return nil, ember.WithStack(err)
			}
			if result.strings == nil {
				result.strings = map[ItemAttr]string{}
			}
			result.strings[attr] = v
		default:
			return nil, ember.WithStack(errors.Errorf("unknown attribute tag %d", tag))
		}
	}
	return result, nil
}
