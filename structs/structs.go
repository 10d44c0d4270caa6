package structs

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/embermud/ember"

	bstd "github.com/deneonet/benc/std"
)

var (
	lastEventCounter uint64 = 0
	lastItemCounter  uint64 = 0
	lastCreatureID   uint32 = 0x10000000
	encoding                = base64.StdEncoding.WithPadding(base64.NoPadding)
)

const (
	itemSerialLen = 16
)

// Timestamp is a nanosecond wall-clock stamp used by the scheduled-event
// queue and by duration bookkeeping.
type Timestamp uint64

func Stamp(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

func (t Timestamp) Uint64() uint64 {
	return uint64(t)
}

// Serializable is the contract storage needs from stored records.
type Serializable[T any] interface {
	Size() int
	Marshal(b []byte)
	Unmarshal(b []byte) error
	*T
}

// NextItemSerial returns a world-unique storage key for a new item
// instance. The serial is not the item's script-visible handle; handles
// live in script environments.
func NextItemSerial() (string, error) {
	counter := ember.Increment(&lastItemCounter)
	counterSize := binary.Size(counter)
	result := make([]byte, itemSerialLen)
	binary.BigEndian.PutUint64(result, counter)
	if _, err := rand.Read(result[counterSize:]); err != nil {
		return "", ember.WithStack(err)
	}
	return encoding.EncodeToString(result), nil
}

// NextCreatureID returns a process-unique creature id.
func NextCreatureID() uint32 {
	lastCreatureID++
	return lastCreatureID
}

// Event kinds understood by the game scheduler.
const (
	EventDecay          = "decay"
	EventTargetDistance = "targetDistance"
	EventFiendish       = "fiendish"
	EventSpawn          = "spawn"
)

// Event is a scheduled callback persisted in the event tree. Target is an
// item serial or a creature id rendered as text, depending on Kind.
// Generation lets the owner invalidate stale events without deleting them
// from the tree.
type Event struct {
	Key        string
	At         uint64
	Kind       string
	Target     string
	Generation uint64
	Message    string
}

func (e *Event) CreateKey() {
	eventCounter := ember.Increment(&lastEventCounter)
	atSize := binary.Size(e.At)
	k := make([]byte, atSize+binary.Size(eventCounter))
	binary.BigEndian.PutUint64(k, e.At)
	binary.BigEndian.PutUint64(k[atSize:], eventCounter)
	e.Key = string(k)
}

func (e *Event) Size() int {
	return bstd.SizeString(e.Key) +
		bstd.SizeUint64() +
		bstd.SizeString(e.Kind) +
		bstd.SizeString(e.Target) +
		bstd.SizeUint64() +
		bstd.SizeString(e.Message)
}

func (e *Event) Marshal(b []byte) {
	n := bstd.MarshalString(0, b, e.Key)
	n = bstd.MarshalUint64(n, b, e.At)
	n = bstd.MarshalString(n, b, e.Kind)
	n = bstd.MarshalString(n, b, e.Target)
	n = bstd.MarshalUint64(n, b, e.Generation)
	bstd.MarshalString(n, b, e.Message)
}

func (e *Event) Unmarshal(b []byte) error {
	var err error
	n := 0
	if n, e.Key, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, e.At, err = bstd.UnmarshalUint64(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, e.Kind, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, e.Target, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, e.Generation, err = bstd.UnmarshalUint64(n, b); err != nil {
		return ember.WithStack(err)
	}
	if _, e.Message, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	return nil
}

// Position is a map coordinate. The spatial map itself lives outside this
// module; positions exist so the core can ask the map collaborator about
// spectators and distances.
type Position struct {
	X uint16
	Y uint16
	Z uint8
}

// Distance is the walking distance between two positions (Chebyshev on the
// same floor). Different floors are unreachable.
func (p Position) Distance(o Position) int {
	if p.Z != o.Z {
		return int(^uint(0) >> 1)
	}
	dx := int(p.X) - int(o.X)
	if dx < 0 {
		dx = -dx
	}
	dy := int(p.Y) - int(o.Y)
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
