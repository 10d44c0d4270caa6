package structs

import (
	"fmt"

	"github.com/embermud/ember"
	"github.com/pkg/errors"

	"github.com/gertd/go-pluralize"

	bstd "github.com/deneonet/benc/std"
)

// DecayState tracks where an item is in its decay lifecycle. An item is
// registered with the decay engine iff its state is Pending or InProgress.
type DecayState int64

const (
	DecayNone DecayState = iota
	DecayPending
	DecayInProgress
	DecayStopping
	DecayStopped
)

// TileFlags summarize how an item affects the tile holding it. The map
// collaborator consumes them; the attribute store recomputes them after
// every mutation that can change them.
type TileFlags uint32

const (
	TileBlockSolid TileFlags = 1 << iota
	TileBlockProjectile
	TileBlockPath
	TileHasUniqueID
	TileHasActionID
)

var pluralizer = pluralize.NewClient()

// ItemType is immutable template data produced by the asset loader. The
// core reads it but never owns its lifecycle.
type ItemType struct {
	ID              uint16
	Name            string
	Article         string
	Plural          string
	Stackable       bool
	StackSize       uint16
	Movable         bool
	Container       bool
	BlockSolid      bool
	BlockProjectile bool
	BlockPath       bool
	Classification  uint8

	// DecayTo is the successor type id on natural expiry; -1 means the
	// item is removed instead. DecayTime is the configured duration in
	// milliseconds.
	DecayTo      int32
	DecayTime    uint32
	ShowDuration bool
}

func (t *ItemType) PluralName() string {
	if t.Plural != "" {
		return t.Plural
	}
	return pluralizer.Plural(t.Name)
}

// ItemTypes is the process-wide item template registry, constructed once
// at startup and passed into the services that need it.
type ItemTypes struct {
	byID *ember.SyncMap[uint16, *ItemType]
}

func NewItemTypes() *ItemTypes {
	return &ItemTypes{byID: ember.NewSyncMap[uint16, *ItemType]()}
}

func (t *ItemTypes) Register(it *ItemType) {
	t.byID.Set(it.ID, it)
}

func (t *ItemTypes) Get(id uint16) (*ItemType, bool) {
	return t.byID.GetHas(id)
}

// Holder is whatever currently holds an item: a container, a tile, or a
// creature inventory. The holder owns the item; the item keeps a
// non-owning back reference.
type Holder interface {
	HolderPosition() Position
	AddItem(*Item) error
	RemoveItem(*Item)
	Items() []*Item
}

type virtualHolder struct{}

func (virtualHolder) HolderPosition() Position { return Position{} }
func (virtualHolder) AddItem(*Item) error      { return nil }
func (virtualHolder) RemoveItem(*Item)         {}
func (virtualHolder) Items() []*Item           { return nil }

// Virtual is the sentinel parent of detached items: clones and split-off
// stacks a script created but no durable container has claimed yet. Items
// still parented to it when their script scope ends are disposed of.
var Virtual Holder = virtualHolder{}

// Item is one live item instance. Identity is the instance itself plus its
// storage serial; scripts address items through scope-local handles, never
// through raw references, because operations like splitting and
// transforming replace the instance.
type Item struct {
	Serial string
	Attrs  AttributeSet

	typ     *ItemType
	count   uint16
	parent  Holder
	removed bool

	decayState DecayState
	// decayGen invalidates in-flight decay timers when the item is
	// retyped or its decay is stopped.
	decayGen uint64
}

func NewItem(typ *ItemType, count uint16) (*Item, error) {
	if typ == nil {
		return nil, ember.WithStack(errors.New("item type must not be nil"))
	}
	serial, err := NextItemSerial()
	if err != nil {
		return nil, ember.WithStack(err)
	}
	if count == 0 {
		count = 1
	}
	if typ.Stackable && typ.StackSize > 0 && count > typ.StackSize {
		count = typ.StackSize
	}
	return &Item{
		Serial: serial,
		typ:    typ,
		count:  count,
		parent: Virtual,
	}, nil
}

func (i *Item) Type() *ItemType {
	return i.typ
}

func (i *Item) ID() uint16 {
	return i.typ.ID
}

func (i *Item) IsStackable() bool {
	return i.typ.Stackable
}

func (i *Item) Count() uint16 {
	return i.count
}

func (i *Item) SetCount(count uint16) {
	i.count = count
}

func (i *Item) Parent() Holder {
	return i.parent
}

func (i *Item) SetParent(h Holder) {
	if h == nil {
		h = Virtual
	}
	i.parent = h
}

func (i *Item) Position() Position {
	return i.parent.HolderPosition()
}

func (i *Item) IsRemoved() bool {
	return i.removed
}

// MarkRemoved flags the instance as destroyed. Handles pointing at it must
// be retired or rebound by the caller.
func (i *Item) MarkRemoved() {
	i.removed = true
}

func (i *Item) DecayState() DecayState {
	return i.decayState
}

func (i *Item) SetDecayState(s DecayState) {
	i.decayState = s
	i.Attrs.setIntInternal(AttrDecayState, int64(s))
}

// DecayGeneration identifies the currently valid decay schedule.
func (i *Item) DecayGeneration() uint64 {
	return i.decayGen
}

// BumpDecayGeneration invalidates any in-flight decay timer.
func (i *Item) BumpDecayGeneration() uint64 {
	i.decayGen++
	return i.decayGen
}

// Retype swaps the item's template in place. Any scheduled decay is
// invalidated; the caller decides whether to restart it.
func (i *Item) Retype(typ *ItemType) {
	i.typ = typ
	i.BumpDecayGeneration()
}

func (i *Item) UniqueID() uint32 {
	return uint32(i.Attrs.Int(AttrUniqueID))
}

// AssignUniqueID is called by the handle registry only; scripts cannot
// write the slot.
func (i *Item) AssignUniqueID(uid uint32) {
	i.Attrs.setIntInternal(AttrUniqueID, int64(uid))
}

// SetDurationTimestamp is called by the decay engine only; the slot is
// derived, not settable.
func (i *Item) SetDurationTimestamp(at Timestamp) {
	i.Attrs.setIntInternal(AttrDurationTimestamp, int64(at))
}

func (i *Item) ClearDurationTimestamp() {
	i.Attrs.removeInternal(AttrDurationTimestamp)
}

// Duration returns the remaining decay duration in milliseconds: while
// decay is in progress it counts down against the stored timestamp,
// otherwise it is the configured duration attribute.
func (i *Item) Duration(now Timestamp) int64 {
	if i.decayState == DecayInProgress {
		expiry := Timestamp(i.Attrs.Int(AttrDurationTimestamp))
		remainingMS := (int64(expiry) - int64(now)) / int64(1_000_000)
		if remainingMS < 0 {
			remainingMS = 0
		}
		return remainingMS
	}
	if i.Attrs.Has(AttrDuration) {
		return i.Attrs.Int(AttrDuration)
	}
	return int64(i.typ.DecayTime)
}

func (i *Item) Name() string {
	if i.Attrs.Has(AttrName) {
		return i.Attrs.String(AttrName)
	}
	return i.typ.Name
}

func (i *Item) PluralName() string {
	if i.Attrs.Has(AttrPluralName) {
		return i.Attrs.String(AttrPluralName)
	}
	return i.typ.PluralName()
}

func (i *Item) Article() string {
	if i.Attrs.Has(AttrArticle) {
		return i.Attrs.String(AttrArticle)
	}
	return i.typ.Article
}

func (i *Item) Description() string {
	if i.Attrs.Has(AttrDescription) {
		return i.Attrs.String(AttrDescription)
	}
	if i.IsStackable() && i.count > 1 {
		return fmt.Sprintf("%d %s", i.count, i.PluralName())
	}
	if i.Article() != "" {
		return fmt.Sprintf("%s %s", i.Article(), i.Name())
	}
	return i.Name()
}

func (i *Item) Tier() uint8 {
	return uint8(i.Attrs.Int(AttrTier))
}

func (i *Item) SetTier(tier uint8) {
	i.Attrs.setIntInternal(AttrTier, int64(tier))
}

func (i *Item) Classification() uint8 {
	if i.Attrs.Has(AttrClassification) {
		return uint8(i.Attrs.Int(AttrClassification))
	}
	return i.typ.Classification
}

func (i *Item) OwnerID() uint32 {
	return uint32(i.Attrs.Int(AttrOwner))
}

func (i *Item) SetOwnerID(id uint32) {
	i.Attrs.setIntInternal(AttrOwner, int64(id))
}

func (i *Item) HasOwner() bool {
	return i.Attrs.Has(AttrOwner)
}

func (i *Item) IsOwnerID(id uint32) bool {
	return id != 0 && i.OwnerID() == id
}

// TileFlags recomputes the item's contribution to its tile's flags from
// template data and current attributes.
func (i *Item) TileFlags() TileFlags {
	var flags TileFlags
	if i.typ.BlockSolid {
		flags |= TileBlockSolid
	}
	if i.typ.BlockProjectile {
		flags |= TileBlockProjectile
	}
	if i.typ.BlockPath {
		flags |= TileBlockPath
	}
	if i.Attrs.Has(AttrUniqueID) {
		flags |= TileHasUniqueID
	}
	if i.Attrs.Has(AttrActionID) {
		flags |= TileHasActionID
	}
	return flags
}

// Clone copies the item into a fresh detached instance. The unique id is
// identity, not data, so it is not copied.
func (i *Item) Clone() (*Item, error) {
	result, err := NewItem(i.typ, i.count)
	if err != nil {
		return nil, ember.WithStack(err)
	}
	result.Attrs = i.Attrs.Clone()
	result.Attrs.removeInternal(AttrUniqueID)
	result.decayState = DecayState(result.Attrs.Int(AttrDecayState))
	return result, nil
}

// Container is a simple durable holder for items: a box, a corpse, a
// depot slot. Tiles and creature inventories are holders provided by the
// map collaborator.
type Container struct {
	Pos      Position
	Capacity int
	contents []*Item
}

func (c *Container) HolderPosition() Position {
	return c.Pos
}

func (c *Container) AddItem(item *Item) error {
	if c.Capacity > 0 && len(c.contents) >= c.Capacity {
		return ember.WithStack(errors.Errorf("container at %v is full", c.Pos))
	}
	c.contents = append(c.contents, item)
	item.SetParent(c)
	return nil
}

func (c *Container) RemoveItem(item *Item) {
	for idx, held := range c.contents {
		if held == item {
			c.contents = append(c.contents[:idx], c.contents[idx+1:]...)
			item.SetParent(Virtual)
			return
		}
	}
}

func (c *Container) Items() []*Item {
	return c.contents
}

// ItemRecord is the stored form of an item: identity plus the serialized
// attribute stream.
type ItemRecord struct {
	Serial string
	TypeID uint16
	Count  uint16
	Attrs  []byte
}

// Record snapshots the item for persistence.
func (i *Item) Record() *ItemRecord {
	return &ItemRecord{
		Serial: i.Serial,
		TypeID: i.ID(),
		Count:  i.count,
		Attrs:  i.Attrs.Serialize(),
	}
}

// Materialize rebuilds a live item from a stored record.
func (r *ItemRecord) Materialize(types *ItemTypes) (*Item, error) {
	typ, found := types.Get(r.TypeID)
	if !found {
		return nil, ember.WithStack(errors.Errorf("unknown item type %d", r.TypeID))
	}
	attrs, err := DeserializeAttr(r.Attrs)
	if err != nil {
		return nil, ember.WithStack(err)
	}
	item := &Item{
		Serial: r.Serial,
		typ:    typ,
		count:  r.Count,
		parent: Virtual,
		Attrs:  *attrs,
	}
	item.decayState = DecayState(attrs.Int(AttrDecayState))
	return item, nil
}

func (r *ItemRecord) Size() int {
	return bstd.SizeString(r.Serial) +
		bstd.SizeUint16() +
		bstd.SizeUint16() +
		bstd.SizeBytes(r.Attrs)
}

func (r *ItemRecord) Marshal(b []byte) {
	n := bstd.MarshalString(0, b, r.Serial)
	n = bstd.MarshalUint16(n, b, r.TypeID)
	n = bstd.MarshalUint16(n, b, r.Count)
	bstd.MarshalBytes(n, b, r.Attrs)
}

func (r *ItemRecord) Unmarshal(b []byte) error {
	var err error
	n := 0
	if n, r.Serial, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, r.TypeID, err = bstd.UnmarshalUint16(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, r.Count, err = bstd.UnmarshalUint16(n, b); err != nil {
		return ember.WithStack(err)
	}
	if _, r.Attrs, err = bstd.UnmarshalBytes(n, b); err != nil {
		return ember.WithStack(err)
	}
	return nil
}
