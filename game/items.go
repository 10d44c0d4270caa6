package game

import (
	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// Attribute operations. Scripts reach these through the bindings; the
// service couples attribute writes to the decay engine and pushes tile
// flag changes to the map after every mutation that can affect them.

func (g *Game) GetAttribute(item *structs.Item, key string) (any, bool) {
	attr := structs.AttrByName(key)
	switch {
	case attr.IsInteger():
		if !item.Attrs.Has(attr) {
			return nil, false
		}
		return item.Attrs.Int(attr), true
	case attr.IsString():
		if !item.Attrs.Has(attr) {
			return nil, false
		}
		return item.Attrs.String(attr), true
	}
	return nil, false
}

// SetAttribute writes a typed attribute slot. Protected slots are
// rejected. Writing the decay state routes through the decay engine, and
// writing a duration arms decay from scratch.
func (g *Game) SetAttribute(item *structs.Item, key string, value any) error {
	attr := structs.AttrByName(key)
	switch attr {
	case structs.AttrDecayState:
		state, ok := value.(int64)
		if !ok {
			return ember.WithStack(structs.ErrInvalidAttr)
		}
		// Only None and Stopping stop; every other value starts.
		switch structs.DecayState(state) {
		case structs.DecayNone, structs.DecayStopping:
			return ember.WithStack(g.StopDecay(item))
		default:
			g.StartDecay(item)
		}
		return nil
	case structs.AttrDuration:
		dur, ok := value.(int64)
		if !ok {
			return ember.WithStack(structs.ErrInvalidAttr)
		}
		return ember.WithStack(g.SetDuration(item, dur))
	}
	var err error
	switch v := value.(type) {
	case int64:
		err = item.Attrs.SetInt(attr, v)
	case string:
		err = item.Attrs.SetString(attr, v)
	default:
		err = structs.ErrInvalidAttr
	}
	if err != nil {
		return ember.WithStack(err)
	}
	g.world.NotifyTileFlags(item, item.TileFlags())
	return ember.WithStack(g.persistItem(item))
}

// RemoveAttribute erases a typed slot. Protected slots are rejected;
// erasing the duration while decay runs leaves the countdown intact.
func (g *Game) RemoveAttribute(item *structs.Item, key string) error {
	attr := structs.AttrByName(key)
	if err := item.Attrs.Remove(attr); err != nil {
		return ember.WithStack(err)
	}
	g.world.NotifyTileFlags(item, item.TileFlags())
	return ember.WithStack(g.persistItem(item))
}

func (g *Game) GetCustomAttribute(item *structs.Item, key string) (structs.CustomValue, bool) {
	return item.Attrs.Custom(key)
}

func (g *Game) SetCustomAttribute(item *structs.Item, key string, value structs.CustomValue) error {
	item.Attrs.SetCustom(key, value)
	return ember.WithStack(g.persistItem(item))
}

func (g *Game) RemoveCustomAttribute(item *structs.Item, key string) (bool, error) {
	found := item.Attrs.RemoveCustom(key)
	if !found {
		return false, nil
	}
	return true, ember.WithStack(g.persistItem(item))
}

// AssignUniqueID gives item a map-assigned unique id. Loader-only; the
// slot is protected from scripts.
func (g *Game) AssignUniqueID(item *structs.Item, uid uint32) error {
	item.AssignUniqueID(uid)
	g.world.NotifyTileFlags(item, item.TileFlags())
	return ember.WithStack(g.persistItem(item))
}

// CreateItem makes a new live item of the given type, registered but
// still detached.
func (g *Game) CreateItem(typeID uint16, count uint16) (*structs.Item, error) {
	typ, found := g.itemTypes.Get(typeID)
	if !found {
		return nil, ember.WithStack(errors.Errorf("unknown item type %d", typeID))
	}
	item, err := structs.NewItem(typ, count)
	if err != nil {
		return nil, ember.WithStack(err)
	}
	g.items.Set(item.Serial, item)
	if err := g.persistItem(item); err != nil {
		return nil, ember.WithStack(err)
	}
	return item, nil
}

// Transform changes an item into another type, or adjusts its count.
// Same stackable type with a new count mutates in place. A type change
// replaces the instance: the old one is removed from its holder and
// storage, the new one takes its place, and every live script handle is
// rebound so scripts keep addressing "the same" item.
func (g *Game) Transform(item *structs.Item, newTypeID uint16, count uint16) (*structs.Item, error) {
	if item.IsRemoved() {
		return nil, ember.WithStack(errors.New("cannot transform a removed item"))
	}
	if newTypeID == item.ID() {
		if item.IsStackable() && count > 0 {
			item.SetCount(count)
			if err := g.persistItem(item); err != nil {
				return nil, ember.WithStack(err)
			}
		}
		return item, nil
	}

	typ, found := g.itemTypes.Get(newTypeID)
	if !found {
		return nil, ember.WithStack(errors.Errorf("unknown item type %d", newTypeID))
	}

	replacement, err := structs.NewItem(typ, count)
	if err != nil {
		return nil, ember.WithStack(err)
	}
	replacement.Attrs = item.Attrs.Clone()

	holder := item.Parent()
	if err := g.StopDecay(item); err != nil {
		return nil, ember.WithStack(err)
	}
	holder.RemoveItem(item)
	item.MarkRemoved()
	g.items.Del(item.Serial)
	if err := g.storage.RemoveItem(item.Serial); err != nil {
		return nil, ember.WithStack(err)
	}

	if err := holder.AddItem(replacement); err != nil {
		return nil, ember.WithStack(err)
	}
	g.items.Set(replacement.Serial, replacement)
	if err := g.persistItem(replacement); err != nil {
		return nil, ember.WithStack(err)
	}

	g.gate.RebindItem(item, replacement)
	g.world.NotifyTileFlags(replacement, replacement.TileFlags())

	if typ.DecayTo != 0 || typ.DecayTime > 0 {
		g.StartDecay(replacement)
	}
	return replacement, nil
}

// Split takes count units off a stack into a fresh detached item with
// copied attributes. The split-off piece lives in env as a temporary
// until a durable holder claims it. Splitting the whole stack just
// returns the original.
func (g *Game) Split(env *Environment, item *structs.Item, count uint16) (*structs.Item, error) {
	if !item.IsStackable() {
		return nil, ember.WithStack(errors.New("cannot split an unstackable item"))
	}
	if count == 0 || count >= item.Count() {
		return item, nil
	}

	piece, err := item.Clone()
	if err != nil {
		return nil, ember.WithStack(err)
	}
	piece.SetCount(count)
	item.SetCount(item.Count() - count)

	g.items.Set(piece.Serial, piece)
	env.AddTemporary(piece)

	if err := g.persistItem(item); err != nil {
		return nil, ember.WithStack(err)
	}
	if err := g.persistItem(piece); err != nil {
		return nil, ember.WithStack(err)
	}
	g.restartDecay(piece)
	return piece, nil
}

// Merge folds donor into receiver: same stackable type, receiver's count
// grows up to its stack size, donor disappears and its handles follow
// the surviving stack.
func (g *Game) Merge(receiver, donor *structs.Item) error {
	if receiver == donor {
		return nil
	}
	if !receiver.IsStackable() || receiver.ID() != donor.ID() {
		return ember.WithStack(errors.New("can only merge stacks of the same type"))
	}
	total := uint32(receiver.Count()) + uint32(donor.Count())
	max := uint32(receiver.Type().StackSize)
	if max > 0 && total > max {
		return ember.WithStack(errors.Errorf("merged stack of %d exceeds stack size %d", total, max))
	}
	receiver.SetCount(uint16(total))

	if err := g.StopDecay(donor); err != nil {
		return ember.WithStack(err)
	}
	donor.Parent().RemoveItem(donor)
	donor.MarkRemoved()
	g.items.Del(donor.Serial)

	// Both records change together or not at all.
	if err := g.storage.ProcItems(map[string]func(*structs.ItemRecord) (*structs.ItemRecord, error){
		donor.Serial: func(*structs.ItemRecord) (*structs.ItemRecord, error) {
			return nil, nil
		},
		receiver.Serial: func(*structs.ItemRecord) (*structs.ItemRecord, error) {
			return receiver.Record(), nil
		},
	}); err != nil {
		return ember.WithStack(err)
	}

	g.gate.RebindItem(donor, receiver)
	return nil
}

// CloneItem copies item into a fresh detached instance registered as a
// temporary of env.
func (g *Game) CloneItem(env *Environment, item *structs.Item) (*structs.Item, error) {
	clone, err := item.Clone()
	if err != nil {
		return nil, ember.WithStack(err)
	}
	g.items.Set(clone.Serial, clone)
	env.AddTemporary(clone)
	if err := g.persistItem(clone); err != nil {
		return nil, ember.WithStack(err)
	}
	g.restartDecay(clone)
	return clone, nil
}

// MoveTo reparents item into holder, merging into an existing stack of
// the same type when possible.
func (g *Game) MoveTo(item *structs.Item, holder structs.Holder) error {
	if item.IsRemoved() {
		return ember.WithStack(errors.New("cannot move a removed item"))
	}
	if item.IsStackable() {
		for _, held := range holder.Items() {
			if held != item && held.ID() == item.ID() {
				total := uint32(held.Count()) + uint32(item.Count())
				if max := uint32(held.Type().StackSize); max == 0 || total <= max {
					item.Parent().RemoveItem(item)
					return ember.WithStack(g.Merge(held, item))
				}
			}
		}
	}
	item.Parent().RemoveItem(item)
	if err := holder.AddItem(item); err != nil {
		return ember.WithStack(err)
	}
	return ember.WithStack(g.persistItem(item))
}

// RemoveItem destroys item: decay stops, handles are retired, the record
// is deleted.
func (g *Game) RemoveItem(item *structs.Item) error {
	if item.IsRemoved() {
		return nil
	}
	if err := g.StopDecay(item); err != nil {
		return ember.WithStack(err)
	}
	item.Parent().RemoveItem(item)
	item.MarkRemoved()
	g.items.Del(item.Serial)
	g.gate.ForgetItem(item)
	return ember.WithStack(g.storage.RemoveItem(item.Serial))
}
