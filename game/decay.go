package game

import (
	"context"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
)

// Decay engine. An item decays toward its type's successor (or removal)
// over a duration; the countdown survives restarts because expiry is a
// persisted scheduler event and the remaining time is recoverable from
// the duration timestamp. Generations guard against stale timers: every
// stop or retype bumps the item's generation, and an expiry event whose
// generation no longer matches is dropped.

// StartDecay arms decay on item. Items without a duration never decay,
// and an item already counting down is left alone.
func (g *Game) StartDecay(item *structs.Item) {
	if item.IsRemoved() || item.DecayState() == structs.DecayInProgress {
		return
	}
	durationMS := item.Duration(g.storage.Queue().Now())
	if durationMS <= 0 {
		return
	}
	if item.DecayState() != structs.DecayPending {
		item.SetDecayState(structs.DecayPending)
	}
	g.beginCountdown(item, durationMS)
}

func (g *Game) beginCountdown(item *structs.Item, durationMS int64) {
	q := g.storage.Queue()
	expiry := q.After(time.Duration(durationMS) * time.Millisecond)
	item.SetDecayState(structs.DecayInProgress)
	item.SetDurationTimestamp(expiry)
	gen := item.BumpDecayGeneration()

	if err := g.persistItem(item); err != nil {
		// Still scheduled; the next mutation retries persistence.
		item.SetDecayState(structs.DecayPending)
	}
	if err := q.Push(context.Background(), &structs.Event{
		At:         expiry.Uint64(),
		Kind:       structs.EventDecay,
		Target:     item.Serial,
		Generation: gen,
	}); err != nil {
		item.SetDecayState(structs.DecayStopped)
	}
}

// StopDecay freezes the countdown. The remaining time is written back to
// the duration attribute so a later start resumes where it stopped.
// Stopping an idle item is a no-op.
func (g *Game) StopDecay(item *structs.Item) error {
	switch item.DecayState() {
	case structs.DecayInProgress:
		remaining := item.Duration(g.storage.Queue().Now())
		if err := item.Attrs.SetInt(structs.AttrDuration, remaining); err != nil {
			return ember.WithStack(err)
		}
	case structs.DecayPending:
	default:
		return nil
	}
	item.ClearDurationTimestamp()
	item.SetDecayState(structs.DecayStopped)
	item.BumpDecayGeneration()
	err := g.persistItem(item)
	g.world.NotifyTileFlags(item, item.TileFlags())
	return ember.WithStack(err)
}

// restartDecay re-arms decay on a copied instance whose attributes claim
// an active countdown the scheduler knows nothing about. Clones and
// split-off stacks carry the source's decay state but not its timer.
func (g *Game) restartDecay(item *structs.Item) {
	if item.DecayState() == structs.DecayInProgress || item.DecayState() == structs.DecayPending {
		item.SetDecayState(structs.DecayNone)
		g.StartDecay(item)
	}
}

// SetDuration configures how long the item lasts and arms decay.
func (g *Game) SetDuration(item *structs.Item, durationMS int64) error {
	if durationMS <= 0 {
		return ember.WithStack(structs.ErrInvalidAttr)
	}
	if item.DecayState() == structs.DecayInProgress {
		// Restart the countdown with the new duration.
		item.SetDecayState(structs.DecayStopped)
		item.ClearDurationTimestamp()
		item.BumpDecayGeneration()
	}
	if err := item.Attrs.SetInt(structs.AttrDuration, durationMS); err != nil {
		return ember.WithStack(err)
	}
	item.SetDecayState(structs.DecayPending)
	g.StartDecay(item)
	return nil
}

// handleDecayEvent expires one item: transform into the successor type,
// or remove when the type decays to nothing.
func (g *Game) handleDecayEvent(_ context.Context, ev *structs.Event) error {
	item, found := g.items.GetHas(ev.Target)
	if !found || item.IsRemoved() {
		return nil
	}
	if item.DecayGeneration() != ev.Generation {
		return nil
	}
	if item.DecayState() != structs.DecayInProgress {
		return nil
	}

	item.SetDecayState(structs.DecayNone)
	item.ClearDurationTimestamp()
	item.Attrs.Remove(structs.AttrDuration)

	decayTo := item.Type().DecayTo
	if decayTo <= 0 {
		return ember.WithStack(g.RemoveItem(item))
	}
	_, err := g.Transform(item, uint16(decayTo), item.Count())
	return ember.WithStack(err)
}
