package game

import (
	"context"
	"testing"

	"github.com/embermud/ember/structs"
)

func TestStartDecayIdempotent(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		g.StartDecay(item)
		if got := item.DecayState(); got != structs.DecayInProgress {
			t.Fatalf("got decay state %v, want DecayInProgress", got)
		}
		gen := item.DecayGeneration()
		g.StartDecay(item)
		if got := item.DecayGeneration(); got != gen {
			t.Errorf("got generation %v, want %v; starting twice must not reschedule", got, gen)
		}
	})
}

func TestStartDecayWithoutDuration(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(400, 1)
		if err != nil {
			t.Fatal(err)
		}
		g.StartDecay(item)
		if got := item.DecayState(); got != structs.DecayNone {
			t.Errorf("got decay state %v, want DecayNone for a type without decay", got)
		}
	})
}

func TestStopDecayWritesBackRemaining(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(item, 30_000); err != nil {
			t.Fatal(err)
		}
		flagEvents := len(w.flagEvents)
		if err := g.StopDecay(item); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayStopped {
			t.Errorf("got decay state %v, want DecayStopped", got)
		}
		remaining := item.Attrs.Int(structs.AttrDuration)
		if remaining <= 0 || remaining > 30_000 {
			t.Errorf("got remaining %vms, want within (0, 30000]", remaining)
		}
		if item.Attrs.Has(structs.AttrDurationTimestamp) {
			t.Errorf("the duration timestamp must be cleared on stop")
		}
		if len(w.flagEvents) <= flagEvents {
			t.Errorf("stopping decay must push the item's tile flags to the map")
		}
		// Stopping again is a no-op.
		gen := item.DecayGeneration()
		if err := g.StopDecay(item); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayGeneration(); got != gen {
			t.Errorf("got generation %v, want %v", got, gen)
		}
	})
}

func TestDecayEventStaleGenerationDropped(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(item, 30_000); err != nil {
			t.Fatal(err)
		}
		if err := g.handleDecayEvent(context.Background(), &structs.Event{
			Kind:       structs.EventDecay,
			Target:     item.Serial,
			Generation: item.DecayGeneration() - 1,
		}); err != nil {
			t.Fatal(err)
		}
		if item.IsRemoved() || item.DecayState() != structs.DecayInProgress {
			t.Errorf("a stale expiry must leave the item alone")
		}
	})
}

func TestDecayExpiryTransforms(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		torch, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		box := &structs.Container{}
		if err := box.AddItem(torch); err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(torch, 30_000); err != nil {
			t.Fatal(err)
		}
		if err := g.handleDecayEvent(context.Background(), &structs.Event{
			Kind:       structs.EventDecay,
			Target:     torch.Serial,
			Generation: torch.DecayGeneration(),
		}); err != nil {
			t.Fatal(err)
		}
		if !torch.IsRemoved() {
			t.Errorf("the expired instance must be replaced")
		}
		if len(box.Items()) != 1 || box.Items()[0].ID() != 201 {
			t.Fatalf("got %v, want a burnt torch in the holder", box.Items())
		}
	})
}

func TestDecayExpiryRemoves(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		snowball, err := g.CreateItem(300, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(snowball, 30_000); err != nil {
			t.Fatal(err)
		}
		if err := g.handleDecayEvent(context.Background(), &structs.Event{
			Kind:       structs.EventDecay,
			Target:     snowball.Serial,
			Generation: snowball.DecayGeneration(),
		}); err != nil {
			t.Fatal(err)
		}
		if !snowball.IsRemoved() {
			t.Errorf("a type decaying to nothing must be removed on expiry")
		}
		if _, found := g.Item(snowball.Serial); found {
			t.Errorf("the record must be gone")
		}
	})
}

func TestSplitRestartsDecay(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		stack, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(stack, 30_000); err != nil {
			t.Fatal(err)
		}
		err = g.withEnv(func(env *Environment) error {
			piece, err := g.Split(env, stack, 3)
			if err != nil {
				return err
			}
			// The piece copies the countdown state but not the timer; it
			// must get a schedule of its own.
			if got := piece.DecayState(); got != structs.DecayInProgress {
				t.Errorf("got decay state %v, want DecayInProgress", got)
			}
			if !piece.Attrs.Has(structs.AttrDurationTimestamp) {
				t.Errorf("the piece must carry its own duration timestamp")
			}
			if piece.DecayGeneration() == 0 {
				t.Errorf("the piece must have a scheduled expiry of its own")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}

func TestSetDurationRestartsRunningCountdown(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetDuration(item, 30_000); err != nil {
			t.Fatal(err)
		}
		gen := item.DecayGeneration()
		if err := g.SetDuration(item, 10_000); err != nil {
			t.Fatal(err)
		}
		if item.DecayGeneration() == gen {
			t.Errorf("a new duration must invalidate the old timer")
		}
		if got := item.Duration(g.storage.Queue().Now()); got > 10_000 {
			t.Errorf("got remaining %vms, want at most 10000", got)
		}
	})
}
