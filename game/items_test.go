package game

import (
	"os"
	"testing"

	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

func TestSetAttributeProtected(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(400, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetAttribute(item, "uid", int64(9)); !errors.Is(err, structs.ErrProtectedKey) {
			t.Errorf("got %v, want ErrProtectedKey", err)
		}
		if err := g.SetAttribute(item, "durationtimestamp", int64(9)); !errors.Is(err, structs.ErrProtectedKey) {
			t.Errorf("got %v, want ErrProtectedKey", err)
		}
		if err := g.RemoveAttribute(item, "uid"); !errors.Is(err, structs.ErrProtectedKey) {
			t.Errorf("got %v, want ErrProtectedKey", err)
		}
	})
}

func TestSetAttributeNotifiesTileFlags(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(400, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetAttribute(item, "aid", int64(1234)); err != nil {
			t.Fatal(err)
		}
		if len(w.flagEvents) == 0 {
			t.Fatalf("no tile flag notification after attribute write")
		}
		got := w.flagEvents[len(w.flagEvents)-1]
		want := structs.TileBlockSolid | structs.TileHasActionID
		if got != want {
			t.Errorf("got flags %b, want %b", got, want)
		}
	})
}

func TestSetAttributeDurationArmsDecay(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetAttribute(item, "duration", int64(30_000)); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayInProgress {
			t.Errorf("got decay state %v, want DecayInProgress", got)
		}
		if got := item.Duration(g.storage.Queue().Now()); got <= 0 || got > 30_000 {
			t.Errorf("got remaining %vms, want within (0, 30000]", got)
		}
	})
}

func TestSetAttributeDecayStateRoutes(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.SetAttribute(item, "decaystate", int64(structs.DecayInProgress)); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayInProgress {
			t.Errorf("got decay state %v, want DecayInProgress", got)
		}
		if err := g.SetAttribute(item, "decaystate", int64(structs.DecayStopping)); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayStopped {
			t.Errorf("got decay state %v, want DecayStopped", got)
		}
		// Stopped is not a stop request; only None and Stopping stop.
		if err := g.SetAttribute(item, "decaystate", int64(structs.DecayStopped)); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayInProgress {
			t.Errorf("got decay state %v, want the countdown re-armed", got)
		}
		if err := g.SetAttribute(item, "decaystate", int64(structs.DecayNone)); err != nil {
			t.Fatal(err)
		}
		if got := item.DecayState(); got != structs.DecayStopped {
			t.Errorf("got decay state %v, want DecayStopped", got)
		}
	})
}

func TestTransformSameTypeAdjustsCount(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		got, err := g.Transform(item, 100, 42)
		if err != nil {
			t.Fatal(err)
		}
		if got != item {
			t.Errorf("same-type transform must mutate in place")
		}
		if item.Count() != 42 {
			t.Errorf("got count %v, want 42", item.Count())
		}
	})
}

func TestTransformRebindsHandles(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(200, 1)
		if err != nil {
			t.Fatal(err)
		}
		item.Attrs.SetInt(structs.AttrActionID, 777)
		box := &structs.Container{}
		if err := box.AddItem(item); err != nil {
			t.Fatal(err)
		}

		err = g.withEnv(func(env *Environment) error {
			h := env.AddItem(item)
			replacement, err := g.Transform(item, 201, 1)
			if err != nil {
				return err
			}
			if got := env.Item(h); got != replacement {
				t.Errorf("got %v, want handle rebound to replacement", got)
			}
			if !item.IsRemoved() {
				t.Errorf("old instance must be removed")
			}
			if got := replacement.Attrs.Int(structs.AttrActionID); got != 777 {
				t.Errorf("got aid %v, want attributes carried over", got)
			}
			if len(box.Items()) != 1 || box.Items()[0] != replacement {
				t.Errorf("replacement must take the old item's place in its holder")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, found := g.Item(item.Serial); found {
			t.Errorf("old serial must be gone from the registry")
		}
	})
}

func TestSplit(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		stack, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		err = g.withEnv(func(env *Environment) error {
			piece, err := g.Split(env, stack, 3)
			if err != nil {
				return err
			}
			if piece == stack {
				t.Fatalf("split must produce a new instance")
			}
			if piece.Count() != 3 || stack.Count() != 7 {
				t.Errorf("got %v/%v, want 3/7", piece.Count(), stack.Count())
			}
			// Splitting everything (or nothing) returns the original.
			if same, err := g.Split(env, stack, 7); err != nil || same != stack {
				t.Errorf("got %v, %v, want the original back", same, err)
			}
			if same, err := g.Split(env, stack, 0); err != nil || same != stack {
				t.Errorf("got %v, %v, want the original back", same, err)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}

func TestSplitOrphanDisposedAtScopeEnd(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		stack, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		var piece *structs.Item
		err = g.withEnv(func(env *Environment) error {
			piece, err = g.Split(env, stack, 3)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if !piece.IsRemoved() {
			t.Errorf("unclaimed split piece must be disposed when the scope ends")
		}
		if _, found := g.Item(piece.Serial); found {
			t.Errorf("the orphan must leave the registry")
		}
		if _, err := g.storage.LoadItem(piece.Serial); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want the orphan's record deleted", err)
		}
		if stack.IsRemoved() {
			t.Errorf("the source stack must survive")
		}
		if _, found := g.Item(stack.Serial); !found {
			t.Errorf("the source stack must stay registered")
		}
	})
}

func TestClaimedSplitPieceSurvivesScope(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		stack, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		box := &structs.Container{}
		var piece *structs.Item
		err = g.withEnv(func(env *Environment) error {
			if piece, err = g.Split(env, stack, 3); err != nil {
				return err
			}
			return box.AddItem(piece)
		})
		if err != nil {
			t.Fatal(err)
		}
		if piece.IsRemoved() {
			t.Errorf("a claimed piece must survive scope end")
		}
		if _, found := g.Item(piece.Serial); !found {
			t.Errorf("a claimed piece must stay registered")
		}
	})
}

func TestMerge(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		receiver, err := g.CreateItem(100, 60)
		if err != nil {
			t.Fatal(err)
		}
		donor, err := g.CreateItem(100, 30)
		if err != nil {
			t.Fatal(err)
		}
		err = g.withEnv(func(env *Environment) error {
			h := env.AddItem(donor)
			if err := g.Merge(receiver, donor); err != nil {
				return err
			}
			if receiver.Count() != 90 {
				t.Errorf("got count %v, want 90", receiver.Count())
			}
			if !donor.IsRemoved() {
				t.Errorf("donor must be removed")
			}
			if got := env.Item(h); got != receiver {
				t.Errorf("got %v, want donor handle following the surviving stack", got)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, found := g.Item(donor.Serial); found {
			t.Errorf("donor record must be gone")
		}
	})
}

func TestMergeOverflowRejected(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		receiver, err := g.CreateItem(100, 60)
		if err != nil {
			t.Fatal(err)
		}
		donor, err := g.CreateItem(100, 60)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Merge(receiver, donor); err == nil {
			t.Fatalf("expected overflow past the stack size to fail")
		}
		if receiver.Count() != 60 || donor.IsRemoved() {
			t.Errorf("a rejected merge must leave both stacks untouched")
		}
	})
}

func TestMoveToMergesStacks(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		held, err := g.CreateItem(100, 10)
		if err != nil {
			t.Fatal(err)
		}
		box := &structs.Container{}
		if err := box.AddItem(held); err != nil {
			t.Fatal(err)
		}

		incoming, err := g.CreateItem(100, 5)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.MoveTo(incoming, box); err != nil {
			t.Fatal(err)
		}
		if len(box.Items()) != 1 {
			t.Fatalf("got %v items, want the stacks merged into one", len(box.Items()))
		}
		if held.Count() != 15 {
			t.Errorf("got count %v, want 15", held.Count())
		}
		if !incoming.IsRemoved() {
			t.Errorf("incoming stack must be folded away")
		}
	})
}

func TestRemoveItemForgetsHandles(t *testing.T) {
	withGame(t, func(g *Game, w *fakeWorld) {
		item, err := g.CreateItem(400, 1)
		if err != nil {
			t.Fatal(err)
		}
		err = g.withEnv(func(env *Environment) error {
			h := env.AddItem(item)
			if err := g.RemoveItem(item); err != nil {
				return err
			}
			if got := env.Item(h); got != nil {
				t.Errorf("got %v, want handle retired after removal", got)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}
