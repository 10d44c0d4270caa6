package server

import (
	"sync"

	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// World is a minimal in-memory map: enough to place creatures, answer
// spectator queries and remember tile flags. A real deployment swaps in
// a map service behind the same interface.
type World struct {
	mu        sync.Mutex
	creatures map[uint32]structs.Creature
	tileFlags map[structs.Position]structs.TileFlags
	icons     map[uint32]structs.CreatureIcon
}

func NewWorld() *World {
	return &World{
		creatures: map[uint32]structs.Creature{},
		tileFlags: map[structs.Position]structs.TileFlags{},
		icons:     map[uint32]structs.CreatureIcon{},
	}
}

func (w *World) Spectators(center structs.Position, radius int) []structs.Creature {
	w.mu.Lock()
	defer w.mu.Unlock()
	result := []structs.Creature{}
	for _, c := range w.creatures {
		pos := c.Base().Pos
		if pos.Z == center.Z && center.Distance(pos) <= radius {
			result = append(result, c)
		}
	}
	return result
}

func (w *World) NotifyTileFlags(item *structs.Item, flags structs.TileFlags) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pos := item.Position()
	if flags == 0 {
		delete(w.tileFlags, pos)
		return
	}
	w.tileFlags[pos] = flags
}

func (w *World) NotifyCreatureIcon(c structs.Creature, icon structs.CreatureIcon) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if icon == (structs.CreatureIcon{}) {
		delete(w.icons, c.Base().Id)
		return
	}
	w.icons[c.Base().Id] = icon
}

func (w *World) NotifyCreatureReload(structs.Creature) {}

func (w *World) Place(c structs.Creature) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pos := c.Base().Pos
	if w.tileFlags[pos]&structs.TileBlockSolid != 0 {
		return ember.WithStack(errors.Errorf("position %v is blocked", pos))
	}
	w.creatures[c.Base().Id] = c
	return nil
}
