package game

import (
	"context"
	"fmt"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// spawnDelay converts a configured respawn interval to the effective
// wait, scaled by the world's spawn rate multiplier in percent.
func (g *Game) spawnDelay(intervalMS uint32) time.Duration {
	rate := g.cfg.SpawnRateMultiplier
	if rate < 1 {
		rate = 1
	}
	return time.Duration(uint64(intervalMS)*100/uint64(rate)) * time.Millisecond
}

// SetSpawnPosition registers a respawn point for a monster type and
// schedules the first spawn.
func (g *Game) SetSpawnPosition(typeName string, pos structs.Position, intervalMS uint32) error {
	if _, found := g.monsterTypes.Get(typeName); !found {
		return ember.WithStack(errors.Errorf("unknown monster type %q", typeName))
	}
	key := fmt.Sprintf("%s@%d,%d,%d", typeName, pos.X, pos.Y, pos.Z)
	if err := g.storage.StoreSpawn(key, &structs.SpawnRecord{
		TypeName:   typeName,
		Pos:        pos,
		IntervalMS: intervalMS,
	}); err != nil {
		return ember.WithStack(err)
	}
	return ember.WithStack(g.scheduleSpawn(key, intervalMS))
}

func (g *Game) scheduleSpawn(key string, intervalMS uint32) error {
	q := g.storage.Queue()
	return ember.WithStack(q.Push(context.Background(), &structs.Event{
		At:     q.After(g.spawnDelay(intervalMS)).Uint64(),
		Kind:   structs.EventSpawn,
		Target: key,
	}))
}

// RestoreSpawns reschedules every stored spawn point, called once at
// startup.
func (g *Game) RestoreSpawns() error {
	return g.storage.EachSpawn(func(key string, rec *structs.SpawnRecord) error {
		return g.scheduleSpawn(key, rec.IntervalMS)
	})
}

// handleSpawnEvent materializes one monster at its spawn point and
// schedules the next cycle.
func (g *Game) handleSpawnEvent(ctx context.Context, ev *structs.Event) error {
	var rec *structs.SpawnRecord
	if err := g.storage.EachSpawn(func(key string, r *structs.SpawnRecord) error {
		if key == ev.Target {
			rec = r
		}
		return nil
	}); err != nil {
		return ember.WithStack(err)
	}
	if rec == nil {
		return nil
	}
	typ, found := g.monsterTypes.Get(rec.TypeName)
	if !found {
		return ember.WithStack(errors.Errorf("unknown monster type %q", rec.TypeName))
	}

	m := structs.NewMonster(typ, rec.Pos)
	if err := g.world.Place(m); err != nil {
		// Spawn point blocked; retry next cycle.
		return ember.WithStack(g.scheduleSpawn(ev.Target, rec.IntervalMS))
	}
	g.RegisterCreature(m)
	g.stats.CountSpawn(rec.TypeName)
	if err := g.RunCreatureEvent(ctx, m, "spawn", ""); err != nil {
		return ember.WithStack(err)
	}
	return ember.WithStack(g.scheduleSpawn(ev.Target, rec.IntervalMS))
}
