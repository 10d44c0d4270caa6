package game

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// viewRange is how far a monster considers opponents, matching what a
// client can see.
const viewRange = 8

// SearchTarget picks a new target for m among the eligible spectators
// using the given strategy and makes it the active target. It reports
// whether a target was selected. Ties keep the first candidate found.
func (g *Game) SearchTarget(m *structs.Monster, search structs.TargetSearch) bool {
	candidates := []structs.Creature{}
	for _, c := range g.world.Spectators(m.Base().Pos, viewRange) {
		if m.IsOpponent(c) && !structs.IsDead(c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	var chosen structs.Creature
	switch search {
	case structs.TargetSearchNearest:
		best := int(^uint(0) >> 1)
		for _, c := range candidates {
			if d := m.Base().Pos.Distance(c.Base().Pos); d < best {
				best = d
				chosen = c
			}
		}
	case structs.TargetSearchHealthFraction:
		best := 2.0
		for _, c := range candidates {
			if f := structs.HealthFraction(c); f < best {
				best = f
				chosen = c
			}
		}
	case structs.TargetSearchDamageDealt:
		best := int64(-1)
		for _, c := range candidates {
			if d := m.DamageDealtBy(c.Base().Id); d > best {
				best = d
				chosen = c
			}
		}
	case structs.TargetSearchRandom:
		chosen = candidates[rand.IntN(len(candidates))]
	default:
		chosen = candidates[0]
	}
	if chosen == nil {
		return false
	}
	return m.SelectTarget(chosen)
}

// ChangeTargetDistance overrides the monster's engagement distance. A
// non-zero interval schedules a revert to the template default; a newer
// override supersedes any pending revert.
func (g *Game) ChangeTargetDistance(m *structs.Monster, distance int32, interval time.Duration) error {
	gen := m.OverrideTargetDistance(distance)
	if interval <= 0 {
		return nil
	}
	q := g.storage.Queue()
	return ember.WithStack(q.Push(context.Background(), &structs.Event{
		At:         q.After(interval).Uint64(),
		Kind:       structs.EventTargetDistance,
		Target:     strconv.FormatUint(uint64(m.Base().Id), 10),
		Generation: gen,
	}))
}

func (g *Game) handleTargetDistanceEvent(ev *structs.Event) {
	m := g.monsterByEventTarget(ev.Target)
	if m == nil {
		return
	}
	m.RevertTargetDistance(ev.Generation)
}

// SetForgeStack sets a monster's forge stack and broadcasts the derived
// status icon.
func (g *Game) SetForgeStack(m *structs.Monster, stack uint16) {
	icon := m.SetForgeStack(stack)
	g.world.NotifyCreatureIcon(m, icon)
}

// MakeFiendish pushes a monster straight into the fiendish class and
// schedules its demotion. Returns an error for monsters the forge system
// excludes.
func (g *Game) MakeFiendish(m *structs.Monster) error {
	if !m.CanBeForgeMonster() {
		return ember.WithStack(errors.Errorf("monster %q cannot enter the forge rotation", m.Base().Name))
	}
	m.SetForgeClassification(structs.ForgeFiendish)
	g.SetForgeStack(m, 15)

	q := g.storage.Queue()
	duration := g.cfg.ForgeFiendishDuration
	if duration <= 0 {
		duration = time.Hour
	}
	at := q.After(duration)
	m.SetTimeToChangeFiendish(at)
	return ember.WithStack(q.Push(context.Background(), &structs.Event{
		At:     at.Uint64(),
		Kind:   structs.EventFiendish,
		Target: strconv.FormatUint(uint64(m.Base().Id), 10),
	}))
}

// ConfigureForge derives a monster's forge classification from its stack
// and broadcasts the icon.
func (g *Game) ConfigureForge(m *structs.Monster) {
	m.ConfigureForgeSystem()
	g.world.NotifyCreatureIcon(m, m.StatusIcon())
}

// ClearFiendishStatus demotes a fiendish or influenced monster back to
// normal.
func (g *Game) ClearFiendishStatus(m *structs.Monster) {
	if m.ForgeClassification() == structs.ForgeNormal {
		return
	}
	m.ClearFiendishStatus()
	g.world.NotifyCreatureIcon(m, structs.CreatureIcon{})
}

func (g *Game) handleFiendishEvent(_ context.Context, ev *structs.Event) {
	m := g.monsterByEventTarget(ev.Target)
	if m == nil {
		return
	}
	// The rotation may have been reset and restarted since this was
	// scheduled.
	if m.TimeToChangeFiendish() == 0 || g.storage.Queue().Now() < m.TimeToChangeFiendish() {
		return
	}
	g.ClearFiendishStatus(m)
}

// SetMonsterType retypes a live monster: template swap, event handlers
// replaced, spectators told to re-read it.
func (g *Game) SetMonsterType(m *structs.Monster, typeName string, restoreHealth bool) error {
	typ, found := g.monsterTypes.Get(typeName)
	if !found {
		return ember.WithStack(errors.Errorf("unknown monster type %q", typeName))
	}
	m.SetType(typ, restoreHealth)
	g.world.NotifyCreatureReload(m)
	return nil
}
