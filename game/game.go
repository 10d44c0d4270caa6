package game

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/storage"
	"github.com/embermud/ember/structs"
	cache "github.com/go-pkgz/expirable-cache/v3"
)

const (
	sourceCacheTTL = time.Minute
)

// World is the map collaborator: it owns tiles, spectator lookup and
// client notification. The runtime core drives it but never walks the
// map itself.
type World interface {
	// Spectators returns the creatures within radius of center, on the
	// same floor.
	Spectators(center structs.Position, radius int) []structs.Creature
	// NotifyTileFlags tells the map an item's tile contribution changed.
	NotifyTileFlags(item *structs.Item, flags structs.TileFlags)
	// NotifyCreatureIcon broadcasts a creature's status icon to its
	// spectators.
	NotifyCreatureIcon(c structs.Creature, icon structs.CreatureIcon)
	// NotifyCreatureReload tells spectators to re-read a creature whose
	// appearance changed wholesale, as after retyping.
	NotifyCreatureReload(c structs.Creature)
	// Place puts a creature on the map at its current position.
	Place(c structs.Creature) error
}

// Game is the runtime core: the script gate, the item and creature
// registries, and the scheduler wiring that drives decay, forge rotation
// and spawns.
type Game struct {
	cfg          structs.WorldConfig
	storage      *storage.Storage
	world        World
	itemTypes    *structs.ItemTypes
	monsterTypes *structs.MonsterTypes
	gate         *Gate
	stats        *Stats

	// mu serializes script-driven world mutation. Scripts run one at a
	// time against world state; the gate tracks nesting within that.
	mu sync.Mutex

	items     *ember.SyncMap[string, *structs.Item]
	creatures *ember.SyncMap[uint32, structs.Creature]

	sources cache.Cache[string, string]
}

func New(ctx context.Context, cfg structs.WorldConfig, s *storage.Storage, world World, itemTypes *structs.ItemTypes, monsterTypes *structs.MonsterTypes) (*Game, error) {
	g := &Game{
		cfg:          cfg,
		storage:      s,
		world:        world,
		itemTypes:    itemTypes,
		monsterTypes: monsterTypes,
		gate:         NewGate(cfg.MaxScriptNesting),
		stats:        NewStats(),
		items:        ember.NewSyncMap[string, *structs.Item](),
		creatures:    ember.NewSyncMap[uint32, structs.Creature](),
		sources:      cache.NewCache[string, string]().WithTTL(sourceCacheTTL),
	}
	if err := g.loadItems(); err != nil {
		return nil, ember.WithStack(err)
	}
	go func() {
		if err := s.Queue().Start(ctx, g.handleEvent); err != nil && ctx.Err() == nil {
			log.Panic(err)
		}
	}()
	return g, nil
}

func (g *Game) loadItems() error {
	return g.storage.EachItem(func(rec *structs.ItemRecord) error {
		item, err := rec.Materialize(g.itemTypes)
		if err != nil {
			return ember.WithStack(err)
		}
		g.items.Set(item.Serial, item)
		return nil
	})
}

// Item returns the live item with the given storage serial.
func (g *Game) Item(serial string) (*structs.Item, bool) {
	return g.items.GetHas(serial)
}

func (g *Game) Creature(id uint32) (structs.Creature, bool) {
	return g.creatures.GetHas(id)
}

func (g *Game) RegisterCreature(c structs.Creature) {
	g.creatures.Set(c.Base().Id, c)
}

func (g *Game) UnregisterCreature(c structs.Creature) {
	m := structs.AsMonster(c)
	if m != nil {
		g.ClearFiendishStatus(m)
	}
	g.creatures.Del(c.Base().Id)
}

// handleEvent dispatches one due scheduler event. Events carry a
// generation; holders bump theirs to invalidate stale schedules, so a
// mismatch here just drops the event.
func (g *Game) handleEvent(ctx context.Context, ev *structs.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch ev.Kind {
	case structs.EventDecay:
		if err := g.handleDecayEvent(ctx, ev); err != nil {
			log.Printf("decay of %q: %v", ev.Target, err)
		}
	case structs.EventTargetDistance:
		g.handleTargetDistanceEvent(ev)
	case structs.EventFiendish:
		g.handleFiendishEvent(ctx, ev)
	case structs.EventSpawn:
		if err := g.handleSpawnEvent(ctx, ev); err != nil {
			log.Printf("spawn of %q: %v", ev.Target, err)
		}
	default:
		log.Printf("unknown event kind %q", ev.Kind)
	}
}

func (g *Game) monsterByEventTarget(target string) *structs.Monster {
	id, err := strconv.ParseUint(target, 10, 32)
	if err != nil {
		return nil
	}
	c, found := g.creatures.GetHas(uint32(id))
	if !found {
		return nil
	}
	return structs.AsMonster(c)
}

// source loads a script source through the expiring cache.
func (g *Game) source(path string) (string, error) {
	if src, found := g.sources.Get(path); found {
		return src, nil
	}
	b, err := g.storage.LoadSource(path)
	if err != nil {
		return "", ember.WithStack(err)
	}
	g.sources.Set(path, string(b), 0)
	return string(b), nil
}

// InvalidateSource drops a cached script source after an edit.
func (g *Game) InvalidateSource(path string) {
	g.sources.Invalidate(path)
}

// StoreSource writes a script source and drops any cached copy of the
// old one.
func (g *Game) StoreSource(path string, src []byte) error {
	if err := g.storage.StoreSource(path, src); err != nil {
		return ember.WithStack(err)
	}
	g.sources.Invalidate(path)
	return nil
}

func (g *Game) persistItem(item *structs.Item) error {
	return ember.WithStack(g.storage.StoreItem(item.Record()))
}

// releaseEnv ends a script scope. Temporaries no holder claimed are
// destroyed for real before the gate pops the environment: registry entry,
// stored record and live handles all go together, so a scope-ended orphan
// cannot come back on the next load.
func (g *Game) releaseEnv(env *Environment) error {
	var firstErr error
	for _, item := range env.unclaimed() {
		if err := g.RemoveItem(item); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := g.gate.Release(env); err != nil && firstErr == nil {
		firstErr = err
	}
	return ember.WithStack(firstErr)
}

// withEnv reserves a script environment, runs f, and releases the scope on
// every exit path.
func (g *Game) withEnv(f func(env *Environment) error) error {
	env, err := g.gate.Reserve()
	if err != nil {
		return ember.WithStack(err)
	}
	ferr := f(env)
	if err := g.releaseEnv(env); err != nil {
		if ferr == nil {
			ferr = err
		}
	}
	return ember.WithStack(ferr)
}
