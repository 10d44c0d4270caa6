package storage

import (
	"context"
	"path/filepath"

	"github.com/embermud/ember"
	"github.com/embermud/ember/storage/dbm"
	"github.com/embermud/ember/storage/queue"
	"github.com/embermud/ember/structs"
)

// Storage owns the on-disk state of the world core: item records, spawn
// records, script sources and the scheduled-event tree feeding the timer
// queue.
type Storage struct {
	items   *dbm.TypeHash[structs.ItemRecord, *structs.ItemRecord]
	spawns  *dbm.TypeHash[structs.SpawnRecord, *structs.SpawnRecord]
	sources *dbm.Hash
	events  *dbm.TypeTree[structs.Event, *structs.Event]
	queue   *queue.Queue
}

func New(_ context.Context, dir string) (*Storage, error) {
	items, err := dbm.OpenTypeHash[structs.ItemRecord](filepath.Join(dir, "items"))
	if err != nil {
		return nil, ember.WithStack(err)
	}
	spawns, err := dbm.OpenTypeHash[structs.SpawnRecord](filepath.Join(dir, "spawns"))
	if err != nil {
		return nil, ember.WithStack(err)
	}
	sources, err := dbm.OpenHash(filepath.Join(dir, "sources"))
	if err != nil {
		return nil, ember.WithStack(err)
	}
	events, err := dbm.OpenTypeTree[structs.Event](filepath.Join(dir, "events"))
	if err != nil {
		return nil, ember.WithStack(err)
	}
	return &Storage{
		items:   items,
		spawns:  spawns,
		sources: sources,
		events:  events,
		queue:   queue.New(events),
	}, nil
}

func (s *Storage) Queue() *queue.Queue {
	return s.queue
}

func (s *Storage) LoadItem(serial string) (*structs.ItemRecord, error) {
	return s.items.Get(serial)
}

func (s *Storage) StoreItem(rec *structs.ItemRecord) error {
	return ember.WithStack(s.items.Set(rec.Serial, rec, true))
}

func (s *Storage) RemoveItem(serial string) error {
	return ember.WithStack(s.items.Del(serial))
}

func (s *Storage) EachItem(f func(rec *structs.ItemRecord) error) error {
	return s.items.EachType(func(_ string, rec *structs.ItemRecord) error {
		return f(rec)
	})
}

// ProcItems applies fns atomically across their item records: either all
// updates land or none do. Used when one script operation rewrites several
// items at once, like a stack merge.
func (s *Storage) ProcItems(fns map[string]func(*structs.ItemRecord) (*structs.ItemRecord, error)) error {
	pairs := make([]dbm.Proc, 0, len(fns))
	for serial, fn := range fns {
		fn := fn
		pairs = append(pairs, s.items.SProc(serial, func(_ string, rec *structs.ItemRecord) (*structs.ItemRecord, error) {
			return fn(rec)
		}))
	}
	return ember.WithStack(s.items.Proc(pairs, true))
}

func (s *Storage) StoreSpawn(key string, rec *structs.SpawnRecord) error {
	return ember.WithStack(s.spawns.Set(key, rec, true))
}

func (s *Storage) EachSpawn(f func(key string, rec *structs.SpawnRecord) error) error {
	return s.spawns.EachType(f)
}

func (s *Storage) LoadSource(path string) ([]byte, error) {
	return s.sources.Get(path)
}

func (s *Storage) StoreSource(path string, src []byte) error {
	return ember.WithStack(s.sources.Set(path, src, true))
}

func (s *Storage) Close() error {
	if err := s.queue.Close(); err != nil {
		return ember.WithStack(err)
	}
	for _, h := range []interface{ Close() error }{s.items, s.spawns, s.sources, s.events} {
		if err := h.Close(); err != nil {
			return ember.WithStack(err)
		}
	}
	return nil
}
