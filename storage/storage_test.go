package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/embermud/ember/structs"
	"github.com/google/go-cmp/cmp"
)

func withStorage(t testing.TB, f func(*Storage)) {
	t.Helper()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	s, err := New(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	f(s)
}

func TestItemRecords(t *testing.T) {
	withStorage(t, func(s *Storage) {
		want := &structs.ItemRecord{
			Serial: faker.UUIDDigit(),
			TypeID: 2400,
			Count:  1,
			Attrs:  []byte(faker.Word()),
		}
		if err := s.StoreItem(want); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadItem(want.Serial)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip (-want +got):\n%v", diff)
		}
		if err := s.RemoveItem(want.Serial); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LoadItem(want.Serial); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want ErrNotExist", err)
		}
	})
}

func TestEachItem(t *testing.T) {
	withStorage(t, func(s *Storage) {
		want := map[string]bool{}
		for i := 0; i < 5; i++ {
			rec := &structs.ItemRecord{Serial: faker.UUIDDigit(), TypeID: uint16(i)}
			want[rec.Serial] = true
			if err := s.StoreItem(rec); err != nil {
				t.Fatal(err)
			}
		}
		got := map[string]bool{}
		if err := s.EachItem(func(rec *structs.ItemRecord) error {
			got[rec.Serial] = true
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("stored serials (-want +got):\n%v", diff)
		}
	})
}

func TestProcItems(t *testing.T) {
	withStorage(t, func(s *Storage) {
		a := &structs.ItemRecord{Serial: "a", Count: 30}
		b := &structs.ItemRecord{Serial: "b", Count: 80}
		for _, rec := range []*structs.ItemRecord{a, b} {
			if err := s.StoreItem(rec); err != nil {
				t.Fatal(err)
			}
		}
		// Merge a into b: the donor is deleted, the receiver grows.
		if err := s.ProcItems(map[string]func(*structs.ItemRecord) (*structs.ItemRecord, error){
			"a": func(rec *structs.ItemRecord) (*structs.ItemRecord, error) {
				return nil, nil
			},
			"b": func(rec *structs.ItemRecord) (*structs.ItemRecord, error) {
				rec.Count = 100
				return rec, nil
			},
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LoadItem("a"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want donor deleted", err)
		}
		got, err := s.LoadItem("b")
		if err != nil {
			t.Fatal(err)
		}
		if got.Count != 100 {
			t.Errorf("got %v, want 100", got.Count)
		}
	})
}

func TestSpawnRecords(t *testing.T) {
	withStorage(t, func(s *Storage) {
		want := &structs.SpawnRecord{
			TypeName:   faker.Name(),
			Pos:        structs.Position{X: 100, Y: 200, Z: 7},
			IntervalMS: 60_000,
		}
		if err := s.StoreSpawn("spawn-1", want); err != nil {
			t.Fatal(err)
		}
		seen := 0
		if err := s.EachSpawn(func(key string, got *structs.SpawnRecord) error {
			seen++
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("spawn record (-want +got):\n%v", diff)
			}
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if seen != 1 {
			t.Errorf("got %v spawns, want 1", seen)
		}
	})
}

func TestSources(t *testing.T) {
	withStorage(t, func(s *Storage) {
		src := []byte("onThink((monster) => {});")
		if err := s.StoreSource("/monsters/rat.js", src); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadSource("/monsters/rat.js")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(src, got); diff != "" {
			t.Errorf("source (-want +got):\n%v", diff)
		}
	})
}
