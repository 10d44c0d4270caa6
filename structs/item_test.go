package structs

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testItemType(id uint16, name string) *ItemType {
	return &ItemType{ID: id, Name: name, Article: "a"}
}

func TestItemRecordRoundTrip(t *testing.T) {
	typ := testItemType(2400, "magic sword")
	types := NewItemTypes()
	types.Register(typ)

	item, err := NewItem(typ, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := item.Attrs.SetInt(AttrActionID, 100); err != nil {
		t.Fatal(err)
	}
	if err := item.Attrs.SetString(AttrDescription, "it hums faintly"); err != nil {
		t.Fatal(err)
	}
	item.Attrs.SetCustom("wielder", CustomStr("Bubble"))

	rec := item.Record()
	b := make([]byte, rec.Size())
	rec.Marshal(b)
	restored := &ItemRecord{}
	if err := restored.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rec, restored); diff != "" {
		t.Errorf("record round trip (-want +got):\n%v", diff)
	}

	live, err := restored.Materialize(types)
	if err != nil {
		t.Fatal(err)
	}
	if live.Serial != item.Serial || live.ID() != 2400 {
		t.Errorf("got %v/%v, want same identity", live.Serial, live.ID())
	}
	if got := live.Attrs.Int(AttrActionID); got != 100 {
		t.Errorf("got %v, want 100", got)
	}
}

func TestMaterializeUnknownType(t *testing.T) {
	rec := &ItemRecord{Serial: "x", TypeID: 9999}
	if _, err := rec.Materialize(NewItemTypes()); err == nil {
		t.Errorf("expected error for unknown type")
	}
}

func TestCloneDropsUniqueID(t *testing.T) {
	item, err := NewItem(testItemType(100, "key"), 1)
	if err != nil {
		t.Fatal(err)
	}
	item.AssignUniqueID(5000)
	if err := item.Attrs.SetInt(AttrActionID, 7); err != nil {
		t.Fatal(err)
	}

	clone, err := item.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if clone.Serial == item.Serial {
		t.Errorf("expected fresh serial")
	}
	if clone.Attrs.Has(AttrUniqueID) {
		t.Errorf("unique id must not be copied")
	}
	if got := clone.Attrs.Int(AttrActionID); got != 7 {
		t.Errorf("got %v, want copied action id 7", got)
	}
	if clone.Parent() != Virtual {
		t.Errorf("clone must start detached")
	}
}

func TestDuration(t *testing.T) {
	typ := testItemType(200, "torch")
	typ.DecayTime = 60_000
	item, err := NewItem(typ, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Idle: configured duration from the template.
	if got := item.Duration(Stamp(time.Now())); got != 60_000 {
		t.Errorf("got %v, want 60000", got)
	}

	// Overridden: the duration attribute wins.
	if err := item.Attrs.SetInt(AttrDuration, 30_000); err != nil {
		t.Fatal(err)
	}
	if got := item.Duration(Stamp(time.Now())); got != 30_000 {
		t.Errorf("got %v, want 30000", got)
	}

	// In progress: countdown against the stored expiry.
	now := Stamp(time.Now())
	item.SetDecayState(DecayInProgress)
	item.SetDurationTimestamp(now + Timestamp(10*time.Second))
	if got := item.Duration(now); got != 10_000 {
		t.Errorf("got %v, want 10000", got)
	}
	if got := item.Duration(now + Timestamp(20*time.Second)); got != 0 {
		t.Errorf("got %v, want 0 when past expiry", got)
	}
}

func TestTileFlags(t *testing.T) {
	typ := testItemType(300, "wall")
	typ.BlockSolid = true
	typ.BlockProjectile = true
	item, err := NewItem(typ, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := item.TileFlags(); got != TileBlockSolid|TileBlockProjectile {
		t.Errorf("got %b, want solid|projectile", got)
	}
	if err := item.Attrs.SetInt(AttrActionID, 1); err != nil {
		t.Fatal(err)
	}
	item.AssignUniqueID(77)
	want := TileBlockSolid | TileBlockProjectile | TileHasActionID | TileHasUniqueID
	if got := item.TileFlags(); got != want {
		t.Errorf("got %b, want %b", got, want)
	}
}

func TestStackableCountClamp(t *testing.T) {
	typ := testItemType(400, "gold coin")
	typ.Stackable = true
	typ.StackSize = 100
	item, err := NewItem(typ, 250)
	if err != nil {
		t.Fatal(err)
	}
	if got := item.Count(); got != 100 {
		t.Errorf("got %v, want clamped to 100", got)
	}
	zero, err := NewItem(typ, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := zero.Count(); got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestDescription(t *testing.T) {
	typ := testItemType(500, "apple")
	typ.Article = "an"
	typ.Stackable = true
	typ.StackSize = 100
	item, err := NewItem(typ, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := item.Description(); got != "3 apples" {
		t.Errorf("got %q, want %q", got, "3 apples")
	}
	item.SetCount(1)
	if got := item.Description(); got != "an apple" {
		t.Errorf("got %q, want %q", got, "an apple")
	}
}

func TestContainerCapacity(t *testing.T) {
	c := &Container{Pos: Position{X: 1, Y: 2, Z: 7}, Capacity: 1}
	first, err := NewItem(testItemType(600, "rope"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.AddItem(first); err != nil {
		t.Fatal(err)
	}
	if first.Position() != c.Pos {
		t.Errorf("got %v, want holder position", first.Position())
	}
	second, err := NewItem(testItemType(601, "shovel"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.AddItem(second); err == nil {
		t.Errorf("expected full container to reject")
	}
	c.RemoveItem(first)
	if first.Parent() != Virtual {
		t.Errorf("expected removed item to detach")
	}
}
