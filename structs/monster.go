package structs

import (
	"github.com/embermud/ember"

	bstd "github.com/deneonet/benc/std"
)

// TargetSearch selects the strategy a monster uses to pick its next target
// from the eligible spectators.
type TargetSearch uint8

const (
	TargetSearchDefault TargetSearch = iota
	TargetSearchNearest
	TargetSearchHealthFraction
	TargetSearchDamageDealt
	TargetSearchRandom
)

// ForgeClassification is the creature empowerment class.
type ForgeClassification uint8

const (
	ForgeNormal ForgeClassification = iota
	ForgeInfluenced
	ForgeFiendish
)

// fiendishStackThreshold is the stack count at which an influenced monster
// becomes fiendish and its icon loses the numeric badge.
const fiendishStackThreshold = 15

// CreatureIconKind identifies the icon family shown next to a creature.
type CreatureIconKind uint8

const (
	IconNone CreatureIconKind = iota
	IconInfluenced
	IconFiendish
)

// CreatureIcon is the derived status icon; Badge is the numeric overlay,
// zero meaning none.
type CreatureIcon struct {
	Kind  CreatureIconKind
	Badge uint8
}

// MonsterType is template data produced by the asset loader.
type MonsterType struct {
	Name            string
	Description     string
	Health          int64
	MaxHealth       int64
	BaseSpeed       int32
	TargetDistance  int32
	HiddenHealth    bool
	CanBeForge      bool
	HealthMultiplier float64

	// Scripts are the creature event callbacks registered for every
	// monster of this type.
	Scripts []string
}

// MonsterTypes is the process-wide monster template registry.
type MonsterTypes struct {
	byName *ember.SyncMap[string, *MonsterType]
}

func NewMonsterTypes() *MonsterTypes {
	return &MonsterTypes{byName: ember.NewSyncMap[string, *MonsterType]()}
}

func (t *MonsterTypes) Register(mt *MonsterType) {
	t.byName.Set(mt.Name, mt)
}

func (t *MonsterTypes) Get(name string) (*MonsterType, bool) {
	return t.byName.GetHas(name)
}

// Monster is the monster creature variant: the only one carrying
// relationship lists, hazard modifiers and forge state.
type Monster struct {
	CreatureBase

	typ         *MonsterType
	Description string
	MasterPos   Position
	Idle        bool

	friendOrder []uint32
	friends     map[uint32]Creature
	targets     []Creature
	damageMap   map[uint32]int64

	hazard             bool
	hazardCrit         bool
	hazardDodge        bool
	hazardDamageBoost  bool
	hazardDefenseBoost bool

	forgeClassification  ForgeClassification
	forgeStack           uint16
	icons                map[string]CreatureIcon
	timeToChangeFiendish Timestamp

	targetDistance int32
	// targetDistanceGen invalidates queued reverts of a timed target
	// distance override.
	targetDistanceGen uint64

	registeredEvents map[string]bool
}

func NewMonster(typ *MonsterType, pos Position) *Monster {
	m := &Monster{
		CreatureBase: CreatureBase{
			Id:        NextCreatureID(),
			Name:      typ.Name,
			Pos:       pos,
			Health:    typ.Health,
			MaxHealth: typ.MaxHealth,
		},
		typ:              typ,
		Description:      typ.Description,
		MasterPos:        pos,
		friends:          map[uint32]Creature{},
		damageMap:        map[uint32]int64{},
		icons:            map[string]CreatureIcon{},
		targetDistance:   typ.TargetDistance,
		registeredEvents: map[string]bool{},
	}
	for _, script := range typ.Scripts {
		m.registeredEvents[script] = true
	}
	return m
}

func (m *Monster) Base() *CreatureBase { return &m.CreatureBase }
func (m *Monster) Kind() CreatureKind  { return KindMonster }

func (m *Monster) Type() *MonsterType {
	return m.typ
}

// SetType swaps the monster's template: administrative retyping. The
// previously registered event callbacks are replaced by the new type's,
// and the returned old script list lets the caller unhook them. Timed
// state derived from the old template (target distance override) is
// dropped.
func (m *Monster) SetType(typ *MonsterType, restoreHealth bool) []string {
	oldScripts := make([]string, 0, len(m.registeredEvents))
	for name := range m.registeredEvents {
		oldScripts = append(oldScripts, name)
	}
	m.typ = typ
	m.Name = typ.Name
	m.Description = typ.Description
	if restoreHealth {
		multiplier := typ.HealthMultiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		m.Health = int64(float64(typ.Health) * multiplier)
		m.MaxHealth = int64(float64(typ.MaxHealth) * multiplier)
	}
	m.targetDistance = typ.TargetDistance
	m.targetDistanceGen++
	m.registeredEvents = map[string]bool{}
	for _, script := range typ.Scripts {
		m.registeredEvents[script] = true
	}
	return oldScripts
}

func (m *Monster) HasEvent(name string) bool {
	return m.registeredEvents[name]
}

// Friend list. Insertion is idempotent and a monster is never its own
// friend; membership is O(1).

func (m *Monster) IsFriend(c Creature) bool {
	if c == nil {
		return false
	}
	_, found := m.friends[c.Base().Id]
	return found
}

func (m *Monster) AddFriend(c Creature) {
	if c == nil || c.Base().Id == m.Id {
		return
	}
	id := c.Base().Id
	if _, found := m.friends[id]; found {
		return
	}
	m.friends[id] = c
	m.friendOrder = append(m.friendOrder, id)
}

func (m *Monster) RemoveFriend(c Creature) {
	if c == nil {
		return
	}
	id := c.Base().Id
	if _, found := m.friends[id]; !found {
		return
	}
	delete(m.friends, id)
	for idx, fid := range m.friendOrder {
		if fid == id {
			m.friendOrder = append(m.friendOrder[:idx], m.friendOrder[idx+1:]...)
			break
		}
	}
}

func (m *Monster) FriendList() []Creature {
	result := make([]Creature, 0, len(m.friendOrder))
	for _, id := range m.friendOrder {
		if c, found := m.friends[id]; found {
			result = append(result, c)
		}
	}
	return result
}

func (m *Monster) FriendCount() int {
	return len(m.friends)
}

// Target list. Ordered, deduplicated by creature identity; the front entry
// is the active target.

func (m *Monster) IsTarget(c Creature) bool {
	if c == nil {
		return false
	}
	for _, t := range m.targets {
		if t.Base().Id == c.Base().Id {
			return true
		}
	}
	return false
}

// AddTarget inserts c at the front (new primary target) or back per
// pushFront. Re-adding an existing target never duplicates it, but
// pushFront moves it to the front.
func (m *Monster) AddTarget(c Creature, pushFront bool) {
	if c == nil || c.Base().Id == m.Id {
		return
	}
	id := c.Base().Id
	for idx, t := range m.targets {
		if t.Base().Id == id {
			if pushFront && idx != 0 {
				m.targets = append(m.targets[:idx], m.targets[idx+1:]...)
				m.targets = append([]Creature{c}, m.targets...)
			}
			return
		}
	}
	if pushFront {
		m.targets = append([]Creature{c}, m.targets...)
	} else {
		m.targets = append(m.targets, c)
	}
}

// RemoveTarget drops c if present. If it was the active target the next
// entry becomes active implicitly by being first.
func (m *Monster) RemoveTarget(c Creature) {
	if c == nil {
		return
	}
	id := c.Base().Id
	for idx, t := range m.targets {
		if t.Base().Id == id {
			m.targets = append(m.targets[:idx], m.targets[idx+1:]...)
			return
		}
	}
}

func (m *Monster) TargetList() []Creature {
	result := make([]Creature, len(m.targets))
	copy(result, m.targets)
	return result
}

func (m *Monster) TargetCount() int {
	return len(m.targets)
}

// CurrentTarget returns the front of the target list, nil when empty.
func (m *Monster) CurrentTarget() Creature {
	if len(m.targets) == 0 {
		return nil
	}
	return m.targets[0]
}

// SelectTarget makes c the active target.
func (m *Monster) SelectTarget(c Creature) bool {
	if c == nil || c.Base().Id == m.Id || m.IsFriend(c) {
		return false
	}
	m.AddTarget(c, true)
	return true
}

// IsOpponent reports whether c is something this monster would fight:
// players and other monsters' enemies, never friends, never itself.
func (m *Monster) IsOpponent(c Creature) bool {
	if c == nil || c.Base().Id == m.Id || m.IsFriend(c) {
		return false
	}
	return c.Kind() == KindPlayer
}

// RecordDamage tracks damage received from attacker, feeding the
// damage-dealt target search strategy.
func (m *Monster) RecordDamage(attacker uint32, amount int64) {
	m.damageMap[attacker] += amount
}

func (m *Monster) DamageDealtBy(attacker uint32) int64 {
	return m.damageMap[attacker]
}

// Hazard modifiers: pure flags read by the combat resolver. Setters return
// the new value so a script can set and read in one round trip.

func (m *Monster) Hazard() bool { return m.hazard }
func (m *Monster) SetHazard(v bool) bool {
	m.hazard = v
	return m.hazard
}

func (m *Monster) HazardCrit() bool { return m.hazardCrit }
func (m *Monster) SetHazardCrit(v bool) bool {
	m.hazardCrit = v
	return m.hazardCrit
}

func (m *Monster) HazardDodge() bool { return m.hazardDodge }
func (m *Monster) SetHazardDodge(v bool) bool {
	m.hazardDodge = v
	return m.hazardDodge
}

func (m *Monster) HazardDamageBoost() bool { return m.hazardDamageBoost }
func (m *Monster) SetHazardDamageBoost(v bool) bool {
	m.hazardDamageBoost = v
	return m.hazardDamageBoost
}

func (m *Monster) HazardDefenseBoost() bool { return m.hazardDefenseBoost }
func (m *Monster) SetHazardDefenseBoost(v bool) bool {
	m.hazardDefenseBoost = v
	return m.hazardDefenseBoost
}

// Forge subsystem.

func (m *Monster) ForgeClassification() ForgeClassification {
	return m.forgeClassification
}

func (m *Monster) SetForgeClassification(c ForgeClassification) {
	m.forgeClassification = c
}

func (m *Monster) ForgeStack() uint16 {
	return m.forgeStack
}

func (m *Monster) CanBeForgeMonster() bool {
	return m.typ.CanBeForge
}

// SetForgeStack sets the stack counter and derives the status icon:
// below the fiendish threshold the icon is Influenced with the stack as
// badge, at or above it Fiendish with no badge. The caller must propagate
// the returned icon to spectators.
func (m *Monster) SetForgeStack(stack uint16) CreatureIcon {
	m.forgeStack = stack
	icon := CreatureIcon{Kind: IconInfluenced, Badge: uint8(stack)}
	if stack >= fiendishStackThreshold {
		icon = CreatureIcon{Kind: IconFiendish}
	}
	m.SetIcon("forge", icon)
	return icon
}

func (m *Monster) SetIcon(key string, icon CreatureIcon) {
	m.icons[key] = icon
}

func (m *Monster) RemoveIcon(key string) {
	delete(m.icons, key)
}

// StatusIcon returns the forge-derived icon, IconNone when unset.
func (m *Monster) StatusIcon() CreatureIcon {
	return m.icons["forge"]
}

// ConfigureForgeSystem derives classification and icon from the current
// stack: an explicit lifecycle transition when a monster enters the forge
// rotation.
func (m *Monster) ConfigureForgeSystem() {
	switch {
	case m.forgeStack >= fiendishStackThreshold:
		m.forgeClassification = ForgeFiendish
	case m.forgeStack > 0:
		m.forgeClassification = ForgeInfluenced
	default:
		m.forgeClassification = ForgeNormal
	}
	m.SetForgeStack(m.forgeStack)
}

// ClearFiendishStatus resets the forge state entirely.
func (m *Monster) ClearFiendishStatus() {
	m.forgeStack = 0
	m.forgeClassification = ForgeNormal
	m.timeToChangeFiendish = 0
	m.RemoveIcon("forge")
}

func (m *Monster) TimeToChangeFiendish() Timestamp {
	return m.timeToChangeFiendish
}

func (m *Monster) SetTimeToChangeFiendish(at Timestamp) {
	m.timeToChangeFiendish = at
}

// Target distance.

func (m *Monster) TargetDistance() int32 {
	return m.targetDistance
}

// OverrideTargetDistance applies a timed engagement-distance override and
// returns the generation a scheduled revert must present.
func (m *Monster) OverrideTargetDistance(distance int32) uint64 {
	m.targetDistance = distance
	m.targetDistanceGen++
	return m.targetDistanceGen
}

// RevertTargetDistance restores the template default if gen still
// identifies the active override.
func (m *Monster) RevertTargetDistance(gen uint64) bool {
	if gen != m.targetDistanceGen {
		return false
	}
	m.targetDistance = m.typ.TargetDistance
	return true
}

// SpawnRecord describes a (re)established monster spawn point, consumed by
// the spawn scheduler.
type SpawnRecord struct {
	TypeName   string
	Pos        Position
	IntervalMS uint32
}

func (r *SpawnRecord) Size() int {
	return bstd.SizeString(r.TypeName) +
		bstd.SizeUint16() + bstd.SizeUint16() + bstd.SizeByte() +
		bstd.SizeUint32()
}

func (r *SpawnRecord) Marshal(b []byte) {
	n := bstd.MarshalString(0, b, r.TypeName)
	n = bstd.MarshalUint16(n, b, r.Pos.X)
	n = bstd.MarshalUint16(n, b, r.Pos.Y)
	n = bstd.MarshalByte(n, b, r.Pos.Z)
	bstd.MarshalUint32(n, b, r.IntervalMS)
}

func (r *SpawnRecord) Unmarshal(b []byte) error {
	var err error
	n := 0
	if n, r.TypeName, err = bstd.UnmarshalString(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, r.Pos.X, err = bstd.UnmarshalUint16(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, r.Pos.Y, err = bstd.UnmarshalUint16(n, b); err != nil {
		return ember.WithStack(err)
	}
	if n, r.Pos.Z, err = bstd.UnmarshalByte(n, b); err != nil {
		return ember.WithStack(err)
	}
	if _, r.IntervalMS, err = bstd.UnmarshalUint32(n, b); err != nil {
		return ember.WithStack(err)
	}
	return nil
}
