package structs

// CreatureKind tags the runtime variant of a creature. Dispatch happens on
// the tag, not through an inheritance chain.
type CreatureKind uint8

const (
	KindNpc CreatureKind = iota
	KindMonster
	KindPlayer
)

// CreatureBase carries the state every creature variant shares.
type CreatureBase struct {
	Id        uint32
	Name      string
	Pos       Position
	Health    int64
	MaxHealth int64
}

// Creature is the variant interface over Npc, Monster and Player.
type Creature interface {
	Base() *CreatureBase
	Kind() CreatureKind
}

// ClassName returns the script-facing class tag of a creature, used to
// select the matching metatable-equivalent when pushing it into a script.
func ClassName(c Creature) string {
	if c == nil {
		return ""
	}
	switch c.Kind() {
	case KindNpc:
		return "Npc"
	case KindMonster:
		return "Monster"
	case KindPlayer:
		return "Player"
	}
	return ""
}

// AsMonster returns the monster variant or nil.
func AsMonster(c Creature) *Monster {
	m, _ := c.(*Monster)
	return m
}

// AsNpc returns the npc variant or nil.
func AsNpc(c Creature) *Npc {
	n, _ := c.(*Npc)
	return n
}

// AsPlayer returns the player variant or nil.
func AsPlayer(c Creature) *Player {
	p, _ := c.(*Player)
	return p
}

func IsDead(c Creature) bool {
	return c.Base().Health <= 0
}

// HealthFraction is the creature's health as a fraction of its maximum,
// used by the health-based target search strategy.
func HealthFraction(c Creature) float64 {
	b := c.Base()
	if b.MaxHealth <= 0 {
		return 0
	}
	return float64(b.Health) / float64(b.MaxHealth)
}

type Npc struct {
	CreatureBase
}

func NewNpc(name string, pos Position) *Npc {
	return &Npc{CreatureBase{Id: NextCreatureID(), Name: name, Pos: pos, Health: 100, MaxHealth: 100}}
}

func (n *Npc) Base() *CreatureBase { return &n.CreatureBase }
func (n *Npc) Kind() CreatureKind  { return KindNpc }

type Player struct {
	CreatureBase
}

func NewPlayer(name string, pos Position) *Player {
	return &Player{CreatureBase{Id: NextCreatureID(), Name: name, Pos: pos, Health: 100, MaxHealth: 100}}
}

func (p *Player) Base() *CreatureBase { return &p.CreatureBase }
func (p *Player) Kind() CreatureKind  { return KindPlayer }
