package game

import (
	"github.com/embermud/ember"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// ErrScriptStackOverflow is returned when script invocations nest deeper
// than the configured limit. Callers log and skip the callback; the world
// keeps running.
var ErrScriptStackOverflow = errors.New("script call stack overflow")

// Gate bounds reentrant script invocation. Every script callback reserves
// an environment on entry and releases it on return; a callback that
// triggers another callback reserves a second, nested one. Reservation
// fails once the nesting depth hits the limit, which breaks mutual
// recursion between scripted events.
type Gate struct {
	maxDepth int
	stack    []*Environment
}

func NewGate(maxDepth int) *Gate {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Gate{maxDepth: maxDepth}
}

func (g *Gate) Depth() int {
	return len(g.stack)
}

// Reserve pushes a fresh environment, or fails with ErrScriptStackOverflow
// at the depth limit.
func (g *Gate) Reserve() (*Environment, error) {
	if len(g.stack) >= g.maxDepth {
		return nil, ember.WithStack(ErrScriptStackOverflow)
	}
	env := newEnvironment()
	g.stack = append(g.stack, env)
	return env, nil
}

// Release pops env, which must be the innermost reservation. Temporaries
// nobody claimed are disposed of here.
func (g *Gate) Release(env *Environment) error {
	if len(g.stack) == 0 || g.stack[len(g.stack)-1] != env {
		return ember.WithStack(errors.New("released environment is not the innermost reservation"))
	}
	g.stack = g.stack[:len(g.stack)-1]
	env.dispose()
	return nil
}

// With reserves an environment, runs f, and releases it even when f
// fails.
func (g *Gate) With(f func(env *Environment) error) error {
	env, err := g.Reserve()
	if err != nil {
		return ember.WithStack(err)
	}
	defer g.Release(env)
	return f(env)
}

// ForgetItem drops every handle to item across all live environments.
// Called when an item is destroyed outside any rebinding operation.
func (g *Gate) ForgetItem(item *structs.Item) {
	for _, env := range g.stack {
		env.forget(item)
	}
}

// RebindItem redirects handles from old to new across all live
// environments. Used when an operation replaces an item instance but the
// surviving scripts should keep addressing it.
func (g *Gate) RebindItem(old, new *structs.Item) {
	for _, env := range g.stack {
		env.rebind(old, new)
	}
}

// Environment is one script scope's view of the world: a table of
// scope-local item handles plus the temporaries the scope created.
// Scripts never hold item references, only handles, because operations
// like splitting and transforming replace the instance behind a handle.
type Environment struct {
	nextHandle uint32
	byHandle   map[uint32]*structs.Item
	handles    map[*structs.Item]uint32
	temps      []*structs.Item
}

// Transient handles start above the range map-assigned unique ids live
// in, so the two never collide within a scope.
const firstTransientHandle = 0x10000

func newEnvironment() *Environment {
	return &Environment{
		nextHandle: firstTransientHandle,
		byHandle:   map[uint32]*structs.Item{},
		handles:    map[*structs.Item]uint32{},
	}
}

// AddItem returns the scope-local handle for item, allocating one on
// first sight. Items carrying a unique id are addressable under it;
// everything else gets a transient handle. Handle 0 is never issued.
func (e *Environment) AddItem(item *structs.Item) uint32 {
	if item == nil {
		return 0
	}
	if h, found := e.handles[item]; found {
		return h
	}
	h := item.UniqueID()
	if h == 0 {
		e.nextHandle++
		h = e.nextHandle
	}
	e.byHandle[h] = item
	e.handles[item] = h
	return h
}

// Item resolves a handle; nil for unknown or retired handles.
func (e *Environment) Item(handle uint32) *structs.Item {
	return e.byHandle[handle]
}

// AddTemporary registers a detached item the scope created: a clone or a
// split-off stack. If no durable holder claims it before the scope ends,
// it is disposed of.
func (e *Environment) AddTemporary(item *structs.Item) uint32 {
	h := e.AddItem(item)
	e.temps = append(e.temps, item)
	return h
}

// unclaimed returns the temporaries no durable holder took ownership of.
func (e *Environment) unclaimed() []*structs.Item {
	result := []*structs.Item{}
	for _, item := range e.temps {
		if !item.IsRemoved() && item.Parent() == structs.Virtual {
			result = append(result, item)
		}
	}
	return result
}

func (e *Environment) forget(item *structs.Item) {
	if h, found := e.handles[item]; found {
		delete(e.byHandle, h)
		delete(e.handles, item)
	}
}

func (e *Environment) rebind(old, new *structs.Item) {
	h, found := e.handles[old]
	if !found {
		return
	}
	delete(e.handles, old)
	e.byHandle[h] = new
	e.handles[new] = h
}

func (e *Environment) dispose() {
	for _, item := range e.unclaimed() {
		item.MarkRemoved()
	}
	e.temps = nil
	e.byHandle = nil
	e.handles = nil
}
