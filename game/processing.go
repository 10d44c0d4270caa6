package game

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/js"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

func scriptPath(c structs.Creature) string {
	m := structs.AsMonster(c)
	if m != nil {
		return fmt.Sprintf("/monsters/%s.js", m.Type().Name)
	}
	return fmt.Sprintf("/%ss/%s.js", structs.ClassName(c), c.Base().Name)
}

// RunCreatureEvent invokes the creature's script handler for eventName.
// Monsters only run events their type registered. A script environment
// is reserved for the whole invocation; hitting the nesting limit is
// logged and swallowed, because one runaway script chain must not take
// the event loop down with it.
func (g *Game) RunCreatureEvent(ctx context.Context, c structs.Creature, eventName string, message string) error {
	if m := structs.AsMonster(c); m != nil && !m.HasEvent(eventName) {
		return nil
	}

	path := scriptPath(c)
	source, err := g.source(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return ember.WithStack(err)
	}

	env, err := g.gate.Reserve()
	if errors.Is(err, ErrScriptStackOverflow) {
		log.Printf("[%v] %v script calls nested too deep, skipping %q", structs.ClassName(c), c.Base().Name, eventName)
		g.stats.CountOverflow()
		return nil
	} else if err != nil {
		return ember.WithStack(err)
	}
	defer func() {
		if err := g.releaseEnv(env); err != nil {
			log.Printf("releasing script scope of %v %v: %v", structs.ClassName(c), c.Base().Name, err)
		}
	}()

	target := js.Target{
		Source:    source,
		Origin:    path,
		Callbacks: g.bindings(env, c),
		Console:   os.Stderr,
	}
	timeout := g.cfg.ScriptTimeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}

	start := time.Now()
	_, err = target.Call(ctx, eventName, message, timeout)
	g.stats.CountScriptRun(path, time.Since(start), err != nil)
	return ember.WithStack(err)
}
