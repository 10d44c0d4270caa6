package game

import (
	"time"

	"github.com/embermud/ember/js"
	"github.com/embermud/ember/structs"
	"rogchap.com/v8go"
)

// Script bindings. Every host function a creature script can call is a
// closure over the invocation's environment: items are passed as
// scope-local handles, never as raw references, so the host side can
// rebind or retire them mid-scope.

func value(rc *js.RunContext, v any) *v8go.Value {
	res, err := v8go.NewValue(rc.Context().Isolate(), v)
	if err != nil {
		return rc.Throw("cannot convert %v: %v", v, err)
	}
	return res
}

func (g *Game) bindings(env *Environment, self structs.Creature) js.Callbacks {
	cb := js.Callbacks{}
	g.itemBindings(cb, env)
	if m := structs.AsMonster(self); m != nil {
		g.monsterBindings(cb, m)
	}
	cb["selfId"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		return value(rc, self.Base().Id)
	}
	cb["selfName"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		return value(rc, self.Base().Name)
	}
	return cb
}

func (e *Environment) resolve(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *structs.Item {
	args := info.Args()
	if len(args) < 1 {
		rc.Throw("missing item handle")
		return nil
	}
	item := e.Item(args[0].Uint32())
	if item == nil || item.IsRemoved() {
		rc.Throw("item handle %d is not bound", args[0].Uint32())
		return nil
	}
	return item
}

func (g *Game) itemBindings(cb js.Callbacks, env *Environment) {
	cb["getAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("getAttribute takes [handle, key] arguments")
		}
		v, found := g.GetAttribute(item, args[1].String())
		if !found {
			return v8go.Null(rc.Context().Isolate())
		}
		return value(rc, v)
	}
	cb["setAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 3 {
			return rc.Throw("setAttribute takes [handle, key, value] arguments")
		}
		var v any
		if args[2].IsNumber() {
			v = args[2].Integer()
		} else {
			v = args[2].String()
		}
		if err := g.SetAttribute(item, args[1].String(), v); err != nil {
			return rc.Throw("setAttribute %q: %v", args[1].String(), err)
		}
		return nil
	}
	cb["removeAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("removeAttribute takes [handle, key] arguments")
		}
		if err := g.RemoveAttribute(item, args[1].String()); err != nil {
			return rc.Throw("removeAttribute %q: %v", args[1].String(), err)
		}
		return nil
	}
	cb["getCustomAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("getCustomAttribute takes [handle, key] arguments")
		}
		v, found := g.GetCustomAttribute(item, args[1].String())
		if !found {
			return v8go.Null(rc.Context().Isolate())
		}
		return value(rc, v.Native())
	}
	cb["setCustomAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 3 {
			return rc.Throw("setCustomAttribute takes [handle, key, value] arguments")
		}
		var v structs.CustomValue
		switch {
		case args[2].IsNumber():
			v = structs.CustomNumber(args[2].Number())
		case args[2].IsBoolean():
			v = structs.CustomBoolean(args[2].Boolean())
		case args[2].IsString():
			v = structs.CustomStr(args[2].String())
		default:
			return rc.Throw("unsupported custom attribute value")
		}
		if err := g.SetCustomAttribute(item, args[1].String(), v); err != nil {
			return rc.Throw("setCustomAttribute %q: %v", args[1].String(), err)
		}
		return nil
	}
	cb["removeCustomAttribute"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("removeCustomAttribute takes [handle, key] arguments")
		}
		found, err := g.RemoveCustomAttribute(item, args[1].String())
		if err != nil {
			return rc.Throw("removeCustomAttribute %q: %v", args[1].String(), err)
		}
		return value(rc, found)
	}
	cb["transform"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 3 {
			return rc.Throw("transform takes [handle, typeId, count] arguments")
		}
		replacement, err := g.Transform(item, uint16(args[1].Uint32()), uint16(args[2].Uint32()))
		if err != nil {
			return rc.Throw("transform: %v", err)
		}
		// After rebinding the original handle addresses the replacement.
		return value(rc, env.AddItem(replacement))
	}
	cb["split"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("split takes [handle, count] arguments")
		}
		piece, err := g.Split(env, item, uint16(args[1].Uint32()))
		if err != nil {
			return rc.Throw("split: %v", err)
		}
		return value(rc, env.AddItem(piece))
	}
	cb["clone"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		clone, err := g.CloneItem(env, item)
		if err != nil {
			return rc.Throw("clone: %v", err)
		}
		return value(rc, env.AddItem(clone))
	}
	cb["removeItem"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		if err := g.RemoveItem(item); err != nil {
			return rc.Throw("removeItem: %v", err)
		}
		return nil
	}
	cb["duration"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		return value(rc, item.Duration(g.storage.Queue().Now()))
	}
	cb["setDuration"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("setDuration takes [handle, milliseconds] arguments")
		}
		if err := g.SetDuration(item, args[1].Integer()); err != nil {
			return rc.Throw("setDuration: %v", err)
		}
		return nil
	}
	cb["startDecay"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		g.StartDecay(item)
		return nil
	}
	cb["stopDecay"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		item := env.resolve(rc, info)
		if item == nil {
			return nil
		}
		if err := g.StopDecay(item); err != nil {
			return rc.Throw("stopDecay: %v", err)
		}
		return nil
	}
}

func (g *Game) monsterBindings(cb js.Callbacks, m *structs.Monster) {
	cb["searchTarget"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		search := structs.TargetSearchDefault
		if args := info.Args(); len(args) >= 1 {
			search = structs.TargetSearch(args[0].Uint32())
		}
		return value(rc, g.SearchTarget(m, search))
	}
	cb["changeTargetDistance"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) < 1 || len(args) > 2 {
			return rc.Throw("changeTargetDistance takes [distance, intervalMs?] arguments")
		}
		interval := time.Duration(0)
		if len(args) == 2 {
			interval = time.Duration(args[1].Integer()) * time.Millisecond
		}
		if err := g.ChangeTargetDistance(m, args[0].Int32(), interval); err != nil {
			return rc.Throw("changeTargetDistance: %v", err)
		}
		return nil
	}
	cb["setForgeStack"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) != 1 {
			return rc.Throw("setForgeStack takes [stack] arguments")
		}
		g.SetForgeStack(m, uint16(args[0].Uint32()))
		return nil
	}
	cb["clearFiendish"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		g.ClearFiendishStatus(m)
		return nil
	}
	cb["setHazard"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) != 2 {
			return rc.Throw("setHazard takes [flag, value] arguments")
		}
		v := args[1].Boolean()
		switch args[0].String() {
		case "hazard":
			v = m.SetHazard(v)
		case "crit":
			v = m.SetHazardCrit(v)
		case "dodge":
			v = m.SetHazardDodge(v)
		case "damageBoost":
			v = m.SetHazardDamageBoost(v)
		case "defenseBoost":
			v = m.SetHazardDefenseBoost(v)
		default:
			return rc.Throw("unknown hazard flag %q", args[0].String())
		}
		return value(rc, v)
	}
	cb["addFriend"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) != 1 {
			return rc.Throw("addFriend takes [creatureId] arguments")
		}
		c, found := g.Creature(args[0].Uint32())
		if !found {
			return v8go.Null(rc.Context().Isolate())
		}
		m.AddFriend(c)
		return nil
	}
	cb["addTarget"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) < 1 || len(args) > 2 {
			return rc.Throw("addTarget takes [creatureId, pushFront?] arguments")
		}
		c, found := g.Creature(args[0].Uint32())
		if !found {
			return v8go.Null(rc.Context().Isolate())
		}
		pushFront := len(args) == 2 && args[1].Boolean()
		m.AddTarget(c, pushFront)
		return nil
	}
	cb["removeTarget"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) != 1 {
			return rc.Throw("removeTarget takes [creatureId] arguments")
		}
		if c, found := g.Creature(args[0].Uint32()); found {
			m.RemoveTarget(c)
		}
		return nil
	}
	cb["setType"] = func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) < 1 || len(args) > 2 {
			return rc.Throw("setType takes [typeName, restoreHealth?] arguments")
		}
		restore := len(args) == 2 && args[1].Boolean()
		if err := g.SetMonsterType(m, args[0].String(), restore); err != nil {
			return rc.Throw("setType: %v", err)
		}
		return nil
	}
}
