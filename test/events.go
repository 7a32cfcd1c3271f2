package test

import (
	"github.com/outofforest/reuse/types"
)

// StackPointer is the stack pointer used by scope events when the test doesn't care about the stack depth.
const StackPointer = 0x7fff_0000

// Load returns memory read event.
func Load(image uint16, inst uint32, address uint64) types.Event {
	return types.Event{
		Type:    types.EventMemLoad,
		Image:   image,
		ID:      inst,
		Address: address,
	}
}

// Store returns memory write event.
func Store(image uint16, inst uint32, address uint64) types.Event {
	return types.Event{
		Type:    types.EventMemStore,
		Image:   image,
		ID:      inst,
		Address: address,
	}
}

// LoadInScope returns memory read event attributing the access to the scope.
func LoadInScope(image uint16, inst uint32, address uint64, scope uint32) types.Event {
	e := Load(image, inst, address)
	e.SourceScope = scope
	return e
}

// Enter returns loop entry event.
func Enter(image uint16, scope uint32) types.Event {
	return scopeEvent(types.EventEnterScope, image, scope)
}

// Routine returns routine entry event executed at the stack pointer.
func Routine(image uint16, scope uint32, sp uint64) types.Event {
	e := scopeEvent(types.EventRoutineEntry, image, scope)
	e.Address = sp
	return e
}

// Iter returns iteration change event.
func Iter(image uint16, scope uint32) types.Event {
	return scopeEvent(types.EventIterChange, image, scope)
}

// Exit returns scope exit event.
func Exit(image uint16, scope uint32) types.Event {
	return scopeEvent(types.EventExitScope, image, scope)
}

// AfterCall returns the event of returning to the call site.
func AfterCall(image uint16, scope uint32) types.Event {
	return scopeEvent(types.EventAfterCall, image, scope)
}

// Bypass returns call bypass event taken over the edge.
func Bypass(image uint16, scope uint32, edge types.EdgeKind) types.Event {
	e := scopeEvent(types.EventBrBypassCall, image, scope)
	e.Edge = edge
	return e
}

// At returns copy of the event executed at the stack pointer.
func At(e types.Event, sp uint64) types.Event {
	e.Address = sp
	return e
}

func scopeEvent(eventType types.EventType, image uint16, scope uint32) types.Event {
	return types.Event{
		Type:    eventType,
		Image:   image,
		ID:      scope,
		Address: StackPointer,
	}
}
