package types

// EventType enumerates the kinds of events delivered by the instrumentation.
type EventType uint8

const (
	// EventInvalid is never produced by a well-behaved producer.
	EventInvalid EventType = iota

	// EventMemLoad is a memory read.
	EventMemLoad

	// EventMemStore is a memory write.
	EventMemStore

	// EventEnterScope is an entry into a loop.
	EventEnterScope

	// EventRoutineEntry is an entry into a routine.
	EventRoutineEntry

	// EventIterChange marks the start of a new loop iteration.
	EventIterChange

	// EventExitScope is an exit from a loop or routine; the ID is the outermost exited scope.
	EventExitScope

	// EventAfterCall is reported when control returns to the instruction following a call.
	EventAfterCall

	// EventBrBypassCall is a taken branch to the instruction following a call.
	EventBrBypassCall

	// NumOfEventTypes is the number of event types including EventInvalid.
	NumOfEventTypes
)

var eventNames = [NumOfEventTypes]string{
	EventInvalid:      "invalid",
	EventMemLoad:      "load",
	EventMemStore:     "store",
	EventEnterScope:   "enterScope",
	EventRoutineEntry: "routineEntry",
	EventIterChange:   "iterChange",
	EventExitScope:    "exitScope",
	EventAfterCall:    "afterCall",
	EventBrBypassCall: "bypassCall",
}

// String returns the name of the event type.
func (et EventType) String() string {
	if et >= NumOfEventTypes {
		return "bad"
	}
	return eventNames[et]
}

// IsMemory tells if event is a memory access.
func (et EventType) IsMemory() bool {
	return et == EventMemLoad || et == EventMemStore
}

// EdgeKind is the kind of control-flow edge the event was derived from.
type EdgeKind uint8

// Edge kinds.
const (
	EdgeFallthrough EdgeKind = iota
	EdgeDirectBranch
	EdgeIndirectBranch
	EdgeReturn
	EdgeBypass
)

// Event is a single record of the per-thread event stream.
//
// For memory events Address is the effective address and ID is the instruction index. For scope events Address is
// the stack pointer observed at the event and ID is the scope index. IDs are unique only inside their image.
type Event struct {
	Address     uint64
	SourceScope uint32
	ID          uint32
	Image       uint16
	Type        EventType
	Edge        EdgeKind
	Aux         uint8
}

// NodeAddress is the handle of a node stored in an arena. Zero means no node.
type NodeAddress uint32

// InstructionKey identifies a static memory instruction.
type InstructionKey struct {
	Image uint16
	ID    uint32
}

// ScopeKey identifies a static scope (loop or routine).
type ScopeKey struct {
	Image uint16
	ID    uint32
}

// SourceKind tells if the source of the reuse is an instruction or a scope.
type SourceKind uint8

// Source kinds.
const (
	SourceNone SourceKind = iota
	SourceInstruction
	SourceScope
)

// Source identifies the last accessor of a memory block.
type Source struct {
	Image uint16
	Kind  SourceKind
	ID    uint32
}

// Carrier identifies the dynamic scope carrying the reuse. The zero value is the unknown (top-level) carrier, so scope
// ID 0 is reserved.
type Carrier struct {
	Image uint16
	Scope uint32
	// Iteration is 1 when the reuse crosses iterations of the carrying loop and 0 otherwise.
	Iteration uint8
}

// Known tells if the carrier has been resolved to a real scope.
func (c Carrier) Known() bool {
	return c.Scope != 0
}
