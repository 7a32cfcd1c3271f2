package scope

import (
	"github.com/outofforest/reuse/types"
)

// Iteration markers of frames.
const (
	// IterationNone marks a scope frame which has not seen an iteration change yet.
	IterationNone uint8 = iota
	// IterationScope marks a scope frame which has the iteration frame above it.
	IterationScope
	// IterationFrame marks the frame of the current iteration.
	IterationFrame
)

// Frame is the stack frame of an active scope.
type Frame struct {
	EnterTime uint64
	SP        uint64
	Scope     uint32
	Image     uint16
	Iteration uint8
}

// Carrier returns the carrier represented by the frame.
func (f Frame) Carrier() types.Carrier {
	return types.Carrier{
		Image:     f.Image,
		Scope:     f.Scope,
		Iteration: f.Iteration & 1,
	}
}

func (f Frame) matches(image uint16, scope uint32) bool {
	return f.Scope == scope && f.Image == image
}

// Config stores stack configuration.
type Config struct {
	// Tree is used to repair the stack when the expected frame is missing. Permissive is used if nil.
	Tree Tree

	// Diagnostics collects detected errors.
	Diagnostics *Diagnostics

	// StrictChecks enables ErrorNotOnTop and ErrorNotInStack reporting.
	StrictChecks bool

	// OnClose is called for every scope frame removed from the stack. Iteration frames are not reported.
	OnClose func(frame Frame)
}

// New creates new stack.
func New(config Config) *Stack {
	if config.Tree == nil {
		config.Tree = Permissive{}
	}
	if config.Diagnostics == nil {
		config.Diagnostics = NewDiagnostics(false)
	}
	return &Stack{
		config: config,
		frames: make([]Frame, 0, 64),
	}
}

// Stack models the dynamic stack of active loops and routines.
type Stack struct {
	config Config
	frames []Frame
}

// Len returns the number of frames.
func (s *Stack) Len() int {
	return len(s.frames)
}

// Frames iterates over frames from the top to the bottom.
func (s *Stack) Frames() func(func(*Frame) bool) {
	return func(yield func(*Frame) bool) {
		for i := len(s.frames) - 1; i >= 0; i-- {
			if !yield(&s.frames[i]) {
				return
			}
		}
	}
}

// Top returns the frame on top of the stack.
func (s *Stack) Top() (Frame, bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Resolve returns the carrier of the reuse whose previous access happened at prevTime. It is the innermost frame
// entered before that time.
func (s *Stack) Resolve(prevTime uint64) types.Carrier {
	for f := range s.Frames() {
		if f.EnterTime < prevTime {
			return f.Carrier()
		}
	}
	return types.Carrier{}
}

// Enter pushes the frame of entered loop or routine.
func (s *Stack) Enter(sp uint64, image uint16, scope uint32, now uint64) {
	s.push(Frame{
		EnterTime: now,
		SP:        sp,
		Scope:     scope,
		Image:     image,
	})
}

// IterChange starts new iteration of the loop.
func (s *Stack) IterChange(event types.Event, now uint64) {
	s.transition(event, now)
}

// Exit removes the frame of the exited scope together with all the frames above it.
func (s *Stack) Exit(event types.Event) {
	s.transition(event, 0)
}

// AfterCall verifies that the scope of the event is on top of the stack, removing frames above it.
func (s *Stack) AfterCall(event types.Event) {
	s.transition(event, 0)
}

// Purge removes all the frames from the stack. It returns the number of removed scopes.
func (s *Stack) Purge() uint64 {
	return s.popAbove(0)
}

func (s *Stack) transition(event types.Event, now uint64) {
	errorKind := ErrorNone
	var newFrames int

	index, skipped, found := s.locate(event)
	popFrom := index + 1
	if found {
		f := &s.frames[index]
		switch event.Type {
		case types.EventExitScope:
			popFrom = index
			if f.Iteration == IterationFrame && index > 0 && s.frames[index-1].matches(event.Image, event.ID) {
				// Scope frame sits directly below its iteration frame.
				popFrom--
			}
		case types.EventIterChange:
			if f.Iteration != IterationFrame {
				f.Iteration = IterationScope
				newFrames = 1
			}
		}

		if s.config.StrictChecks {
			if event.Type == types.EventAfterCall {
				if skipped > 0 {
					errorKind = ErrorNotOnTop
				}
			} else if skipped > int(event.Aux) {
				errorKind = ErrorNotOnTop
			}
		}
	} else {
		errorKind = ErrorNotFound
		if s.config.StrictChecks && !s.contains(event) {
			errorKind = ErrorNotInStack
		}

		// Frames statically enclosing the scope are preserved, everything above the deepest of them is removed.
		for popFrom < len(s.frames) && s.frames[popFrom].Image == event.Image &&
			s.config.Tree.IsAncestor(event.Image, s.frames[popFrom].Scope, event.ID) {
			popFrom++
		}
		newFrames = 2
	}

	s.popAbove(popFrom)

	if event.Type == types.EventIterChange {
		switch newFrames {
		case 0:
			s.frames[len(s.frames)-1].EnterTime = now
		case 2:
			s.push(Frame{
				EnterTime: now,
				SP:        event.Address,
				Scope:     event.ID,
				Image:     event.Image,
				Iteration: IterationScope,
			})
			fallthrough
		default:
			s.push(Frame{
				EnterTime: now,
				SP:        event.Address,
				Scope:     event.ID,
				Image:     event.Image,
				Iteration: IterationFrame,
			})
		}
	}

	if errorKind != ErrorNone {
		s.config.Diagnostics.Record(ErrorKey{
			Image: event.Image,
			Scope: event.ID,
			Event: event.Type,
			Kind:  errorKind,
		})
	}
}

// locate searches for the frame of the event scope from the top. Frames deeper than the event are skipped first,
// then frames at the same depth belonging to other scopes. It returns the index where the search stopped, the
// number of skipped frames, and whether the frame has been found. If not found, the index points to the first frame
// shallower than the event or is -1.
func (s *Stack) locate(event types.Event) (int, int, bool) {
	index := len(s.frames) - 1
	for index >= 0 && s.frames[index].SP < event.Address {
		index--
	}
	for index >= 0 && s.frames[index].SP <= event.Address && !s.frames[index].matches(event.Image, event.ID) {
		index--
	}

	found := index >= 0 && s.frames[index].matches(event.Image, event.ID)
	return index, len(s.frames) - 1 - index, found
}

func (s *Stack) contains(event types.Event) bool {
	for f := range s.Frames() {
		if f.matches(event.Image, event.ID) {
			return true
		}
	}
	return false
}

func (s *Stack) push(frame Frame) {
	s.frames = append(s.frames, frame)
}

// popAbove removes frames with index greater or equal to the provided one, from the top. It returns the number of
// removed scopes.
func (s *Stack) popAbove(index int) uint64 {
	if index < 0 {
		index = 0
	}

	var scopes uint64
	for len(s.frames) > index {
		frame := s.frames[len(s.frames)-1]
		s.frames = s.frames[:len(s.frames)-1]
		if frame.Iteration == IterationFrame {
			continue
		}

		scopes++
		if s.config.OnClose != nil {
			s.config.OnClose(frame)
		}
	}
	return scopes
}
