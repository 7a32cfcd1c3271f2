package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/reuse/types"
)

const (
	imageID uint16 = 1
	sp             = 0x1000

	scopeR uint32 = 1
	scopeL uint32 = 2
	scopeM uint32 = 3
)

func event(eventType types.EventType, scope uint32) types.Event {
	return types.Event{
		Type:    eventType,
		Image:   imageID,
		ID:      scope,
		Address: sp,
	}
}

func frames(s *Stack) []Frame {
	result := []Frame{}
	for f := range s.Frames() {
		result = append([]Frame{*f}, result...)
	}
	return result
}

func TestResolveReturnsInnermostFrameEnteredBeforeTime(t *testing.T) {
	requireT := require.New(t)

	s := New(Config{})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 5)
	s.Enter(sp, imageID, scopeM, 9)

	requireT.Equal(types.Carrier{Image: imageID, Scope: scopeL}, s.Resolve(7))
	requireT.Equal(types.Carrier{Image: imageID, Scope: scopeM}, s.Resolve(10))
	requireT.Equal(types.Carrier{Image: imageID, Scope: scopeR}, s.Resolve(5))
	requireT.Equal(types.Carrier{}, s.Resolve(0))
	requireT.False(s.Resolve(0).Known())
}

func TestIterChangeCreatesIterationFrame(t *testing.T) {
	requireT := require.New(t)

	diagnostics := NewDiagnostics(true)
	s := New(Config{Diagnostics: diagnostics})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)

	s.IterChange(event(types.EventIterChange, scopeL), 3)
	requireT.Equal([]Frame{
		{EnterTime: 0, SP: sp, Scope: scopeR, Image: imageID},
		{EnterTime: 1, SP: sp, Scope: scopeL, Image: imageID, Iteration: IterationScope},
		{EnterTime: 3, SP: sp, Scope: scopeL, Image: imageID, Iteration: IterationFrame},
	}, frames(s))

	// Next iteration only refreshes the iteration frame.
	s.IterChange(event(types.EventIterChange, scopeL), 8)
	requireT.Equal(3, s.Len())
	top, exists := s.Top()
	requireT.True(exists)
	requireT.EqualValues(8, top.EnterTime)
	requireT.EqualValues(IterationFrame, top.Iteration)

	requireT.Zero(diagnostics.Total())
}

func TestReuseAcrossIterationsHasIterationParity(t *testing.T) {
	requireT := require.New(t)

	s := New(Config{})
	s.Enter(sp, imageID, scopeL, 1)
	s.IterChange(event(types.EventIterChange, scopeL), 3)

	// Previous access in earlier iteration.
	requireT.Equal(types.Carrier{Image: imageID, Scope: scopeL, Iteration: 1}, s.Resolve(2))
	// Previous access in the current iteration.
	requireT.Equal(types.Carrier{Image: imageID, Scope: scopeL}, s.Resolve(4))
}

func TestExitRemovesScopeAndIterationFrames(t *testing.T) {
	requireT := require.New(t)

	closed := []Frame{}
	s := New(Config{
		OnClose: func(frame Frame) {
			closed = append(closed, frame)
		},
	})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)
	s.IterChange(event(types.EventIterChange, scopeL), 2)

	s.Exit(event(types.EventExitScope, scopeL))
	requireT.Equal([]Frame{
		{EnterTime: 0, SP: sp, Scope: scopeR, Image: imageID},
	}, frames(s))
	requireT.Equal([]Frame{
		{EnterTime: 1, SP: sp, Scope: scopeL, Image: imageID, Iteration: IterationScope},
	}, closed)

	s.Exit(event(types.EventExitScope, scopeR))
	requireT.Zero(s.Len())
	requireT.Len(closed, 2)
	requireT.Equal(scopeR, closed[1].Scope)
}

func TestExitOfOuterScopeRemovesInnerFrames(t *testing.T) {
	requireT := require.New(t)

	closed := []uint32{}
	diagnostics := NewDiagnostics(true)
	s := New(Config{
		Diagnostics: diagnostics,
		OnClose: func(frame Frame) {
			closed = append(closed, frame.Scope)
		},
	})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)
	s.Enter(sp, imageID, scopeM, 2)

	s.Exit(event(types.EventExitScope, scopeL))
	requireT.Equal([]uint32{scopeM, scopeL}, closed)
	requireT.Equal(1, s.Len())
	requireT.Zero(diagnostics.Total())
}

func TestExitOfUnknownScopeKeepsStack(t *testing.T) {
	requireT := require.New(t)

	diagnostics := NewDiagnostics(true)
	s := New(Config{Diagnostics: diagnostics})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)

	s.Exit(event(types.EventExitScope, 99))

	requireT.Equal(2, s.Len())
	requireT.EqualValues(1, diagnostics.Total())
	requireT.EqualValues(1, diagnostics.Count(ErrorKey{
		Image: imageID,
		Scope: 99,
		Event: types.EventExitScope,
		Kind:  ErrorNotFound,
	}))

	// Stack still works.
	s.Exit(event(types.EventExitScope, scopeL))
	s.Exit(event(types.EventExitScope, scopeR))
	requireT.Zero(s.Len())
	requireT.EqualValues(1, diagnostics.Total())

	// Nothing to underflow.
	s.Exit(event(types.EventExitScope, scopeR))
	requireT.Zero(s.Len())
	requireT.EqualValues(2, diagnostics.Total())
}

func TestIterChangeRepairsStackUsingStaticTree(t *testing.T) {
	requireT := require.New(t)

	tree := NewStaticTree()
	tree.SetParent(imageID, scopeR, 0)
	tree.SetParent(imageID, scopeL, scopeR)
	tree.SetParent(imageID, scopeM, scopeR)

	closed := []uint32{}
	diagnostics := NewDiagnostics(true)
	s := New(Config{
		Tree:        tree,
		Diagnostics: diagnostics,
		OnClose: func(frame Frame) {
			closed = append(closed, frame.Scope)
		},
	})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)

	// Entry into M was lost.
	s.IterChange(event(types.EventIterChange, scopeM), 4)

	requireT.Equal([]uint32{scopeL}, closed)
	requireT.Equal([]Frame{
		{EnterTime: 0, SP: sp, Scope: scopeR, Image: imageID},
		{EnterTime: 4, SP: sp, Scope: scopeM, Image: imageID, Iteration: IterationScope},
		{EnterTime: 4, SP: sp, Scope: scopeM, Image: imageID, Iteration: IterationFrame},
	}, frames(s))
	requireT.EqualValues(1, diagnostics.CountKind(ErrorNotFound))
}

func TestFramesOfOtherImagesAreNotAncestors(t *testing.T) {
	requireT := require.New(t)

	s := New(Config{})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID+1, scopeL, 1)

	s.IterChange(event(types.EventIterChange, scopeM), 2)
	requireT.Equal([]Frame{
		{EnterTime: 0, SP: sp, Scope: scopeR, Image: imageID},
		{EnterTime: 2, SP: sp, Scope: scopeM, Image: imageID, Iteration: IterationScope},
		{EnterTime: 2, SP: sp, Scope: scopeM, Image: imageID, Iteration: IterationFrame},
	}, frames(s))
}

func TestAfterCallRemovesDeeperFrames(t *testing.T) {
	requireT := require.New(t)

	closed := []uint32{}
	s := New(Config{
		OnClose: func(frame Frame) {
			closed = append(closed, frame.Scope)
		},
	})
	s.Enter(sp, imageID, scopeR, 0)
	// Callee missing its exit.
	s.Enter(sp-0x100, imageID, scopeM, 1)

	s.AfterCall(event(types.EventAfterCall, scopeR))
	requireT.Equal([]uint32{scopeM}, closed)
	requireT.Equal(1, s.Len())
}

func TestStrictChecks(t *testing.T) {
	requireT := require.New(t)

	diagnostics := NewDiagnostics(true)
	s := New(Config{
		Diagnostics:  diagnostics,
		StrictChecks: true,
	})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)
	s.Enter(sp-0x100, imageID, scopeM, 2)

	s.AfterCall(event(types.EventAfterCall, scopeR))
	requireT.EqualValues(1, diagnostics.CountKind(ErrorNotOnTop))
	requireT.Equal(1, s.Len())

	s.Exit(event(types.EventExitScope, 99))
	requireT.EqualValues(1, diagnostics.CountKind(ErrorNotInStack))
	requireT.Zero(diagnostics.CountKind(ErrorNotFound))

	// Aux tolerates the number of frames above the matched one.
	s.Enter(sp, imageID, scopeL, 3)
	ev := event(types.EventExitScope, scopeR)
	ev.Aux = 1
	s.Exit(ev)
	requireT.EqualValues(1, diagnostics.CountKind(ErrorNotOnTop))
	requireT.EqualValues(2, diagnostics.Total())
	requireT.Zero(s.Len())
}

func TestNonStrictChecksReportOnlyNotFound(t *testing.T) {
	requireT := require.New(t)

	diagnostics := NewDiagnostics(true)
	s := New(Config{Diagnostics: diagnostics})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp-0x100, imageID, scopeM, 2)

	s.AfterCall(event(types.EventAfterCall, scopeR))
	s.Exit(event(types.EventExitScope, 99))

	requireT.Equal([]ErrorCount{
		{
			ErrorKey: ErrorKey{Image: imageID, Scope: 99, Event: types.EventExitScope, Kind: ErrorNotFound},
			Count:    1,
		},
	}, diagnostics.Histogram())
}

func TestPurgeClosesFramesInLIFOOrder(t *testing.T) {
	requireT := require.New(t)

	closed := []uint32{}
	s := New(Config{
		OnClose: func(frame Frame) {
			closed = append(closed, frame.Scope)
		},
	})
	s.Enter(sp, imageID, scopeR, 0)
	s.Enter(sp, imageID, scopeL, 1)
	s.IterChange(event(types.EventIterChange, scopeL), 2)
	s.Enter(sp, imageID, scopeM, 3)

	requireT.EqualValues(3, s.Purge())
	requireT.Equal([]uint32{scopeM, scopeL, scopeR}, closed)
	requireT.Zero(s.Len())
	requireT.Zero(s.Purge())
}
