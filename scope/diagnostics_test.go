package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/reuse/types"
)

func TestDiagnosticsWithoutProfileCountsOnly(t *testing.T) {
	requireT := require.New(t)

	d := NewDiagnostics(false)
	key := ErrorKey{Image: 1, Scope: 2, Event: types.EventExitScope, Kind: ErrorNotFound}
	d.Record(key)
	d.Record(key)

	requireT.EqualValues(2, d.Total())
	requireT.Zero(d.Count(key))
	requireT.Zero(d.CountKind(ErrorNotFound))
	requireT.Empty(d.Histogram())
}

func TestDiagnosticsHistogramIsOrdered(t *testing.T) {
	requireT := require.New(t)

	d := NewDiagnostics(true)
	k1 := ErrorKey{Image: 2, Scope: 1, Event: types.EventIterChange, Kind: ErrorNotFound}
	k2 := ErrorKey{Image: 1, Scope: 7, Event: types.EventExitScope, Kind: ErrorNotFound}
	k3 := ErrorKey{Image: 1, Scope: 7, Event: types.EventIterChange, Kind: ErrorNotOnTop}
	d.Record(k1)
	d.Record(k2)
	d.Record(k3)
	d.Record(k2)

	requireT.EqualValues(4, d.Total())
	requireT.EqualValues(3, d.CountKind(ErrorNotFound))
	requireT.Equal([]ErrorCount{
		{ErrorKey: k3, Count: 1},
		{ErrorKey: k2, Count: 2},
		{ErrorKey: k1, Count: 1},
	}, d.Histogram())
}

func TestErrorKindNames(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal("SCOPE_NOT_FOUND", ErrorNotFound.String())
	requireT.Equal("SCOPE_NOT_IN_STACK", ErrorNotInStack.String())
	requireT.Equal("SCOPE_NOT_ON_TOP", ErrorNotOnTop.String())
}
