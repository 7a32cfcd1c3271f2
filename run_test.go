package reuse

import (
	"iter"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/reuse/pattern"
	"github.com/outofforest/reuse/test"
	"github.com/outofforest/reuse/trace"
	"github.com/outofforest/reuse/types"
)

func threadEvents(base uint64) []types.Event {
	events := []types.Event{test.Enter(img, scopeL)}
	for range 3 {
		events = append(events, test.Iter(img, scopeL))
		for i := range uint64(10) {
			events = append(events, test.Load(img, 1, base+i))
		}
	}
	return append(events, test.Exit(img, scopeL))
}

func batches(events []types.Event, size int) iter.Seq[[]types.Event] {
	return slices.Chunk(events, size)
}

func TestRunSessions(t *testing.T) {
	requireT := require.New(t)

	config := byteConfig()
	reports, err := RunSessions(test.Context(t), config, []iter.Seq[[]types.Event]{
		batches(threadEvents(0), 4),
		batches(threadEvents(0x1000), 7),
		batches(nil, 1),
	})
	requireT.NoError(err)
	requireT.Len(reports, 3)

	for _, r := range reports[:2] {
		inst := instruction(t, r, 1)
		requireT.EqualValues(30, inst.Accesses)
		requireT.EqualValues(10, inst.ColdMisses)
		requireT.Equal([]PatternReport{
			{
				Source:  instSource(1),
				Carrier: types.Carrier{Image: img, Scope: scopeL, Iteration: 1},
				Kind:    pattern.KindScalar,
				Total:   20,
				Bins:    []pattern.Bin{{Distance: 9, Count: 20}},
			},
		}, inst.Patterns)
	}
	requireT.Empty(reports[2].Images)

	merged, err := Merge(reports...)
	requireT.NoError(err)
	requireT.EqualValues(60, instruction(t, merged, 1).Accesses)
}

func TestRunSessionsRejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig
	config.MaxPathLength = 0

	_, err := RunSessions(test.Context(t), config, nil)
	require.Error(t, err)
}

func TestRunTraces(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "thread-0.bin"), filepath.Join(dir, "thread-1.bin")}
	for i, path := range paths {
		w, err := trace.Create(path)
		requireT.NoError(err)
		requireT.NoError(w.Write(threadEvents(uint64(i) * 0x1000)...))
		requireT.NoError(w.Close())
	}

	report, err := RunTraces(test.Context(t), byteConfig(), paths, 5)
	requireT.NoError(err)

	inst := instruction(t, report, 1)
	requireT.EqualValues(60, inst.Accesses)
	requireT.EqualValues(20, inst.ColdMisses)
	requireT.Equal([]pattern.Bin{{Distance: 9, Count: 40}}, inst.Patterns[0].Bins)
	requireT.EqualValues(2, report.Stats.Events[types.EventEnterScope])

	_, err = RunTraces(test.Context(t), byteConfig(), paths, 0)
	requireT.Error(err)

	_, err = RunTraces(test.Context(t), byteConfig(), []string{filepath.Join(dir, "missing.bin")}, 5)
	requireT.Error(err)
}
