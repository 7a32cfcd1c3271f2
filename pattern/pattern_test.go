package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/reuse/types"
)

func feed(d *Distribution, distinct, repeat int) {
	for range repeat {
		for i := range distinct {
			d.Update(uint64(i * 10))
		}
	}
}

func TestDistributionEscalatesMonotonically(t *testing.T) {
	requireT := require.New(t)

	var d Distribution
	requireT.Equal(KindEmpty, d.Kind())
	requireT.Zero(d.Total())
	requireT.Nil(d.Bins())

	var fed uint64
	previous := d.Kind()
	check := func(distinct int, kind Kind) {
		feed(&d, distinct, 3)
		fed += uint64(3 * distinct)

		requireT.Equal(kind, d.Kind())
		requireT.GreaterOrEqual(uint8(d.Kind()), uint8(previous))
		requireT.Equal(fed, d.Total())
		previous = d.Kind()
	}

	check(1, KindScalar)
	check(2, KindArray)
	check(6, KindHistogram)
	check(100, KindHistogram)

	// No precision is lost.
	bins := d.Bins()
	requireT.Len(bins, 100)
	for i, b := range bins {
		requireT.EqualValues(i*10, b.Distance)
		expected := uint64(3)
		switch {
		case i == 0:
			expected = 12
		case i == 1:
			expected = 9
		case i < 6:
			expected = 6
		}
		requireT.Equal(expected, b.Count, "distance %d", b.Distance)
	}
}

func TestArrayKeepsFiveDistances(t *testing.T) {
	requireT := require.New(t)

	var d Distribution
	for i := range uint64(ArrayCapacity) {
		d.Update(i)
		d.Update(i)
	}
	requireT.Equal(KindArray, d.Kind())
	requireT.Equal(ArrayCapacity, d.Distinct())

	d.Update(2)
	requireT.Equal(KindArray, d.Kind())

	d.Update(ArrayCapacity)
	requireT.Equal(KindHistogram, d.Kind())
	requireT.Equal(ArrayCapacity+1, d.Distinct())
	requireT.EqualValues(2*ArrayCapacity+2, d.Total())
	requireT.Equal([]Bin{
		{Distance: 0, Count: 2},
		{Distance: 1, Count: 2},
		{Distance: 2, Count: 3},
		{Distance: 3, Count: 2},
		{Distance: 4, Count: 2},
		{Distance: 5, Count: 1},
	}, d.Bins())
}

func TestDistributionMerge(t *testing.T) {
	requireT := require.New(t)

	var d1, d2 Distribution
	d1.Update(1)
	d1.Update(7)
	d2.Update(7)
	d2.Add(9, 4)
	d2.Add(11, 0)

	d1.Merge(&d2)
	requireT.Equal([]Bin{
		{Distance: 1, Count: 1},
		{Distance: 7, Count: 2},
		{Distance: 9, Count: 4},
	}, d1.Bins())
	requireT.EqualValues(5, d2.Total())
}

func TestCompressJoinsCloseDistances(t *testing.T) {
	requireT := require.New(t)

	var d Distribution
	d.Update(100)
	d.Update(102)
	d.Add(200, 2)
	requireT.Equal([]Bin{
		{Distance: 101, Count: 2},
		{Distance: 200, Count: 2},
	}, d.Compress())

	d = Distribution{}
	d.Update(1000)
	d.Update(1001)
	d.Update(1030)
	requireT.Equal([]Bin{{Distance: 1010, Count: 3}}, d.Compress())

	d = Distribution{}
	d.Add(0, 3)
	d.Update(1)
	requireT.Equal([]Bin{
		{Distance: 0, Count: 3},
		{Distance: 1, Count: 1},
	}, d.Compress())

	requireT.Nil((&Distribution{}).Compress())
}

func TestApproximate(t *testing.T) {
	requireT := require.New(t)

	for d := range uint64(ExactDistanceLimit) {
		requireT.Equal(d, Approximate(d))
	}

	requireT.EqualValues(256, Approximate(256))
	requireT.EqualValues(300, Approximate(300))
	requireT.EqualValues(1000, Approximate(1001))
	requireT.EqualValues(1008, Approximate(1005))

	for d := uint64(ExactDistanceLimit); d < 1<<20; d += 97 {
		a := Approximate(d)
		diff := a - d
		if a < d {
			diff = d - a
		}
		requireT.LessOrEqual(diff, d/64, "distance %d", d)
	}
}

func TestInstructionPatternsAreMovedToFront(t *testing.T) {
	requireT := require.New(t)

	a := NewAggregator()
	inst := a.Instruction(types.InstructionKey{Image: 1, ID: 10})
	requireT.Same(inst, a.Instruction(types.InstructionKey{Image: 1, ID: 10}))

	source := types.Source{Image: 1, Kind: types.SourceInstruction, ID: 10}
	c1 := types.Carrier{Image: 1, Scope: 1}
	c2 := types.Carrier{Image: 1, Scope: 2}
	c3 := types.Carrier{Image: 1, Scope: 2, Iteration: 1}

	d1 := inst.Insert(source, c1)
	d1.Update(1)
	inst.Insert(source, c2).Update(2)
	inst.Insert(source, c3).Update(3)

	carriers := func() []types.Carrier {
		result := []types.Carrier{}
		for _, p := range inst.Patterns() {
			result = append(result, p.Key.Carrier)
		}
		return result
	}
	requireT.Equal([]types.Carrier{c3, c2, c1}, carriers())

	requireT.Same(d1, inst.Insert(source, c1))
	requireT.Equal([]types.Carrier{c1, c3, c2}, carriers())

	inst.Insert(source, c2)
	requireT.Equal([]types.Carrier{c2, c1, c3}, carriers())
	requireT.EqualValues(1, d1.Total())
}

func TestFootprints(t *testing.T) {
	requireT := require.New(t)

	a := NewAggregator()
	key := types.ScopeKey{Image: 1, ID: 3}
	a.Footprint(key).Update(5)
	a.Footprint(key).Update(5)

	requireT.Len(a.Footprints(), 1)
	requireT.EqualValues(2, a.Footprints()[key].Total())
}
