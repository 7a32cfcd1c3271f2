package pattern

import (
	"sort"
)

const (
	// ArrayCapacity is the number of distinct distances stored before distribution escalates to histogram.
	ArrayCapacity = 5

	// RelativeBinLimit is the maximum relative difference between distances compressed into one bin.
	RelativeBinLimit = 0.03
)

// Kind is the representation used by the distribution.
type Kind uint8

// Distribution kinds, in escalation order.
const (
	KindEmpty Kind = iota
	KindScalar
	KindArray
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Bin is a distance with the number of its occurrences.
type Bin struct {
	Distance uint64
	Count    uint64
}

// Distribution counts occurrences of distances. It starts as scalar and escalates to bigger representations only
// when needed. Representation never goes back to the smaller one.
type Distribution struct {
	kind      Kind
	length    uint8
	bins      [ArrayCapacity]Bin
	histogram map[uint64]uint64
}

// Kind returns current representation of the distribution.
func (d *Distribution) Kind() Kind {
	return d.kind
}

// Update records one occurrence of the distance.
func (d *Distribution) Update(distance uint64) {
	d.Add(distance, 1)
}

// Add records count occurrences of the distance.
func (d *Distribution) Add(distance, count uint64) {
	if count == 0 {
		return
	}

	switch d.kind {
	case KindEmpty:
		d.kind = KindScalar
		d.bins[0] = Bin{Distance: distance, Count: count}
		d.length = 1
	case KindScalar:
		if d.bins[0].Distance == distance {
			d.bins[0].Count += count
			return
		}
		d.kind = KindArray
		d.bins[1] = Bin{Distance: distance, Count: count}
		d.length = 2
	case KindArray:
		for i := range d.length {
			if d.bins[i].Distance == distance {
				d.bins[i].Count += count
				return
			}
		}
		if d.length < ArrayCapacity {
			d.bins[d.length] = Bin{Distance: distance, Count: count}
			d.length++
			return
		}

		d.kind = KindHistogram
		d.histogram = make(map[uint64]uint64, 2*ArrayCapacity)
		for _, b := range d.bins {
			d.histogram[b.Distance] = b.Count
		}
		d.histogram[distance] = count
		d.bins = [ArrayCapacity]Bin{}
		d.length = 0
	case KindHistogram:
		d.histogram[distance] += count
	}
}

// Merge adds all the occurrences stored in other distribution.
func (d *Distribution) Merge(other *Distribution) {
	for _, b := range other.Bins() {
		d.Add(b.Distance, b.Count)
	}
}

// Total returns the number of recorded occurrences.
func (d *Distribution) Total() uint64 {
	var total uint64
	for _, b := range d.Bins() {
		total += b.Count
	}
	return total
}

// Distinct returns the number of distinct distances.
func (d *Distribution) Distinct() int {
	if d.kind == KindHistogram {
		return len(d.histogram)
	}
	return int(d.length)
}

// Bins returns exact bins ordered by distance.
func (d *Distribution) Bins() []Bin {
	var bins []Bin
	switch d.kind {
	case KindEmpty:
		return nil
	case KindScalar, KindArray:
		bins = append(make([]Bin, 0, d.length), d.bins[:d.length]...)
	case KindHistogram:
		bins = make([]Bin, 0, len(d.histogram))
		for distance, count := range d.histogram {
			bins = append(bins, Bin{Distance: distance, Count: count})
		}
	}

	sort.Slice(bins, func(i, j int) bool {
		return bins[i].Distance < bins[j].Distance
	})
	return bins
}

// Compress returns bins where close distances are aggregated. Distances are joined into the bin if their relative
// difference to the bin average does not exceed RelativeBinLimit. Distance of the aggregated bin is the weighted
// average of its members, rounded.
func (d *Distribution) Compress() []Bin {
	bins := d.Bins()
	if len(bins) == 0 {
		return nil
	}

	result := make([]Bin, 0, len(bins))
	first := bins[0].Distance
	var sum, count uint64
	average := float64(first)
	for _, b := range bins {
		difference := float64(b.Distance - first)
		if difference > 0 && (average == 0 || difference/average > RelativeBinLimit) {
			result = append(result, Bin{Distance: uint64(average + 0.5), Count: count})
			first = b.Distance
			sum = 0
			count = 0
		}

		sum += b.Distance * b.Count
		count += b.Count
		average = float64(sum) / float64(count)
	}
	return append(result, Bin{Distance: uint64(average + 0.5), Count: count})
}
