package scope

import (
	"sort"

	"github.com/outofforest/reuse/types"
)

// ErrorKind enumerates inconsistencies detected between the events and the stack.
type ErrorKind uint8

// Error kinds.
const (
	ErrorNone ErrorKind = iota
	// ErrorNotInStack means the scope of the event has no frame anywhere on the stack.
	ErrorNotInStack
	// ErrorNotFound means the frame of the scope was not found where expected and the stack has been repaired.
	ErrorNotFound
	// ErrorNotOnTop means the frame was found but other frames were above it.
	ErrorNotOnTop
)

func (ek ErrorKind) String() string {
	switch ek {
	case ErrorNone:
		return "none"
	case ErrorNotInStack:
		return "SCOPE_NOT_IN_STACK"
	case ErrorNotFound:
		return "SCOPE_NOT_FOUND"
	case ErrorNotOnTop:
		return "SCOPE_NOT_ON_TOP"
	default:
		return "unknown"
	}
}

// ErrorKey identifies a bin of the error histogram.
type ErrorKey struct {
	Image uint16
	Scope uint32
	Event types.EventType
	Kind  ErrorKind
}

// NewDiagnostics creates new diagnostics collector. When profile is false only the total count is maintained.
func NewDiagnostics(profile bool) *Diagnostics {
	d := &Diagnostics{
		profile: profile,
	}
	if profile {
		d.histogram = map[ErrorKey]uint64{}
	}
	return d
}

// Diagnostics collects the stack errors.
type Diagnostics struct {
	profile   bool
	histogram map[ErrorKey]uint64
	total     uint64
}

// Record records an error.
func (d *Diagnostics) Record(key ErrorKey) {
	d.total++
	if d.profile {
		d.histogram[key]++
	}
}

// Total returns the number of recorded errors.
func (d *Diagnostics) Total() uint64 {
	return d.total
}

// Count returns the number of errors recorded for the key. It is always 0 if histogram is not collected.
func (d *Diagnostics) Count(key ErrorKey) uint64 {
	return d.histogram[key]
}

// CountKind returns the number of errors of the kind. It is always 0 if histogram is not collected.
func (d *Diagnostics) CountKind(kind ErrorKind) uint64 {
	var count uint64
	for key, c := range d.histogram {
		if key.Kind == kind {
			count += c
		}
	}
	return count
}

// ErrorCount is a single bin of the error histogram.
type ErrorCount struct {
	ErrorKey
	Count uint64
}

// Histogram returns the bins of the error histogram ordered by key.
func (d *Diagnostics) Histogram() []ErrorCount {
	result := make([]ErrorCount, 0, len(d.histogram))
	for key, count := range d.histogram {
		result = append(result, ErrorCount{ErrorKey: key, Count: count})
	}
	SortErrorCounts(result)
	return result
}

// SortErrorCounts orders error counts by key.
func SortErrorCounts(counts []ErrorCount) {
	sort.Slice(counts, func(i, j int) bool {
		return lessErrorKey(counts[i].ErrorKey, counts[j].ErrorKey)
	})
}

func lessErrorKey(a, b ErrorKey) bool {
	if a.Image != b.Image {
		return a.Image < b.Image
	}
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if a.Event != b.Event {
		return a.Event < b.Event
	}
	return a.Kind < b.Kind
}
