package pattern

import (
	"github.com/outofforest/reuse/types"
)

// Key identifies the reuse pattern of an instruction.
type Key struct {
	Source  types.Source
	Carrier types.Carrier
}

// Pattern is the distance distribution of one reuse pattern.
type Pattern struct {
	Key          Key
	Distribution Distribution
}

// Instruction collects statistics of a static memory instruction.
type Instruction struct {
	Accesses   uint64
	ColdMisses uint64

	// patterns is self-organizing, most recently used pattern is moved to the front.
	patterns []*Pattern
}

// Insert returns the distribution of the pattern, creating empty one if it doesn't exist.
func (i *Instruction) Insert(source types.Source, carrier types.Carrier) *Distribution {
	key := Key{Source: source, Carrier: carrier}
	for index, p := range i.patterns {
		if p.Key != key {
			continue
		}
		if index > 0 {
			copy(i.patterns[1:index+1], i.patterns[:index])
			i.patterns[0] = p
		}
		return &p.Distribution
	}

	p := &Pattern{Key: key}
	i.patterns = append(i.patterns, nil)
	copy(i.patterns[1:], i.patterns)
	i.patterns[0] = p
	return &p.Distribution
}

// Patterns returns patterns of the instruction, most recently used first.
func (i *Instruction) Patterns() []*Pattern {
	return i.patterns
}

// NewAggregator creates new aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		instructions: map[types.InstructionKey]*Instruction{},
		footprints:   map[types.ScopeKey]*Distribution{},
	}
}

// Aggregator collects reuse patterns of instructions and footprints of scopes.
type Aggregator struct {
	instructions map[types.InstructionKey]*Instruction
	footprints   map[types.ScopeKey]*Distribution
}

// Instruction returns the record of the instruction, creating it if it doesn't exist.
func (a *Aggregator) Instruction(key types.InstructionKey) *Instruction {
	inst, exists := a.instructions[key]
	if !exists {
		inst = &Instruction{}
		a.instructions[key] = inst
	}
	return inst
}

// Footprint returns the footprint distribution of the scope, creating it if it doesn't exist.
func (a *Aggregator) Footprint(key types.ScopeKey) *Distribution {
	d, exists := a.footprints[key]
	if !exists {
		d = &Distribution{}
		a.footprints[key] = d
	}
	return d
}

// Instructions returns collected instructions in unspecified order.
func (a *Aggregator) Instructions() map[types.InstructionKey]*Instruction {
	return a.instructions
}

// Footprints returns collected scope footprints in unspecified order.
func (a *Aggregator) Footprints() map[types.ScopeKey]*Distribution {
	return a.footprints
}
