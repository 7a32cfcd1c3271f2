package reuse

import (
	"github.com/pkg/errors"

	"github.com/outofforest/reuse/scope"
	"github.com/outofforest/reuse/tree"
)

// DefaultConfig is the default session configuration.
var DefaultConfig = Config{
	BlockShift:           6,
	MaxPathLength:        tree.DefaultMaxPathLength,
	ComputeCarry:         true,
	ApproximateDistances: true,
}

// Config stores session configuration.
type Config struct {
	// BlockShift is the number of low address bits ignored when mapping addresses to memory blocks.
	BlockShift uint8

	// MaxPathLength is the length of the tree path triggering rebalancing.
	MaxPathLength uint64

	// ComputeFootprint enables collection of distinct blocks touched by every dynamic execution of a scope.
	ComputeFootprint bool

	// ProfileErrors enables collection of scope error histogram. Only total count is collected otherwise.
	ProfileErrors bool

	// ComputeCarry enables resolution of scopes carrying the reuse. It is forced when ComputeFootprint is set.
	ComputeCarry bool

	// ApproximateDistances reduces the precision of long distances.
	ApproximateDistances bool

	// StrictScopeChecks enables reporting of SCOPE_NOT_ON_TOP and SCOPE_NOT_IN_STACK errors.
	StrictScopeChecks bool

	// SampleMask and SampleValue select the analyzed blocks. Block is analyzed if block & SampleMask == SampleValue.
	SampleMask  uint64
	SampleValue uint64

	// ScopeTree provides static nesting of scopes used to repair the scope stack.
	ScopeTree scope.Tree

	// Metrics receives session counters. Optional.
	Metrics *Metrics
}

// Validate verifies the configuration.
func (c Config) Validate() error {
	if c.BlockShift >= 64 {
		return errors.Errorf("block shift must be lower than 64, got %d", c.BlockShift)
	}
	if c.MaxPathLength == 0 {
		return errors.New("max path length must be greater than 0")
	}
	if c.SampleValue&^c.SampleMask != 0 {
		return errors.Errorf("sample value 0x%x has bits outside the sample mask 0x%x", c.SampleValue, c.SampleMask)
	}
	return nil
}

func (c Config) computeCarry() bool {
	return c.ComputeCarry || c.ComputeFootprint
}
