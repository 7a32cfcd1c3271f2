package alloc

import (
	"math"

	"github.com/pkg/errors"

	"github.com/outofforest/reuse/types"
)

// Config stores configuration of arena.
type Config struct {
	// NodesPerChunk is the number of nodes allocated at once when arena grows. Must be a power of 2.
	NodesPerChunk uint64
}

// DefaultConfig is the default arena configuration.
var DefaultConfig = Config{
	NodesPerChunk: 4096,
}

// NewArena creates new arena.
func NewArena[T any](config Config) (*Arena[T], error) {
	if config.NodesPerChunk == 0 || config.NodesPerChunk&(config.NodesPerChunk-1) != 0 {
		return nil, errors.Errorf("nodes per chunk must be a power of 2, got %d", config.NodesPerChunk)
	}
	if config.NodesPerChunk > math.MaxUint32 {
		return nil, errors.Errorf("nodes per chunk must fit 32 bits, got %d", config.NodesPerChunk)
	}

	var shift uint
	for uint64(1)<<shift < config.NodesPerChunk {
		shift++
	}

	return &Arena[T]{
		config: config,
		shift:  shift,
		mask:   types.NodeAddress(config.NodesPerChunk - 1),
		// Address 0 is reserved for the nil handle.
		next: 1,
	}, nil
}

// Arena stores nodes addressed by stable indices. Chunks are never moved, so pointers returned by Node stay valid
// until Reset is called.
type Arena[T any] struct {
	config Config
	shift  uint
	mask   types.NodeAddress

	chunks [][]T
	next   types.NodeAddress
	free   []types.NodeAddress
	used   uint64
}

// Node returns the node stored under the address.
func (a *Arena[T]) Node(nodeAddress types.NodeAddress) *T {
	return &a.chunks[nodeAddress>>a.shift][nodeAddress&a.mask]
}

// Allocate allocates zeroed node.
func (a *Arena[T]) Allocate() (types.NodeAddress, *T, error) {
	if len(a.free) > 0 {
		nodeAddress := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.used++

		node := a.Node(nodeAddress)
		var zero T
		*node = zero
		return nodeAddress, node, nil
	}

	if a.next == math.MaxUint32 {
		return 0, nil, errors.New("out of space")
	}

	nodeAddress := a.next
	if int(nodeAddress>>a.shift) == len(a.chunks) {
		a.chunks = append(a.chunks, make([]T, a.config.NodesPerChunk))
	}
	a.next++
	a.used++

	return nodeAddress, a.Node(nodeAddress), nil
}

// Deallocate returns node to the free list.
func (a *Arena[T]) Deallocate(nodeAddress types.NodeAddress) {
	if nodeAddress == 0 {
		return
	}

	a.free = append(a.free, nodeAddress)
	a.used--
}

// Used returns the number of allocated nodes.
func (a *Arena[T]) Used() uint64 {
	return a.used
}

// Reset releases all the nodes at once.
func (a *Arena[T]) Reset() {
	a.chunks = nil
	a.free = nil
	a.next = 1
	a.used = 0
}
