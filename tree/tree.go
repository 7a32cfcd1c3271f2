package tree

import (
	"github.com/pkg/errors"

	"github.com/outofforest/reuse/alloc"
	"github.com/outofforest/reuse/types"
)

// DefaultMaxPathLength is the default path length triggering rebalancing.
const DefaultMaxPathLength = 50

// Config stores tree configuration.
type Config struct {
	// MaxPathLength is the length of the path from the last node to the root above which the last node is splayed
	// to the root.
	MaxPathLength uint64
	Arena         alloc.Config
}

// DefaultConfig is the default tree configuration.
var DefaultConfig = Config{
	MaxPathLength: DefaultMaxPathLength,
	Arena:         alloc.DefaultConfig,
}

// Node is the node of the tree. Nodes are ordered by the logical time of the last access to the block they
// represent.
type Node struct {
	Key    uint64
	Left   types.NodeAddress
	Right  types.NodeAddress
	Parent types.NodeAddress
	Size   uint32
}

// New creates new tree.
func New(config Config) (*Tree, error) {
	if config.MaxPathLength == 0 {
		return nil, errors.New("max path length must be positive")
	}

	arena, err := alloc.NewArena[Node](config.Arena)
	if err != nil {
		return nil, err
	}

	return &Tree{
		config: config,
		arena:  arena,
	}, nil
}

// Tree computes reuse distances. Each node represents one memory block. The most recently accessed block is always
// the last node in order, so the number of nodes following a node equals the number of distinct blocks accessed
// since the block represented by the node was accessed.
type Tree struct {
	config Config
	arena  *alloc.Arena[Node]

	root types.NodeAddress
	last types.NodeAddress
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() uint64 {
	return t.arena.Used()
}

// Node returns the node stored under the address.
func (t *Tree) Node(nodeAddress types.NodeAddress) *Node {
	return t.arena.Node(nodeAddress)
}

// Last returns the most recently accessed node.
func (t *Tree) Last() types.NodeAddress {
	return t.last
}

// Root returns the root node.
func (t *Tree) Root() types.NodeAddress {
	return t.root
}

// ColdMiss adds the node for a block accessed for the first time.
func (t *Tree) ColdMiss(key uint64) (types.NodeAddress, error) {
	nodeAddress, node, err := t.arena.Allocate()
	if err != nil {
		return 0, err
	}
	node.Key = key
	node.Size = 1

	t.append(nodeAddress, node)
	return nodeAddress, nil
}

// ReuseBlock moves the node to the end and returns the number of nodes which followed it.
func (t *Tree) ReuseBlock(nodeAddress types.NodeAddress, key uint64) uint64 {
	node := t.Node(nodeAddress)
	if nodeAddress == t.last {
		node.Key = key
		return 0
	}

	distance := uint64(t.size(node.Right))
	for child, parent := nodeAddress, node.Parent; parent != 0; {
		p := t.Node(parent)
		if p.Left == child {
			distance += 1 + uint64(t.size(p.Right))
		}
		child, parent = parent, p.Parent
	}

	if splayFrom := t.detach(nodeAddress, node); splayFrom != 0 {
		t.splay(splayFrom)
	}

	*node = Node{
		Key:  key,
		Size: 1,
	}
	t.append(nodeAddress, node)

	return distance
}

// CountBlocks returns the number of nodes with key greater than the provided one.
func (t *Tree) CountBlocks(key uint64) uint64 {
	var count uint64
	for nodeAddress := t.root; nodeAddress != 0; {
		node := t.Node(nodeAddress)
		if node.Key > key {
			count += 1 + uint64(t.size(node.Right))
			nodeAddress = node.Left
		} else {
			nodeAddress = node.Right
		}
	}
	return count
}

// Reset removes all the nodes.
func (t *Tree) Reset() {
	t.arena.Reset()
	t.root = 0
	t.last = 0
}

func (t *Tree) size(nodeAddress types.NodeAddress) uint32 {
	if nodeAddress == 0 {
		return 0
	}
	return t.Node(nodeAddress).Size
}

// append attaches detached node as the right child of the last node.
func (t *Tree) append(nodeAddress types.NodeAddress, node *Node) {
	if t.last == 0 {
		t.root = nodeAddress
		t.last = nodeAddress
		return
	}

	node.Parent = t.last
	t.Node(t.last).Right = nodeAddress
	t.last = nodeAddress

	var pathLength uint64
	for parent := node.Parent; parent != 0; pathLength++ {
		p := t.Node(parent)
		p.Size++
		parent = p.Parent
	}

	// Blocks accessed once and never again make the right spine grow. Splaying the last node shortens it and makes
	// the old tree the left subtree of the last node.
	if pathLength > t.config.MaxPathLength {
		t.splay(nodeAddress)
	}
}

// detach removes the node from the tree keeping the size of all the other nodes valid. It returns the node where
// the structure changed, or 0 if the tree became empty or its root changed.
func (t *Tree) detach(nodeAddress types.NodeAddress, node *Node) types.NodeAddress {
	if node.Left == 0 || node.Right == 0 {
		child := node.Left
		if child == 0 {
			child = node.Right
		}
		t.replaceChild(node.Parent, nodeAddress, child)
		t.shrinkPath(node.Parent)
		return node.Parent
	}

	// Node has two children, so it is replaced by its successor which has no left child.
	successorAddress := node.Right
	successor := t.Node(successorAddress)
	for successor.Left != 0 {
		successorAddress = successor.Left
		successor = t.Node(successorAddress)
	}

	successorParent := successor.Parent
	t.replaceChild(successorParent, successorAddress, successor.Right)
	t.shrinkPath(successorParent)

	// Node might have been modified above if successor was its child.
	successor.Left = node.Left
	successor.Right = node.Right
	successor.Size = node.Size
	if successor.Left != 0 {
		t.Node(successor.Left).Parent = successorAddress
	}
	if successor.Right != 0 {
		t.Node(successor.Right).Parent = successorAddress
	}
	t.replaceChild(node.Parent, nodeAddress, successorAddress)

	if successorParent == nodeAddress {
		return successorAddress
	}
	return successorParent
}

// replaceChild replaces oldChild of parent by newChild. If parent is 0, newChild becomes the root.
func (t *Tree) replaceChild(parent, oldChild, newChild types.NodeAddress) {
	if newChild != 0 {
		t.Node(newChild).Parent = parent
	}
	if parent == 0 {
		t.root = newChild
		return
	}

	p := t.Node(parent)
	if p.Left == oldChild {
		p.Left = newChild
	} else {
		p.Right = newChild
	}
}

func (t *Tree) shrinkPath(nodeAddress types.NodeAddress) {
	for nodeAddress != 0 {
		node := t.Node(nodeAddress)
		node.Size--
		nodeAddress = node.Parent
	}
}

// rotate moves the node one level up.
func (t *Tree) rotate(nodeAddress types.NodeAddress) {
	node := t.Node(nodeAddress)
	parentAddress := node.Parent
	parent := t.Node(parentAddress)

	if parent.Left == nodeAddress {
		parent.Left = node.Right
		if node.Right != 0 {
			t.Node(node.Right).Parent = parentAddress
		}
		node.Right = parentAddress
	} else {
		parent.Right = node.Left
		if node.Left != 0 {
			t.Node(node.Left).Parent = parentAddress
		}
		node.Left = parentAddress
	}

	t.replaceChild(parent.Parent, parentAddress, nodeAddress)
	parent.Parent = nodeAddress

	// The set of nodes below the rotated pair doesn't change.
	node.Size = parent.Size
	parent.Size = 1 + t.size(parent.Left) + t.size(parent.Right)
}

// splay moves the node to the root.
func (t *Tree) splay(nodeAddress types.NodeAddress) {
	node := t.Node(nodeAddress)
	for node.Parent != 0 {
		parentAddress := node.Parent
		parent := t.Node(parentAddress)
		if parent.Parent == 0 {
			t.rotate(nodeAddress)
			return
		}

		grandParent := t.Node(parent.Parent)
		if (grandParent.Left == parentAddress) == (parent.Left == nodeAddress) {
			t.rotate(parentAddress)
			t.rotate(nodeAddress)
		} else {
			t.rotate(nodeAddress)
			t.rotate(nodeAddress)
		}
	}
}
