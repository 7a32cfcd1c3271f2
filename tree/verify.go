package tree

import (
	"github.com/pkg/errors"

	"github.com/outofforest/reuse/types"
)

// Verify checks the structural invariants of the whole tree. It is meant for tests.
func (t *Tree) Verify() error {
	if t.root == 0 {
		if t.last != 0 || t.Len() != 0 {
			return errors.Errorf("tree without root has %d nodes", t.Len())
		}
		return nil
	}

	if parent := t.Node(t.root).Parent; parent != 0 {
		return errors.Errorf("root %d has parent %d", t.root, parent)
	}

	type visit struct {
		NodeAddress types.NodeAddress
		Expanded    bool
	}

	// Iterative in-order traversal, so degenerated trees don't exhaust the goroutine stack.
	var (
		count    uint64
		previous types.NodeAddress
		lastKey  uint64
	)
	stack := []visit{{NodeAddress: t.root}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := t.Node(v.NodeAddress)

		if v.Expanded {
			if previous != 0 && node.Key <= lastKey {
				return errors.Errorf("node %d has key %d not greater than key %d of its predecessor %d",
					v.NodeAddress, node.Key, lastKey, previous)
			}
			previous = v.NodeAddress
			lastKey = node.Key
			count++
			continue
		}

		if expected := 1 + t.size(node.Left) + t.size(node.Right); node.Size != expected {
			return errors.Errorf("node %d has size %d, expected %d", v.NodeAddress, node.Size, expected)
		}
		for _, child := range []types.NodeAddress{node.Left, node.Right} {
			if child != 0 && t.Node(child).Parent != v.NodeAddress {
				return errors.Errorf("child %d of node %d points to parent %d", child, v.NodeAddress,
					t.Node(child).Parent)
			}
		}

		if node.Right != 0 {
			stack = append(stack, visit{NodeAddress: node.Right})
		}
		stack = append(stack, visit{NodeAddress: v.NodeAddress, Expanded: true})
		if node.Left != 0 {
			stack = append(stack, visit{NodeAddress: node.Left})
		}
	}

	if previous != t.last {
		return errors.Errorf("last node is %d but the greatest node is %d", t.last, previous)
	}
	if count != t.Len() {
		return errors.Errorf("tree contains %d nodes but %d are allocated", count, t.Len())
	}
	if uint64(t.Node(t.root).Size) != count {
		return errors.Errorf("root size is %d but tree contains %d nodes", t.Node(t.root).Size, count)
	}
	return nil
}
