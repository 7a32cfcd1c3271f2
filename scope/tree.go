package scope

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/outofforest/reuse/types"
)

// Tree answers questions about the static nesting of scopes.
type Tree interface {
	// IsAncestor tells if scope ancestor statically encloses scope inside the image.
	IsAncestor(image uint16, ancestor, scope uint32) bool
}

// Permissive is the tree used when static nesting is unknown. Every scope is considered an ancestor, so repairing
// the stack never removes frames.
type Permissive struct{}

// IsAncestor always returns true.
func (Permissive) IsAncestor(uint16, uint32, uint32) bool {
	return true
}

// NewStaticTree creates empty static tree.
func NewStaticTree() *StaticTree {
	return &StaticTree{
		parents: map[types.ScopeKey]uint32{},
	}
}

// StaticTree stores the parent of every known scope.
type StaticTree struct {
	parents map[types.ScopeKey]uint32
}

// SetParent sets the parent of the scope. Parent 0 means the scope is top-level.
func (st *StaticTree) SetParent(image uint16, scope, parent uint32) {
	st.parents[types.ScopeKey{Image: image, ID: scope}] = parent
}

// IsAncestor tells if scope ancestor statically encloses scope inside the image.
func (st *StaticTree) IsAncestor(image uint16, ancestor, scope uint32) bool {
	// Bounded walk protects against malformed input containing cycles.
	for range len(st.parents) {
		parent, exists := st.parents[types.ScopeKey{Image: image, ID: scope}]
		if !exists || parent == 0 {
			return false
		}
		if parent == ancestor {
			return true
		}
		scope = parent
	}
	return false
}

type treeFile struct {
	Images []struct {
		Image  uint16 `yaml:"image"`
		Scopes []struct {
			ID     uint32 `yaml:"id"`
			Parent uint32 `yaml:"parent"`
		} `yaml:"scopes"`
	} `yaml:"images"`
}

// LoadStaticTree loads the static tree from YAML file.
func LoadStaticTree(path string) (*StaticTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	return DecodeStaticTree(f)
}

// DecodeStaticTree decodes the static tree from YAML document:
//
//	images:
//	  - image: 1
//	    scopes:
//	      - id: 2
//	        parent: 1
func DecodeStaticTree(r io.Reader) (*StaticTree, error) {
	var tf treeFile
	if err := yaml.NewDecoder(r).Decode(&tf); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decoding scope tree failed")
	}

	st := NewStaticTree()
	for _, img := range tf.Images {
		for _, s := range img.Scopes {
			if s.ID == 0 {
				return nil, errors.Errorf("scope ID 0 is reserved, image %d", img.Image)
			}
			if s.ID == s.Parent {
				return nil, errors.Errorf("scope %d of image %d is its own parent", s.ID, img.Image)
			}
			st.SetParent(img.Image, s.ID, s.Parent)
		}
	}
	return st, nil
}
