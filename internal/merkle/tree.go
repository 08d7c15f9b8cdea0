// tree.go - Binary Merkle accumulator over UTXO leaves.
//
// Node values are scalars. Two children combine as ToScalar(g·left + h·right),
// which is order-sensitive, so direction bits on a path carry meaning. An odd
// layer pairs its last node with Hs("PAD", depth, position), where depth is the
// index of the layer being paired and position is the unmatched node's index.
// Build and Path share that rule so every path recomputes the root.

package merkle

import (
	"errors"
	"fmt"
	"math/big"

	"mockmonero/internal/group"
	"mockmonero/internal/transcript"
)

var (
	ErrEmptyLeaves     = errors.New("merkle: empty leaf set")
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// Direction of the current node relative to its sibling.
const (
	Left  uint8 = 0
	Right uint8 = 1
)

// HashLeaf is the domain-separated leaf Hs("LEAF", P, C).
func HashLeaf(g group.Group, P, C group.Point) *big.Int {
	return transcript.Challenge(g, []byte("LEAF"), transcript.Point(P), transcript.Point(C))
}

// HashNode combines two children.
func HashNode(g group.Group, left, right *big.Int) *big.Int {
	p := group.Combine(g, left, g.Generator(group.RoleTreeLeft), right, g.Generator(group.RoleTreeRight))
	return g.ToScalar(p)
}

// Pad is the stand-in sibling for the unmatched node at (depth, pos).
func Pad(g group.Group, depth, pos int) *big.Int {
	return transcript.Challenge(g, []byte("PAD"), transcript.Int(depth), transcript.Int(pos))
}

// Tree keeps every layer; layer 0 holds the leaves and the last layer the root.
// A Tree is a snapshot and is never mutated after Build.
type Tree struct {
	g      group.Group
	layers [][]*big.Int
}

// Build hashes leaves pairwise up to a single root.
func Build(g group.Group, leaves []*big.Int) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyLeaves
	}
	cur := make([]*big.Int, len(leaves))
	for i, l := range leaves {
		cur[i] = new(big.Int).Set(l)
	}
	layers := [][]*big.Int{cur}
	for depth := 0; len(cur) > 1; depth++ {
		next := make([]*big.Int, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			var right *big.Int
			if i+1 < len(cur) {
				right = cur[i+1]
			} else {
				right = Pad(g, depth, i)
			}
			next = append(next, HashNode(g, cur[i], right))
		}
		layers = append(layers, next)
		cur = next
	}
	return &Tree{g: g, layers: layers}, nil
}

// Root returns the single element of the top layer.
func (t *Tree) Root() *big.Int {
	top := t.layers[len(t.layers)-1]
	return new(big.Int).Set(top[0])
}

// Len is the number of leaves.
func (t *Tree) Len() int { return len(t.layers[0]) }

// Depth is the number of hashing levels, i.e. the length of every path.
func (t *Tree) Depth() int { return len(t.layers) - 1 }

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index int) (*big.Int, error) {
	if index < 0 || index >= t.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, t.Len())
	}
	return new(big.Int).Set(t.layers[0][index]), nil
}

// Path is an inclusion path from a leaf up to the root.
type Path struct {
	Leaf       *big.Int
	Siblings   []*big.Int
	Directions []uint8
}

// Path walks from the leaf at index to the root.
func (t *Tree) Path(index int) (*Path, error) {
	leaf, err := t.Leaf(index)
	if err != nil {
		return nil, err
	}
	p := &Path{
		Leaf:       leaf,
		Siblings:   make([]*big.Int, 0, t.Depth()),
		Directions: make([]uint8, 0, t.Depth()),
	}
	idx := index
	for d := 0; d < t.Depth(); d++ {
		layer := t.layers[d]
		if idx%2 == 1 {
			p.Siblings = append(p.Siblings, new(big.Int).Set(layer[idx-1]))
			p.Directions = append(p.Directions, Right)
		} else {
			if idx+1 < len(layer) {
				p.Siblings = append(p.Siblings, new(big.Int).Set(layer[idx+1]))
			} else {
				p.Siblings = append(p.Siblings, Pad(t.g, d, idx))
			}
			p.Directions = append(p.Directions, Left)
		}
		idx /= 2
	}
	return p, nil
}

// Root recomputes the root implied by the path.
func (p *Path) Root(g group.Group) *big.Int {
	return recompute(g, p.Leaf, p.Siblings, p.Directions)
}

func recompute(g group.Group, leaf *big.Int, siblings []*big.Int, dirs []uint8) *big.Int {
	cur := leaf
	for i, sib := range siblings {
		if dirs[i] == Left {
			cur = HashNode(g, cur, sib)
		} else {
			cur = HashNode(g, sib, cur)
		}
	}
	return cur
}
