package tree

import "github.com/tagformat/btf"

// Node is a handle to one parsed value inside a Tree. Nodes are value
// types: cheap to copy, valid for the Tree's lifetime, and read-only
// (spec.md §4.8, C8).
type Node struct {
	tree *Tree
	n    *node
}

// IsNil reports whether the node's wire kind is nil.
func (nd Node) IsNil() bool { return nd.n != nil && nd.n.kind == kindNil }

// IsMissing reports whether nd is the sentinel returned by an
// `_optional` map lookup that found nothing (spec.md §4.8).
func (nd Node) IsMissing() bool { return nd.n == nil }

// Type reports the node's Kind, as it would appear on the wire.
// IsMissing nodes report KindMissing.
func (nd Node) Type() btf.Kind {
	if nd.n == nil {
		return btf.KindMissing
	}
	switch nd.n.kind {
	case kindNil:
		return btf.KindNil
	case kindBool:
		return btf.KindBool
	case kindInt:
		return btf.KindInt
	case kindUint:
		return btf.KindUint
	case kindFloat32:
		return btf.KindFloat32
	case kindFloat64:
		return btf.KindFloat64
	case kindStr:
		return btf.KindStr
	case kindBin:
		return btf.KindBin
	case kindArray:
		return btf.KindArray
	case kindMap:
		return btf.KindMap
	case kindExt:
		return btf.KindExt
	}
	return btf.KindMissing
}

// missingNode is the zero-value Node handle: its n field is nil, which
// every accessor treats as "missing" per spec.md §4.8's error
// propagation rule (operations on an errored or absent node return a
// nil node / zero / false).
var missingNode = Node{}

func (t *Tree) wrap(n *node) Node {
	if n == nil {
		return missingNode
	}
	return Node{tree: t, n: n}
}

func (nd Node) fail(err *btf.Error) Node {
	if nd.tree != nil {
		nd.tree.fail(err)
	}
	return missingNode
}
