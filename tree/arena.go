// Package tree materializes a bounded BTF message as an immutable,
// random-access node tree (spec.md §4.6-§4.8).
package tree

import "unsafe"

// node is the fixed-size record every parsed value occupies (spec.md
// §4.6 "A node record is fixed-size"). payload carries bool/int64/
// uint64/float32/float64 bits, offset carries the offset into the data
// and children the child range; which field is meaningful is determined
// entirely by kind, mirroring the teacher's common-header-plus-union
// node shapes.
type node struct {
	kind     nodeKind
	extType  int8
	length   uint32 // byte length (str/bin/ext) or element/pair count (array/map)
	offset   uint32 // byte offset into the source data, for str/bin/ext
	payload  uint64 // bool/int64/uint64 bits, or float32/float64 bits
	children childRange
}

// childRange addresses a physically contiguous run of child nodes
// within a single page (spec.md §4.6 "Children of a compound must be
// physically contiguous within a single page").
type childRange struct {
	page  int32
	start int32
	count int32
}

type nodeKind uint8

const (
	kindNil nodeKind = iota
	kindBool
	kindInt
	kindUint
	kindFloat32
	kindFloat64
	kindStr
	kindBin
	kindArray
	kindMap
	kindExt
)

// asFloat32 reinterprets the payload bits as a float32, the arena's
// equivalent of the teacher's asNodeNN() struct-punning helpers —
// generalized here from "pick one of N fixed node shapes" to "pick one
// of N interpretations of a single fixed payload word".
func (n *node) asFloat32() float32 {
	bits := uint32(n.payload)
	return *(*float32)(unsafe.Pointer(&bits))
}

func (n *node) asFloat64() float64 {
	bits := n.payload
	return *(*float64)(unsafe.Pointer(&bits))
}

func (n *node) setFloat32(v float32) {
	n.payload = uint64(*(*uint32)(unsafe.Pointer(&v)))
}

func (n *node) setFloat64(v float64) {
	n.payload = *(*uint64)(unsafe.Pointer(&v))
}

// page is one fixed-capacity slab of node records. In pool mode the
// arena has exactly one non-owned page (the caller's slice); in paged
// mode the arena allocates a chain of owned pages sized to target
// pageTargetBytes.
type page struct {
	nodes []node
	len   int
}

func (p *page) remaining() int { return len(p.nodes) - p.len }

// arena is the C6 node allocator backing a parse (spec.md §4.6). It
// supports two layouts: pool mode, where the caller supplies a fixed
// slice of node slots up front, and paged mode, where the arena grows
// its own chain of pages on demand.
type arena struct {
	pages      []*page
	pooled     bool
	pageTarget int // target page size in bytes, paged mode only
	maxNodes   int
	nodeCount  int
}

const nodeRecordSize = int(unsafe.Sizeof(node{}))

// newPoolArena wraps a caller-supplied, contiguous slot array. Parsing
// fails with too_big once the slots are exhausted (spec.md §4.6 "Pool
// mode").
func newPoolArena(slots []node, maxNodes int) *arena {
	return &arena{
		pages:    []*page{{nodes: slots}},
		pooled:   true,
		maxNodes: maxNodes,
	}
}

// newPagedArena starts an arena that allocates its own pages of
// approximately pageTargetBytes each as needed (spec.md §4.6 "Paged
// mode").
func newPagedArena(pageTargetBytes, maxNodes int) *arena {
	if pageTargetBytes < nodeRecordSize {
		pageTargetBytes = nodeRecordSize
	}
	return &arena{pageTarget: pageTargetBytes, maxNodes: maxNodes}
}

// nodesPerPage is how many node records fit in one target-sized page.
func (a *arena) nodesPerPage() int {
	n := a.pageTarget / nodeRecordSize
	if n < 1 {
		n = 1
	}
	return n
}

// reserveChildren allocates a physically contiguous run of count node
// slots for the children of a compound. In paged mode the run goes into
// the current page whenever that page has count free slots. Otherwise a
// new page is started: a dedicated page sized exactly for the compound
// when count exceeds a standard page, else a standard-size page. The
// free slots left in the abandoned page are not used again.
func (a *arena) reserveChildren(count int) (childRange, bool) {
	if a.maxNodes > 0 && a.nodeCount+count > a.maxNodes {
		return childRange{}, false
	}
	if count == 0 {
		return childRange{page: -1}, true
	}
	if a.pooled {
		p := a.pages[0]
		if p.remaining() < count {
			return childRange{}, false
		}
		start := p.len
		p.len += count
		a.nodeCount += count
		return childRange{page: 0, start: int32(start), count: int32(count)}, true
	}

	standard := a.nodesPerPage()
	if cur := a.currentPage(); cur != nil {
		mostlyFull := cur.remaining() < standard/4
		if cur.remaining() >= count && !(count > standard/2 && mostlyFull && cur.remaining() < count*2) {
			start := cur.len
			cur.len += count
			a.nodeCount += count
			return childRange{page: int32(len(a.pages) - 1), start: int32(start), count: int32(count)}, true
		}
	}

	size := standard
	if count > standard {
		size = count // dedicated page sized exactly for an oversized compound
	}
	np := &page{nodes: make([]node, size)}
	np.len = count
	a.pages = append(a.pages, np)
	a.nodeCount += count
	return childRange{page: int32(len(a.pages) - 1), start: 0, count: int32(count)}, true
}

func (a *arena) currentPage() *page {
	if len(a.pages) == 0 {
		return nil
	}
	return a.pages[len(a.pages)-1]
}

// allocRoot reserves the single root node slot. Pool mode takes slot 0
// the first time it is called; paged mode reserves a 1-node range like
// any other node.
func (a *arena) allocRoot() (childRange, bool) {
	return a.reserveChildren(1)
}

func (a *arena) at(r childRange, i int) *node {
	return &a.pages[r.page].nodes[int(r.start)+i]
}
