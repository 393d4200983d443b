package tree

import "github.com/tagformat/btf"

// FillFunc pulls more source bytes for a resumable parse. It returns
// (0, nil) to signal "no more data available right now" — the
// non-blocking case TryParse reports as incomplete (spec.md §4.7
// "Resumption") — or a positive count once bytes are ready, or an
// error.
type FillFunc func(buf []byte) (int, *btf.Error)

type parseState uint8

const (
	stateNotStarted parseState = iota
	stateInProgress
	stateParsed
)

// frame is one level of the parser's explicit descent stack (spec.md
// §4.7 "stack[level].{cursor, children_left}"). Parsing is iterative,
// never recursive, so resumption just means re-entering this loop with
// the stack as it was left.
type frame struct {
	rng   childRange
	total int
	next  int
	isMap bool
}

// Parser is the resumable, bounded-allocation tree parser (spec.md
// §4.7, C7). A Parser is single-use: once it reaches stateParsed, call
// Tree to retrieve the result.
type Parser struct {
	opts   btf.Options
	arena  *arena
	data   []byte // accumulated source bytes; node offsets are absolute into this slice
	pos    int
	fill   FillFunc
	state  parseState
	stack  []frame
	root   childRange
	rooted bool

	possibleNodesLeft int64
	maxSize           int
	maxNodes          int

	err *btf.Error
}

// defaultInitialStackDepth mirrors Options.InitialStackDepth; used when
// the caller leaves it at zero.
const defaultInitialStackDepth = 8

// NewParser returns a Parser over a complete, already-available buffer:
// no fill callback, so a truncated message latches invalid instead of
// returning "incomplete", since nothing can ever fill more.
func NewParser(data []byte, maxSize, maxNodes int, opts btf.Options) *Parser {
	return newParser(data, nil, maxSize, maxNodes, opts)
}

// NewResumableParser returns a Parser that pulls additional bytes from
// fill on demand, supporting TryParse's non-blocking resumption.
func NewResumableParser(initial []byte, fill FillFunc, maxSize, maxNodes int, opts btf.Options) *Parser {
	return newParser(initial, fill, maxSize, maxNodes, opts)
}

func newParser(data []byte, fill FillFunc, maxSize, maxNodes int, opts btf.Options) *Parser {
	depth := opts.InitialStackDepth
	if depth <= 0 {
		depth = defaultInitialStackDepth
	}
	p := &Parser{
		opts:              opts,
		data:              data,
		fill:              fill,
		maxSize:           maxSize,
		maxNodes:          maxNodes,
		possibleNodesLeft: int64(len(data)),
		stack:             make([]frame, 0, depth),
	}
	p.arena = newPagedArena(opts.NodePageSize, maxNodes)
	return p
}

func (p *Parser) fail(err *btf.Error) { p.err = err }
func (p *Parser) ok() bool            { return p.err == nil }

// Err returns the latched error, if any.
func (p *Parser) Err() *btf.Error { return p.err }

// ensureAvailable guarantees n bytes are available at p.pos, pulling
// from fill as needed. Returns (true, true) when satisfied, (false,
// true) when fill signalled "no data right now" (resumable case), and
// (false, false) when an error was latched.
func (p *Parser) ensureAvailable(n int) (ready bool, cleanStop bool) {
	if p.maxSize > 0 && p.pos+n > p.maxSize {
		p.fail(btf.NewErrorTooBig("message exceeds max_size"))
		return false, false
	}
	for len(p.data)-p.pos < n {
		if p.fill == nil {
			p.fail(btf.NewErrorInvalid("truncated input: need %d more bytes than source provides", n-(len(p.data)-p.pos)))
			return false, false
		}
		buf := make([]byte, n)
		got, err := p.fill(buf)
		if err != nil {
			p.fail(err)
			return false, false
		}
		if got == 0 {
			return false, true
		}
		p.data = append(p.data, buf[:got]...)
		p.possibleNodesLeft += int64(got)
	}
	return true, true
}

// reserveCount applies spec.md §4.7's pre-reservation accounting: N
// byte-budget units for an array's N children, 2N for a map's N pairs,
// rejecting immediately (too_big) when the declared count cannot
// possibly be backed by bytes seen so far.
func (p *Parser) reserveCount(units int64) bool {
	if units > p.possibleNodesLeft {
		p.fail(btf.NewErrorTooBig("declared child count exceeds bytes available to back it"))
		return false
	}
	p.possibleNodesLeft -= units
	return true
}

// TryParse advances the parse as far as currently available bytes
// allow. It returns true once the tree is fully parsed (state
// becomes stateParsed); false means either an error latched (check
// Err()) or the fill callback returned "no data right now", in which
// case a later TryParse call resumes exactly where this one left off.
func (p *Parser) TryParse() bool {
	if p.state == stateParsed {
		return true
	}
	if !p.ok() {
		return false
	}
	p.state = stateInProgress

	if !p.rooted {
		rng, ok := p.arena.allocRoot()
		if !ok {
			p.fail(btf.NewErrorTooBig("node capacity exhausted before root"))
			return false
		}
		p.root = rng
		if !p.parseOneInto(p.arena.at(rng, 0)) {
			return false
		}
		p.rooted = true
	}

	for len(p.stack) > 0 {
		top := &p.stack[len(p.stack)-1]
		if top.next >= top.total {
			p.stack = p.stack[:len(p.stack)-1]
			continue
		}
		idx := top.next
		if !p.parseOneInto(p.arena.at(top.rng, idx)) {
			return false
		}
		top.next++
	}

	p.state = stateParsed
	return true
}

// parseOneInto parses exactly one node (header plus, for compounds,
// reservation of its children) into dst. Returns false if more bytes
// are needed (p.err is nil in the resumable "not ready yet" case) or an
// error latched.
func (p *Parser) parseOneInto(dst *node) bool {
	ready, _ := p.ensureAvailable(1)
	if !ready {
		return false
	}
	size, szErr := btf.TagHeaderSize(p.data[p.pos], p.opts)
	if szErr != nil {
		p.fail(szErr)
		return false
	}
	ready, _ = p.ensureAvailable(size)
	if !ready {
		return false
	}
	t, n, err := btf.DecodeTag(p.data[p.pos:p.pos+size], p.opts)
	if err != nil {
		p.fail(err)
		return false
	}
	p.pos += n

	switch t.Kind {
	case btf.KindNil:
		dst.kind = kindNil
	case btf.KindBool:
		dst.kind = kindBool
		if t.Bool {
			dst.payload = 1
		}
	case btf.KindInt:
		dst.kind = kindInt
		dst.payload = uint64(t.Int)
	case btf.KindUint:
		dst.kind = kindUint
		dst.payload = t.Uint
	case btf.KindFloat32:
		dst.kind = kindFloat32
		dst.setFloat32(t.Float32)
	case btf.KindFloat64:
		dst.kind = kindFloat64
		dst.setFloat64(t.Float64)
	case btf.KindStr, btf.KindBin, btf.KindExt:
		ready, _ = p.ensureAvailable(int(t.Length))
		if !ready {
			p.pos -= n // undo header consumption so retry re-reads the tag cleanly
			return false
		}
		switch t.Kind {
		case btf.KindStr:
			dst.kind = kindStr
		case btf.KindBin:
			dst.kind = kindBin
		case btf.KindExt:
			dst.kind = kindExt
			dst.extType = t.ExtType
		}
		dst.length = t.Length
		dst.offset = uint32(p.pos)
		p.pos += int(t.Length)
	case btf.KindArray, btf.KindMap:
		units := int64(t.Count)
		childCount := int(t.Count)
		if t.Kind == btf.KindMap {
			units *= 2
			childCount *= 2
		}
		if !p.reserveCount(units) {
			return false
		}
		rng, ok := p.arena.reserveChildren(childCount)
		if !ok {
			p.fail(btf.NewErrorTooBig("node capacity exhausted"))
			return false
		}
		if t.Kind == btf.KindArray {
			dst.kind = kindArray
		} else {
			dst.kind = kindMap
		}
		dst.length = t.Count
		dst.children = rng
		if childCount > 0 {
			if limit := p.opts.MaxStackDepthWithoutAlloc; limit > 0 && len(p.stack) >= limit {
				p.fail(btf.NewErrorTooBig("nesting depth exceeds MaxStackDepthWithoutAlloc (%d)", limit))
				return false
			}
			p.stack = append(p.stack, frame{rng: rng, total: childCount, isMap: t.Kind == btf.KindMap})
		}
	}
	return true
}

// Parse is the blocking wrapper (spec.md §4.7 "Blocking wrapper"): it
// calls TryParse once, treating a resumable fill's
// "not ready yet" signal as impossible progress — i.e. an io error —
// since a blocking caller's fill is expected to always eventually
// deliver or fail outright.
func (p *Parser) Parse() *btf.Error {
	for {
		if p.TryParse() {
			return nil
		}
		if p.err != nil {
			return p.err
		}
		p.fail(btf.NewErrorIO("fill returned no data in blocking parse"))
		return p.err
	}
}

// Tree returns the parsed result. Only meaningful once Parse succeeded
// or TryParse returned true.
func (p *Parser) Tree() *Tree {
	return &Tree{arena: p.arena, data: p.data, root: p.root, opts: p.opts, err: p.err}
}
