package tree

import (
	"math"
	"unicode/utf8"

	"github.com/tagformat/btf"
	set3 "github.com/TomTonic/Set3"
)

// Tree is the immutable, random-access result of a parse (spec.md §4.8,
// C8). All query operations are O(1) except the map lookups and
// DuplicateMapKeys, which scan. Once an operation latches an error,
// Root returns a missing node, DuplicateMapKeys returns nil and Err
// keeps reporting that first error. Node handles obtained before the
// error do not consult it: they keep answering their own queries.
type Tree struct {
	arena *arena
	data  []byte
	root  childRange
	opts  btf.Options
	err   *btf.Error
}

func (t *Tree) fail(err *btf.Error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *Tree) ok() bool { return t.err == nil }

// Err returns the latched error, if any.
func (t *Tree) Err() *btf.Error { return t.err }

// Root returns the tree's root node.
func (t *Tree) Root() Node {
	if !t.ok() {
		return missingNode
	}
	return t.wrap(t.arena.at(t.root, 0))
}

func typeErr(want string, got btf.Kind) *btf.Error {
	return btf.NewErrorType("expected %s, got %s", want, got)
}

// --- scalar getters -------------------------------------------------

func (nd Node) rawInt() (int64, bool) {
	if nd.n == nil {
		return 0, false
	}
	switch nd.n.kind {
	case kindInt:
		return int64(nd.n.payload), true
	case kindUint:
		if nd.n.payload > math.MaxInt64 {
			return 0, false
		}
		return int64(nd.n.payload), true
	}
	return 0, false
}

func (nd Node) rawUint() (uint64, bool) {
	if nd.n == nil {
		return 0, false
	}
	switch nd.n.kind {
	case kindUint:
		return nd.n.payload, true
	case kindInt:
		v := int64(nd.n.payload)
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}

// Int64 returns the node's value as a signed 64-bit integer, succeeding
// for any Int node or a Uint node of at most MaxInt64 (spec.md §4.8 "typed getters
// with ranged conversion").
func (nd Node) Int64() int64 {
	v, ok := nd.rawInt()
	if !ok {
		nd.fail(typeErr("int", nd.Type()))
		return 0
	}
	return v
}

// Uint64 returns the node's value as an unsigned 64-bit integer.
func (nd Node) Uint64() uint64 {
	v, ok := nd.rawUint()
	if !ok {
		nd.fail(typeErr("uint", nd.Type()))
		return 0
	}
	return v
}

// Int8, Int16, Int32 narrow Int64's range, latching type on overflow.
func (nd Node) Int8() int8   { return int8(nd.rangedInt(math.MinInt8, math.MaxInt8)) }
func (nd Node) Int16() int16 { return int16(nd.rangedInt(math.MinInt16, math.MaxInt16)) }
func (nd Node) Int32() int32 { return int32(nd.rangedInt(math.MinInt32, math.MaxInt32)) }

func (nd Node) rangedInt(lo, hi int64) int64 {
	v, ok := nd.rawInt()
	if !ok || v < lo || v > hi {
		nd.fail(typeErr("int in range", nd.Type()))
		return 0
	}
	return v
}

// Uint8, Uint16, Uint32 narrow Uint64's range, latching type on
// overflow.
func (nd Node) Uint8() uint8   { return uint8(nd.rangedUint(math.MaxUint8)) }
func (nd Node) Uint16() uint16 { return uint16(nd.rangedUint(math.MaxUint16)) }
func (nd Node) Uint32() uint32 { return uint32(nd.rangedUint(math.MaxUint32)) }

func (nd Node) rangedUint(hi uint64) uint64 {
	v, ok := nd.rawUint()
	if !ok || v > hi {
		nd.fail(typeErr("uint in range", nd.Type()))
		return 0
	}
	return v
}

// Bool returns the node's boolean value.
func (nd Node) Bool() bool {
	if nd.n == nil || nd.n.kind != kindBool {
		nd.fail(typeErr("bool", nd.Type()))
		return false
	}
	return nd.n.payload != 0
}

// Float64 returns the node's value as a float64, allowing conversion
// among int, uint, float32 and float64 (spec.md §4.8 "float/double
// allow conversion").
func (nd Node) Float64() float64 {
	if nd.n != nil {
		switch nd.n.kind {
		case kindFloat64:
			return nd.n.asFloat64()
		case kindFloat32:
			return float64(nd.n.asFloat32())
		case kindInt:
			return float64(int64(nd.n.payload))
		case kindUint:
			return float64(nd.n.payload)
		}
	}
	nd.fail(typeErr("numeric", nd.Type()))
	return 0
}

// Float64Strict returns the node's value only if it is exactly a
// float64 tag, forbidding cross-kind conversion.
func (nd Node) Float64Strict() float64 {
	if nd.n == nil || nd.n.kind != kindFloat64 {
		nd.fail(typeErr("float64", nd.Type()))
		return 0
	}
	return nd.n.asFloat64()
}

// Float32 returns the node's value as a float32, allowing conversion
// among int, uint, float32 and float64.
func (nd Node) Float32() float32 {
	return float32(nd.Float64())
}

// Float32Strict returns the node's value only if it is exactly a
// float32 tag.
func (nd Node) Float32Strict() float32 {
	if nd.n == nil || nd.n.kind != kindFloat32 {
		nd.fail(typeErr("float32", nd.Type()))
		return 0
	}
	return nd.n.asFloat32()
}

// ExtType returns an ext node's user type code.
func (nd Node) ExtType() int8 {
	if nd.n == nil || nd.n.kind != kindExt {
		nd.fail(typeErr("ext", nd.Type()))
		return 0
	}
	return nd.n.extType
}

// Timestamp decodes an ext(-1) node's packed payload.
func (nd Node) Timestamp() btf.Timestamp {
	if nd.n == nil || nd.n.kind != kindExt || nd.n.extType != btf.ExtTimestamp {
		nd.fail(typeErr("timestamp ext", nd.Type()))
		return btf.Timestamp{}
	}
	ts, err := btf.DecodeTimestamp(nd.payloadBytes(), nd.n.length)
	if err != nil {
		nd.fail(err)
		return btf.Timestamp{}
	}
	return ts
}

// --- array / map -----------------------------------------------------

// ArrayLength returns the element count of an array node.
func (nd Node) ArrayLength() uint32 {
	if nd.n == nil || nd.n.kind != kindArray {
		nd.fail(typeErr("array", nd.Type()))
		return 0
	}
	return nd.n.length
}

// ArrayAt returns the i'th element of an array node. Out-of-bounds
// latches a data error and returns a missing node (spec.md §4.8
// "array_at(i)").
func (nd Node) ArrayAt(i uint32) Node {
	if nd.n == nil || nd.n.kind != kindArray {
		return nd.fail(typeErr("array", nd.Type()))
	}
	if i >= nd.n.length {
		return nd.fail(btf.NewErrorData("array index %d out of bounds (length %d)", i, nd.n.length))
	}
	return nd.tree.wrap(nd.tree.arena.at(nd.n.children, int(i)))
}

// MapCount returns the pair count of a map node.
func (nd Node) MapCount() uint32 {
	if nd.n == nil || nd.n.kind != kindMap {
		nd.fail(typeErr("map", nd.Type()))
		return 0
	}
	return nd.n.length
}

// MapKeyAt returns the key of the i'th pair of a map node.
func (nd Node) MapKeyAt(i uint32) Node { return nd.mapChildAt(i, 0) }

// MapValueAt returns the value of the i'th pair of a map node.
func (nd Node) MapValueAt(i uint32) Node { return nd.mapChildAt(i, 1) }

func (nd Node) mapChildAt(i uint32, half int) Node {
	if nd.n == nil || nd.n.kind != kindMap {
		return nd.fail(typeErr("map", nd.Type()))
	}
	if i >= nd.n.length {
		return nd.fail(btf.NewErrorData("map index %d out of bounds (count %d)", i, nd.n.length))
	}
	return nd.tree.wrap(nd.tree.arena.at(nd.n.children, int(i)*2+half))
}

// mapFind returns the value of the last pair whose key satisfies
// matches, along with how many pairs matched (for duplicate detection), per
// spec.md §4.8's "linear scan" map lookup contract.
func (nd Node) mapFind(matches func(Node) bool) (value Node, count int) {
	n := nd.MapCount()
	if nd.n == nil {
		return missingNode, 0
	}
	for i := uint32(0); i < n; i++ {
		k := nd.MapKeyAt(i)
		if matches(k) {
			count++
			value = nd.MapValueAt(i)
		}
	}
	return value, count
}

func (nd Node) mapGet(matches func(Node) bool, optional bool) Node {
	if nd.n == nil || nd.n.kind != kindMap {
		return nd.fail(typeErr("map", nd.Type()))
	}
	v, count := nd.mapFind(matches)
	switch {
	case count > 1:
		return nd.fail(btf.NewErrorData("duplicate map key"))
	case count == 1:
		return v
	case optional:
		return missingNode
	default:
		return nd.fail(btf.NewErrorData("map key not found"))
	}
}

// MapGetInt looks up a map value by a signed-integer key.
func (nd Node) MapGetInt(key int64) Node {
	return nd.mapGet(func(k Node) bool { v, ok := k.rawInt(); return ok && v == key }, false)
}

// MapGetIntOptional is MapGetInt but returns a missing node instead of
// latching an error when key is absent.
func (nd Node) MapGetIntOptional(key int64) Node {
	return nd.mapGet(func(k Node) bool { v, ok := k.rawInt(); return ok && v == key }, true)
}

// MapGetUint looks up a map value by an unsigned-integer key.
func (nd Node) MapGetUint(key uint64) Node {
	return nd.mapGet(func(k Node) bool { v, ok := k.rawUint(); return ok && v == key }, false)
}

// MapGetUintOptional is MapGetUint but returns a missing node instead of
// latching an error when key is absent.
func (nd Node) MapGetUintOptional(key uint64) Node {
	return nd.mapGet(func(k Node) bool { v, ok := k.rawUint(); return ok && v == key }, true)
}

// MapGetStr looks up a map value by a string key, comparing raw bytes.
func (nd Node) MapGetStr(key string) Node {
	return nd.mapGet(func(k Node) bool { return k.n != nil && k.n.kind == kindStr && string(k.payloadBytes()) == key }, false)
}

// MapGetStrOptional is MapGetStr but returns a missing node instead of
// latching an error when key is absent.
func (nd Node) MapGetStrOptional(key string) Node {
	return nd.mapGet(func(k Node) bool { return k.n != nil && k.n.kind == kindStr && string(k.payloadBytes()) == key }, true)
}

// MapGetCStr is MapGetStr for a caller that already stripped a trailing
// NUL from its lookup key; the underlying comparison is identical since
// BTF's str kind carries no embedded terminator.
func (nd Node) MapGetCStr(key string) Node { return nd.MapGetStr(key) }

// MapGetCStrOptional is the optional form of MapGetCStr.
func (nd Node) MapGetCStrOptional(key string) Node { return nd.MapGetStrOptional(key) }

// --- payload data -----------------------------------------------------

func (nd Node) payloadBytes() []byte {
	if nd.n == nil || nd.tree == nil {
		return nil
	}
	off := nd.n.offset
	return nd.tree.data[off : off+nd.n.length]
}

// StrLen returns a str node's byte length.
func (nd Node) StrLen() uint32 {
	if nd.n == nil || nd.n.kind != kindStr {
		nd.fail(typeErr("str", nd.Type()))
		return 0
	}
	return nd.n.length
}

// DataLen returns a str/bin/ext node's payload byte length.
func (nd Node) DataLen() uint32 {
	if nd.n == nil || (nd.n.kind != kindStr && nd.n.kind != kindBin && nd.n.kind != kindExt) {
		nd.fail(typeErr("str/bin/ext", nd.Type()))
		return 0
	}
	return nd.n.length
}

// Data returns a str/bin/ext node's payload bytes, a slice directly
// into the Tree's underlying source data. The slice is valid for the
// Tree's lifetime; callers that need an independent copy use CopyData.
func (nd Node) Data() []byte {
	if nd.n == nil || (nd.n.kind != kindStr && nd.n.kind != kindBin && nd.n.kind != kindExt) {
		nd.fail(typeErr("str/bin/ext", nd.Type()))
		return nil
	}
	return nd.payloadBytes()
}

// CopyData returns an independently-owned copy of a str/bin/ext node's
// payload bytes.
func (nd Node) CopyData() []byte {
	src := nd.Data()
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// CopyCStr returns an independently-owned, NUL-terminated copy of a str
// node's payload, latching type if the payload itself contains an
// embedded NUL (spec.md §4.8 "copy_cstr (adds NUL, rejects embedded
// NUL)").
func (nd Node) CopyCStr() []byte {
	src := nd.Data()
	if src == nil {
		return nil
	}
	for _, b := range src {
		if b == 0 {
			nd.fail(btf.NewErrorType("payload contains an embedded NUL byte"))
			return nil
		}
	}
	out := make([]byte, len(src)+1)
	copy(out, src)
	return out
}

// CheckUTF8 reports whether a str/bin/ext node's payload is valid UTF-8.
func (nd Node) CheckUTF8() bool {
	data := nd.Data()
	if data == nil {
		return false
	}
	return utf8.Valid(data)
}

// CheckUTF8Cstr reports whether a str/bin/ext node's payload is valid
// UTF-8 with no embedded NUL byte, the rule copy_cstr depends on.
func (nd Node) CheckUTF8Cstr() bool {
	data := nd.Data()
	if data == nil {
		return false
	}
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

// Enum finds the first entry of options equal to the node's str
// payload, returning its index, or len(options) on no match (spec.md
// §4.8 "enum(strings) (find-first-match, returns count on miss)").
func (nd Node) Enum(options []string) int {
	data := nd.Data()
	if data == nil {
		return len(options)
	}
	s := string(data)
	for i, opt := range options {
		if opt == s {
			return i
		}
	}
	return len(options)
}

// --- whole-tree diagnostics --------------------------------------------

// DuplicateMapKeyReport names one map node found to contain a repeated
// key, and the repeated key bytes themselves.
type DuplicateMapKeyReport struct {
	Map Node
	Key []byte
}

// DuplicateMapKeys walks the whole tree once and reports, for each map
// node, every distinct str key it repeats, one report per key
// (SPEC_FULL.md §4.2). Only str keys are compared: repeated integer or
// other non-str keys are not reported, and compound keys are not
// descended into. It never changes
// map_* lookup's per-key linear-scan semantics; it exists so a caller
// can reject a malformed document wholesale instead of discovering
// duplicates one key at a time.
func (t *Tree) DuplicateMapKeys() []DuplicateMapKeyReport {
	if !t.ok() {
		return nil
	}
	var out []DuplicateMapKeyReport
	var walk func(nd Node)
	walk = func(nd Node) {
		if nd.n == nil {
			return
		}
		switch nd.n.kind {
		case kindArray:
			for i := uint32(0); i < nd.n.length; i++ {
				walk(nd.ArrayAt(i))
			}
		case kindMap:
			seen := set3.Empty[string]()
			reported := set3.Empty[string]()
			for i := uint32(0); i < nd.n.length; i++ {
				k := nd.MapKeyAt(i)
				if k.n == nil || k.n.kind != kindStr {
					continue
				}
				raw := string(k.payloadBytes())
				if seen.Contains(raw) {
					if !reported.Contains(raw) {
						reported.Add(raw)
						out = append(out, DuplicateMapKeyReport{Map: nd, Key: []byte(raw)})
					}
					continue
				}
				seen.Add(raw)
			}
			for i := uint32(0); i < nd.n.length; i++ {
				walk(nd.MapValueAt(i))
			}
		}
	}
	walk(t.Root())
	return out
}
