package btf

import (
	"encoding/binary"
	"math"
)

// Wire opcodes, spec.md §6.1. Bit-exact MessagePack v5, restricted by
// Options.Compatibility/ExtensionsEnabled where noted.
const (
	opNilByte      = 0xc0
	opReserved     = 0xc1
	opFalse        = 0xc2
	opTrue         = 0xc3
	opBin8         = 0xc4
	opBin16        = 0xc5
	opBin32        = 0xc6
	opExt8         = 0xc7
	opExt16        = 0xc8
	opExt32        = 0xc9
	opFloat32      = 0xca
	opFloat64      = 0xcb
	opU8           = 0xcc
	opU16          = 0xcd
	opU32          = 0xce
	opU64          = 0xcf
	opI8           = 0xd0
	opI16          = 0xd1
	opI32          = 0xd2
	opI64          = 0xd3
	opFixExt1      = 0xd4
	opFixExt2      = 0xd5
	opFixExt4      = 0xd6
	opFixExt8      = 0xd7
	opFixExt16     = 0xd8
	opStr8         = 0xd9
	opStr16        = 0xda
	opStr32        = 0xdb
	opArray16      = 0xdc
	opArray32      = 0xdd
	opMap16        = 0xde
	opMap32        = 0xdf
	fixMapBase     = 0x80
	fixMapMaxByte  = 0x8f
	fixArrBase     = 0x90
	fixArrMaxByte  = 0x9f
	fixStrBase     = 0xa0
	fixStrMaxByte  = 0xbf
	posFixIntMax   = 0x7f
	negFixIntBase  = 0xe0
)

// checkExt returns an error when Ext opcodes are not usable under opts:
// either extensions are off, or v4 compatibility forbids all ext forms
// outright (spec.md §6.1).
func checkExt(opts Options) *Error {
	if opts.Compatibility == CompatV4 {
		return newError(KindUnsupported, "ext forms are forbidden under v4 compatibility")
	}
	if !opts.ExtensionsEnabled {
		return newError(KindUnsupported, "ext support is disabled")
	}
	return nil
}

// checkStr8 returns an error when the str8 opcode is not usable under
// opts: v4 compatibility forbids it (spec.md §6.1).
func checkStr8(opts Options) *Error {
	if opts.Compatibility == CompatV4 {
		return newError(KindUnsupported, "str8 is forbidden under v4 compatibility")
	}
	return nil
}

// TagHeaderSize reports how many bytes — starting at and including the
// opcode byte b0 — a full tag header occupies, without looking at any
// further bytes. Byte reader and tree parser implementations call this
// after ensuring 1 byte is available, then ensure that many bytes before
// calling DecodeTag (spec.md §4.5 "Read tag").
func TagHeaderSize(b0 byte, opts Options) (int, *Error) {
	switch {
	case b0 <= posFixIntMax:
		return SizeFixInt, nil
	case b0 >= negFixIntBase:
		return SizeFixInt, nil
	case b0 >= fixMapBase && b0 <= fixMapMaxByte:
		return HeaderFixMap, nil
	case b0 >= fixArrBase && b0 <= fixArrMaxByte:
		return HeaderFixArray, nil
	case b0 >= fixStrBase && b0 <= fixStrMaxByte:
		return HeaderFixStr, nil
	}
	switch b0 {
	case opNilByte, opFalse, opTrue:
		return 1, nil
	case opReserved:
		return 0, newError(KindInvalid, "0xc1 is a reserved opcode")
	case opBin8:
		return HeaderBin8, nil
	case opBin16:
		return HeaderBin16, nil
	case opBin32:
		return HeaderBin32, nil
	case opExt8:
		return HeaderExt8, checkExt(opts)
	case opExt16:
		return HeaderExt16, checkExt(opts)
	case opExt32:
		return HeaderExt32, checkExt(opts)
	case opFloat32:
		return SizeFloat32, nil
	case opFloat64:
		return SizeFloat64, nil
	case opU8:
		return SizeU8, nil
	case opU16:
		return SizeU16, nil
	case opU32:
		return SizeU32, nil
	case opU64:
		return SizeU64, nil
	case opI8:
		return SizeI8, nil
	case opI16:
		return SizeI16, nil
	case opI32:
		return SizeI32, nil
	case opI64:
		return SizeI64, nil
	case opFixExt1:
		return HeaderFixExt1, checkExt(opts)
	case opFixExt2:
		return HeaderFixExt2, checkExt(opts)
	case opFixExt4:
		return HeaderFixExt4, checkExt(opts)
	case opFixExt8:
		return HeaderFixExt8, checkExt(opts)
	case opFixExt16:
		return HeaderFixExt16, checkExt(opts)
	case opStr8:
		return HeaderStr8, checkStr8(opts)
	case opStr16:
		return HeaderStr16, nil
	case opStr32:
		return HeaderStr32, nil
	case opArray16:
		return HeaderArray16, nil
	case opArray32:
		return HeaderArray32, nil
	case opMap16:
		return HeaderMap16, nil
	case opMap32:
		return HeaderMap32, nil
	}
	return 0, newError(KindInvalid, "unknown opcode 0x%02x", b0)
}

// DecodeTag parses one tag from the prefix of src. src must hold at
// least TagHeaderSize(src[0], opts) bytes; the reader/parser guarantee
// this before calling. Returns the tag and the number of header bytes
// consumed (not including any str/bin/ext payload, which callers read
// separately). All multi-byte fields are big-endian (spec.md §4.2,
// §6.1).
func DecodeTag(src []byte, opts Options) (Tag, int, *Error) {
	if len(src) == 0 {
		return Tag{}, 0, newError(KindInvalid, "empty input")
	}
	if opts.SizeOptimized {
		return decodeTagSizeOptimized(src, opts)
	}
	return decodeTagFull(src, opts, src[0])
}

// decodeTagSizeOptimized implements SPEC_FULL.md §4.3's size-optimized
// dispatch: a cheap high-nibble triage for the two densest single-byte
// opcode ranges (positive and negative fixint) before falling back to
// the full per-opcode switch for everything else. Behavior is identical
// to decodeTagFull; only the branch order differs.
func decodeTagSizeOptimized(src []byte, opts Options) (Tag, int, *Error) {
	b0 := src[0]
	switch b0 >> 4 {
	case 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7:
		return Tag{Kind: KindUint, Uint: uint64(b0)}, 1, nil
	case 0xe, 0xf:
		return Tag{Kind: KindInt, Int: int64(int8(b0))}, 1, nil
	default:
		return decodeTagFull(src, opts, b0)
	}
}

func decodeTagFull(src []byte, opts Options, b0 byte) (Tag, int, *Error) {
	size, err := TagHeaderSize(b0, opts)
	if err != nil {
		return Tag{}, 0, err
	}
	if len(src) < size {
		return Tag{}, 0, newError(KindInvalid, "truncated tag header: need %d, have %d", size, len(src))
	}

	switch {
	case b0 <= posFixIntMax:
		return Tag{Kind: KindUint, Uint: uint64(b0)}, 1, nil
	case b0 >= negFixIntBase:
		return Tag{Kind: KindInt, Int: int64(int8(b0))}, 1, nil
	case b0 >= fixMapBase && b0 <= fixMapMaxByte:
		return TagMap(uint32(b0 & 0x0f)), 1, nil
	case b0 >= fixArrBase && b0 <= fixArrMaxByte:
		return TagArray(uint32(b0 & 0x0f)), 1, nil
	case b0 >= fixStrBase && b0 <= fixStrMaxByte:
		return TagStr(uint32(b0 & 0x1f)), 1, nil
	}

	switch b0 {
	case opNilByte:
		return TagNil(), 1, nil
	case opFalse:
		return TagBool(false), 1, nil
	case opTrue:
		return TagBool(true), 1, nil
	case opBin8:
		return TagBin(uint32(src[1])), size, nil
	case opBin16:
		return TagBin(uint32(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opBin32:
		return TagBin(binary.BigEndian.Uint32(src[1:5])), size, nil
	case opExt8:
		return TagExt(int8(src[2]), uint32(src[1])), size, nil
	case opExt16:
		return TagExt(int8(src[3]), uint32(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opExt32:
		return TagExt(int8(src[5]), binary.BigEndian.Uint32(src[1:5])), size, nil
	case opFloat32:
		bits := binary.BigEndian.Uint32(src[1:5])
		return TagFloat32(math.Float32frombits(bits)), size, nil
	case opFloat64:
		bits := binary.BigEndian.Uint64(src[1:9])
		return TagFloat64(math.Float64frombits(bits)), size, nil
	case opU8:
		return TagUint(uint64(src[1])), size, nil
	case opU16:
		return TagUint(uint64(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opU32:
		return TagUint(uint64(binary.BigEndian.Uint32(src[1:5]))), size, nil
	case opU64:
		return TagUint(binary.BigEndian.Uint64(src[1:9])), size, nil
	case opI8:
		return TagInt(int64(int8(src[1]))), size, nil
	case opI16:
		return TagInt(int64(int16(binary.BigEndian.Uint16(src[1:3])))), size, nil
	case opI32:
		return TagInt(int64(int32(binary.BigEndian.Uint32(src[1:5])))), size, nil
	case opI64:
		return TagInt(int64(binary.BigEndian.Uint64(src[1:9]))), size, nil
	case opFixExt1:
		return TagExt(int8(src[1]), 1), size, nil
	case opFixExt2:
		return TagExt(int8(src[1]), 2), size, nil
	case opFixExt4:
		return TagExt(int8(src[1]), 4), size, nil
	case opFixExt8:
		return TagExt(int8(src[1]), 8), size, nil
	case opFixExt16:
		return TagExt(int8(src[1]), 16), size, nil
	case opStr8:
		return TagStr(uint32(src[1])), size, nil
	case opStr16:
		return TagStr(uint32(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opStr32:
		return TagStr(binary.BigEndian.Uint32(src[1:5])), size, nil
	case opArray16:
		return TagArray(uint32(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opArray32:
		return TagArray(binary.BigEndian.Uint32(src[1:5])), size, nil
	case opMap16:
		return TagMap(uint32(binary.BigEndian.Uint16(src[1:3]))), size, nil
	case opMap32:
		return TagMap(binary.BigEndian.Uint32(src[1:5])), size, nil
	}
	return Tag{}, 0, newError(KindInvalid, "unknown opcode 0x%02x", b0)
}

// EncodeTag writes the minimal encoding of t into dst (spec.md §4.2) and
// returns the number of bytes written. dst must have length at least
// MaxTagSize; every tag header this codec emits fits within that bound.
func EncodeTag(dst []byte, t Tag, opts Options) (int, *Error) {
	if len(dst) < MaxTagSize {
		return 0, newError(KindTooBig, "destination shorter than MaxTagSize (%d)", MaxTagSize)
	}
	switch t.Kind {
	case KindNil:
		dst[0] = opNilByte
		return 1, nil
	case KindBool:
		if t.Bool {
			dst[0] = opTrue
		} else {
			dst[0] = opFalse
		}
		return 1, nil
	case KindInt:
		if t.Int >= 0 {
			return encodeUintValue(dst, uint64(t.Int)), nil
		}
		return encodeNegInt(dst, t.Int), nil
	case KindUint:
		return encodeUintValue(dst, t.Uint), nil
	case KindFloat32:
		dst[0] = opFloat32
		binary.BigEndian.PutUint32(dst[1:5], math.Float32bits(t.Float32))
		return SizeFloat32, nil
	case KindFloat64:
		dst[0] = opFloat64
		binary.BigEndian.PutUint64(dst[1:9], math.Float64bits(t.Float64))
		return SizeFloat64, nil
	case KindStr:
		return encodeStrHeader(dst, t.Length, opts)
	case KindBin:
		return encodeBinHeader(dst, t.Length, opts)
	case KindArray:
		return encodeCompoundHeader(dst, t.Count, fixArrBase, fixCountMax, opArray16, opArray32), nil
	case KindMap:
		return encodeCompoundHeader(dst, t.Count, fixMapBase, fixCountMax, opMap16, opMap32), nil
	case KindExt:
		return encodeExtHeader(dst, t.ExtType, t.Length, opts)
	case KindMissing, KindNoop:
		return 0, newError(KindBug, "%s is never encoded to the wire", t.Kind)
	}
	return 0, newError(KindBug, "unknown tag kind %d", t.Kind)
}

func encodeUintValue(dst []byte, u uint64) int {
	switch {
	case u <= fixIntPosMax:
		dst[0] = byte(u)
		return 1
	case u <= 0xff:
		dst[0] = opU8
		dst[1] = byte(u)
		return SizeU8
	case u <= u16Max:
		dst[0] = opU16
		binary.BigEndian.PutUint16(dst[1:3], uint16(u))
		return SizeU16
	case u <= u32Max:
		dst[0] = opU32
		binary.BigEndian.PutUint32(dst[1:5], uint32(u))
		return SizeU32
	default:
		dst[0] = opU64
		binary.BigEndian.PutUint64(dst[1:9], u)
		return SizeU64
	}
}

func encodeNegInt(dst []byte, v int64) int {
	switch {
	case v >= fixIntNegMin:
		dst[0] = byte(v)
		return 1
	case v >= -128:
		dst[0] = opI8
		dst[1] = byte(int8(v))
		return SizeI8
	case v >= -32768:
		dst[0] = opI16
		binary.BigEndian.PutUint16(dst[1:3], uint16(int16(v)))
		return SizeI16
	case v >= -2147483648:
		dst[0] = opI32
		binary.BigEndian.PutUint32(dst[1:5], uint32(int32(v)))
		return SizeI32
	default:
		dst[0] = opI64
		binary.BigEndian.PutUint64(dst[1:9], uint64(v))
		return SizeI64
	}
}

// encodeCompoundHeader writes the fixN/N16/N32 header for array/map tags
// (spec.md §4.2 count thresholds: 15 then 65535).
func encodeCompoundHeader(dst []byte, count uint32, fixBase byte, fixMax uint32, op16, op32 byte) int {
	switch {
	case count <= fixMax:
		dst[0] = fixBase | byte(count)
		return 1
	case count <= count16Max:
		dst[0] = op16
		binary.BigEndian.PutUint16(dst[1:3], uint16(count))
		return 3
	default:
		dst[0] = op32
		binary.BigEndian.PutUint32(dst[1:5], count)
		return 5
	}
}

func encodeStrHeader(dst []byte, length uint32, opts Options) (int, *Error) {
	if length <= fixStrMax {
		dst[0] = fixStrBase | byte(length)
		return 1, nil
	}
	if length <= 0xff && opts.Compatibility != CompatV4 {
		dst[0] = opStr8
		dst[1] = byte(length)
		return HeaderStr8, nil
	}
	if length <= u16Max {
		dst[0] = opStr16
		binary.BigEndian.PutUint16(dst[1:3], uint16(length))
		return HeaderStr16, nil
	}
	dst[0] = opStr32
	binary.BigEndian.PutUint32(dst[1:5], length)
	return HeaderStr32, nil
}

// encodeBinHeader writes a bin tag header. Under v4 compatibility, bin
// degrades to the str/raw family instead of bin8/16/32 (spec.md §6.1).
func encodeBinHeader(dst []byte, length uint32, opts Options) (int, *Error) {
	if opts.Compatibility == CompatV4 {
		return encodeStrHeader(dst, length, opts)
	}
	if length <= 0xff {
		dst[0] = opBin8
		dst[1] = byte(length)
		return HeaderBin8, nil
	}
	if length <= u16Max {
		dst[0] = opBin16
		binary.BigEndian.PutUint16(dst[1:3], uint16(length))
		return HeaderBin16, nil
	}
	dst[0] = opBin32
	binary.BigEndian.PutUint32(dst[1:5], length)
	return HeaderBin32, nil
}

func encodeExtHeader(dst []byte, extType int8, length uint32, opts Options) (int, *Error) {
	if err := checkExt(opts); err != nil {
		return 0, err
	}
	switch length {
	case 1:
		dst[0], dst[1] = opFixExt1, byte(extType)
		return HeaderFixExt1, nil
	case 2:
		dst[0], dst[1] = opFixExt2, byte(extType)
		return HeaderFixExt2, nil
	case 4:
		dst[0], dst[1] = opFixExt4, byte(extType)
		return HeaderFixExt4, nil
	case 8:
		dst[0], dst[1] = opFixExt8, byte(extType)
		return HeaderFixExt8, nil
	case 16:
		dst[0], dst[1] = opFixExt16, byte(extType)
		return HeaderFixExt16, nil
	}
	switch {
	case length <= 0xff:
		dst[0] = opExt8
		dst[1] = byte(length)
		dst[2] = byte(extType)
		return HeaderExt8, nil
	case length <= u16Max:
		dst[0] = opExt16
		binary.BigEndian.PutUint16(dst[1:3], uint16(length))
		dst[3] = byte(extType)
		return HeaderExt16, nil
	default:
		dst[0] = opExt32
		binary.BigEndian.PutUint32(dst[1:5], length)
		dst[5] = byte(extType)
		return HeaderExt32, nil
	}
}
