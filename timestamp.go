package btf

import "encoding/binary"

// Timestamp is a seconds/nanoseconds pair for the ExtTimestamp (-1) ext
// subtype (spec.md §6.2). Nanos must be in [0, 999999999]; Seconds may be
// negative (time before the Unix epoch).
type Timestamp struct {
	Seconds int64
	Nanos   uint32
}

const maxNanos = 999999999

// EncodeTimestamp writes the packed timestamp payload for ts into dst
// and returns the number of bytes written: 4 bytes when Seconds fits an
// unsigned 32-bit value and Nanos is zero, 8 bytes when the combined
// 34-bit-seconds-plus-30-bit-nanos value fits, else 12 bytes (spec.md
// §6.2). dst must be at least 12 bytes. The returned length is also the
// Ext tag's Length field the caller must encode.
func EncodeTimestamp(dst []byte, ts Timestamp) (int, *Error) {
	if ts.Nanos > maxNanos {
		return 0, newError(KindInvalid, "timestamp nanos %d out of range [0, %d]", ts.Nanos, maxNanos)
	}
	if len(dst) < 12 {
		return 0, newError(KindTooBig, "destination shorter than 12 bytes")
	}
	if ts.Nanos == 0 && ts.Seconds >= 0 && ts.Seconds <= 0xffffffff {
		binary.BigEndian.PutUint32(dst[0:4], uint32(ts.Seconds))
		return 4, nil
	}
	if ts.Seconds >= 0 && ts.Seconds < (1<<34) {
		packed := uint64(ts.Nanos)<<34 | uint64(ts.Seconds)
		binary.BigEndian.PutUint64(dst[0:8], packed)
		return 8, nil
	}
	binary.BigEndian.PutUint32(dst[0:4], ts.Nanos)
	binary.BigEndian.PutUint64(dst[4:12], uint64(ts.Seconds))
	return 12, nil
}

// DecodeTimestamp reads a packed timestamp payload of exactly the given
// length (4, 8 or 12; any other length is invalid per spec.md §6.2).
func DecodeTimestamp(src []byte, length uint32) (Timestamp, *Error) {
	switch length {
	case 4:
		if len(src) < 4 {
			return Timestamp{}, newError(KindInvalid, "truncated 4-byte timestamp")
		}
		return Timestamp{Seconds: int64(binary.BigEndian.Uint32(src[0:4]))}, nil
	case 8:
		if len(src) < 8 {
			return Timestamp{}, newError(KindInvalid, "truncated 8-byte timestamp")
		}
		packed := binary.BigEndian.Uint64(src[0:8])
		nanos := uint32(packed >> 34)
		seconds := int64(packed & ((1 << 34) - 1))
		if nanos > maxNanos {
			return Timestamp{}, newError(KindInvalid, "timestamp nanos %d out of range [0, %d]", nanos, maxNanos)
		}
		return Timestamp{Seconds: seconds, Nanos: nanos}, nil
	case 12:
		if len(src) < 12 {
			return Timestamp{}, newError(KindInvalid, "truncated 12-byte timestamp")
		}
		nanos := binary.BigEndian.Uint32(src[0:4])
		seconds := int64(binary.BigEndian.Uint64(src[4:12]))
		if nanos > maxNanos {
			return Timestamp{}, newError(KindInvalid, "timestamp nanos %d out of range [0, %d]", nanos, maxNanos)
		}
		return Timestamp{Seconds: seconds, Nanos: nanos}, nil
	default:
		return Timestamp{}, newError(KindInvalid, "timestamp payload length must be 4, 8 or 12, got %d", length)
	}
}
