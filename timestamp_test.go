package btf

import (
	"encoding/binary"
	"testing"
)

func TestTimestampPackedFormSelection(t *testing.T) {
	cases := []struct {
		ts     Timestamp
		length int
	}{
		{Timestamp{Seconds: 1000}, 4},
		{Timestamp{Seconds: 1000, Nanos: 500}, 8},
		{Timestamp{Seconds: -1000, Nanos: 500}, 12},
		{Timestamp{Seconds: 1 << 40}, 12},
	}
	for _, c := range cases {
		var buf [12]byte
		n, err := EncodeTimestamp(buf[:], c.ts)
		if err != nil {
			t.Fatalf("EncodeTimestamp(%+v): %v", c.ts, err)
		}
		if n != c.length {
			t.Errorf("%+v: got length %d, want %d", c.ts, n, c.length)
		}
		got, err := DecodeTimestamp(buf[:n], uint32(n))
		if err != nil {
			t.Fatalf("DecodeTimestamp: %v", err)
		}
		if got != c.ts {
			t.Errorf("round-trip mismatch: got %+v, want %+v", got, c.ts)
		}
	}
}

func TestTimestampRejectsOutOfRangeNanos(t *testing.T) {
	var buf [12]byte
	_, err := EncodeTimestamp(buf[:], Timestamp{Nanos: maxNanos + 1})
	if err == nil || err.Kind != KindInvalid {
		t.Fatalf("nanos out of range should latch invalid, got %v", err)
	}
}

func TestTimestampRejectsBadPayloadLength(t *testing.T) {
	_, err := DecodeTimestamp([]byte{1, 2, 3}, 3)
	if err == nil || err.Kind != KindInvalid {
		t.Fatalf("length 3 should latch invalid, got %v", err)
	}
}

func TestDecodeTimestampRejectsOutOfRangeNanos8Byte(t *testing.T) {
	var buf [8]byte
	packed := uint64(maxNanos+1)<<34 | uint64(100)
	binary.BigEndian.PutUint64(buf[:], packed)
	_, err := DecodeTimestamp(buf[:], 8)
	if err == nil || err.Kind != KindInvalid {
		t.Fatalf("8-byte payload with nanos out of range should latch invalid, got %v", err)
	}
}

func TestDecodeTimestampRejectsOutOfRangeNanos12Byte(t *testing.T) {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], maxNanos+1)
	binary.BigEndian.PutUint64(buf[4:12], 100)
	_, err := DecodeTimestamp(buf[:], 12)
	if err == nil || err.Kind != KindInvalid {
		t.Fatalf("12-byte payload with nanos out of range should latch invalid, got %v", err)
	}
}
