package btf

import (
	"bytes"
	"testing"
)

func encodeOne(t *testing.T, tag Tag, opts Options) []byte {
	t.Helper()
	var buf [MaxTagSize]byte
	n, err := EncodeTag(buf[:], tag, opts)
	if err != nil {
		t.Fatalf("EncodeTag(%+v): %v", tag, err)
	}
	return append([]byte(nil), buf[:n]...)
}

func TestMinimalEncodingThresholds(t *testing.T) {
	cases := []struct {
		u    uint64
		want int
	}{
		{0, 1}, {127, 1}, {128, 2}, {255, 2}, {256, 3},
		{65535, 3}, {65536, 5}, {1 << 32, 9},
	}
	for _, c := range cases {
		got := encodeOne(t, TagUint(c.u), DefaultOptions())
		if len(got) != c.want {
			t.Errorf("uint %d: got %d bytes, want %d (% x)", c.u, len(got), c.want, got)
		}
	}
}

func TestMinimalEncodingNegativeFixint(t *testing.T) {
	got := encodeOne(t, TagInt(-1), DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("int(-1) should be a 1-byte negative fixint, got % x", got)
	}
	got = encodeOne(t, TagInt(-32), DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("int(-32) should be a 1-byte negative fixint, got % x", got)
	}
	got = encodeOne(t, TagInt(-33), DefaultOptions())
	if len(got) != 2 {
		t.Fatalf("int(-33) should need i8, got % x", got)
	}
}

func TestRoundTripScalars(t *testing.T) {
	opts := DefaultOptions()
	tags := []Tag{
		TagNil(), TagBool(true), TagBool(false),
		TagInt(-1), TagInt(42), TagUint(70000),
		TagFloat32(1.5), TagFloat64(-2.25),
		TagStr(5), TagBin(10), TagArray(3), TagMap(2),
	}
	for _, tag := range tags {
		enc := encodeOne(t, tag, opts)
		got, n, err := DecodeTag(enc, opts)
		if err != nil {
			t.Fatalf("DecodeTag(%x): %v", enc, err)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d, want %d", n, len(enc))
		}
		if !got.Equal(tag) {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, tag)
		}
	}
}

func TestS1EncodeNil(t *testing.T) {
	got := encodeOne(t, TagNil(), DefaultOptions())
	if !bytes.Equal(got, []byte{0xc0}) {
		t.Fatalf("nil should encode to C0, got % x", got)
	}
}

func TestS2EncodeUintThresholds(t *testing.T) {
	if got := encodeOne(t, TagUint(1), DefaultOptions()); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("u64=1: got % x", got)
	}
	if got := encodeOne(t, TagUint(200), DefaultOptions()); !bytes.Equal(got, []byte{0xcc, 0xc8}) {
		t.Errorf("u64=200: got % x", got)
	}
	if got := encodeOne(t, TagUint(70000), DefaultOptions()); !bytes.Equal(got, []byte{0xce, 0x00, 0x01, 0x11, 0x70}) {
		t.Errorf("u64=70000: got % x", got)
	}
}

func TestS5StrCompatibility(t *testing.T) {
	length := uint32(40) // only the header is under test, not real payload bytes

	v4 := DefaultOptions()
	v4.Compatibility = CompatV4
	gotV4 := encodeOne(t, TagStr(length), v4)
	if gotV4[0] != opStr16 {
		t.Errorf("v4 length-40 str should use str16, got opcode 0x%02x", gotV4[0])
	}

	v5 := DefaultOptions()
	gotV5 := encodeOne(t, TagStr(length), v5)
	if gotV5[0] != opStr8 {
		t.Errorf("v5 length-40 str should use str8, got opcode 0x%02x", gotV5[0])
	}
}

func TestS6ReservedOpcodeIsInvalid(t *testing.T) {
	_, _, err := DecodeTag([]byte{0xc1}, DefaultOptions())
	if err == nil || err.Kind != KindInvalid {
		t.Fatalf("0xc1 should latch invalid, got %v", err)
	}
}

func TestExtDisabledByDefault(t *testing.T) {
	opts := DefaultOptions()
	var buf [MaxTagSize]byte
	_, err := EncodeTag(buf[:], TagExt(1, 4), opts)
	if err == nil || err.Kind != KindUnsupported {
		t.Fatalf("ext with extensions disabled should latch unsupported, got %v", err)
	}
}

func TestExtFixSizesRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtensionsEnabled = true
	for _, n := range []uint32{1, 2, 4, 8, 16, 3, 300} {
		enc := encodeOne(t, TagExt(7, n), opts)
		got, _, err := DecodeTag(enc, opts)
		if err != nil {
			t.Fatalf("ext length %d: %v", n, err)
		}
		if got.ExtType != 7 || got.Length != n {
			t.Fatalf("ext length %d: got %+v", n, got)
		}
	}
}

func TestBinDegradesToStrUnderV4(t *testing.T) {
	opts := DefaultOptions()
	opts.Compatibility = CompatV4
	enc := encodeOne(t, TagBin(3), opts)
	if enc[0] == opBin8 || enc[0] == opBin16 || enc[0] == opBin32 {
		t.Fatalf("bin should degrade to str family under v4, got opcode 0x%02x", enc[0])
	}
}

func TestSizeOptimizedDispatchMatchesFull(t *testing.T) {
	full := DefaultOptions()
	optimized := DefaultOptions()
	optimized.SizeOptimized = true
	for _, v := range []int64{-32, -1, 0, 1, 100, 127} {
		enc := encodeOne(t, TagInt(v), full)
		a, _, errA := DecodeTag(enc, full)
		b, _, errB := DecodeTag(enc, optimized)
		if errA != nil || errB != nil {
			t.Fatalf("decode errors: %v / %v", errA, errB)
		}
		if !a.Equal(b) {
			t.Fatalf("dispatch mismatch for %d: %+v vs %+v", v, a, b)
		}
	}
}
