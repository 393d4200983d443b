package btf

import "testing"

func TestS3ReaderParsesMap(t *testing.T) {
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x62, 0xc3}
	r := NewReader(data, DefaultOptions())

	m := r.ReadTag()
	if m.Kind != KindMap || m.Count != 2 {
		t.Fatalf("expected map(2), got %+v", m)
	}

	k1 := r.ReadTag()
	key1 := make([]byte, k1.Length)
	r.ReadBytes(key1)
	r.CloseStr()
	v1 := r.ReadTag()
	if string(key1) != "a" || v1.Kind != KindUint || v1.Uint != 1 {
		t.Fatalf("pair 1 mismatch: key=%q val=%+v", key1, v1)
	}

	k2 := r.ReadTag()
	key2 := make([]byte, k2.Length)
	r.ReadBytes(key2)
	r.CloseStr()
	v2 := r.ReadTag()
	if string(key2) != "b" || v2.Kind != KindBool || v2.Bool != true {
		t.Fatalf("pair 2 mismatch: key=%q val=%+v", key2, v2)
	}

	r.CloseMap()
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestReaderDiscardWholeMessage(t *testing.T) {
	data := []byte{0x93, 0xc0, 0xff, 0xcb, 0x3f, 0xf8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	r := NewReader(data, DefaultOptions())
	r.Discard()
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy after Discard: %v", err)
	}
}

func TestS6ReaderLatchesInvalidOnReservedOpcode(t *testing.T) {
	r := NewReader([]byte{0xc1}, DefaultOptions())
	tag := r.ReadTag()
	if r.Err() == nil || r.Err().Kind != KindInvalid {
		t.Fatalf("expected invalid latched, got %v", r.Err())
	}
	if tag.Kind != KindNil {
		t.Fatalf("errored ReadTag should return the zero tag, got %+v", tag)
	}
	persisted := r.Err()
	r.ReadTag()
	if r.Err() != persisted {
		t.Fatalf("error should persist unchanged across subsequent calls")
	}
}

func TestReaderEnsureWithoutFillLatchesInvalid(t *testing.T) {
	r := NewReader([]byte{0x01}, DefaultOptions())
	r.ReadTag() // consumes the only byte
	r.ReadTag() // needs more, no fill installed
	if r.Err() == nil || r.Err().Kind != KindInvalid {
		t.Fatalf("reading past a pre-loaded buffer with no fill should latch invalid, got %v", r.Err())
	}
}

func TestReaderFillReturningZeroLatchesEOF(t *testing.T) {
	calls := 0
	fill := func(buf []byte) (int, *Error) {
		calls++
		return 0, nil
	}
	buf := make([]byte, MaxTagSize)
	r := NewFillingReader(buf, fill, DefaultOptions())
	r.ReadTag()
	if r.Err() == nil || r.Err().Kind != KindEOF {
		t.Fatalf("a blocking Reader's fill returning 0 should latch eof, got %v", r.Err())
	}
}

func TestFillingReaderAssemblesAcrossCalls(t *testing.T) {
	full := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x62, 0xc3}
	pos := 0
	fill := func(dst []byte) (int, *Error) {
		if pos >= len(full) {
			return 0, nil
		}
		n := copy(dst, full[pos:pos+1])
		pos++
		return n, nil
	}
	buf := make([]byte, MaxTagSize)
	r := NewFillingReader(buf, fill, DefaultOptions())

	m := r.ReadTag()
	if m.Kind != KindMap || m.Count != 2 {
		t.Fatalf("expected map(2), got %+v", m)
	}
	k1 := r.ReadTag()
	key1 := make([]byte, k1.Length)
	r.ReadBytes(key1)
	r.CloseStr()
	v1 := r.ReadTag()
	if string(key1) != "a" || v1.Uint != 1 {
		t.Fatalf("pair 1 mismatch: key=%q val=%+v", key1, v1)
	}
}
