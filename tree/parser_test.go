package tree

import (
	"testing"

	"github.com/tagformat/btf"
)

func parseAll(t *testing.T, data []byte) *Tree {
	t.Helper()
	p := NewParser(data, 0, 0, btf.DefaultOptions())
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p.Tree()
}

func TestS3ParseMap(t *testing.T) {
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x62, 0xc3}
	tr := parseAll(t, data)
	root := tr.Root()
	if root.Type() != btf.KindMap || root.MapCount() != 2 {
		t.Fatalf("expected map(2), got %v count=%d", root.Type(), root.MapCount())
	}
	v := root.MapGetStr("a")
	if tr.Err() != nil {
		t.Fatalf("MapGetStr(a): %v", tr.Err())
	}
	if v.Uint64() != 1 {
		t.Fatalf("a should be uint 1, got %d", v.Uint64())
	}
	v2 := root.MapGetStr("b")
	if !v2.Bool() {
		t.Fatalf("b should be true")
	}
}

func TestS4ParseArray(t *testing.T) {
	data := []byte{0x93, 0xc0, 0xff, 0xcb, 0x3f, 0xf8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	tr := parseAll(t, data)
	root := tr.Root()
	if root.ArrayLength() != 3 {
		t.Fatalf("expected array length 3, got %d", root.ArrayLength())
	}
	if !root.ArrayAt(0).IsNil() {
		t.Fatalf("element 0 should be nil")
	}
	if root.ArrayAt(1).Int64() != -1 {
		t.Fatalf("element 1 should be -1, got %d", root.ArrayAt(1).Int64())
	}
	if root.ArrayAt(2).Float64() != 1.5 {
		t.Fatalf("element 2 should be 1.5, got %v", root.ArrayAt(2).Float64())
	}
}

func TestArrayOutOfBoundsLatchesDataError(t *testing.T) {
	data := []byte{0x91, 0xc0}
	tr := parseAll(t, data)
	root := tr.Root()
	n := root.ArrayAt(5)
	if !n.IsMissing() {
		t.Fatalf("out-of-bounds ArrayAt should return a missing node")
	}
	if tr.Err() == nil || tr.Err().Kind != btf.KindData {
		t.Fatalf("expected data error, got %v", tr.Err())
	}
}

func TestMapDuplicateKeyLatchesDataError(t *testing.T) {
	// map{"a":1,"a":2}: 82 A1 61 01 A1 61 02
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x61, 0x02}
	tr := parseAll(t, data)
	root := tr.Root()
	root.MapGetStr("a")
	if tr.Err() == nil || tr.Err().Kind != btf.KindData {
		t.Fatalf("duplicate key lookup should latch data error, got %v", tr.Err())
	}
}

func TestMapMissingKeyOptionalReturnsMissingNode(t *testing.T) {
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x62, 0xc3}
	tr := parseAll(t, data)
	root := tr.Root()
	v := root.MapGetStrOptional("z")
	if tr.Err() != nil {
		t.Fatalf("optional miss should not latch an error, got %v", tr.Err())
	}
	if !v.IsMissing() {
		t.Fatalf("optional miss should return a missing node")
	}
}

func TestDuplicateMapKeysWholeTreeDiagnostic(t *testing.T) {
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x61, 0x02}
	tr := parseAll(t, data)
	reports := tr.DuplicateMapKeys()
	if len(reports) != 1 {
		t.Fatalf("expected 1 duplicate-key report, got %d", len(reports))
	}
	if string(reports[0].Key) != "a" {
		t.Fatalf("expected duplicate key %q, got %q", "a", reports[0].Key)
	}
}

func TestBoundsSafetyRejectsOversizedMapHeader(t *testing.T) {
	// map16 claiming 65535 pairs: only its 3-byte header and nothing else.
	data := []byte{0xde, 0xff, 0xff}
	p := NewParser(data, 0, 0, btf.DefaultOptions())
	err := p.Parse()
	if err == nil || err.Kind != btf.KindTooBig {
		t.Fatalf("oversized declared count with insufficient bytes should latch too_big, got %v", err)
	}
}

func TestMaxNodesEnforced(t *testing.T) {
	data := []byte{0x93, 0xc0, 0xc0, 0xc0} // array of 3 nils: 4 nodes total
	p := NewParser(data, 0, 2, btf.DefaultOptions())
	err := p.Parse()
	if err == nil || err.Kind != btf.KindTooBig {
		t.Fatalf("exceeding max_nodes should latch too_big, got %v", err)
	}
}

func TestS7NonBlockingResumption(t *testing.T) {
	full := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x62, 0xc3}
	delivered := 0
	calls := 0
	fill := func(buf []byte) (int, *btf.Error) {
		calls++
		switch calls {
		case 1:
			n := copy(buf, full[:3])
			delivered = n
			return n, nil
		case 2:
			return 0, nil
		default:
			n := copy(buf, full[delivered:])
			delivered += n
			return n, nil
		}
	}

	first := make([]byte, 3)
	copy(first, full[:3])
	p := NewResumableParser(nil, fill, 0, 0, btf.DefaultOptions())

	if p.TryParse() {
		t.Fatalf("first try-parse should be incomplete, not done")
	}
	if p.Err() != nil {
		t.Fatalf("incomplete try-parse should not latch an error: %v", p.Err())
	}
	if !p.TryParse() {
		t.Fatalf("second try-parse should complete once fill delivers the rest: %v", p.Err())
	}

	tr := p.Tree()
	root := tr.Root()
	if root.MapCount() != 2 {
		t.Fatalf("expected map(2) after resumption, got count=%d", root.MapCount())
	}
}

func TestExtTimestampRoundTrip(t *testing.T) {
	opts := btf.DefaultOptions()
	opts.ExtensionsEnabled = true

	var payload [12]byte
	n, err := btf.EncodeTimestamp(payload[:], btf.Timestamp{Seconds: 1700000000, Nanos: 123})
	if err != nil {
		t.Fatalf("EncodeTimestamp: %v", err)
	}

	var tagBuf [btf.MaxTagSize]byte
	tn, err := btf.EncodeTag(tagBuf[:], btf.TagExt(btf.ExtTimestamp, uint32(n)), opts)
	if err != nil {
		t.Fatalf("EncodeTag: %v", err)
	}

	data := append(append([]byte{}, tagBuf[:tn]...), payload[:n]...)
	p := NewParser(data, 0, 0, opts)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tr := p.Tree()
	ts := tr.Root().Timestamp()
	if tr.Err() != nil {
		t.Fatalf("Timestamp(): %v", tr.Err())
	}
	if ts.Seconds != 1700000000 || ts.Nanos != 123 {
		t.Fatalf("got %+v", ts)
	}
}
