package btf

import "testing"

func TestTagEqualCanonicalizesNonNegativeInt(t *testing.T) {
	if !TagUint(5).Equal(TagInt(5)) {
		t.Fatalf("uint(5) should equal int(5)")
	}
	if TagUint(5).Equal(TagInt(-5)) {
		t.Fatalf("uint(5) should not equal int(-5)")
	}
}

func TestTagEqualFloatComparesByBits(t *testing.T) {
	nan1 := TagFloat64(nan())
	nan2 := TagFloat64(nan())
	if !nan1.Equal(nan2) {
		t.Fatalf("identical-payload NaNs should compare equal under bit comparison")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestTagCompareOrdersByKindWhenDiffering(t *testing.T) {
	if TagNil().Compare(TagBool(true)) == 0 {
		t.Fatalf("differing kinds should not compare equal")
	}
}

func TestKindIsCompound(t *testing.T) {
	for _, k := range []Kind{KindArray, KindMap, KindStr, KindBin, KindExt} {
		if !k.IsCompound() {
			t.Errorf("%s should be compound", k)
		}
	}
	for _, k := range []Kind{KindNil, KindBool, KindInt, KindUint, KindFloat32, KindFloat64} {
		if k.IsCompound() {
			t.Errorf("%s should not be compound", k)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindFloat64.String() != "float64" {
		t.Fatalf("got %q", KindFloat64.String())
	}
}
