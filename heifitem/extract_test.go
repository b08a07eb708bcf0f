package heifitem

import (
	"bytes"
	"testing"
)

func TestRewriteLengthPrefixedToAnnexBMultiNAL(t *testing.T) {
	nal1 := []byte{0x40, 0x01, 0xAA} // fake VPS-ish bytes
	nal2 := []byte{0x26, 0x01, 0xBB, 0xCC}

	var in []byte
	for _, n := range [][]byte{nal1, nal2} {
		l := len(n)
		in = append(in, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		in = append(in, n...)
	}

	out, err := rewriteLengthPrefixedToAnnexB(in)
	if err != nil {
		t.Fatalf("rewriteLengthPrefixedToAnnexB: %v", err)
	}

	var want []byte
	want = append(want, annexBStartCode...)
	want = append(want, nal1...)
	want = append(want, annexBStartCode...)
	want = append(want, nal2...)

	if !bytes.Equal(out, want) {
		t.Fatalf("got %x, want %x", out, want)
	}
}

func TestRewriteLengthPrefixedToAnnexBTruncated(t *testing.T) {
	in := []byte{0, 0, 0, 10, 1, 2} // declares 10 bytes but only 2 follow
	if _, err := rewriteLengthPrefixedToAnnexB(in); err == nil {
		t.Fatalf("expected error for truncated NAL")
	}
}

func TestRewriteLengthPrefixedToAnnexBEmpty(t *testing.T) {
	out, err := rewriteLengthPrefixedToAnnexB(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %x, want empty", out)
	}
}
