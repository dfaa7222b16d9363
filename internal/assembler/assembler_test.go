package assembler

import (
	"bytes"
	"testing"
)

func TestConcatPreservesOrder(t *testing.T) {
	parts := [][]byte{{1, 2}, {}, {3}, {4, 5, 6}}
	got := Concat(parts)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected concat % x", got)
	}
}

func TestConcatEmpty(t *testing.T) {
	if got := Concat(nil); len(got) != 0 {
		t.Fatalf("expected empty output, got % x", got)
	}
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	acc.Append([]byte("ab"))
	acc.Append(nil)
	acc.Append([]byte("cde"))
	if acc.Len() != 5 || acc.Parts() != 2 {
		t.Fatalf("unexpected totals len=%d parts=%d", acc.Len(), acc.Parts())
	}
	if string(acc.Bytes()) != "abcde" {
		t.Fatalf("unexpected bytes %q", acc.Bytes())
	}
}
