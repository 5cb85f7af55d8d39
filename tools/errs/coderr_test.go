package errs

import (
	"errors"
	"testing"
)

func TestWithDetailCopies(t *testing.T) {
	base := ErrMalformed
	d := base.WithDetail("missing room")
	if base.Detail != "" {
		t.Fatal("WithDetail mutated the shared sentinel")
	}
	if d.Code != CodeMalformed || d.Detail != "missing room" {
		t.Fatalf("detail copy: %+v", d)
	}
	d2 := d.WithDetail("and userId")
	if d2.Detail != "missing room, and userId" {
		t.Fatalf("chained detail: %q", d2.Detail)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := ErrRateLimited.WithDetail("slow down")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("detail copy should match the sentinel by code")
	}
	if errors.Is(err, ErrBlocked) {
		t.Fatal("different codes must not match")
	}
}

func TestCodeExtraction(t *testing.T) {
	if got := Code(ErrUnreachable); got != CodeUnreachable {
		t.Fatalf("Code = %d", got)
	}
	if got := Code(errors.New("plain")); got != 0 {
		t.Fatalf("plain error code = %d, want 0", got)
	}
	if got := Code(nil); got != 0 {
		t.Fatalf("nil code = %d, want 0", got)
	}
}
