package mpath

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJoinContainment(t *testing.T) {
	base := MustAbs("/artifacts/foo")

	t.Run("ok", func(t *testing.T) {
		rel, err := NewRel("bar/baz")
		if err != nil {
			t.Fatal(err)
		}
		got, err := base.Join(rel)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff("/artifacts/foo/bar/baz", got.String()); diff != "" {
			t.Errorf("Join: mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("escape rejected", func(t *testing.T) {
		rel, err := NewRel("../escape")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := base.Join(rel); err == nil {
			t.Fatal("Join: expected error for escaping path, got nil")
		}
	})

	t.Run("equal-to-base rejected", func(t *testing.T) {
		rel, err := NewRel(".")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := base.Join(rel); err == nil {
			t.Fatal("Join: expected error for empty/equal path, got nil")
		}
	})
}

func TestPostfixAppend(t *testing.T) {
	base := MustAbs("/artifacts/foo/bar")

	t.Run("ok", func(t *testing.T) {
		got, err := base.PostfixAppend("_tmp")
		if err != nil {
			t.Fatal(err)
		}
		if got.String() != "/artifacts/foo/bar_tmp" {
			t.Errorf("PostfixAppend: got %q", got)
		}
		if got.Parent() != base.Parent() {
			t.Errorf("PostfixAppend: result is not a sibling of base")
		}
	})

	t.Run("separator rejected", func(t *testing.T) {
		if _, err := base.PostfixAppend("a/b"); err == nil {
			t.Fatal("PostfixAppend: expected error for postfix containing separator")
		}
	})
}

func TestVersionedRoundTrip(t *testing.T) {
	seg := EncodeVersioned("glibc", 123456789)
	name, version, err := DecodeVersioned(seg.String())
	if err != nil {
		t.Fatal(err)
	}
	if name != "glibc" || version != 123456789 {
		t.Errorf("DecodeVersioned: got (%q, %d), want (%q, %d)", name, version, "glibc", 123456789)
	}
}

func TestDecodeVersionedFailsWithoutAt(t *testing.T) {
	if _, _, err := DecodeVersioned("glibc"); err == nil {
		t.Fatal("DecodeVersioned: expected error for filename without '@'")
	}
}

func TestDecodeVersionedFailsNonNumericSuffix(t *testing.T) {
	if _, _, err := DecodeVersioned("glibc@latest"); err == nil {
		t.Fatal("DecodeVersioned: expected error for non-numeric suffix")
	}
}
