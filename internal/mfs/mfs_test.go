package mfs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/distr1/mgbuild/internal/mpath"
)

func TestFindBasic(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.cpp"), "")
	mustWriteFile(t, filepath.Join(dir, "b.txt"), "")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(dir, "sub", "c.cpp"), "")

	root := mpath.MustAbs(dir)
	got, err := Find(root, HasExt(".cpp"), DescendAlways)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range got {
		names = append(names, p.Filename())
	}
	sort.Strings(names)
	want := []string{"a.cpp", "c.cpp"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("Find: got %v, want %v", names, want)
	}
}

func TestFindDescendNever(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(dir, "sub", "c.cpp"), "")

	root := mpath.MustAbs(dir)
	got, err := Find(root, HasExt(".cpp"), DescendNever)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Find with DescendNever: got %v, want none", got)
	}
}

func TestFindNonExistentRoot(t *testing.T) {
	root := mpath.MustAbs(filepath.Join(t.TempDir(), "does-not-exist"))
	got, err := Find(root, IncludeAll, DescendAlways)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Find on non-existent root: got %v, want empty", got)
	}
}

func TestFindSymlinkCycle(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(dir, filepath.Join(sub, "loop")); err != nil {
		t.Fatal(err)
	}

	root := mpath.MustAbs(dir)
	// Should terminate rather than recurse forever.
	if _, err := Find(root, IncludeAll, DescendAlways); err != nil {
		t.Fatal(err)
	}
}

func TestTouchCreatesThenUpdates(t *testing.T) {
	dir := t.TempDir()
	p := mpath.MustAbs(filepath.Join(dir, "marker"))
	if err := Touch(p); err != nil {
		t.Fatal(err)
	}
	if !Exists(p) {
		t.Fatal("Touch did not create file")
	}
	first, err := LastWriteTime(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := Touch(p); err != nil {
		t.Fatal(err)
	}
	second, err := LastWriteTime(p)
	if err != nil {
		t.Fatal(err)
	}
	if second.Before(first) {
		t.Errorf("Touch: second mtime %v before first %v", second, first)
	}
}

func TestSymlinkReplaceAtomic(t *testing.T) {
	dir := t.TempDir()
	targetA := mpath.MustAbs(filepath.Join(dir, "a"))
	targetB := mpath.MustAbs(filepath.Join(dir, "b"))
	if err := CreateDirectories(targetA); err != nil {
		t.Fatal(err)
	}
	if err := CreateDirectories(targetB); err != nil {
		t.Fatal(err)
	}
	alias := mpath.MustAbs(filepath.Join(dir, "alias"))
	if err := SymlinkReplace(targetA, alias); err != nil {
		t.Fatal(err)
	}
	if err := SymlinkReplace(targetB, alias); err != nil {
		t.Fatal(err)
	}
	resolved, err := os.Readlink(alias.String())
	if err != nil {
		t.Fatal(err)
	}
	if resolved != targetB.String() {
		t.Errorf("SymlinkReplace: alias resolves to %q, want %q", resolved, targetB)
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}
