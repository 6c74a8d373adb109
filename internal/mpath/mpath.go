// Package mpath implements the path arithmetic layer: absolute and
// relative path values with strict containment invariants, plus the
// <name>@<version> versioned-path encoding used throughout the
// artifact tree.
//
// Grounded on the original C++ implementation's path_t/relative_path_t/
// versioned_path_t (module/module_graph.h).
package mpath

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/distr1/mgbuild/internal/merrors"
	"golang.org/x/xerrors"
)

// Abs is a lexically normalized absolute path.
type Abs struct {
	p string
}

// Rel is a lexically normalized, non-absolute path fragment.
type Rel struct {
	p string
}

// NewAbs constructs an Abs from s, which must already be absolute.
func NewAbs(s string) (Abs, error) {
	if !filepath.IsAbs(s) {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: %q is not an absolute path", s)
	}
	return Abs{p: filepath.Clean(s)}, nil
}

// MustAbs is like NewAbs but panics on error. Intended for constants
// and tests.
func MustAbs(s string) Abs {
	a, err := NewAbs(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewRel constructs a Rel from s, which must not be absolute.
func NewRel(s string) (Rel, error) {
	if filepath.IsAbs(s) {
		return Rel{}, merrors.Errorf(merrors.Invariant, "mpath: %q is an absolute path, want relative", s)
	}
	return Rel{p: filepath.Clean(s)}, nil
}

func (a Abs) String() string { return a.p }
func (r Rel) String() string { return r.p }

// Empty reports whether a is the zero value.
func (a Abs) Empty() bool { return a.p == "" }

// Parent returns the parent directory of a. Parent of "/" is "/".
func (a Abs) Parent() Abs {
	return Abs{p: filepath.Dir(a.p)}
}

// Filename returns the final path component.
func (a Abs) Filename() string { return filepath.Base(a.p) }

// Stem returns the filename without its extension.
func (a Abs) Stem() string {
	base := a.Filename()
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the filename's extension, including the leading dot, or
// "" if there is none.
func (a Abs) Ext() string { return filepath.Ext(a.p) }

// Join computes abs/rel. It fails if the result would be equal to, or
// escape, abs — this is the hard containment invariant artifact paths
// rely on.
func (a Abs) Join(r Rel) (Abs, error) {
	if r.p == "." || r.p == "" {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: Join: empty relative path would equal base %q", a.p)
	}
	joined := filepath.Join(a.p, r.p)
	joined = filepath.Clean(joined)
	rel, err := filepath.Rel(a.p, joined)
	if err != nil {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: Join: %w", err)
	}
	if rel == "." {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: Join: %q/%q would equal base", a.p, r.p)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: Join: %q/%q escapes base", a.p, r.p)
	}
	return Abs{p: joined}, nil
}

// MustJoin is like Join but panics on error. Intended for constants
// known at compile time to be safe.
func (a Abs) MustJoin(r Rel) Abs {
	out, err := a.Join(r)
	if err != nil {
		panic(err)
	}
	return out
}

// PostfixAppend computes a path whose filename is a's filename with
// postfix appended, e.g. "/x/y" + "_tmp" -> "/x/y_tmp". It fails if
// postfix contains a path separator; the result is always a strict
// sibling of a.
func (a Abs) PostfixAppend(postfix string) (Abs, error) {
	if postfix == "" {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: PostfixAppend: empty postfix")
	}
	if strings.ContainsRune(postfix, filepath.Separator) || strings.ContainsRune(postfix, '/') {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: PostfixAppend: postfix %q contains a path separator", postfix)
	}
	sibling := filepath.Join(a.Parent().p, a.Filename()+postfix)
	if sibling == a.p {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: PostfixAppend: result equals original path %q", a.p)
	}
	if filepath.Dir(sibling) != a.Parent().p {
		return Abs{}, merrors.Errorf(merrors.Invariant, "mpath: PostfixAppend: result %q is not a sibling of %q", sibling, a.p)
	}
	return Abs{p: sibling}, nil
}

// EncodeVersioned produces the final path segment "<name>@<version>".
func EncodeVersioned(name string, version uint64) Rel {
	return Rel{p: name + "@" + strconv.FormatUint(version, 10)}
}

// DecodeVersioned parses a "<name>@<version>" final path segment.
// Decoding fails if '@' is absent or the suffix is not a valid u64.
func DecodeVersioned(segment string) (name string, version uint64, err error) {
	idx := strings.LastIndexByte(segment, '@')
	if idx < 0 {
		return "", 0, merrors.Errorf(merrors.Invariant, "mpath: DecodeVersioned: %q has no '@'", segment)
	}
	name, suffix := segment[:idx], segment[idx+1:]
	v, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return "", 0, merrors.Errorf(merrors.Invariant, "mpath: DecodeVersioned: %q: %w", segment, xerrors.Errorf("parse version: %w", err))
	}
	return name, v, nil
}
