// Package mfs is the filesystem gateway: transactional file
// operations, predicate-driven recursive search and the
// symlink-replace primitive the artifact tree's alias updates rely on.
package mfs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mpath"
	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Exists reports whether path exists (following symlinks).
func Exists(path mpath.Abs) bool {
	_, err := os.Stat(path.String())
	return err == nil
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path mpath.Abs) bool {
	fi, err := os.Stat(path.String())
	return err == nil && fi.Mode().IsRegular()
}

// IsDirectory reports whether path exists and is a directory.
func IsDirectory(path mpath.Abs) bool {
	fi, err := os.Stat(path.String())
	return err == nil && fi.IsDir()
}

// FileSize returns the size in bytes of the regular file at path.
func FileSize(path mpath.Abs) (int64, error) {
	fi, err := os.Stat(path.String())
	if err != nil {
		return 0, merrors.Errorf(merrors.FS, "mfs: FileSize: %w", err)
	}
	return fi.Size(), nil
}

// LastWriteTime returns the modification time of path.
func LastWriteTime(path mpath.Abs) (time.Time, error) {
	fi, err := os.Stat(path.String())
	if err != nil {
		return time.Time{}, merrors.Errorf(merrors.FS, "mfs: LastWriteTime: %w", err)
	}
	return fi.ModTime(), nil
}

// Copy recursively copies src to dest. If src is a regular file, dest
// is created as a copy of it; if src is a directory, dest is created
// (with all parents) and populated with a recursive copy of src's
// tree.
func Copy(src, dest mpath.Abs) error {
	fi, err := os.Stat(src.String())
	if err != nil {
		return merrors.Errorf(merrors.FS, "mfs: Copy: %w", err)
	}
	if !fi.IsDir() {
		return copyFile(src.String(), dest.String(), fi.Mode())
	}
	return filepath.Walk(src.String(), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src.String(), p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest.String(), rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(p, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return merrors.Errorf(merrors.FS, "mfs: copyFile: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return merrors.Errorf(merrors.FS, "mfs: copyFile: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return merrors.Errorf(merrors.FS, "mfs: copyFile: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return merrors.Errorf(merrors.FS, "mfs: copyFile: %w", err)
	}
	return merrors.Wrap(merrors.FS, out.Close())
}

// CreateDirectories creates path and all missing parents.
func CreateDirectories(path mpath.Abs) error {
	return merrors.Wrap(merrors.FS, os.MkdirAll(path.String(), 0755))
}

// CreateSymlink creates a symlink at linkPath pointing at target.
func CreateSymlink(target, linkPath mpath.Abs) error {
	return merrors.Wrap(merrors.FS, os.Symlink(target.String(), linkPath.String()))
}

// CreateDirectorySymlink creates a directory symlink at linkPath
// pointing at target. On POSIX this is identical to CreateSymlink; the
// distinction exists because some platforms require directory
// symlinks to be created differently.
func CreateDirectorySymlink(target, linkPath mpath.Abs) error {
	return CreateSymlink(target, linkPath)
}

// RenameReplace atomically swaps whatever exists at dest (file,
// symlink or nothing) with src, which must be a sibling of dest. The
// alias symlink update uses SymlinkReplace, not this function.
func RenameReplace(src, dest mpath.Abs) error {
	if src.Parent() != dest.Parent() {
		return merrors.Errorf(merrors.Invariant, "mfs: RenameReplace: %q is not a sibling of %q", src, dest)
	}
	return merrors.Wrap(merrors.FS, os.Rename(src.String(), dest.String()))
}

// SymlinkReplace atomically replaces the directory symlink at dest
// (creating or overwriting it) to point at target, via renameio's
// write-to-temp-then-rename primitive so the update is observed
// atomically by concurrent readers.
func SymlinkReplace(target, dest mpath.Abs) error {
	return merrors.Wrap(merrors.FS, renameio.Symlink(target.String(), dest.String()))
}

// Remove removes a single file or empty directory.
func Remove(path mpath.Abs) error {
	return merrors.Wrap(merrors.FS, os.Remove(path.String()))
}

// RemoveAll removes path and, if it is a directory, its contents,
// recursively. Removing a non-existent path is not an error.
func RemoveAll(path mpath.Abs) error {
	return merrors.Wrap(merrors.FS, os.RemoveAll(path.String()))
}

// Touch creates an empty file at path if it does not exist, or updates
// its modification time if it does — the primitive behind the
// ".in_progress" phase sentinel.
func Touch(path mpath.Abs) error {
	now := time.Now()
	if err := os.Chtimes(path.String(), now, now); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return merrors.Errorf(merrors.FS, "mfs: Touch: %w", err)
	}
	f, err := os.OpenFile(path.String(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return merrors.Errorf(merrors.FS, "mfs: Touch: %w", err)
	}
	return merrors.Wrap(merrors.FS, f.Close())
}

// IncludePred selects a path into a Find result.
type IncludePred func(path mpath.Abs) bool

// DescendPred decides whether Find should recurse into dir, which is
// at the given depth (0 for the root).
type DescendPred func(dir mpath.Abs, depth int) bool

// And composes predicates with logical AND.
func (p IncludePred) And(q IncludePred) IncludePred {
	return func(path mpath.Abs) bool { return p(path) && q(path) }
}

// Or composes predicates with logical OR.
func (p IncludePred) Or(q IncludePred) IncludePred {
	return func(path mpath.Abs) bool { return p(path) || q(path) }
}

// Not negates a predicate.
func (p IncludePred) Not() IncludePred {
	return func(path mpath.Abs) bool { return !p(path) }
}

// And composes descend predicates with logical AND.
func (p DescendPred) And(q DescendPred) DescendPred {
	return func(dir mpath.Abs, depth int) bool { return p(dir, depth) && q(dir, depth) }
}

// Or composes descend predicates with logical OR.
func (p DescendPred) Or(q DescendPred) DescendPred {
	return func(dir mpath.Abs, depth int) bool { return p(dir, depth) || q(dir, depth) }
}

// Not negates a descend predicate.
func (p DescendPred) Not() DescendPred {
	return func(dir mpath.Abs, depth int) bool { return !p(dir, depth) }
}

// IncludeAll selects every path.
func IncludeAll(mpath.Abs) bool { return true }

// IsDir selects directories.
func IsDir(path mpath.Abs) bool { return IsDirectory(path) }

// IsRegular selects regular files.
func IsRegular(path mpath.Abs) bool { return IsRegularFile(path) }

// HasExt returns a predicate selecting paths with the given extension
// (including the leading dot, e.g. ".cpp").
func HasExt(ext string) IncludePred {
	return func(path mpath.Abs) bool { return path.Ext() == ext }
}

// HasName returns a predicate selecting paths with the given filename.
func HasName(name string) IncludePred {
	return func(path mpath.Abs) bool { return path.Filename() == name }
}

// EqualsPath returns a predicate selecting exactly the given path.
func EqualsPath(want mpath.Abs) IncludePred {
	return func(path mpath.Abs) bool { return path == want }
}

// DescendAlways always recurses.
func DescendAlways(mpath.Abs, int) bool { return true }

// DescendNever never recurses (Find only inspects the root).
func DescendNever(mpath.Abs, int) bool { return false }

// Find walks root depth-first, returning every path for which include
// reports true. descend(dir, depth) decides whether Find recurses into
// dir; depth 0 is root itself. A non-existent root yields an empty,
// non-error result. Symlinked directories that would form a cycle are
// detected (via each directory's symlink-resolved path) and not descended into a second
// time within one Find call.
func Find(root mpath.Abs, include IncludePred, descend DescendPred) ([]mpath.Abs, error) {
	if !Exists(root) {
		return nil, nil
	}
	visited := map[string]bool{}
	var out []mpath.Abs
	var walk func(dir mpath.Abs, depth int) error
	walk = func(dir mpath.Abs, depth int) error {
		real, err := filepath.EvalSymlinks(dir.String())
		if err != nil {
			return merrors.Errorf(merrors.FS, "mfs: Find: %w", err)
		}
		if visited[real] {
			return nil
		}
		visited[real] = true

		entries, err := os.ReadDir(dir.String())
		if err != nil {
			return merrors.Errorf(merrors.FS, "mfs: Find: %w", err)
		}
		for _, entry := range entries {
			rel, err := mpath.NewRel(entry.Name())
			if err != nil {
				return xerrors.Errorf("mfs: Find: %w", err)
			}
			child, err := dir.Join(rel)
			if err != nil {
				return xerrors.Errorf("mfs: Find: %w", err)
			}
			if include(child) {
				out = append(out, child)
			}
			if IsDirectory(child) && descend(child, depth+1) {
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// ExistingSubset reports which of paths exist on disk, stat'ing them
// concurrently via errgroup. Used where a caller has to pre-flight
// check a handful of unrelated candidate paths (e.g. whether every one
// of a module's phase-specific install directories is already present)
// rather than walking a single tree.
func ExistingSubset(paths []mpath.Abs) []mpath.Abs {
	exists := make([]bool, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			exists[i] = Exists(p)
			return nil
		})
	}
	_ = g.Wait() // Exists never returns an error to propagate
	var out []mpath.Abs
	for i, p := range paths {
		if exists[i] {
			out = append(out, p)
		}
	}
	return out
}
