package builder

import (
	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"github.com/distr1/mgbuild/internal/mpath"
)

// updateAliasAndPrune runs after a successful export-libraries phase:
// it atomically repoints the module's "alias" symlink — the only
// published pointer a downstream module's import should ever
// dereference — at the just-built versioned artifact directory, then
// removes every versioned directory for the same module whose version
// is strictly lower than the module's current version. The
// rename itself is atomic (via github.com/google/renameio), so
// concurrent readers never observe a missing or half-written alias.
func (b *Builder) updateAliasAndPrune() error {
	artifactDir, err := b.ArtifactDir()
	if err != nil {
		return err
	}
	aliasDir, err := b.AliasDir()
	if err != nil {
		return err
	}
	if err := mfs.SymlinkReplace(artifactDir, aliasDir); err != nil {
		return merrors.WrapModule(merrors.FS, b.module.Name, err)
	}

	perModuleDir := artifactDir.Parent()
	entries, err := mfs.Find(perModuleDir, mfs.IncludeAll, mfs.DescendNever)
	if err != nil {
		return merrors.WrapModule(merrors.FS, b.module.Name, err)
	}
	for _, e := range entries {
		if e == aliasDir || e == artifactDir {
			continue
		}
		name, version, err := mpath.DecodeVersioned(e.Filename())
		if err != nil || name != b.module.Name {
			continue // not one of our own versioned directories; leave it alone
		}
		if version >= b.module.Version() {
			continue // not stale
		}
		if err := mfs.RemoveAll(e); err != nil {
			return merrors.WrapModule(merrors.FS, b.module.Name, err)
		}
	}
	return nil
}
