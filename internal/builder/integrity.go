package builder

import (
	"io"
	"os"

	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mfs"
	"golang.org/x/mod/sumdb/dirhash"
)

// ExportDigest computes a content-addressed digest of a module's
// export-libraries install directory, the way golang.org/x/mod/sumdb
// digests a module's zip contents. Two builds of the same module at
// the same version should produce the same digest; a mismatch across
// rebuilds is a concrete, checkable violation of the determinism
// expected from a pure build step.
func (b *Builder) ExportDigest(libType LibraryType) (string, error) {
	installDir, err := b.InstallDir(PhaseExportLibraries, libType)
	if err != nil {
		return "", err
	}
	paths, err := mfs.Find(installDir, mfs.IsRegular, mfs.DescendAlways)
	if err != nil {
		return "", err
	}
	files := make([]string, len(paths))
	for i, p := range paths {
		files[i] = p.String()
	}
	digest, err := dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		return os.Open(name)
	})
	if err != nil {
		return "", merrors.WrapModule(merrors.FS, b.module.Name, err)
	}
	return digest, nil
}
