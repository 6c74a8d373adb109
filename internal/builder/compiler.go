package builder

import (
	"os"

	"github.com/distr1/mgbuild/internal/merrors"
	"github.com/distr1/mgbuild/internal/mpath"
	"github.com/distr1/mgbuild/internal/mproc"
)

// ExternalCompiler shells out to an external compiler command to turn
// a module's builder.cpp source into a loadable plugin shared object.
// The compiler itself is an external collaborator whose own contract
// the engine assumes rather than implements — the engine's only
// responsibility is invoking it correctly and verifying it produced
// the expected output.
type ExternalCompiler struct {
	// Command is the compiler executable, e.g. "c++" or "go".
	// NewExternalCompiler sets it from the $MGBUILD_CXX environment
	// variable, or to "c++" if that is unset.
	Command string
	// ExtraArgs are appended after the conventional source/output/link
	// arguments, e.g. optimization or ABI flags.
	ExtraArgs []string
}

// NewExternalCompiler returns an ExternalCompiler using $MGBUILD_CXX,
// or "c++" if that variable is unset.
func NewExternalCompiler() *ExternalCompiler {
	cmd := os.Getenv("MGBUILD_CXX")
	if cmd == "" {
		cmd = "c++"
	}
	return &ExternalCompiler{Command: cmd}
}

// CompilePlugin implements Compiler by shelling out to c.Command with
// the module's builder.cpp as source, producing a shared object at
// out, linking against every path named in linkAgainst (the builder
// module's own shared exports).
func (c *ExternalCompiler) CompilePlugin(srcDir mpath.Abs, linkAgainst []mpath.Abs, out mpath.Abs) error {
	srcRel, err := mpath.NewRel("builder.cpp")
	if err != nil {
		return err
	}
	src, err := srcDir.Join(srcRel)
	if err != nil {
		return err
	}
	argv := []string{c.Command, "-shared", "-fPIC", "-o", out.String(), src.String()}
	for _, dep := range linkAgainst {
		argv = append(argv, dep.String())
	}
	argv = append(argv, c.ExtraArgs...)
	_, err = mproc.SpawnAndWait(argv)
	return merrors.Wrap(merrors.Plugin, err)
}
