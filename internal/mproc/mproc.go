// Package mproc is the process runner: child process spawn/wait and
// exec-replace, the two primitives the Makefile-driven builder module
// phase and the orchestrator's self-rebuild step are built on.
//
// The self-rebuild open-fd/unlink/exec-by-fd sequence follows the
// original C++ implementation's relaunch_newer_version
// (modules/builder/orchestrator.cpp).
package mproc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/distr1/mgbuild/internal/merrors"
	"golang.org/x/sys/unix"
)

// SpawnAndWait spawns a child process with the given argv (argv[0] is
// the executable path or a name resolved via $PATH), inheriting the
// parent's environment and standard streams, and waits for it. It
// returns the exit code (>= 0) on normal termination, or a negative
// value whose absolute value is the terminating signal number.
func SpawnAndWait(argv []string) (int32, error) {
	if len(argv) == 0 {
		return 0, merrors.Errorf(merrors.UserInput, "mproc: SpawnAndWait: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !asExitError(err, &exitErr) {
		return 0, merrors.Errorf(merrors.Process, "mproc: SpawnAndWait: %w", err)
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, merrors.Errorf(merrors.Process, "mproc: SpawnAndWait: unsupported platform wait status")
	}
	if ws.Signaled() {
		return -int32(ws.Signal()), merrors.Errorf(merrors.Process, "mproc: SpawnAndWait: %s: terminated by signal %d", argv[0], ws.Signal())
	}
	return int32(ws.ExitStatus()), merrors.Errorf(merrors.Process, "mproc: SpawnAndWait: %s: exited with code %d", argv[0], ws.ExitStatus())
}

func asExitError(err error, out **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*out = ee
	return true
}

// ExecReplace replaces the current process image with argv[0],
// inheriting the environment. It never returns on success.
func ExecReplace(argv []string) error {
	if len(argv) == 0 {
		return merrors.Errorf(merrors.UserInput, "mproc: ExecReplace: empty argv")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return merrors.Errorf(merrors.Process, "mproc: ExecReplace: %w", err)
	}
	return merrors.Wrap(merrors.Process, unix.Exec(path, argv, os.Environ()))
}

// ExecReplaceByFD implements the self-rebuild delete-after-exec
// scheme: it opens path, unlinks it (so a concurrent or subsequent
// build is never handed a half-written binary), then execs the
// retained file descriptor via /proc/self/fd, surviving the unlink on
// POSIX. It never returns on success.
//
// This is the Go realization of the original C++ implementation's
// fexecve-based relaunch_newer_version: open, unlink, exec-by-fd.
func ExecReplaceByFD(path string, argv []string) error {
	f, err := os.Open(path)
	if err != nil {
		return merrors.Errorf(merrors.Process, "mproc: ExecReplaceByFD: open: %w", err)
	}
	defer f.Close()
	if err := os.Remove(path); err != nil {
		return merrors.Errorf(merrors.Process, "mproc: ExecReplaceByFD: unlink: %w", err)
	}
	fdPath := fmt.Sprintf("/proc/self/fd/%d", f.Fd())
	return merrors.Wrap(merrors.Process, unix.Exec(fdPath, argv, os.Environ()))
}
