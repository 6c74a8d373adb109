// Package merrors defines the error-kind taxonomy shared by every
// component of the build engine.
package merrors

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies a build engine error so that callers (in particular
// the orchestrator's top-level diagnostic printer) can react without
// string-matching messages.
type Kind int

const (
	// UserInput covers malformed CLI invocations, missing module
	// directories and malformed manifests.
	UserInput Kind = iota
	// Graph covers duplicate dependency names and other
	// module-graph-shape problems surfaced before SCC absorption.
	Graph
	// FS covers syscall failures from the filesystem gateway.
	FS
	// Process covers non-zero exits and signal termination of
	// spawned children.
	Process
	// Plugin covers load failures, missing symbols and re-entry into
	// an active phase.
	Plugin
	// Invariant covers containment/naming violations: path escape,
	// a non-versioned filename where a versioned one was expected.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case UserInput:
		return "user input"
	case Graph:
		return "graph"
	case FS:
		return "fs"
	case Process:
		return "process"
	case Plugin:
		return "plugin"
	case Invariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the module and phase that were
// active when it occurred, so that diagnostics can locate the fault
// without the caller threading that context through every return.
type Error struct {
	Kind   Kind
	Module string // empty if not module-scoped
	Phase  string // empty if not phase-scoped
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Module != "" && e.Phase != "":
		return fmt.Sprintf("%s: module %q phase %q: %v", e.Kind, e.Module, e.Phase, e.Err)
	case e.Module != "":
		return fmt.Sprintf("%s: module %q: %v", e.Kind, e.Module, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap annotates err with kind, returning nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// WrapModule annotates err with kind and module, returning nil if err
// is nil.
func WrapModule(kind Kind, module string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Module: module, Err: err}
}

// WrapPhase annotates err with kind, module and phase, returning nil if
// err is nil.
func WrapPhase(kind Kind, module, phase string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Module: module, Phase: phase, Err: err}
}

// Errorf builds a Kind-tagged error the way xerrors.Errorf builds a
// wrapped one, via %w.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: xerrors.Errorf(format, args...)}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
