// Package engine models the in-process Ghostscript rendering engine the
// Converter drives: new -> set_arg_encoding -> init_with_args -> exit ->
// delete, with the handle always deleted even on error. The contract is
// expressed as a Go interface so the Converter (and its tests) depend on a
// Go type rather than on cgo directly; the cgo binding lives in
// ghostscript_cgo.go, and builds without cgo use the `gs` subprocess
// fallback in ghostscript_exec.go.
package engine

// QuitCode is the engine's "Quit" sentinel (gs_error_Quit in Ghostscript's
// own ierrors.h). Both init_with_args and exit treat it as success.
const QuitCode = -101

// Engine converts a PDF to a target device's output format by running the
// Ghostscript argv vector gsArgs (without the conventional empty argv[0],
// which implementations add themselves).
type Engine interface {
	// Run executes one conversion and reports whether it succeeded: both
	// init_with_args and exit must return 0 or QuitCode. A non-nil error
	// carries the first non-success code seen.
	Run(gsArgs []string) error
}

// IsSuccessCode reports whether a raw engine return code counts as success.
func IsSuccessCode(code int) bool {
	return code == 0 || code == QuitCode
}
