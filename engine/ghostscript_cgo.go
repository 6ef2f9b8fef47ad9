//go:build cgo

package engine

/*
#cgo LDFLAGS: -lgs

#include <stdlib.h>

// Declared to match Ghostscript's public C API (iapi.h) 1:1. We declare the
// prototypes directly rather than including the Ghostscript headers so this
// binding only needs libgs's shared object and import library to be present
// on the build machine, not its full SDK tree.
extern int gsapi_new_instance(void **pinstance, void *caller_handle);
extern int gsapi_set_arg_encoding(void *instance, int encoding);
extern int gsapi_init_with_args(void *instance, int argc, char **argv);
extern int gsapi_exit(void *instance);
extern void gsapi_delete_instance(void *instance);

#define GS_ARG_ENCODING_UTF8 1

static int gs_run(int argc, char **argv, int *init_code, int *exit_code) {
	void *instance = NULL;
	int code = gsapi_new_instance(&instance, NULL);
	if (code < 0) {
		*init_code = code;
		*exit_code = code;
		return code;
	}

	code = gsapi_set_arg_encoding(instance, GS_ARG_ENCODING_UTF8);
	if (code == 0) {
		code = gsapi_init_with_args(instance, argc, argv);
	}
	*init_code = code;

	int exit_rc = gsapi_exit(instance);
	*exit_code = exit_rc;

	gsapi_delete_instance(instance);
	return code;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// CGhostscript is the Engine implementation backed by the real Ghostscript
// shared library via cgo: new_instance -> set_arg_encoding -> init_with_args
// -> exit -> delete_instance, with the handle always deleted even when
// init_with_args fails.
type CGhostscript struct{}

// NewCGhostscript returns the cgo-backed Engine.
func NewCGhostscript() *CGhostscript {
	return &CGhostscript{}
}

// Run implements Engine. argv[0] is the conventional empty placeholder the
// Ghostscript API expects; gsArgs is appended after it unmodified.
func (g *CGhostscript) Run(gsArgs []string) error {
	argv := make([]string, 0, len(gsArgs)+1)
	argv = append(argv, "")
	argv = append(argv, gsArgs...)

	cArgv := make([]*C.char, len(argv))
	for i, a := range argv {
		cArgv[i] = C.CString(a)
	}
	defer func() {
		for _, p := range cArgv {
			C.free(unsafe.Pointer(p))
		}
	}()

	var initCode, exitCode C.int
	C.gs_run(C.int(len(cArgv)), (**C.char)(unsafe.Pointer(&cArgv[0])), &initCode, &exitCode)

	ic, ec := int(initCode), int(exitCode)
	if !IsSuccessCode(ic) {
		return fmt.Errorf("gsapi_init_with_args failed: code=%d", ic)
	}
	if !IsSuccessCode(ec) {
		return fmt.Errorf("gsapi_exit failed: code=%d", ec)
	}
	return nil
}
