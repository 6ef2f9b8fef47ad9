//go:build cgo

package engine

// New returns the default Engine implementation for this build: the cgo
// binding to libgs.
func New() Engine {
	return NewCGhostscript()
}
