//go:build !cgo

package engine

// New returns the default Engine implementation for this build: shelling
// out to the `gs` binary, used when cgo (and therefore libgs linking) is
// unavailable.
func New() Engine {
	return NewExecGhostscript()
}
