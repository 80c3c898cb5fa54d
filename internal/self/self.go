// Package self locates the running kubegate binary, for commands that re-exec
// it.
package self

import (
	"context"
	"os"
)

type ctxKey struct{}

var executable = func() string {
	p, err := os.Executable()
	if err != nil {
		// a bare name that PATH lookup can resolve
		return "kubegate"
	}
	return p
}()

// Path returns the path commands re-exec kubegate with: the running
// executable when the OS reports one, otherwise "kubegate" for PATH lookup.
// The path can go stale if the binary is unlinked or replaced while running.
func Path(ctx context.Context) string {
	if val := ctx.Value(ctxKey{}); val != nil {
		return val.(string)
	}
	return executable
}

// OverridePath changes what Path returns within a context. Tests use it to
// point re-execution at a mock binary.
func OverridePath(parent context.Context, path string) context.Context {
	return context.WithValue(parent, ctxKey{}, path)
}
