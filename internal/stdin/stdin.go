package stdin

import "os"

// IsReadable reports whether stdin has input to read, either from a pipe or
// from a file redirection. A terminal or the null device is not readable.
func IsReadable() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
