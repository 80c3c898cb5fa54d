// Package shellscript contains helpers for dealing with shell scripts.
package shellscript

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildkite/shellwords"
)

// ShebangLine extracts the shebang line from the file, if present. If the file
// is readable but contains no shebang line, it returns an empty string.
// Non-nil errors only reflect an inability to read the file.
func ShebangLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // File only open for read.

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		// Scanning an empty file ends immediately with sc.Err() == nil.
		// Otherwise sc.Err reflects the error reading the file.
		return "", sc.Err()
	}
	if line := sc.Text(); strings.HasPrefix(line, "#!") {
		return line, nil
	}
	return "", nil
}

// Interpreter returns the name of the interpreter binary from a plain command
// line or a shebang line, resolving "env" indirection. It returns an empty
// string if no interpreter can be determined.
//
// Examples:
//   - Interpreter("/bin/sh") == "sh"
//   - Interpreter("#!/usr/bin/env python3") == "python3"
func Interpreter(line string) string {
	parts, err := shellwords.Split(strings.TrimPrefix(line, "#!"))
	if err != nil || len(parts) == 0 {
		return ""
	}

	bin := filepath.Base(parts[0])
	if bin == "env" {
		if len(parts) < 2 {
			return ""
		}
		bin = filepath.Base(parts[1])
	}
	return bin
}

// WithInterpreter inspects argv[0], and if it names a script file the kernel
// would refuse to execute directly (a regular file with no execute bits),
// prepends the interpreter that should run it. The interpreter comes from the
// script's shebang line, or is "sh" if there is none. Any other argv passes
// through unchanged.
//
// Examples:
//   - WithInterpreter([]string{"kubectl", "get", "nodes"}) is unchanged
//   - WithInterpreter([]string{"./probe"}) == []string{"sh", "./probe"}
//     when ./probe is not executable and has no shebang line
func WithInterpreter(argv []string) []string {
	if len(argv) == 0 {
		return argv
	}

	fi, err := os.Stat(argv[0])
	if err != nil || fi.IsDir() || fi.Mode()&0o111 != 0 {
		return argv
	}

	interpreter := "sh"
	if line, err := ShebangLine(argv[0]); err == nil && line != "" {
		if bin := Interpreter(line); bin != "" {
			interpreter = bin
		}
	}
	return append([]string{interpreter}, argv...)
}
