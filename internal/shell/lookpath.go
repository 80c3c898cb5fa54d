package shell

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// lookPath is [exec.LookPath] against an explicit colon-delimited path
// instead of the process's own PATH, adapted from
// https://github.com/golang/go/blob/master/src/os/exec/lp.go.
// A file containing a slash is tried directly.
func lookPath(file, path string) (string, error) {
	if strings.Contains(file, "/") {
		if err := findExecutable(file); err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return file, nil
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
