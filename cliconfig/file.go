package cliconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kubegate/kubegate/internal/osutil"
)

// File is a config file of key=value lines.
type File struct {
	// The path to the file
	Path string

	// A map of key/values that was loaded from the file
	Config map[string]string
}

// Load reads and parses the file into f.Config.
func (f *File) Load() error {
	f.Config = map[string]string{}

	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", f.Path, err)
	}

	file, err := os.Open(absolutePath)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", f.Path, err)
	}
	defer file.Close() //nolint:errcheck // File only open for read.

	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		if isIgnoredLine(line) {
			continue
		}

		key, value, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("parsing config line %d: %w", lineNum, err)
		}
		f.Config[key] = value
	}
	return scanner.Err()
}

// AbsolutePath is the file's path with ~ expanded.
func (f File) AbsolutePath() (string, error) {
	return osutil.NormalizeFilePath(f.Path)
}

// Exists reports whether the file is on disk.
func (f File) Exists() bool {
	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(absolutePath)
	return err == nil
}

// This file parsing code was copied from:
// https://github.com/joho/godotenv/blob/master/godotenv.go
//
// The project is released under an MIT License, which can be seen here:
// https://github.com/joho/godotenv/blob/master/LICENCE
func parseLine(line string) (key, value string, err error) {
	if len(line) == 0 {
		return "", "", errors.New("zero length string")
	}

	line = stripComments(line)

	// Key and value split on the first =, or on : for the yaml-flavoured form.
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		key, value, ok = strings.Cut(line, ":")
	}
	if !ok {
		return "", "", fmt.Errorf("can't separate key from value in string %q, no valid separators (= or :) found", line)
	}

	key = strings.TrimSpace(strings.TrimPrefix(key, "export"))

	value = strings.TrimSpace(value)
	if strings.Count(value, `"`) == 2 || strings.Count(value, "'") == 2 {
		// Pull the quotes off the edges, and expand escaped quotes and
		// newlines within.
		value = strings.Trim(value, `"'`)
		value = strings.ReplaceAll(value, `\"`, `"`)
		value = strings.ReplaceAll(value, `\n`, "\n")
	}

	return key, value, nil
}

// stripComments ditches everything after a #, unless the # is inside a quoted
// value.
func stripComments(line string) string {
	if !strings.Contains(line, "#") {
		return line
	}

	segments := strings.Split(line, "#")
	quotesAreOpen := false
	var keep []string
	for _, segment := range segments {
		if strings.Count(segment, `"`) == 1 || strings.Count(segment, "'") == 1 {
			if quotesAreOpen {
				quotesAreOpen = false
				keep = append(keep, segment)
			} else {
				quotesAreOpen = true
			}
		}

		if len(keep) == 0 || quotesAreOpen {
			keep = append(keep, segment)
		}
	}
	return strings.Join(keep, "#")
}

func isIgnoredLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) == 0 || strings.HasPrefix(trimmed, "#")
}
