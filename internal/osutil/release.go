package osutil

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Release describes the host operating system as reported by os-release(5).
type Release struct {
	ID         string
	IDLike     []string
	VersionID  string
	PrettyName string
}

// ReadRelease reads the host os-release file. A missing file yields an empty
// Release and no error, since the caller can usually proceed without it.
func ReadRelease() (Release, error) {
	for _, path := range []string{"/etc/os-release", "/usr/lib/os-release"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		return ParseRelease(f)
	}
	return Release{}, nil
}

// ParseRelease parses os-release KEY=VALUE lines, tolerating quoted values
// and comments.
func ParseRelease(r io.Reader) (Release, error) {
	var rel Release

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)

		switch key {
		case "ID":
			rel.ID = value
		case "ID_LIKE":
			rel.IDLike = strings.Fields(value)
		case "VERSION_ID":
			rel.VersionID = value
		case "PRETTY_NAME":
			rel.PrettyName = value
		}
	}

	return rel, scanner.Err()
}

// IsRHELFamily reports whether the host uses the yum/dnf package tooling.
func (r Release) IsRHELFamily() bool {
	ids := append([]string{r.ID}, r.IDLike...)
	for _, id := range ids {
		switch id {
		case "rhel", "centos", "fedora", "rocky", "almalinux":
			return true
		}
	}
	return false
}

func (r Release) String() string {
	if r.PrettyName != "" {
		return r.PrettyName
	}
	if r.ID == "" {
		return "unknown"
	}
	return strings.TrimSpace(r.ID + " " + r.VersionID)
}
