package readiness

import (
	"fmt"
	"strings"
)

// ParseNodeStatus extracts the status column from `kubectl get nodes` style
// output: the second whitespace-delimited field of the first line. Extra
// lines (other nodes) are ignored.
func ParseNodeStatus(out string) (string, error) {
	line, _, _ := strings.Cut(strings.TrimLeft(out, "\r\n"), "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed probe output: wanted at least 2 fields on the first line, got %d (%q)", len(fields), line)
	}
	return fields[1], nil
}
