package process

import (
	"strings"
	"unicode/utf8"
)

const formatArgMax = 40

// FormatCommand renders a command and arguments the way a person would type
// them. Arguments containing whitespace are quoted, with long values
// truncated.
func FormatCommand(command string, args []string) string {
	parts := []string{command}
	for _, a := range args {
		if strings.ContainsAny(a, "\n ") {
			a = strings.ReplaceAll(strings.ReplaceAll(a, "\n", ""), `"`, `\`)
			a = `"` + truncateArg(a, formatArgMax) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// truncateArg cuts s at about max bytes, stepping past the boundary when the
// cut would split a multibyte rune.
func truncateArg(s string, max int) string {
	if len(s) < max {
		return s
	}
	if utf8.ValidString(s[:max]) {
		return s[:max] + "..."
	}
	return s[:max+1] + "..."
}
