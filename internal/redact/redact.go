// Package redact provides functions for determining values to redact.
package redact

import (
	"path"
	"slices"
	"strings"

	"github.com/kubegate/kubegate/internal/shell"
)

// LengthMin is the shortest string length that will be considered a
// potential secret by the environment redactor. e.g. if the redactor is
// configured to filter out environment variables matching *_TOKEN, and
// API_TOKEN is set to "none", this minimum length will prevent the word
// "none" from being redacted from useful log output.
const LengthMin = 6

var redacted = []byte("[REDACTED]")

// Redact ignores its input and returns "[REDACTED]".
func Redact([]byte) []byte { return redacted }

// Var is a variable name and value marked for redaction.
type Var struct {
	Name  string
	Value string
}

// Match reports whether the name matches any of the patterns.
func Match(logger shell.Logger, patterns []string, name string) bool {
	for _, pattern := range patterns {
		matched, err := path.Match(pattern, name)
		if err != nil {
			// path.ErrBadPattern is the only error returned by path.Match
			logger.Warningf("Ignoring bad redacted vars pattern: %s", pattern)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Values returns the values of all environment variables to be redacted,
// given a list of name patterns and an environment map.
func Values(logger shell.Logger, patterns []string, environment map[string]string) []string {
	vars := Vars(logger, patterns, environment)
	if len(vars) == 0 {
		return nil
	}

	vals := make([]string, 0, len(vars))
	for _, v := range vars {
		vals = append(vals, v.Value)
	}
	return vals
}

// Vars returns the environment variables to be redacted, given a list of
// name patterns and an environment map. Variables with values shorter than
// LengthMin are excluded, with a warning naming them.
func Vars(logger shell.Logger, patterns []string, environment map[string]string) []Var {
	vars := make([]Var, 0, len(environment))
	shortVars := make([]string, 0)

	for name, value := range environment {
		if !Match(logger, patterns, name) {
			continue
		}
		if len(value) < LengthMin {
			if len(value) > 0 {
				shortVars = append(shortVars, name)
			}
			continue
		}
		vars = append(vars, Var{Name: name, Value: value})
	}

	if len(shortVars) > 0 {
		// Map iteration order is random, so sort for stable log output.
		slices.Sort(shortVars)
		logger.Warningf(
			"Some variables have values below minimum length (%d bytes) and will not be redacted: %s",
			LengthMin,
			strings.Join(shortVars, ", "),
		)
	}
	return vars
}

