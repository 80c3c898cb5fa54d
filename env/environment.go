// Package env provides utilities for dealing with environment variables.
//
// It is intended for internal use by kubegate only.
package env

import (
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v2"
)

// Environment is a concurrency-safe map of environment variables. Probe
// shells and the trace context injection mutate it from different
// goroutines.
type Environment struct {
	underlying *xsync.MapOf[string, string]
}

// FromMap creates an environment from a map of name to value.
func FromMap(m map[string]string) *Environment {
	e := &Environment{underlying: xsync.NewMapOfPresized[string](len(m))}
	for k, v := range m {
		e.Set(k, v)
	}
	return e
}

// FromSlice creates an environment from a slice of NAME=value pairs, in the
// shape returned by os.Environ. Malformed entries are skipped.
func FromSlice(s []string) *Environment {
	e := &Environment{underlying: xsync.NewMapOfPresized[string](len(s))}
	for _, l := range s {
		if k, v, ok := Split(l); ok {
			e.Set(k, v)
		}
	}
	return e
}

// Split splits a "name=value" pair into its name and value. It reports
// false when there is no '=' or when the name would be empty.
func Split(l string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(l, "=")
	if !ok || name == "" {
		return "", "", false
	}
	return name, value, true
}

// Get returns the value of a variable and whether it is set at all, which
// is how an empty value is told apart from an unset one.
func (e *Environment) Get(key string) (string, bool) {
	return e.underlying.Load(key)
}

// Set stores a variable and returns its value.
func (e *Environment) Set(key, value string) string {
	e.underlying.Store(key, value)
	return value
}

// Dump returns a copy of the environment as a map.
func (e *Environment) Dump() map[string]string {
	m := make(map[string]string, e.underlying.Size())
	e.underlying.Range(func(k, v string) bool {
		m[k] = v
		return true
	})
	return m
}

// ToSlice returns the environment as a sorted slice of NAME=value pairs, in
// the shape exec.Cmd wants.
func (e *Environment) ToSlice() []string {
	s := make([]string, 0, e.underlying.Size())
	e.underlying.Range(func(k, v string) bool {
		s = append(s, k+"="+v)
		return true
	})
	slices.Sort(s)
	return s
}
