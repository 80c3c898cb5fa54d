// Package olfactor provides an io.Writer that can detect the presence of
// strings within the stream.
package olfactor

import (
	"io"
	"slices"
	"strings"

	"github.com/kubegate/kubegate/internal/replacer"
)

// Olfactor may be used for 'sniffing' an io stream for strings. In other
// words, the io stream can be monitored for particular strings, and if one is
// written to the io stream, the olfactor will record that it has 'smelt' it.
type Olfactor struct {
	smells []string
	smelt  map[string]bool
}

// New returns an io.Writer and an Olfactor. Writes to the writer are
// forwarded to dst, and the Olfactor records which of the smells have been
// written to the io.Writer. An empty smell is treated as already smelt.
func New(dst io.Writer, smells []string) (io.Writer, *Olfactor) {
	d := &Olfactor{
		smells: slices.Clone(smells),
		smelt:  make(map[string]bool, len(smells)),
	}
	for _, smell := range d.smells {
		if smell == "" {
			d.smelt[smell] = true
		}
	}

	return replacer.New(dst, d.smells, func(b []byte) []byte {
		// Overlapping smells are matched as a single region, so every smell
		// contained in the matched bytes was present in the stream.
		for _, smell := range d.smells {
			if !d.smelt[smell] && strings.Contains(string(b), smell) {
				d.smelt[smell] = true
			}
		}
		return b
	}), d
}

// Smelt reports whether the olfactor smelt the smell.
func (d *Olfactor) Smelt(smell string) bool {
	return d != nil && d.smelt[smell]
}

// Smells returns the smells smelt so far, sorted.
func (d *Olfactor) Smells() []string {
	if d == nil || len(d.smelt) == 0 {
		return nil
	}
	smelt := make([]string, 0, len(d.smelt))
	for smell := range d.smelt {
		smelt = append(smelt, smell)
	}
	slices.Sort(smelt)
	return smelt
}
