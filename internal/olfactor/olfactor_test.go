package olfactor_test

import (
	"io"
	"testing"

	"github.com/kubegate/kubegate/internal/olfactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOlfactorSniffsStream(t *testing.T) {
	t.Parallel()

	const noMatch = "No match for argument"
	const noPackage = "No package"

	for _, test := range []struct {
		name   string
		smells []string
		input  string
		want   map[string]bool
	}{
		{
			name:   "smell found",
			smells: []string{noMatch},
			input:  "Error: No match for argument: kubelet-1.28",
			want:   map[string]bool{noMatch: true},
		},
		{
			name:   "smell not found",
			smells: []string{noMatch},
			input:  "Installed: kubelet-1.28",
			want:   map[string]bool{noMatch: false},
		},
		{
			name:   "empty input",
			smells: []string{noMatch},
			input:  "",
			want:   map[string]bool{noMatch: false},
		},
		{
			name:   "empty smell is always smelt",
			smells: []string{""},
			input:  "a",
			want:   map[string]bool{"": true},
		},
		{
			name:   "nested smells are smelt together",
			smells: []string{"No match", noMatch},
			input:  "No match for argument: cri-tools",
			want:   map[string]bool{"No match": true, noMatch: true},
		},
		{
			name:   "disjoint smells are smelt separately",
			smells: []string{noMatch, noPackage},
			input:  "No package kubeadm available, No match for argument",
			want:   map[string]bool{noMatch: true, noPackage: true},
		},
		{
			name:   "partial smell is no smell",
			smells: []string{noMatch, noPackage},
			input:  "No matc",
			want:   map[string]bool{noMatch: false, noPackage: false},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			w, olf := olfactor.New(io.Discard, test.smells)
			_, err := w.Write([]byte(test.input))
			require.NoError(t, err)

			for smell, want := range test.want {
				assert.Equal(t, want, olf.Smelt(smell), "smell %q", smell)
			}
		})
	}
}

func TestOlfactorAcrossWrites(t *testing.T) {
	t.Parallel()

	w, olf := olfactor.New(io.Discard, []string{"broken pipe"})

	_, err := w.Write([]byte("write failed: broken "))
	require.NoError(t, err)
	assert.False(t, olf.Smelt("broken pipe"))

	_, err = w.Write([]byte("pipe; retrying\n"))
	require.NoError(t, err)
	assert.True(t, olf.Smelt("broken pipe"))

	assert.Equal(t, []string{"broken pipe"}, olf.Smells())
}
