package redact

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kubegate/kubegate/internal/shell"
)

var varsByName = cmpopts.SortSlices(func(a, b Var) bool { return a.Name < b.Name })

func TestVars(t *testing.T) {
	t.Parallel()

	patterns := []string{
		"*_PASSWORD",
		"*_TOKEN",
	}
	environment := map[string]string{
		"KUBEGATE_CLUSTER": "gate-test",
		// These are example values, and are not leaked credentials
		"DATABASE_USERNAME": "AzureDiamond",
		"DATABASE_PASSWORD": "hunter222",
		"REGISTRY_TOKEN":    "wonderwall",
	}

	got := Vars(shell.DiscardLogger, patterns, environment)
	want := []Var{
		{Name: "DATABASE_PASSWORD", Value: "hunter222"},
		{Name: "REGISTRY_TOKEN", Value: "wonderwall"},
	}

	if diff := cmp.Diff(got, want, varsByName); diff != "" {
		t.Errorf("Vars(%q, %q) diff (-got +want)\n%s", patterns, environment, diff)
	}
}

func TestVarsEmptyConfig(t *testing.T) {
	t.Parallel()

	patterns := []string{}
	environment := map[string]string{
		"FOO":              "BAR",
		"KUBEGATE_CLUSTER": "gate-test",
	}

	got := Vars(shell.DiscardLogger, patterns, environment)
	if len(got) != 0 {
		t.Errorf("Vars(%q, %q) = %q, want empty slice", patterns, environment, got)
	}
}

func TestVarsSkipsShortValues(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	logger := shell.NewWriterLogger(&buf, false)

	patterns := []string{"*_TOKEN"}
	environment := map[string]string{
		"API_TOKEN":      "none",
		"REGISTRY_TOKEN": "wonderwall",
		"EMPTY_TOKEN":    "",
	}

	got := Vars(logger, patterns, environment)
	want := []Var{{Name: "REGISTRY_TOKEN", Value: "wonderwall"}}

	if diff := cmp.Diff(got, want, varsByName); diff != "" {
		t.Errorf("Vars(%q, %q) diff (-got +want)\n%s", patterns, environment, diff)
	}

	// API_TOKEN is named in the warning; EMPTY_TOKEN is empty, so it isn't.
	if out := buf.String(); !strings.Contains(out, "API_TOKEN") || strings.Contains(out, "EMPTY_TOKEN") {
		t.Errorf("logger output = %q, want a short-value warning naming API_TOKEN only", out)
	}
}

func TestValues(t *testing.T) {
	t.Parallel()

	patterns := []string{"*_PASSWORD"}
	environment := map[string]string{
		"DATABASE_USERNAME": "AzureDiamond",
		"DATABASE_PASSWORD": "hunter222",
	}

	got := Values(shell.DiscardLogger, patterns, environment)
	want := []string{"hunter222"}

	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Values(%q, %q) diff (-got +want)\n%s", patterns, environment, diff)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		patterns []string
		varName  string
		want     bool
	}{
		{
			name:     "exact name",
			patterns: []string{"SECRET"},
			varName:  "SECRET",
			want:     true,
		},
		{
			name:     "glob suffix",
			patterns: []string{"*_PASSWORD"},
			varName:  "DATABASE_PASSWORD",
			want:     true,
		},
		{
			name:     "no match",
			patterns: []string{"*_PASSWORD"},
			varName:  "DATABASE_USERNAME",
			want:     false,
		},
		{
			name:     "bad pattern is skipped",
			patterns: []string{"[", "*_TOKEN"},
			varName:  "API_TOKEN",
			want:     true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := Match(shell.DiscardLogger, test.patterns, test.varName); got != test.want {
				t.Errorf("Match(%q, %q) = %t, want %t", test.patterns, test.varName, got, test.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	if got, want := string(Redact([]byte("hunter222"))), "[REDACTED]"; got != want {
		t.Errorf("Redact(hunter222) = %q, want %q", got, want)
	}
}
