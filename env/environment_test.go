package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromSlice(t *testing.T) {
	t.Parallel()

	env := FromSlice([]string{
		"KUBECONFIG=/etc/kubernetes/admin.conf",
		"ANSIBLE_FORCE_COLOR=true",
		"malformed entry with no separator",
		"=ignored",
	})

	assert.Equal(t, []string{
		"ANSIBLE_FORCE_COLOR=true",
		"KUBECONFIG=/etc/kubernetes/admin.conf",
	}, env.ToSlice())
}

func TestGetDistinguishesEmptyFromUnset(t *testing.T) {
	t.Parallel()

	env := FromMap(map[string]string{"EMPTY": ""})

	v, ok := env.Get("EMPTY")
	assert.Empty(t, v)
	assert.True(t, ok)

	_, ok = env.Get("NEVER_SET")
	assert.False(t, ok)
}

func TestSetOverwrites(t *testing.T) {
	t.Parallel()

	env := FromMap(map[string]string{"KUBECONFIG": "/root/.kube/config"})
	env.Set("KUBECONFIG", "/etc/kubernetes/admin.conf")

	v, _ := env.Get("KUBECONFIG")
	assert.Equal(t, "/etc/kubernetes/admin.conf", v)
}

func TestDumpReturnsACopy(t *testing.T) {
	t.Parallel()

	env := FromMap(map[string]string{"FOO": "bar"})

	dump := env.Dump()
	dump["FOO"] = "mutated"

	v, _ := env.Get("FOO")
	assert.Equal(t, "bar", v)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		name  string
		value string
		ok    bool
	}{
		{input: "KUBECONFIG=/root/.kube/config", name: "KUBECONFIG", value: "/root/.kube/config", ok: true},
		{input: "EMPTY=", name: "EMPTY", value: "", ok: true},
		{input: "TWO=parts=here", name: "TWO", value: "parts=here", ok: true},
		{input: "=starts-with-equals", ok: false},
		{input: "no-equals-at-all", ok: false},
	}

	for _, test := range tests {
		name, value, ok := Split(test.input)
		assert.Equal(t, test.name, name, "input %q", test.input)
		assert.Equal(t, test.value, value, "input %q", test.input)
		assert.Equal(t, test.ok, ok, "input %q", test.input)
	}
}
