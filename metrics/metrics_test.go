package metrics

import (
	"testing"
	"time"

	"github.com/kubegate/kubegate/logger"
	"github.com/stretchr/testify/assert"
)

func TestTagsStringSlice(t *testing.T) {
	t.Parallel()

	tags := Tags{
		"phase":      "wait",
		"os version": "centos 7.9",
		"empty":      "",
	}
	assert.Equal(t, []string{"os_version:centos_7.9", "phase:wait"}, tags.StringSlice())
}

func TestScopeMergesTags(t *testing.T) {
	t.Parallel()

	c := NewCollector(logger.Discard, CollectorConfig{})
	s := c.Scope(Tags{"gate": "default"}).With(Tags{"phase": "packages"})
	assert.Equal(t, Tags{"gate": "default", "phase": "packages"}, s.Tags)
}

func TestScopeIsNoopWithoutClient(t *testing.T) {
	t.Parallel()

	c := NewCollector(logger.Discard, CollectorConfig{})
	s := c.Scope(nil)
	s.Timing("phase.duration", 3*time.Second)
	s.Count("probes", 1, Tags{"outcome": "error"})
	assert.NoError(t, c.Stop())
}
