// Package metrics ships gate timings and counts to a dogstatsd agent when
// one is configured. Without --metrics-datadog every call is a no-op, so
// phase code can record unconditionally.
package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/kubegate/kubegate/logger"
)

const (
	// The dogstatsd default port, appended when the host flag has none.
	defaultPort = 8125

	// Commands buffered client-side before each flush to the agent.
	bufferLen = 10
)

// Tags label a measurement. Keys and values are sanitized on the way out.
type Tags map[string]string

// StringSlice renders tags the way the statsd client wants them, sanitized
// and sorted. A tag with an empty key or value is dropped.
func (tags Tags) StringSlice() []string {
	var s []string
	for k, v := range tags {
		if k == "" || v == "" {
			continue
		}
		s = append(s, sanitize(k)+":"+sanitize(v))
	}
	slices.Sort(s)
	return s
}

// Datadog accepts '.', '_' and alphanumerics in tag components. Collapsing
// the rest to '_' here keeps the agent's error log from filling the disk
// complaining about them.
var invalidChars = regexp.MustCompile(`[^._a-zA-Z0-9]+`)

func sanitize(name string) string {
	return invalidChars.ReplaceAllString(name, "_")
}

// Collector owns the dogstatsd client. One built with Datadog disabled
// never connects and hands out no-op scopes.
type Collector struct {
	config CollectorConfig
	logger logger.Logger
	client *statsd.Client
}

type CollectorConfig struct {
	Datadog     bool
	DatadogHost string
}

func NewCollector(l logger.Logger, c CollectorConfig) *Collector {
	return &Collector{
		config: c,
		logger: l,
	}
}

var hasPortSuffix = regexp.MustCompile(`:\d+$`)

// Start connects to the dogstatsd agent, if one is configured.
func (c *Collector) Start() error {
	if !c.config.Datadog {
		return nil
	}

	host := c.config.DatadogHost
	if !hasPortSuffix.MatchString(host) {
		host = fmt.Sprintf("%s:%d", host, defaultPort)
	}

	c.logger.Info("Starting datadog metrics collection to %s", host)

	client, err := statsd.New(host,
		statsd.WithMaxMessagesPerPayload(bufferLen),
		statsd.WithNamespace("kubegate."),
	)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Stop flushes and closes the client.
func (c *Collector) Stop() error {
	if c.client == nil {
		return nil
	}
	c.logger.Info("Stopping metrics collection")
	return c.client.Close()
}

// Scope returns a scope carrying the given tags on every measurement.
func (c *Collector) Scope(tags Tags) *Scope {
	return &Scope{
		Tags: tags,
		c:    c,
	}
}

type Scope struct {
	Tags Tags
	c    *Collector
}

// With returns a child scope carrying additional tags.
func (s *Scope) With(tags Tags) *Scope {
	return &Scope{
		Tags: s.mergeTags([]Tags{tags}),
		c:    s.c,
	}
}

// Timing records a duration. Dogstatsd keeps millisecond resolution.
func (s *Scope) Timing(name string, value time.Duration, tags ...Tags) {
	if s.c.client == nil {
		return
	}

	merged := s.mergeTags(tags).StringSlice()
	s.c.logger.Debug("Metrics timing %s=%v %v", name, value, merged)

	if err := s.c.client.Timing(name, value, merged, 1); err != nil {
		s.c.logger.Error("Metrics timing failed: %v", err)
	}
}

// Count records that something happened value more times.
func (s *Scope) Count(name string, value int64, tags ...Tags) {
	if s.c.client == nil {
		return
	}

	merged := s.mergeTags(tags).StringSlice()
	s.c.logger.Debug("Metrics count %s=%v %v", name, value, merged)

	if err := s.c.client.Count(name, value, merged, 1); err != nil {
		s.c.logger.Error("Metrics count failed: %v", err)
	}
}

func (s *Scope) mergeTags(extra []Tags) Tags {
	merged := make(Tags, len(s.Tags))
	for k, v := range s.Tags {
		merged[k] = v
	}
	for _, tags := range extra {
		for k, v := range tags {
			merged[k] = v
		}
	}
	return merged
}
