package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/buildkite/roko"
	"github.com/denisbrodbeck/machineid"
	"github.com/kubegate/kubegate/logger"
)

type FetchTagsConfig struct {
	Tags []string

	TagsFromHost              bool
	TagsFromEC2MetaData       bool
	TagsFromEC2Tags           bool
	TagsFromECSMetaData       bool
	TagsFromGCPMetaData       bool
	WaitForEC2TagsTimeout     time.Duration
	WaitForEC2MetaDataTimeout time.Duration
	WaitForECSMetaDataTimeout time.Duration
}

// FetchTags loads gate tags from the configured sources: the flag list, the
// host, and whichever cloud metadata services were asked for.
func FetchTags(ctx context.Context, l logger.Logger, conf FetchTagsConfig) []string {
	f := &tagFetcher{
		ec2MetaData: func() (map[string]string, error) { return EC2MetaData{}.Get(ctx) },
		ec2Tags:     func() (map[string]string, error) { return EC2Tags{}.Get(ctx) },
		ecsMetaData: func() (map[string]string, error) { return ECSMetadata{}.Get(ctx) },
		gcpMetaData: func() (map[string]string, error) { return GCPMetaData{}.Get(ctx) },
	}
	return f.Fetch(ctx, l, conf)
}

// tagFetcher holds the metadata sources as funcs, so tests can stand in for
// the cloud services.
type tagFetcher struct {
	ec2MetaData func() (map[string]string, error)
	ec2Tags     func() (map[string]string, error)
	ecsMetaData func() (map[string]string, error)
	gcpMetaData func() (map[string]string, error)
}

func (t *tagFetcher) Fetch(ctx context.Context, l logger.Logger, conf FetchTagsConfig) []string {
	tags := conf.Tags

	if conf.TagsFromHost {
		tags = append(tags, hostTags(l)...)
	}

	sources := []struct {
		enabled bool
		name    string
		wait    time.Duration
		get     func() (map[string]string, error)
	}{
		{conf.TagsFromEC2MetaData, "EC2 meta-data", conf.WaitForEC2MetaDataTimeout, t.ec2MetaData},
		{conf.TagsFromEC2Tags, "EC2 tags", conf.WaitForEC2TagsTimeout, t.nonEmptyEC2Tags},
		{conf.TagsFromECSMetaData, "ECS meta-data", conf.WaitForECSMetaDataTimeout, t.ecsMetaData},
		{conf.TagsFromGCPMetaData, "GCP meta-data", 5 * time.Second, t.gcpMetaData},
	}
	for _, src := range sources {
		if !src.enabled {
			continue
		}
		tags = append(tags, fetchSource(ctx, l, src.name, src.wait, src.get)...)
	}

	return tags
}

// nonEmptyEC2Tags wraps the EC2 tags source. Instance tags are eventually
// consistent and can read back empty for several seconds after boot, so an
// empty result is an error worth retrying.
func (t *tagFetcher) nonEmptyEC2Tags() (map[string]string, error) {
	m, err := t.ec2Tags()
	if err == nil && len(m) == 0 {
		return nil, errors.New("EC2 tags are empty")
	}
	return m, err
}

// fetchSource polls one metadata source with retries and renders its pairs
// as tag strings. A source that never answers logs an error and contributes
// nothing; missing cloud tags do not stop a cluster build.
func fetchSource(ctx context.Context, l logger.Logger, name string, wait time.Duration, get func() (map[string]string, error)) []string {
	l.Info("Fetching %s...", name)

	var tags []string
	err := roko.NewRetrier(
		roko.WithMaxAttempts(5),
		roko.WithStrategy(roko.Constant(wait/5)),
		roko.WithJitter(),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		pairs, err := get()
		if err != nil {
			l.Warn("%s (%s)", err, r)
			return err
		}

		l.Info("Successfully fetched %s", name)
		for tag, value := range pairs {
			tags = append(tags, fmt.Sprintf("%s=%s", tag, value))
		}
		r.Break()
		return nil
	})
	if err != nil {
		l.Error("Failed to fetch %s: %v", name, err)
		return nil
	}
	return tags
}

// hostTags describes the machine itself.
func hostTags(l logger.Logger) []string {
	hostname, err := os.Hostname()
	if err != nil {
		l.Warn("Failed to find hostname: %v", err)
	}

	tags := []string{
		"hostname=" + hostname,
		"os=" + runtime.GOOS,
		"arch=" + runtime.GOARCH,
	}

	machineID, _ := machineid.ProtectedID("kubegate")
	if machineID != "" {
		tags = append(tags, "machine-id="+machineID)
	}
	return tags
}
