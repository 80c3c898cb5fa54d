package gate

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/compute/metadata"
)

// GCPMetaData labels the gate host from the GCE metadata service.
type GCPMetaData struct{}

func (g GCPMetaData) Get(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string)

	fields := []struct {
		key   string
		fetch func(context.Context) (string, error)
	}{
		{"gcp:instance-id", metadata.InstanceIDWithContext},
		{"gcp:machine-type", gcpMachineType},
		{"gcp:preemptible", gcpPreemptible},
		{"gcp:project-id", metadata.ProjectIDWithContext},
		{"gcp:zone", metadata.ZoneWithContext},
	}
	for _, f := range fields {
		value, err := f.fetch(ctx)
		if err != nil {
			return result, err
		}
		result[f.key] = value
	}

	region, err := gcpRegionFromZone(result["gcp:zone"])
	if err != nil {
		return result, err
	}
	result["gcp:region"] = region

	return result, nil
}

func gcpMachineType(ctx context.Context) (string, error) {
	// the raw value has the form "projects/<projNum>/machineTypes/<machType>"
	machType, err := metadata.GetWithContext(ctx, "instance/machine-type")
	if err != nil {
		return "", err
	}
	index := strings.LastIndex(machType, "/")
	if index == -1 {
		return "", errors.New("cannot parse machine-type: " + machType)
	}
	return machType[index+1:], nil
}

func gcpPreemptible(ctx context.Context) (string, error) {
	preemptible, err := metadata.GetWithContext(ctx, "instance/scheduling/preemptible")
	if err != nil {
		return "", err
	}
	return strings.ToLower(preemptible), nil
}

func gcpRegionFromZone(zone string) (string, error) {
	// a zone has the form "<region>-<letter>"
	index := strings.LastIndex(zone, "-")
	if index == -1 {
		return "", errors.New("cannot parse zone: " + zone)
	}
	return zone[:index], nil
}
