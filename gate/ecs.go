package gate

import (
	"context"
	"net/http"

	metadata "github.com/brunoscheufler/aws-ecs-metadata-go"
)

// ECSMetadata labels the gate host from the ECS task metadata endpoint, for
// gates running inside a container on ECS.
type ECSMetadata struct{}

func (e ECSMetadata) Get(ctx context.Context) (map[string]string, error) {
	labels := make(map[string]string)

	meta, err := metadata.GetContainer(ctx, &http.Client{})
	if err != nil {
		return labels, err
	}

	// the endpoint version depends on the ECS agent, but both versions carry
	// the fields the gate tags with
	switch m := meta.(type) {
	case *metadata.ContainerMetadataV3:
		ecsLabels(labels, m.DockerName, m.Image, m.Labels.EcsTaskArn)
	case *metadata.ContainerMetadataV4:
		ecsLabels(labels, m.DockerName, m.Image, m.Labels.EcsTaskArn)
	}

	return labels, nil
}

func ecsLabels(labels map[string]string, containerName, image, taskARN string) {
	labels["ecs:container-name"] = containerName
	labels["ecs:image"] = image
	labels["ecs:task-arn"] = taskARN
}
