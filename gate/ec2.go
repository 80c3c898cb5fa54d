package gate

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/kubegate/kubegate/internal/awslib"
)

// EC2MetaData labels the gate host from the EC2 instance identity document.
type EC2MetaData struct{}

func (e EC2MetaData) Get(ctx context.Context) (map[string]string, error) {
	metaData := make(map[string]string)

	cfg, err := awslib.LoadConfig(ctx)
	if err != nil {
		return metaData, err
	}

	client := imds.NewFromConfig(cfg)

	document, err := client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return metaData, err
	}

	metaData["aws:instance-id"] = document.InstanceID
	metaData["aws:instance-type"] = document.InstanceType
	metaData["aws:ami-id"] = document.ImageID
	metaData["aws:region"] = document.Region
	metaData["aws:availability-zone"] = document.AvailabilityZone

	return metaData, nil
}

// EC2Tags reads the tags of the instance the gate runs on, using whatever
// credentials the host already has.
type EC2Tags struct{}

func (e EC2Tags) Get(ctx context.Context) (map[string]string, error) {
	tags := make(map[string]string)

	cfg, err := awslib.LoadConfig(ctx)
	if err != nil {
		return tags, err
	}

	instanceID, err := currentInstanceID(ctx, cfg)
	if err != nil {
		return tags, err
	}

	resp, err := ec2.NewFromConfig(cfg).DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("resource-id"),
				Values: []string{instanceID},
			},
		},
	})
	if err != nil {
		return tags, err
	}

	for _, tag := range resp.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	return tags, nil
}

func currentInstanceID(ctx context.Context, cfg aws.Config) (string, error) {
	client := imds.NewFromConfig(cfg)

	out, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		return "", err
	}
	defer out.Content.Close()

	id, err := io.ReadAll(out.Content)
	if err != nil {
		return "", err
	}

	return string(id), nil
}
