// internal/common/aws/sns.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(cfg)}, nil
}

// PublishToEndpoint sends message to a single platform endpoint (device push target).
func (s *SNSClient) PublishToEndpoint(ctx context.Context, endpointArn, subject, message string) (string, error) {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(endpointArn),
		Subject:   aws.String(subject),
		Message:   aws.String(message),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
