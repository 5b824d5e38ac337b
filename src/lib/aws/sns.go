package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"lodging/src/lib"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans domain events out through a topic. Subscribers filter on the type attribute.
type SNSPublisher struct {
	TopicArn string
	client   snsAPI
}

func NewSNSPublisher(topicArn string, client snsAPI) *SNSPublisher {
	if client == nil {
		client = lib.AWSGetSNSClient()
	}
	return &SNSPublisher{TopicArn: topicArn, client: client}
}

func (s *SNSPublisher) Publish(ctx context.Context, e lib.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.TopicArn),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(string(e.Type))},
			"key":  {DataType: aws.String("String"), StringValue: aws.String(e.Key)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", e.Type, err)
	}
	return nil
}
