package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"lodging/src/lib"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends domain events to a queue. The queue URL is resolved on first use.
type SQSPublisher struct {
	Name   string
	client sqsAPI

	mu   sync.Mutex
	qurl *string
}

func NewSQSPublisher(queue string, client sqsAPI) *SQSPublisher {
	if client == nil {
		client = lib.AWSGetSQSClient()
	}
	return &SQSPublisher{Name: queue, client: client}
}

func (s *SQSPublisher) queueURL(ctx context.Context) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qurl != nil {
		return s.qurl, nil
	}
	out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(s.Name),
	})
	if err != nil {
		log.Printf("Failed to retrieve queue URL for %s: %s\n", s.Name, err.Error())
		return nil, err
	}
	s.qurl = out.QueueUrl
	return s.qurl, nil
}

func (s *SQSPublisher) Publish(ctx context.Context, e lib.Event) error {
	qurl, err := s.queueURL(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    qurl,
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(string(e.Type))},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send %s: %w", e.Type, err)
	}
	return nil
}
