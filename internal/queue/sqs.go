package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSConfig holds configuration for the SQS queue provider.
type SQSConfig struct {
	// QueueURL is the full SQS queue URL.
	QueueURL string

	// Region is the AWS region the queue lives in.
	Region string

	// AccessKeyID and SecretAccessKey are static AWS credentials.
	AccessKeyID     string
	SecretAccessKey string
}

// SQSQueue implements the Queue interface using AWS SQS.
// Visibility timeouts and dead-letter redrive are configured on the queue
// itself; this client only sends, receives, and deletes.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
	logger   *slog.Logger
}

// NewSQSQueue creates a new SQSQueue instance.
func NewSQSQueue(cfg SQSConfig, logger *slog.Logger) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue URL is required")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"", // session token not needed for long-lived keys
	)

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: creds,
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("initialized SQS queue",
		"queue_url", cfg.QueueURL,
		"region", cfg.Region,
	)

	return &SQSQueue{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Send enqueues a payload and returns the SQS message id.
func (q *SQSQueue) Send(ctx context.Context, body []byte) (string, error) {
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", &QueueError{Op: "Send", Err: err}
	}
	return aws.ToString(out.MessageId), nil
}

// Receive long-polls for up to max messages. SQS caps a single receive at
// ten messages and a twenty-second wait; both are clamped here.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		return nil, nil
	}
	if max > 10 {
		max = 10
	}
	waitSeconds := int32(wait / time.Second)
	if waitSeconds > 20 {
		waitSeconds = 20
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, &QueueError{Op: "Receive", Err: err}
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}
		if count, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(count); err == nil {
				msg.DeliveryCount = n
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete acknowledges a delivery by its receipt handle.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return &QueueError{Op: "Delete", Err: err}
	}
	return nil
}
