package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueActivity publishes activity entries to an Azure storage queue.
type QueueActivity struct {
	queue queueClient
}

// NewQueueActivity creates a publisher for the named queue.
func NewQueueActivity(connStr, queueName string) (*QueueActivity, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueActivity{queue: q}, nil
}

// Publish enqueues a as a JSON message.
func (p *QueueActivity) Publish(ctx context.Context, a domain.Activity) error {
	data, err := sonic.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	if _, err := p.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return fmt.Errorf("enqueue activity: %w", err)
	}
	return nil
}

// LogActivity writes activity entries to a logger. It stands in for the
// queue when no storage account is configured.
type LogActivity struct {
	Logger *log.Logger
}

// Publish logs a at info level.
func (p LogActivity) Publish(_ context.Context, a domain.Activity) error {
	logger := p.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"type":     a.Type,
		"task":     a.TaskID,
		"actor":    a.ActorID,
		"status":   a.Status,
		"previous": a.Previous,
	}).Info("activity")
	return nil
}
