package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/request"
)

// SQSConfiguration configures the SQS queue set. SQS has no message
// priorities, so each priority class maps to its own queue URL. Unset
// priority queues fall back to the normal queue.
type SQSConfiguration struct {
	AWSRegion string `json:"aws_region"`
	AccessID  string `json:"access_id"`
	AccessKey string `json:"access_key"`

	ImmediateQueueURL string `json:"immediate_queue_url"`
	SoonQueueURL      string `json:"soon_queue_url"`
	NormalQueueURL    string `json:"normal_queue_url"`
	LaterQueueURL     string `json:"later_queue_url"`
}

// SQS is the AWS SQS implementation of the crawl queue
type SQS struct {
	client *sqs.Client
	urls   []string // indexed by priority rank
}

// NewSQS returns a queue over the configured SQS queue set
func NewSQS(sqsConfig SQSConfiguration) (*SQS, error) {
	if sqsConfig.NormalQueueURL == "" {
		return nil, fmt.Errorf("NormalQueueURL must not be empty")
	}

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(sqsConfig.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(sqsConfig.AccessID, sqsConfig.AccessKey, "")),
	)
	if err != nil {
		return nil, err
	}

	urls := []string{
		sqsConfig.ImmediateQueueURL,
		sqsConfig.SoonQueueURL,
		sqsConfig.NormalQueueURL,
		sqsConfig.LaterQueueURL,
	}
	for i := range urls {
		if urls[i] == "" {
			urls[i] = sqsConfig.NormalQueueURL
		}
	}

	logger.Default().Debugln("SQS queue enabled")
	return &SQS{client: sqs.NewFromConfig(cfg), urls: urls}, nil
}

// Queue enqueues a single request at normal priority
func (q *SQS) Queue(ctx context.Context, req *request.Request) error {
	return q.Push(ctx, []*request.Request{req}, request.PriorityNormal)
}

// Push bulk-enqueues requests at the given priority. SQS batches carry at
// most ten messages.
func (q *SQS) Push(ctx context.Context, reqs []*request.Request, priority request.Priority) error {
	url := q.urls[rank(priority)]
	for start := 0; start < len(reqs); start += 10 {
		end := start + 10
		if end > len(reqs) {
			end = len(reqs)
		}
		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, req := range reqs[start:end] {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("r%d", start+i)),
				MessageBody: aws.String(string(body)),
			})
		}
		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(url),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("push to %s: %s", url, err.Error())
		}
		if len(out.Failed) > 0 {
			return fmt.Errorf("push to %s: %d messages failed", url, len(out.Failed))
		}
	}
	return nil
}

// Pop polls the priority queues in order and returns the first message
func (q *SQS) Pop(ctx context.Context) (*Delivery, error) {
	seen := map[string]bool{}
	for _, url := range q.urls {
		if seen[url] {
			continue
		}
		seen[url] = true

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("pop from %s: %s", url, err.Error())
		}
		if len(out.Messages) == 0 {
			continue
		}
		message := out.Messages[0]
		req := &request.Request{}
		if err := json.Unmarshal([]byte(aws.ToString(message.Body)), req); err != nil {
			return nil, fmt.Errorf("pop from %s: corrupt request: %s", url, err.Error())
		}
		queueURL := url
		receipt := message.ReceiptHandle
		return &Delivery{
			Request: req,
			Done: func() error {
				_, err := q.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(queueURL),
					ReceiptHandle: receipt,
				})
				return err
			},
			Fail: func() error {
				_, err := q.client.ChangeMessageVisibility(context.Background(), &sqs.ChangeMessageVisibilityInput{
					QueueUrl:          aws.String(queueURL),
					ReceiptHandle:     receipt,
					VisibilityTimeout: 0,
				})
				return err
			},
		}, nil
	}
	return nil, nil
}
