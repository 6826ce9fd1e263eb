package training

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/pkg/logging"
)

const jobTTL = 7 * 24 * time.Hour

// JobStatus represents the lifecycle of a training job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("training: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord captures the persisted state of one training run.
type JobRecord struct {
	JobID        string    `dynamodbav:"jobId" json:"job_id"`
	BotID        string    `dynamodbav:"botId" json:"bot_id"`
	Status       JobStatus `dynamodbav:"status" json:"status"`
	ModelVersion string    `dynamodbav:"modelVersion,omitempty" json:"model_version,omitempty"`
	Accuracy     float64   `dynamodbav:"accuracy,omitempty" json:"accuracy,omitempty"`
	NumIntents   int       `dynamodbav:"numIntents,omitempty" json:"num_intents,omitempty"`
	NumExamples  int       `dynamodbav:"numExamples,omitempty" json:"num_examples,omitempty"`
	ErrorMessage string    `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	CreatedAt    string    `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt    string    `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt    int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder creates and reads job records.
type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater advances a job through its lifecycle.
type JobUpdater interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, result nlp.TrainingMetrics) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore persists job records to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("training: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("training: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("training: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("training: marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("training: persist job: %w", err)
	}
	return nil
}

// MarkRunning flips a pending job to running.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusRunning)},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #updated = :updated",
	)
}

// MarkCompleted records the training result on the job.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, result nlp.TrainingMetrics) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":version":  &types.AttributeValueMemberS{Value: result.Version},
			":accuracy": &types.AttributeValueMemberN{Value: strconv.FormatFloat(result.Accuracy, 'f', -1, 64)},
			":intents":  &types.AttributeValueMemberN{Value: strconv.Itoa(result.NumIntents)},
			":examples": &types.AttributeValueMemberN{Value: strconv.Itoa(result.NumExamples)},
			":error":    &types.AttributeValueMemberS{Value: ""},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, modelVersion = :version, accuracy = :accuracy, numIntents = :intents, numExamples = :examples, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("training: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("training: fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("training: decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("training: update job %s: %w", jobID, err)
	}
	return nil
}
