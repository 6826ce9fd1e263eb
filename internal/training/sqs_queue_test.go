package training

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	sendInput    *sqs.SendMessageInput
	sendErr      error
	receiveInput *sqs.ReceiveMessageInput
	receiveOut   *sqs.ReceiveMessageOutput
	deleteInput  *sqs.DeleteMessageInput
}

func (m *mockSQS) SendMessage(_ context.Context, input *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sendInput = input
	return &sqs.SendMessageOutput{}, m.sendErr
}

func (m *mockSQS) ReceiveMessage(_ context.Context, input *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.receiveInput = input
	if m.receiveOut == nil {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	return m.receiveOut, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, input *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleteInput = input
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueueSend(t *testing.T) {
	mock := &mockSQS{}
	queue := NewSQSQueue(mock, "https://sqs.local/training")

	require.NoError(t, queue.Send(context.Background(), `{"job_id":"j1"}`))
	require.NotNil(t, mock.sendInput)
	assert.Equal(t, "https://sqs.local/training", aws.ToString(mock.sendInput.QueueUrl))
	assert.Equal(t, `{"job_id":"j1"}`, aws.ToString(mock.sendInput.MessageBody))
}

func TestSQSQueueSendError(t *testing.T) {
	mock := &mockSQS{sendErr: errors.New("throttled")}
	queue := NewSQSQueue(mock, "https://sqs.local/training")

	err := queue.Send(context.Background(), "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSQSQueueReceiveMapsMessages(t *testing.T) {
	mock := &mockSQS{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []sqstypes.Message{
				{
					MessageId:     aws.String("m1"),
					Body:          aws.String("payload"),
					ReceiptHandle: aws.String("rh1"),
				},
			},
		},
	}
	queue := NewSQSQueue(mock, "https://sqs.local/training")

	msgs, err := queue.Receive(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "payload", msgs[0].Body)
	assert.Equal(t, "rh1", msgs[0].ReceiptHandle)

	assert.EqualValues(t, 5, mock.receiveInput.MaxNumberOfMessages)
	assert.EqualValues(t, 2, mock.receiveInput.WaitTimeSeconds)
}

func TestSQSQueueDelete(t *testing.T) {
	mock := &mockSQS{}
	queue := NewSQSQueue(mock, "https://sqs.local/training")

	require.NoError(t, queue.Delete(context.Background(), ""))
	assert.Nil(t, mock.deleteInput, "empty receipt handle skips the API call")

	require.NoError(t, queue.Delete(context.Background(), "rh1"))
	require.NotNil(t, mock.deleteInput)
	assert.Equal(t, "rh1", aws.ToString(mock.deleteInput.ReceiptHandle))
}
