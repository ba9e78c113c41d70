package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"creditdocs-backend/internal/pipeline"
	"creditdocs-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) ProcessJob(ctx context.Context, msg queue.Message) error {
	_ = ctx
	_ = msg
	f.calls++
	return f.err
}

func jobMessage(t *testing.T, id, receipt string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	svc := &fakeProcessor{}
	msg := jobMessage(t, "m1", "r1", queue.Message{JobID: "job-1", DocumentKey: "k", RequestID: "req-1"})

	handleMessage(context.Background(), client, "queue", svc, msg)

	if len(client.deleted) != 1 || svc.calls != 1 {
		t.Fatalf("expected delete after one call, got deleted=%d calls=%d", len(client.deleted), svc.calls)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	svc := &fakeProcessor{err: errors.New("boom")}
	msg := jobMessage(t, "m2", "r2", queue.Message{JobID: "job-2", DocumentKey: "k", RequestID: "req-2"})

	handleMessage(context.Background(), client, "queue", svc, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesUnrecoverableJob(t *testing.T) {
	client := &fakeSQS{}
	svc := &fakeProcessor{err: fmt.Errorf("%w: document missing", pipeline.ErrUnrecoverable)}
	msg := jobMessage(t, "m4", "r4", queue.Message{JobID: "job-4", DocumentKey: "k"})

	handleMessage(context.Background(), client, "queue", svc, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	svc := &fakeProcessor{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), client, "queue", svc, msg)

	if len(client.deleted) != 1 || svc.calls != 0 {
		t.Fatalf("expected delete without processing, got deleted=%d calls=%d", len(client.deleted), svc.calls)
	}
}

func TestWorkerDeletesJobWithoutDocumentKey(t *testing.T) {
	client := &fakeSQS{}
	svc := &fakeProcessor{}
	msg := jobMessage(t, "m5", "r5", queue.Message{JobID: "job-5"})

	handleMessage(context.Background(), client, "queue", svc, msg)

	if len(client.deleted) != 1 || svc.calls != 0 {
		t.Fatalf("expected delete without processing, got deleted=%d calls=%d", len(client.deleted), svc.calls)
	}
}

func TestReceiveCount(t *testing.T) {
	if got := receiveCount(sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
