package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/queue"
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

type fakeExecutor struct {
	job  jobs.Job
	err  error
	seen []string
}

func (f *fakeExecutor) Execute(ctx context.Context, kind, opportunityID string) (jobs.Job, error) {
	_ = ctx
	f.seen = append(f.seen, kind+":"+opportunityID)
	return f.job, f.err
}

func encoded(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func sqsMsg(id, receipt, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnCompletedJob(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{job: jobs.Job{ID: "job-1", Status: jobs.StatusCompleted}}
	body := encoded(t, queue.Message{OpportunityID: "opp-1", Kind: jobs.KindDocumentAnalysis})

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m1", "r1", body))

	if len(exec.seen) != 1 || exec.seen[0] != "document_analysis:opp-1" {
		t.Fatalf("unexpected executions: %v", exec.seen)
	}
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesMessageOnFailedJob(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{job: jobs.Job{ID: "job-2", Status: jobs.StatusFailed}}
	body := encoded(t, queue.Message{OpportunityID: "opp-2", Kind: jobs.KindHotelMatch})

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m2", "r2", body))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete for terminal failed job, got %d", len(client.deleted))
	}
}

func TestWorkerDoesNotDeleteOnStartFailure(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{err: errors.New("db down")}
	body := encoded(t, queue.Message{OpportunityID: "opp-3", Kind: jobs.KindDocumentAnalysis})

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m3", "r3", body))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnUnknownOpportunity(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{err: opportunities.ErrNotFound}
	body := encoded(t, queue.Message{OpportunityID: "nope", Kind: jobs.KindDocumentAnalysis})

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m4", "r4", body))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{}

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m5", "r5", "{bad-json"))

	if len(exec.seen) != 0 {
		t.Fatalf("executor should not run on invalid payload")
	}
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnMissingFields(t *testing.T) {
	client := &fakeSQS{}
	exec := &fakeExecutor{}
	body := encoded(t, queue.Message{Kind: jobs.KindDocumentAnalysis})

	handleMessage(context.Background(), exec, client, "queue", sqsMsg("m6", "r6", body))

	if len(exec.seen) != 0 {
		t.Fatalf("executor should not run without an opportunity id")
	}
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
