package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ZGRSRL/mergenlite-sub000/internal/bootstrap"
	"github.com/ZGRSRL/mergenlite-sub000/internal/config"
	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/queue"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

const (
	defaultVisibilitySeconds  = 1200
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.QueueURL)
	if queueURL == "" {
		log.Fatal("SQS_QUEUE_URL is required")
	}
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, app.Orchestrator, sqsClient, queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// jobExecutor runs a job of the given kind to a terminal state.
type jobExecutor interface {
	Execute(ctx context.Context, kind, opportunityID string) (jobs.Job, error)
}

// handleMessage runs one queued job to a terminal state. The message is
// deleted once a terminal job record exists, including failures; a failed
// job is a recorded outcome, not a reason to redeliver.
func handleMessage(ctx context.Context, exec jobExecutor, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = len(body)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.decode_failed", fields)
		deleteMessage(ctx, client, queueURL, msg, "", "")
		return
	}
	if decoded.OpportunityID == "" || decoded.Kind == "" {
		fields := baseFields(msg, decoded.OpportunityID, decoded.Kind)
		fields["error"] = "missing opportunity id or kind"
		telemetry.Error("worker.job.decode_failed", fields)
		deleteMessage(ctx, client, queueURL, msg, decoded.OpportunityID, decoded.Kind)
		return
	}

	telemetry.Info("worker.job.received", baseFields(msg, decoded.OpportunityID, decoded.Kind))

	job, err := exec.Execute(ctx, decoded.Kind, decoded.OpportunityID)
	if err != nil {
		fields := baseFields(msg, decoded.OpportunityID, decoded.Kind)
		fields["error"] = err.Error()
		if errors.Is(err, opportunities.ErrNotFound) {
			telemetry.Error("worker.job.unknown_opportunity", fields)
			deleteMessage(ctx, client, queueURL, msg, decoded.OpportunityID, decoded.Kind)
			return
		}
		telemetry.Error("worker.job.start_failed", fields)
		return
	}

	fields := baseFields(msg, decoded.OpportunityID, decoded.Kind)
	fields["job_id"] = job.ID
	fields["status"] = job.Status
	if job.Status == jobs.StatusFailed {
		telemetry.Warn("worker.job.failed", fields)
	} else {
		telemetry.Info("worker.job.completed", fields)
	}
	deleteMessage(ctx, client, queueURL, msg, decoded.OpportunityID, decoded.Kind)
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, opportunityID, kind string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, opportunityID, kind)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, opportunityID, kind)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, opportunityID, kind string) map[string]any {
	fields := map[string]any{
		"opportunity_id": opportunityID,
		"kind":           kind,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw, ok := msg.Attributes["ApproximateReceiveCount"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
