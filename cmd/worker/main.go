package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"biomrk-backend/internal/bootstrap"
	"biomrk-backend/internal/queue"
	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/metrics"
	"biomrk-backend/internal/shared/storage/db"
	"biomrk-backend/internal/shared/telemetry"
	"biomrk-backend/internal/snapshots"
	"biomrk-backend/internal/workerproc"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	defer telemetry.Sync()

	if cfg.IngestQueueURL == "" {
		telemetry.Error("worker.config", map[string]any{"err": "INGEST_SQS_QUEUE_URL is required"})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		ServiceName:  cfg.ServiceName + "-worker",
	})
	if err != nil {
		telemetry.Error("worker.tracing_failed", map[string]any{"err": err})
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	awsCfg, err := queue.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		telemetry.Error("worker.aws_config", map[string]any{"err": err})
		os.Exit(1)
	}

	backend, err := bootstrap.OpenBackend(ctx, cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"err": err})
		os.Exit(1)
	}
	defer backend.Close()
	dst, ok := backend.Appender()
	if !ok {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"err": "snapshot store does not accept rows", "snapshot_store": backend.Kind})
		os.Exit(1)
	}

	w := &worker{
		client:     sqs.NewFromConfig(awsCfg),
		queueURL:   cfg.IngestQueueURL,
		dst:        dst,
		visibility: cfg.IngestVisibility,
	}
	w.run(ctx, max(1, cfg.IngestConcurrency), cfg.ShutdownTimeout)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type worker struct {
	client     sqsAPI
	queueURL   string
	dst        snapshots.Appender
	visibility time.Duration
}

func (w *worker) run(ctx context.Context, concurrency int, shutdownTimeout time.Duration) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       w.queueURL,
		"concurrency": concurrency,
		"visibility":  w.visibility.String(),
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(w.visibility / time.Second),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"err": err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncIngest(metrics.IngestReceived)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				// in-flight appends finish even after shutdown starts
				w.handleMessage(context.WithoutCancel(ctx), msg)
			}()
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// handleMessage appends the message's row. Messages that can never succeed are
// deleted; append failures are left for redelivery.
func (w *worker) handleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	parsed, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, parsed.Message.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["err"] = err
		telemetry.Error("worker.ingest.unparseable", fields)
		if w.deleteMessage(ctx, msg, parsed.Message.RequestID) {
			metrics.IncIngest(metrics.IngestDiscarded)
		}
		return
	}

	fields := baseFields(msg, parsed.Message.RequestID)
	fields["cancer_code"] = parsed.Row.CancerCode
	fields["log_timestamp"] = parsed.Row.LogTimestamp

	if err := workerproc.Handle(ctx, w.dst, parsed); err != nil {
		fields["err"] = err
		telemetry.Error("worker.ingest.failed", fields)
		metrics.IncIngest(metrics.IngestFailed)
		return
	}

	if w.deleteMessage(ctx, msg, parsed.Message.RequestID) {
		telemetry.Info("worker.ingest.appended", fields)
		metrics.IncIngest(metrics.IngestAppended)
	}
}

func (w *worker) deleteMessage(ctx context.Context, msg sqstypes.Message, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, requestID)
		fields["err"] = "missing receipt handle"
		telemetry.Error("worker.ingest.delete_failed", fields)
		return false
	}
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, requestID)
		fields["err"] = err
		telemetry.Error("worker.ingest.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
