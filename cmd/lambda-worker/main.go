package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"biomrk-backend/internal/bootstrap"
	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/metrics"
	"biomrk-backend/internal/shared/storage/db"
	"biomrk-backend/internal/shared/telemetry"
	"biomrk-backend/internal/snapshots"
	"biomrk-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	dst      snapshots.Appender
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	backend, err := bootstrap.OpenBackend(context.Background(), cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		initErr = err
		return
	}
	appender, ok := backend.Appender()
	if !ok {
		backend.Close()
		initErr = errors.New("snapshot store " + backend.Kind + " does not accept rows")
		return
	}
	dst = appender
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"err": initErr})
		return events.SQSEventResponse{BatchItemFailures: allFailed(event)}, initErr
	}
	return ingest(ctx, dst, event), nil
}

// ingest appends every record's row. Records that can never succeed are
// acknowledged; append failures are reported back for redelivery.
func ingest(ctx context.Context, dst snapshots.Appender, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncIngest(metrics.IngestReceived)
		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"receive_count":  record.Attributes["ApproximateReceiveCount"],
		}

		parsed, meta, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			fields["body_len"] = meta.BodyLen
			fields["err"] = err
			telemetry.Error("lambda_worker.ingest.unparseable", fields)
			metrics.IncIngest(metrics.IngestDiscarded)
			continue
		}
		fields["request_id"] = parsed.Message.RequestID
		fields["cancer_code"] = parsed.Row.CancerCode
		fields["log_timestamp"] = parsed.Row.LogTimestamp

		if err := workerproc.Handle(ctx, dst, parsed); err != nil {
			fields["err"] = err
			telemetry.Error("lambda_worker.ingest.failed", fields)
			metrics.IncIngest(metrics.IngestFailed)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		telemetry.Info("lambda_worker.ingest.appended", fields)
		metrics.IncIngest(metrics.IngestAppended)
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func allFailed(event events.SQSEvent) []events.SQSBatchItemFailure {
	failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
	for _, record := range event.Records {
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return failures
}

func main() {
	lambda.Start(handler)
}
