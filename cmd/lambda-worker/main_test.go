package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"biomrk-backend/internal/queue"
	"biomrk-backend/internal/snapshots"
)

type rejectingAppender struct {
	code string
}

func (a rejectingAppender) Append(ctx context.Context, row snapshots.RawRow) error {
	if row.CancerCode == a.code {
		return errors.New("write failed")
	}
	return nil
}

func record(t *testing.T, id, row string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{RequestID: "req-" + id, Row: json.RawMessage(row)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestIngestAppendsRows(t *testing.T) {
	store := snapshots.NewMemoryStore()
	resp := ingest(context.Background(), store, events.SQSEvent{Records: []events.SQSMessage{
		record(t, "a", `{"cancer_code":"BRCA","log_timestamp":1}`),
		record(t, "b", `{"cancer_code":"BRCA","log_timestamp":2}`),
	}})

	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %+v", resp.BatchItemFailures)
	}
	versions, _ := store.ListVersions(context.Background(), "BRCA")
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %v", versions)
	}
}

func TestIngestReportsOnlyRetryableFailures(t *testing.T) {
	resp := ingest(context.Background(), rejectingAppender{code: "LUAD"}, events.SQSEvent{Records: []events.SQSMessage{
		record(t, "ok", `{"cancer_code":"BRCA","log_timestamp":1}`),
		record(t, "retry", `{"cancer_code":"LUAD","log_timestamp":1}`),
		{MessageId: "garbage", Body: "{not json"},
		record(t, "nopartition", `{"analysis_id":"x"}`),
	}})

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("expected only the failed append to be retried, got %+v", resp.BatchItemFailures)
	}
}

func TestAllFailed(t *testing.T) {
	got := allFailed(events.SQSEvent{Records: []events.SQSMessage{{MessageId: "1"}, {MessageId: "2"}}})
	if len(got) != 2 || got[0].ItemIdentifier != "1" || got[1].ItemIdentifier != "2" {
		t.Fatalf("unexpected failures %+v", got)
	}
}
