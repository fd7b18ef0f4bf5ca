package workerproc

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"biomrk-backend/internal/queue"
	"biomrk-backend/internal/shared/util"
	"biomrk-backend/internal/snapshots"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.ContentHash([]byte(body))}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates the envelope could not be decoded.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrInvalidRow indicates the envelope decoded but its row is unusable.
type ErrInvalidRow struct {
	Meta      MessageMeta
	RequestID string
	Err       error
}

func (e ErrInvalidRow) Error() string { return "invalid row: " + e.Err.Error() }

func (e ErrInvalidRow) Unwrap() error { return e.Err }

// ErrProcess indicates appending failed after successful parsing. These are retryable.
type ErrProcess struct {
	CancerCode   string
	LogTimestamp int64
	RequestID    string
	Err          error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "append row"
	}
	return "append row: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Parsed is a decoded ingest message.
type Parsed struct {
	Message queue.Message
	Row     snapshots.RawRow
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (Parsed, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return Parsed{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return Parsed{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	rows, err := snapshots.ReadSeed(bytes.NewReader(msg.Row))
	if err != nil {
		return Parsed{Message: msg}, meta, ErrInvalidRow{Meta: meta, RequestID: msg.RequestID, Err: err}
	}
	if len(rows) != 1 {
		return Parsed{Message: msg}, meta, ErrInvalidRow{
			Meta:      meta,
			RequestID: msg.RequestID,
			Err:       fmt.Errorf("expected one row, got %d", len(rows)),
		}
	}
	return Parsed{Message: msg, Row: rows[0]}, meta, nil
}

// Handle appends a parsed row to the analysis log.
func Handle(ctx context.Context, dst snapshots.Appender, p Parsed) error {
	if dst == nil {
		return ErrProcess{RequestID: p.Message.RequestID, Err: fmt.Errorf("no appender configured")}
	}
	ctx, span := otel.Tracer("biomrk-backend/internal/workerproc").Start(ctx, "workerproc.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("cancer_code", p.Row.CancerCode),
		attribute.Int64("log_timestamp", p.Row.LogTimestamp),
		attribute.String("request_id", p.Message.RequestID),
	)
	if err := dst.Append(ctx, p.Row); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return ErrProcess{
			CancerCode:   p.Row.CancerCode,
			LogTimestamp: p.Row.LogTimestamp,
			RequestID:    p.Message.RequestID,
			Err:          err,
		}
	}
	return nil
}
