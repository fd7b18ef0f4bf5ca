package queue

import "context"

// Client publishes analysis runs to the ingest queue.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
