// Package queue carries analysis jobs from the HTTP surface to workers.
// SQS is used when a queue URL is configured; otherwise jobs run on an
// in-process LocalClient.
package queue

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Send after Close.
var ErrQueueClosed = errors.New("queue closed")

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
