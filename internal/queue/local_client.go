package queue

import (
	"context"
	"sync"
)

// LocalClient is an in-process queue used when no SQS queue is configured.
// Messages are delivered to the handler passed to Run.
type LocalClient struct {
	mu     sync.RWMutex
	ch     chan Message
	closed bool
}

// NewLocalClient returns a LocalClient with the given buffer size.
func NewLocalClient(buffer int) *LocalClient {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalClient{ch: make(chan Message, buffer)}
}

// Send enqueues msg, blocking while the buffer is full.
func (l *LocalClient) Send(ctx context.Context, msg Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrQueueClosed
	}
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	select {
	case l.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers messages to handle until ctx is done or the queue is closed.
// Handler errors are left to the handler to report.
func (l *LocalClient) Run(ctx context.Context, handle func(context.Context, Message) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-l.ch:
			if !ok {
				return
			}
			_ = handle(ctx, msg)
		}
	}
}

// Close stops accepting messages and ends Run once the buffer drains.
func (l *LocalClient) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}

var _ Client = (*LocalClient)(nil)
