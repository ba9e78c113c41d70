package queue

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		JobID:         "job-123",
		DocumentKey:   "abc/123_report.pdf",
		FileName:      "report.pdf",
		OwnerID:       "owner-1",
		WithKnowledge: true,
		RequestID:     "request-456",
		EnqueuedAt:    "2026-01-30T22:00:00Z",
		Version:       MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestEncodeMessageDefaultsVersion(t *testing.T) {
	payload, err := EncodeMessage(Message{JobID: "j", DocumentKey: "k"})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.Version != MessageVersion {
		t.Fatalf("expected version %d, got %d", MessageVersion, got.Version)
	}
}

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"complete", Message{JobID: "j", DocumentKey: "k"}, true},
		{"missing job", Message{DocumentKey: "k"}, false},
		{"missing key", Message{JobID: "j", DocumentKey: "  "}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestLocalClientDelivers(t *testing.T) {
	q := NewLocalClient(2)
	got := make(chan Message, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	})

	if err := q.Send(ctx, Message{JobID: "j1", DocumentKey: "k"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-got:
		if msg.JobID != "j1" || msg.Version != MessageVersion {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	q.Close()
	if err := q.Send(ctx, Message{JobID: "j2"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
