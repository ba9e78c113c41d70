package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageVersion is the current job payload version.
const MessageVersion = 2

// ErrInvalidMessage reports a payload that cannot describe a job.
var ErrInvalidMessage = errors.New("invalid job message")

// Message is the payload sent to downstream queue consumers. It points at a
// stored document; the worker fetches the bytes through the object locations.
type Message struct {
	JobID         string `json:"jobId"`
	DocumentKey   string `json:"documentKey"`
	FileName      string `json:"fileName"`
	OwnerID       string `json:"ownerId"`
	WithKnowledge bool   `json:"withKnowledge,omitempty"`
	RequestID     string `json:"requestId"`
	EnqueuedAt    string `json:"enqueuedAt"`
	Version       int    `json:"version"`
}

// Validate checks the fields a worker needs to process the job.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.JobID) == "":
		return errors.Join(ErrInvalidMessage, errors.New("jobId is required"))
	case strings.TrimSpace(m.DocumentKey) == "":
		return errors.Join(ErrInvalidMessage, errors.New("documentKey is required"))
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
