// Package envelope adapts watermill messages to the mutable message view exposed to scripts.
package envelope

import (
	"context"
	"maps"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Envelope is the message a per-message script receives as the "message" binding.
type Envelope interface {
	ID() string
	Payload() []byte
	SetPayload(payload []byte)
	// Metadata returns a copy of all metadata entries.
	Metadata() map[string]string
	GetMetadata(key string) string
	SetMetadata(key, value string)
	DeleteMetadata(key string)
	Context() context.Context
}

// Message is an Envelope backed by a watermill message.
type Message struct {
	msg *message.Message
}

// New creates an envelope around a fresh watermill message with a random UUID.
func New(payload []byte) *Message {
	return Wrap(message.NewMessage(watermill.NewUUID(), payload))
}

// Wrap returns an envelope that reads and writes through to msg.
func Wrap(msg *message.Message) *Message {
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata)
	}
	return &Message{msg: msg}
}

// Unwrap returns the underlying watermill message.
func (m *Message) Unwrap() *message.Message {
	return m.msg
}

func (m *Message) ID() string {
	return m.msg.UUID
}

func (m *Message) Payload() []byte {
	return m.msg.Payload
}

func (m *Message) SetPayload(payload []byte) {
	m.msg.Payload = payload
}

func (m *Message) Metadata() map[string]string {
	return maps.Clone(map[string]string(m.msg.Metadata))
}

func (m *Message) GetMetadata(key string) string {
	return m.msg.Metadata.Get(key)
}

func (m *Message) SetMetadata(key, value string) {
	m.msg.Metadata.Set(key, value)
}

func (m *Message) DeleteMetadata(key string) {
	delete(m.msg.Metadata, key)
}

func (m *Message) Context() context.Context {
	return m.msg.Context()
}

func (m *Message) String() string {
	return "envelope.Message{ID: " + m.msg.UUID + "}"
}
