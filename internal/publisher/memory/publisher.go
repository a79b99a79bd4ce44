// Package memory records completion events in process. It backs the publisher
// when no Pub/Sub topic is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity bounds how many messages are retained.
const DefaultCapacity = 1024

// Message captures one publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher keeps the most recent messages, oldest first.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	seq      int
	messages []Message
	logger   *zap.Logger
}

// New returns a Publisher retaining up to capacity messages. capacity <= 0
// uses DefaultCapacity.
func New(capacity int, logger *zap.Logger) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{capacity: capacity, logger: logger.Named("publisher")}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	if over := len(p.messages) - p.capacity; over > 0 {
		p.messages = append(p.messages[:0:0], p.messages[over:]...)
	}
	p.logger.Debug("event recorded", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

// Messages returns a copy of the retained messages.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
