package mq

import (
	"context"
	"errors"

	"github.com/smartscale/scale-server/internal/config"
)

var (
	ErrTopicNotExists = errors.New("topic does not exist")
	ErrQueueFull      = errors.New("queue is full")
	ErrQueueClosed    = errors.New("queue closed")
	ErrTopicClosed    = errors.New("topic closed")
)

const (
	MQTypeInMemory = "inmemory"
	MQTypePulsar   = "pulsar"
)

// MQ is an at-least-once message transport. Consumers must tolerate
// duplicate deliveries; the job store's guarded transitions make them
// harmless downstream.
type MQ interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Receive(ctx context.Context, topic string) (interface{}, error)
	GetMessageData(message interface{}) ([]byte, error)
	Ack(topic string, message interface{}) error
	CloseTopic(topic string) error
	Close() error
}

func NewMQ(cfg *config.Config) (MQ, error) {
	if cfg != nil && cfg.Pulsar != nil && cfg.Pulsar.URL != "" {
		return NewPulsarMQ(cfg.Pulsar)
	}

	size := config.DefaultQueueSize
	if cfg != nil && cfg.Worker != nil && cfg.Worker.QueueSize > 0 {
		size = cfg.Worker.QueueSize
	}

	return NewInMemoryMQ(size)
}
