// Package amqpconfirm publishes to RabbitMQ queues on a confirm-mode channel
// and waits for the broker's answer to each message individually.
package amqpconfirm

import (
	"context"
	"discharge-export-service/internal/pkg/exceptions"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Confirmation is the broker's pending answer to one publishing.
type Confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// PublishFunc sends msg to queue and returns the confirmation bound to it.
type PublishFunc func(ctx context.Context, queue string, msg amqp.Publishing) (Confirmation, error)

type Publisher struct {
	publish PublishFunc
}

// NewPublisher puts ch in confirm mode.
func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, err
	}
	return NewPublisherFunc(func(ctx context.Context, queue string, msg amqp.Publishing) (Confirmation, error) {
		confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
		if err != nil {
			return nil, err
		}
		if confirmation == nil {
			return nil, errors.New("channel is not in confirm mode")
		}
		return confirmation, nil
	}), nil
}

func NewPublisherFunc(publish PublishFunc) *Publisher {
	return &Publisher{publish: publish}
}

// Publish returns nil only when the broker acked this exact message. A
// confirm that arrives after ctx ends is dropped with its own message.
func (p *Publisher) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	confirmation, err := p.publish(ctx, queue, msg)
	if err != nil {
		return exceptions.ErrRabbitMQPublishMessage(err, queue)
	}
	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return exceptions.ErrRabbitMQPublishMessage(err, queue)
	}
	if !acked {
		return exceptions.ErrRabbitMQPublishMessage(errors.New("message not confirmed"), queue)
	}
	return nil
}
