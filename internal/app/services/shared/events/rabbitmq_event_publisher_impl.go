package events

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/amqpconfirm"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type RabbitMQEventPublisher struct {
	ch        *amqp.Channel
	queueName string
	publisher *amqpconfirm.Publisher
	Retry     retry.Policy
	Log       *zap.Logger
}

var _ contracts.EventPublisher = (*RabbitMQEventPublisher)(nil)

// NewRabbitMQEventPublisher declares the durable event queue on its own
// channel in confirm mode.
func NewRabbitMQEventPublisher(conn *amqp.Connection, queueName string, retryPolicy retry.Policy, logger *zap.Logger) (*RabbitMQEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	)
	if err != nil {
		return nil, err
	}
	publisher, err := amqpconfirm.NewPublisher(ch)
	if err != nil {
		return nil, err
	}

	return &RabbitMQEventPublisher{
		ch:        ch,
		queueName: queueName,
		publisher: publisher,
		Retry:     retryPolicy,
		Log:       logger,
	}, nil
}

func (p *RabbitMQEventPublisher) Close() error {
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

// Publish sends the event as a persistent message and waits for the broker
// confirm. Failures are PublishUnavailable and retried under the policy.
func (p *RabbitMQEventPublisher) Publish(ctx context.Context, event *models.DocumentExportEvent) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	p.Log.Info("RabbitMQEventPublisher.Publish called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, event.EventID),
		zap.String(constvars.LoggingQueueNameKey, p.queueName),
	)

	msg, err := buildPublishing(event)
	if err != nil {
		return exceptions.NewExportError(exceptions.KindPublishUnavailable, "encode event", false, err)
	}

	err = retry.Run(ctx, p.Retry, func(ctx context.Context, attempt int) error {
		if err := p.publisher.Publish(ctx, p.queueName, msg); err != nil {
			p.Log.Error("RabbitMQEventPublisher.Publish error publishing event",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return exceptions.ErrPublishUnavailable(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Log.Info("RabbitMQEventPublisher.Publish succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, event.EventID),
	)
	return nil
}

func buildPublishing(event *models.DocumentExportEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, exceptions.ErrCannotMarshalJSON(err)
	}
	return amqp.Publishing{
		ContentType:  constvars.MIMEApplicationJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.ExportTimestamp,
		Type:         eventType(event),
		Headers: amqp.Table{
			"tenant_id": event.TenantID,
			"status":    event.Status,
		},
		Body: body,
	}, nil
}

func eventType(event *models.DocumentExportEvent) string {
	return "document.export." + event.Status
}
