package events

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaEventPublisher struct {
	Writer MessageWriter
	Topic  string
	Retry  retry.Policy
	Log    *zap.Logger
}

var _ contracts.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(writer MessageWriter, topic string, retryPolicy retry.Policy, logger *zap.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		Writer: writer,
		Topic:  topic,
		Retry:  retryPolicy,
		Log:    logger,
	}
}

// Publish writes the event keyed by tenant and source document so every
// event of one document lands on the same partition.
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *models.DocumentExportEvent) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	p.Log.Info("KafkaEventPublisher.Publish called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, event.EventID),
		zap.String(constvars.LoggingTopicKey, p.Topic),
	)

	message, err := p.buildMessage(event)
	if err != nil {
		return exceptions.NewExportError(exceptions.KindPublishUnavailable, "encode event", false, err)
	}

	err = retry.Run(ctx, p.Retry, func(ctx context.Context, attempt int) error {
		if err := p.Writer.WriteMessages(ctx, message); err != nil {
			p.Log.Error("KafkaEventPublisher.Publish error writing message",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return exceptions.ErrPublishUnavailable(exceptions.ErrKafkaPublishMessage(err, p.Topic))
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Log.Info("KafkaEventPublisher.Publish succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, event.EventID),
	)
	return nil
}

func (p *KafkaEventPublisher) buildMessage(event *models.DocumentExportEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, exceptions.ErrCannotMarshalJSON(err)
	}
	return kafka.Message{
		Topic: p.Topic,
		Key:   []byte(event.TenantID + "/" + event.SourceDocumentID),
		Value: body,
		Time:  event.ExportTimestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(eventType(event))},
			{Key: "content_type", Value: []byte(constvars.MIMEApplicationJSON)},
		},
	}, nil
}
