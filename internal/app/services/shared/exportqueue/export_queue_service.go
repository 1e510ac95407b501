package exportqueue

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/amqpconfirm"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExportJobMessage is the payload stored in RabbitMQ.
type ExportJobMessage struct {
	ID          string           `json:"id"`
	RequestID   string           `json:"request_id,omitempty"`
	Job         models.ExportJob `json:"job"`
	FailedCount int              `json:"failed_count"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
	LastError   string           `json:"last_error,omitempty"`
}

// Service manages the export job queue and its dead-letter queue.
type Service struct {
	ch        *amqp.Channel
	log       *zap.Logger
	queueName string
	dlqName   string
	publisher *amqpconfirm.Publisher
}

var _ contracts.ExportJobQueue = (*Service)(nil)

// NewService opens a channel, declares both durable queues, sets QoS and
// enables publisher confirms.
func NewService(conn *amqp.Connection, log *zap.Logger, queueName, dlqName string, prefetch int) (*Service, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	for _, name := range []string{queueName, dlqName} {
		_, err = ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return nil, err
		}
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}

	publisher, err := amqpconfirm.NewPublisher(ch)
	if err != nil {
		return nil, err
	}

	return &Service{
		ch:        ch,
		log:       log,
		queueName: queueName,
		dlqName:   dlqName,
		publisher: publisher,
	}, nil
}

func (s *Service) Close() error {
	return s.ch.Close()
}

type EnqueueInput struct {
	Message ExportJobMessage
}

type EnqueueOutput struct{}

type EnqueueToDLQInput struct {
	Message ExportJobMessage
}

type EnqueueToDLQOutput struct{}

// ReenqueueInput carries a possibly modified message back to the queue tail.
type ReenqueueInput struct {
	Message ExportJobMessage
}

type ReenqueueOutput struct{}

type FetchNInput struct {
	Max int
}

// QueuedItem is a fetched delivery and its decoded payload.
type QueuedItem struct {
	DeliveryTag uint64
	Message     ExportJobMessage
}

type FetchNOutput struct {
	Items []QueuedItem
}

type AckMessageInput struct {
	DeliveryTag uint64
}

type AckMessageOutput struct{}

// EnqueueJob wraps job in a fresh message and publishes it.
func (s *Service) EnqueueJob(ctx context.Context, job *models.ExportJob) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	_, err := s.Enqueue(ctx, &EnqueueInput{Message: ExportJobMessage{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Job:        *job,
		EnqueuedAt: time.Now().UTC(),
	}})
	return err
}

// Enqueue publishes a persistent message to the job queue and waits for the
// broker confirm.
func (s *Service) Enqueue(ctx context.Context, in *EnqueueInput) (*EnqueueOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	s.log.Info("ExportQueue.Enqueue called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, in.Message.ID),
	)

	if err := s.publishMessage(ctx, s.queueName, in.Message); err != nil {
		return nil, err
	}
	return &EnqueueOutput{}, nil
}

func (s *Service) Reenqueue(ctx context.Context, in *ReenqueueInput) (*ReenqueueOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	s.log.Info("ExportQueue.Reenqueue called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, in.Message.ID),
	)

	if err := s.publishMessage(ctx, s.queueName, in.Message); err != nil {
		return nil, err
	}
	return &ReenqueueOutput{}, nil
}

func (s *Service) EnqueueToDeadQueue(ctx context.Context, in *EnqueueToDLQInput) (*EnqueueToDLQOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	s.log.Info("ExportQueue.EnqueueToDeadQueue called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMessageIDKey, in.Message.ID),
	)

	if err := s.publishMessage(ctx, s.dlqName, in.Message); err != nil {
		return nil, err
	}
	return &EnqueueToDLQOutput{}, nil
}

// FetchN pulls up to Max messages with basic.get without auto-ack.
// Undecodable messages go straight to the DLQ.
func (s *Service) FetchN(ctx context.Context, in *FetchNInput) (*FetchNOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	s.log.Debug("ExportQueue.FetchN called", zap.String(constvars.LoggingRequestIDKey, requestID))

	n := in.Max
	if n <= 0 {
		n = 1
	}
	items := make([]QueuedItem, 0, n)

	for i := 0; i < n; i++ {
		d, ok, err := s.ch.Get(s.queueName, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var payload ExportJobMessage
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			s.log.Warn("ExportQueue.FetchN undecodable message, moving to DLQ",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Uint64(constvars.LoggingDeliveryTagKey, d.DeliveryTag),
				zap.Error(err),
			)
			if err := s.publishRaw(ctx, s.dlqName, d.Body); err != nil {
				_ = d.Nack(false, true)
				return nil, err
			}
			_ = d.Ack(false)
			continue
		}
		items = append(items, QueuedItem{DeliveryTag: d.DeliveryTag, Message: payload})
	}

	return &FetchNOutput{Items: items}, nil
}

func (s *Service) AckMessage(ctx context.Context, in *AckMessageInput) (*AckMessageOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	s.log.Debug("ExportQueue.AckMessage called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Uint64(constvars.LoggingDeliveryTagKey, in.DeliveryTag),
	)
	if err := s.ch.Ack(in.DeliveryTag, false); err != nil {
		return nil, err
	}
	return &AckMessageOutput{}, nil
}

func (s *Service) publishMessage(ctx context.Context, queue string, message ExportJobMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return exceptions.ErrCannotMarshalJSON(err)
	}
	return s.publishRaw(ctx, queue, body)
}

func (s *Service) publishRaw(ctx context.Context, queue string, body []byte) error {
	return s.publisher.Publish(ctx, queue, amqp.Publishing{
		ContentType:  constvars.MIMEApplicationJSON,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}
