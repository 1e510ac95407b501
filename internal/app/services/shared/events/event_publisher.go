package events

import (
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewEventPublisher selects the transport named by EXPORT_EVENT_TRANSPORT.
// The returned close function releases transport resources owned by the
// publisher itself.
func NewEventPublisher(
	internalConfig *config.InternalConfig,
	rabbitConn *amqp.Connection,
	kafkaWriter *kafka.Writer,
	retryPolicy retry.Policy,
	logger *zap.Logger,
) (contracts.EventPublisher, func() error, error) {
	switch strings.ToLower(internalConfig.Export.EventTransport) {
	case constvars.EventTransportKafka:
		if kafkaWriter == nil {
			return nil, nil, fmt.Errorf("event transport %q needs a kafka writer", constvars.EventTransportKafka)
		}
		publisher := NewKafkaEventPublisher(kafkaWriter, internalConfig.Export.EventTopic, retryPolicy, logger)
		return publisher, func() error { return nil }, nil
	case constvars.EventTransportRabbitMQ, "":
		if rabbitConn == nil {
			return nil, nil, fmt.Errorf("event transport %q needs a rabbitmq connection", constvars.EventTransportRabbitMQ)
		}
		publisher, err := NewRabbitMQEventPublisher(rabbitConn, internalConfig.Export.EventQueue, retryPolicy, logger)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown event transport %q", internalConfig.Export.EventTransport)
	}
}
