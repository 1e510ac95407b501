package messaging

import (
	"discharge-export-service/internal/app/config"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter builds a writer without a fixed topic so each message names its own.
func NewKafkaWriter(driverConfig *config.DriverConfig) *kafka.Writer {
	if len(driverConfig.Kafka.Brokers) == 0 {
		log.Fatalf("Failed to initialize kafka writer: no brokers configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(driverConfig.Kafka.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	log.Println("Successfully initialized kafka writer")
	return writer
}
