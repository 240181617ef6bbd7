package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/personal-finance-ledger/internal/platform/resilience"
	"github.com/segmentio/kafka-go"
)

// TopicConn is the subset of *kafka.Conn used to provision topics
type TopicConn interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

var topicReadRetry = resilience.Config{MaxRetries: 4, InitialBackoff: time.Second}

// ensureTopic creates topicName unless its partitions can be read
func ensureTopic(ctx context.Context, conn TopicConn, topicName string, numPartitions, replicationFactor int, log *slog.Logger) error {
	log.Info("Checking if Kafka topic exists", "topic", topicName)

	var partitions []kafka.Partition
	readErr := resilience.RetryWithBackoff(ctx, topicReadRetry, func() error {
		var err error
		partitions, err = conn.ReadPartitions(topicName)
		if err != nil {
			log.Warn("Failed to read partitions, retrying...", "topic", topicName, "error", err)
		}
		return err
	})

	if readErr == nil && len(partitions) > 0 {
		log.Info("Kafka topic already exists", "topic", topicName)
		return nil
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     max(numPartitions, 1),
		ReplicationFactor: max(replicationFactor, 1),
	}
	log.Info("Creating Kafka topic",
		"topic", topicName,
		"partitions", topicConfig.NumPartitions,
		"last_read_error", readErr)

	if err := conn.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, err)
	}
	log.Info("Successfully created Kafka topic", "topic", topicName)
	return nil
}
