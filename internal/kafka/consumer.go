package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"connect-go/internal/config"
)

const retryBackoff = 2 * time.Second

// MessageHandler processes one consumed message. Returning nil commits its offset;
// an error rewinds the partition so the message is retried after a short backoff.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer defines the interface for a Kafka message consumer.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer is an implementation of MessageConsumer using confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer creates a new Kafka consumer instance using confluent-kafka-go.
// The underlying consumer is created in Consume once the group id is known.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume starts consuming messages from the specified topics and group.
// This method will block until the context is canceled or a fatal error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           c.groupID,
		"auto.offset.reset":  "earliest", // Process messages from the beginning if no offset is stored
		"enable.auto.commit": "false",    // We will commit manually after processing
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	err = c.consumer.SubscribeTopics(topics, nil)
	if err != nil {
		_ = c.consumer.Close()
		c.consumer = nil
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	log.Printf("Kafka consumer started for GroupID: %s, subscribed to Topics: %v", groupID, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Kafka consumer loop for group %s finished: %v", groupID, ctx.Err())
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}
		if err := c.dispatch(ctx, ev, handler); err != nil {
			return err
		}
	}
}

// dispatch handles one polled event. Only a fatal broker error is returned.
func (c *confluentKafkaConsumer) dispatch(ctx context.Context, ev kafka.Event, handler MessageHandler) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := handler(ctx, e); err != nil {
			log.Printf("Error processing Kafka message for group %s (Topic: %s, Offset: %v): %v",
				c.groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
			c.rewind(ctx, e.TopicPartition)
			return nil
		}
		if _, err := c.consumer.CommitMessage(e); err != nil {
			log.Printf("Failed to commit offset for group %s (Topic: %s, Offset: %v): %v",
				c.groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
		}
	case kafka.Error:
		log.Printf("Kafka consumer error for group %s: %v (Code: %d, Fatal: %t)", c.groupID, e, e.Code(), e.IsFatal())
		if e.IsFatal() {
			return e
		}
	case kafka.AssignedPartitions:
		log.Printf("Partitions assigned for group %s: %v", c.groupID, e.Partitions)
		_ = c.consumer.Assign(e.Partitions)
	case kafka.RevokedPartitions:
		log.Printf("Partitions revoked for group %s: %v", c.groupID, e.Partitions)
		_ = c.consumer.Unassign()
	}
	return nil
}

// rewind seeks back to a failed message so the next poll redelivers it.
func (c *confluentKafkaConsumer) rewind(ctx context.Context, tp kafka.TopicPartition) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(retryBackoff):
	}
	if err := c.consumer.Seek(tp, 0); err != nil {
		log.Printf("Failed to seek group %s back to %v: %v", c.groupID, tp, err)
	}
}

// Close closes the Kafka consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer != nil {
		log.Printf("Closing Kafka consumer for group %s...", c.groupID)
		if err := c.consumer.Close(); err != nil {
			log.Printf("Error closing Kafka consumer for group %s: %v", c.groupID, err)
		} else {
			log.Printf("Kafka consumer for group %s closed.", c.groupID)
		}
		c.consumer = nil
	}
}
