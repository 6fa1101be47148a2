// Package kafka wires the event bus to Kafka for production deployments
// where dispatcher and scheduler workers run as separate processes.
//
// Messages are partitioned by the event key the bus stamps on publish (the
// tenant), so one tenant's progression and firing events stay ordered
// within a partition while tenants spread across the topic.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/practiq/automata/pkg/events"
)

// partitionKey derives the Kafka partition key from the event key metadata.
// Events without a key (none of ours, but the topic is open to outside
// publishers) fall back to the message UUID and spread evenly.
func partitionKey(_ string, msg *message.Message) (string, error) {
	key := msg.Metadata.Get(events.EventKeyMetadataKey)
	if key == "" {
		return msg.UUID, nil
	}

	return key, nil
}

// CreateChannel creates the Kafka publisher and subscriber pair used by the
// engine's workers. Brokers come from KAFKA_BROKERS; the consumer group is
// derived from the service name so each worker kind gets its own offsets.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, nil, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	marshaler := kafka.NewWithPartitioningMarshaler(partitionKey)

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         "cg-" + serviceName,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
