package lib

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func GetKafkaProducerConfig(clientId string) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"client.id":         clientId,
		"acks":              "all",
	}
}

// KafkaPublisher produces domain events keyed by aggregate, so all events of one booking land
// on the same partition in order.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(clientId string, topic string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(GetKafkaProducerConfig(clientId))
	if err != nil {
		log.Printf("Error on producer: %s\n", err.Error())
		return nil, err
	}
	go func() {
		for ev := range p.Events() {
			if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				log.Printf("[kafka] Delivery failed for %s: %s\n", string(m.Key), m.TopicPartition.Error.Error())
			}
		}
	}()
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.Key),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}, nil)
}

// Close flushes queued messages for up to timeoutMs.
func (k *KafkaPublisher) Close(timeoutMs int) {
	if remaining := k.producer.Flush(timeoutMs); remaining > 0 {
		log.Printf("[kafka] %d events not delivered at shutdown\n", remaining)
	}
	k.producer.Close()
}

func KafkaCreateTopics(topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
	})
	if err != nil {
		log.Printf("Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:         topic,
			NumPartitions: 10,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}
