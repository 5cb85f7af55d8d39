package queue

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"PulseChat/service/store"
)

// OfflineQueue is the durable hand-off for direct messages whose recipient
// is not reachable anywhere. At-least-once: sync producer, all-replica acks.
type OfflineQueue interface {
	Enqueue(m *store.Message) error
}

type KafkaQueue struct {
	producer sarama.SyncProducer
	topic    string
}

func buildConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	// Key by recipient so one user's messages stay ordered on a partition.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func NewKafkaQueue(brokers []string, topic string) (*KafkaQueue, error) {
	p, err := sarama.NewSyncProducer(brokers, buildConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return &KafkaQueue{producer: p, topic: topic}, nil
}

func (q *KafkaQueue) Enqueue(m *store.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	_, _, err = q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(m.To),
		Value: sarama.ByteEncoder(data),
	})
	return errors.Wrap(err, "enqueue offline message")
}

func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}
