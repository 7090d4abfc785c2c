package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Producer wraps a sarama sync producer behind the interface the outbox
// dispatcher and retrying consumer publish through.
type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return &Producer{sync: p}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("send message to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.sync.Close()
}
