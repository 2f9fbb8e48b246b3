package mq

import (
	"context"
	"fmt"

	"ticketrecon/internal/config"
)

// Publisher 出箱消息的投递通道
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// NewPublisher 按 mq.driver 选择 Kafka 或 RabbitMQ
func NewPublisher(cfg *config.MQConfig) (Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		producer, err := NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return NewKafkaPublisher(producer), nil
	case "rabbitmq":
		publisher, err := DialRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("不支持的消息驱动: %s", cfg.Driver)
	}
}
