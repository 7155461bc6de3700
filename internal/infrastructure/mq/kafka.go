package mq

import (
	"fmt"
	"log"

	"playerwallet/internal/config"

	"github.com/IBM/sarama"
)

// Publisher outbox 投递使用的最小接口
type Publisher interface {
	Publish(topic, key, value string) error
	Close() error
}

// KafkaPublisher 同步生产者，消息按 key 分区，同一玩家的事件保持顺序
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func NewProducerConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return kafkaConfig
}

// InitKafka 创建 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Printf("[Kafka] producer connected: brokers=%v", cfg.Brokers)
	return NewKafkaPublisher(producer), nil
}

func (p *KafkaPublisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// LogPublisher 未启用 Kafka 时使用，只打印日志
type LogPublisher struct{}

func (LogPublisher) Publish(topic, key, value string) error {
	log.Printf("[Outbox] kafka disabled, dropping event: topic=%s key=%s", topic, key)
	return nil
}

func (LogPublisher) Close() error { return nil }
