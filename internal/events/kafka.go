package events

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

const kafkaTopicPrefix = "umh.v1.shiftledger"

// KafkaPublisher produces events to umh.v1.shiftledger.<entity>.<action>, keyed by lot id
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher connects a synchronous producer to brokers
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewKafkaPublisherFromProducer(producer), nil
}

// NewKafkaPublisherFromProducer uses an existing producer
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// KafkaTopic returns the topic an event of type t is produced to
func KafkaTopic(t datamodel.LedgerEventType) string {
	return kafkaTopicPrefix + "." + strings.Join(topicSuffix(t), ".")
}

func (p *KafkaPublisher) Publish(_ context.Context, event datamodel.LedgerEvent) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: KafkaTopic(event.Type),
		Value: sarama.ByteEncoder(payload),
	}
	if event.LotID != "" {
		msg.Key = sarama.StringEncoder(event.LotID)
	} else if event.StopID != "" {
		msg.Key = sarama.StringEncoder(event.StopID)
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Name() string {
	return "kafka"
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
