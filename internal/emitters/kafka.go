package emitters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"tipping-analytics/internal/logger"
	"tipping-analytics/internal/models"
)

// KafkaEmitter implements TipEmitter using Kafka
type KafkaEmitter struct {
	writer *kafka.Writer
	mu     sync.Mutex
}

// NewKafkaEmitter creates a new KafkaEmitter
func NewKafkaEmitter(brokerAddress, topic string) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerAddress),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *KafkaEmitter) EmitTip(event models.TipEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tip event: %v", err)
	}

	key := fmt.Sprintf("%s:%d", event.From, event.BlockNumber)
	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %v", err)
	}

	logger.GetLogger().Info().
		Str("from", event.From).
		Str("currency", event.Currency.String()).
		Uint64("blockNumber", event.BlockNumber).
		Msg("Successfully emitted tip event to Kafka")
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
