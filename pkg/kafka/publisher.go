package kafkautils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/nimeshabuddhika/account-ledger/pkg/views"
	"go.uber.org/zap"
)

// MessageProducer is the part of *kafka.Producer used for publishing.
type MessageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// TransactionPublisher publishes committed transactions as views.TransactionPosted events.
// Messages are keyed by account number so one account's events stay in order.
type TransactionPublisher struct {
	logger   *zap.Logger
	producer MessageProducer
	topic    string
}

func NewTransactionPublisher(logger *zap.Logger, producer MessageProducer, topic string) *TransactionPublisher {
	return &TransactionPublisher{logger: logger, producer: producer, topic: topic}
}

// PublishTransaction enqueues the event; delivery failures are reported by HandleDeliveryReports.
func (p *TransactionPublisher) PublishTransaction(ctx context.Context, tx ledger.Transaction) error {
	payload, err := json.Marshal(views.NewTransactionPosted(tx))
	if err != nil {
		return fmt.Errorf("marshal transaction %d: %w", tx.ID, err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(tx.AccountNumber),
		Value:          payload,
	}
	if traceID := utils.TraceIDFromContext(ctx); !utils.IsEmpty(traceID) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: pkg.KafkaHeaderTraceId, Value: []byte(traceID)})
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce transaction %d: %w", tx.ID, err)
	}
	return nil
}

// HandleDeliveryReports logs failed deliveries until the producer's event channel closes.
func HandleDeliveryReports(logger *zap.Logger, p *kafka.Producer) {
	for e := range p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logger.Error("kafka_delivery_failed",
					zap.String("topic", TopicOf(ev)),
					zap.ByteString("key", ev.Key),
					zap.Error(ev.TopicPartition.Error))
			}
		case kafka.Error:
			logger.Warn("kafka_producer_error", zap.Error(ev))
		}
	}
}

var _ ledger.EventPublisher = (*TransactionPublisher)(nil)
