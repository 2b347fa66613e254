package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	kafkautils "github.com/nimeshabuddhika/account-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-worker/configs"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-worker/internal/observability"
	"go.uber.org/zap"
)

// Acker acknowledges a processed message.
type Acker interface {
	Ack(operationID string, msg *kafka.Message)
}

// KafkaOperationConfig holds configuration and dependencies for the operation consumer.
type KafkaOperationConfig struct {
	Context   context.Context
	Logger    *zap.Logger
	Config    *configs.Config
	Processor *OperationProcessor
}

// KafkaOperationHandler consumes ledger operations, posts them and routes failures to the DLQ.
type KafkaOperationHandler struct {
	ctx       context.Context
	logger    *zap.Logger
	cfg       *configs.Config
	processor *OperationProcessor

	consumer    *kafka.Consumer
	commits     *kafkautils.CommitManager
	acker       Acker
	dlqProducer kafkautils.MessageProducer
	closeDLQ    func()
	sem         chan struct{} // limits concurrent postings
	retryPolicy func() backoff.BackOff
}

// NewKafkaOperationHandler sets up the consumer, the DLQ producer and the semaphore.
func NewKafkaOperationHandler(cfg KafkaOperationConfig) (*KafkaOperationHandler, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"group.id":           cfg.Config.KafkaConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // offsets are committed by the CommitManager
	})
	if err != nil {
		return nil, err
	}
	dlq, err := kafkautils.NewIdempotentProducer(cfg.Config.KafkaBrokers)
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}
	go kafkautils.HandleDeliveryReports(cfg.Logger, dlq)

	commits := kafkautils.NewCommitManager(consumer, cfg.Logger)
	return &KafkaOperationHandler{
		ctx:         cfg.Context,
		logger:      cfg.Logger,
		cfg:         cfg.Config,
		processor:   cfg.Processor,
		consumer:    consumer,
		commits:     commits,
		acker:       commits,
		dlqProducer: dlq,
		closeDLQ: func() {
			dlq.Flush(5000)
			dlq.Close()
		},
		sem:         make(chan struct{}, cfg.Config.MaxConcurrentJobs),
		retryPolicy: retryPolicy(cfg.Config.OperationRetryMaxInterval),
	}, nil
}

// retryPolicy backs off between attempts on an unavailable store without giving up;
// only shutdown stops it.
func retryPolicy(maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = 0
		return b
	}
}

// Start subscribes and runs the poll loop in a goroutine. The returned func waits for
// in-flight messages, then closes the consumer and the DLQ producer.
func (h *KafkaOperationHandler) Start() (func(), error) {
	if err := h.consumer.SubscribeTopics([]string{h.cfg.KafkaOperationsTopic}, nil); err != nil {
		return nil, err
	}
	h.logger.Info("listening_to_kafka_topic",
		zap.String("topic", h.cfg.KafkaOperationsTopic),
		zap.String("group", h.cfg.KafkaConsumerGroup))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if h.ctx.Err() != nil {
				return
			}
			msg, err := h.consumer.ReadMessage(500 * time.Millisecond)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
					continue
				}
				h.logger.Error("kafka_read_failed", zap.Error(err))
				continue
			}
			h.commits.Track(msg)

			// Acquire semaphore slot, blocking if limit is reached
			select {
			case h.sem <- struct{}{}:
			case <-h.ctx.Done():
				return
			}
			observability.InflightJobs.Inc()
			go func(m *kafka.Message) {
				defer func() {
					<-h.sem
					observability.InflightJobs.Dec()
				}()
				h.handleMessage(h.ctx, m)
			}(msg)
		}
	}()

	return func() {
		<-done
		// Wait for in-flight jobs by filling every slot.
		for i := 0; i < cap(h.sem); i++ {
			h.sem <- struct{}{}
		}
		h.closeDLQ()
		if err := h.consumer.Close(); err != nil {
			h.logger.Error("kafka_consumer_close_failed", zap.Error(err))
		}
		h.logger.Info("kafka_consumer_closed")
	}, nil
}

// handleMessage processes one message and acks it unless processing was interrupted.
func (h *KafkaOperationHandler) handleMessage(ctx context.Context, msg *kafka.Message) {
	topic := kafkautils.TopicOf(msg)
	start := time.Now()
	observability.MessagesReceived.WithLabelValues(topic).Inc()
	defer func() {
		observability.ProcessLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}()

	if traceID := kafkautils.HeaderValue(msg, pkg.KafkaHeaderTraceId); !utils.IsEmpty(traceID) {
		ctx = utils.ContextWithTraceID(ctx, traceID)
	}

	out := h.process(ctx, msg)
	opID := out.Operation.OperationID
	switch {
	case out.Retry:
		h.logger.Warn("operation_interrupted_left_uncommitted",
			zap.String(pkg.OperationId, opID),
			zap.Int64("offset", int64(msg.TopicPartition.Offset)),
			zap.Error(out.Err))
		return
	case out.Reason != "":
		observability.OperationsFailed.WithLabelValues(topic, out.Reason).Inc()
		if !h.sendToDLQ(msg, out.Reason, out.Err) {
			return // uncommitted, so it is redelivered rather than lost
		}
	case out.Duplicate:
		observability.OperationsDuplicate.WithLabelValues(topic).Inc()
	default:
		observability.OperationsPosted.WithLabelValues(topic, string(out.Transaction.Type)).Inc()
		h.logger.Info("operation_posted",
			zap.String(pkg.OperationId, opID),
			zap.String(pkg.AccountNumber, out.Transaction.AccountNumber),
			zap.Int64(pkg.TransactionId, out.Transaction.ID))
	}
	h.acker.Ack(opID, msg)
}

// process runs the processor until the outcome is final. An unavailable store is retried
// in place, holding the message's slot; a cancelled ctx returns the retryable outcome.
func (h *KafkaOperationHandler) process(ctx context.Context, msg *kafka.Message) Outcome {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if h.retryPolicy != nil {
		policy = h.retryPolicy()
	}
	for attempt := 1; ; attempt++ {
		out := h.processor.Process(ctx, msg.Value)
		if !out.Retry || ctx.Err() != nil {
			return out
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return out
		}
		observability.OperationsRetried.WithLabelValues(kafkautils.TopicOf(msg)).Inc()
		h.logger.Warn("operation_retry_scheduled",
			zap.String(pkg.OperationId, out.Operation.OperationID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(out.Err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out
		case <-timer.C:
		}
	}
}

// sendToDLQ wraps the original message with failure metadata and reports whether it was enqueued.
func (h *KafkaOperationHandler) sendToDLQ(original *kafka.Message, reason string, cause error) bool {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	payload := map[string]any{
		"original_topic":     kafkautils.TopicOf(original),
		"original_partition": original.TopicPartition.Partition,
		"original_offset":    original.TopicPartition.Offset,
		"key":                string(original.Key),
		"value":              string(original.Value),
		"headers":            kafkautils.HeadersToMap(original.Headers),
		"failure_reason":     reason,
		"error":              errMsg,
		"failed_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("dlq_payload_marshal_failed", zap.Error(err))
		return false
	}

	headers := make([]kafka.Header, 0, len(original.Headers)+1)
	headers = append(headers, original.Headers...)
	headers = append(headers, kafka.Header{Key: pkg.KafkaHeaderDLQReason, Value: []byte(reason)})
	err = h.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &h.cfg.KafkaDLQTopic, Partition: kafka.PartitionAny},
		Key:            original.Key,
		Value:          b,
		Headers:        headers,
	}, nil)
	if err != nil {
		h.logger.Error("dlq_produce_failed", zap.String("reason", reason), zap.Error(err))
		return false
	}
	observability.DLQPublished.WithLabelValues(kafkautils.TopicOf(original), reason).Inc()
	h.logger.Info("sent_to_dlq", zap.String("reason", reason), zap.String("topic", h.cfg.KafkaDLQTopic))
	return true
}
