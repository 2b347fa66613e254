package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"go.uber.org/zap"
)

// OffsetCommitter is the part of *kafka.Consumer the CommitManager needs.
type OffsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

type tp struct {
	topic     string
	partition int32
}

type partitionState struct {
	inflight  map[int64]struct{} // tracked offsets not yet acked
	highest   int64              // highest offset tracked so far
	committed int64              // next offset to consume, as last committed; -1 before the first commit
}

// CommitManager commits offsets for messages processed concurrently. A partition's offset
// only advances past a message once it and every earlier tracked message are acked, so a
// crash never skips an unprocessed message.
type CommitManager struct {
	mu         sync.Mutex
	partitions map[tp]*partitionState
	consumer   OffsetCommitter
	log        *zap.Logger
}

func NewCommitManager(c OffsetCommitter, l *zap.Logger) *CommitManager {
	return &CommitManager{
		partitions: make(map[tp]*partitionState),
		consumer:   c,
		log:        l,
	}
}

// Track registers a message as in flight. Call it from the poll loop, in read order.
func (m *CommitManager) Track(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(msg)
	off := int64(msg.TopicPartition.Offset)
	st.inflight[off] = struct{}{}
	if off > st.highest {
		st.highest = off
	}
}

// Ack marks a tracked message as done and commits the partition as far as it safely can.
func (m *CommitManager) Ack(operationID string, msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tp{topic: TopicOf(msg), partition: msg.TopicPartition.Partition}
	st := m.state(msg)
	off := int64(msg.TopicPartition.Offset)
	delete(st.inflight, off)
	if off > st.highest {
		st.highest = off
	}

	next := st.highest + 1
	for off := range st.inflight {
		if off < next {
			next = off
		}
	}
	if next <= st.committed {
		return
	}

	toCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(next)}
	if _, err := m.consumer.CommitOffsets([]kafka.TopicPartition{toCommit}); err != nil {
		m.log.Error("offset_commit_failed",
			zap.String(pkg.OperationId, operationID),
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", next),
			zap.Error(err))
		return
	}
	st.committed = next
	m.log.Debug("offset_committed",
		zap.String(pkg.OperationId, operationID),
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", next))
}

func (m *CommitManager) state(msg *kafka.Message) *partitionState {
	key := tp{topic: TopicOf(msg), partition: msg.TopicPartition.Partition}
	st, ok := m.partitions[key]
	if !ok {
		st = &partitionState{inflight: make(map[int64]struct{}), highest: -1, committed: -1}
		m.partitions[key] = st
	}
	return st
}
