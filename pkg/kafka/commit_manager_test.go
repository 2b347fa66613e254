package kafkautils

import (
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingCommitter struct {
	commits []kafka.TopicPartition
	fail    bool
}

func (r *recordingCommitter) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	if r.fail {
		return nil, errors.New("broker down")
	}
	r.commits = append(r.commits, offsets...)
	return offsets, nil
}

func (r *recordingCommitter) offsets() []int64 {
	out := make([]int64, 0, len(r.commits))
	for _, c := range r.commits {
		out = append(out, int64(c.Offset))
	}
	return out
}

func message(topic string, partition int32, offset int64) *kafka.Message {
	return &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: partition, Offset: kafka.Offset(offset)}}
}

func TestCommitManager_InOrder(t *testing.T) {
	c := &recordingCommitter{}
	m := NewCommitManager(c, zap.NewNop())

	for off := int64(0); off < 3; off++ {
		msg := message("ops", 0, off)
		m.Track(msg)
		m.Ack("op", msg)
	}
	assert.Equal(t, []int64{1, 2, 3}, c.offsets())
}

func TestCommitManager_OutOfOrderWaitsForGap(t *testing.T) {
	c := &recordingCommitter{}
	m := NewCommitManager(c, zap.NewNop())

	msgs := []*kafka.Message{message("ops", 0, 10), message("ops", 0, 11), message("ops", 0, 12)}
	for _, msg := range msgs {
		m.Track(msg)
	}

	m.Ack("op-12", msgs[2])
	m.Ack("op-11", msgs[1])
	assert.Empty(t, c.commits, "offset 10 is still in flight")

	m.Ack("op-10", msgs[0])
	assert.Equal(t, []int64{13}, c.offsets())
}

func TestCommitManager_PartitionsAreIndependent(t *testing.T) {
	c := &recordingCommitter{}
	m := NewCommitManager(c, zap.NewNop())

	p0, p1 := message("ops", 0, 5), message("ops", 1, 7)
	m.Track(p0)
	m.Track(p1)
	m.Ack("op", p1)

	assert.Len(t, c.commits, 1)
	assert.Equal(t, int32(1), c.commits[0].Partition)
	assert.Equal(t, kafka.Offset(8), c.commits[0].Offset)
}

func TestCommitManager_FailedCommitIsRetriedOnNextAck(t *testing.T) {
	c := &recordingCommitter{fail: true}
	m := NewCommitManager(c, zap.NewNop())

	first, second := message("ops", 0, 0), message("ops", 0, 1)
	m.Track(first)
	m.Track(second)
	m.Ack("op", first)
	assert.Empty(t, c.commits)

	c.fail = false
	m.Ack("op", second)
	assert.Equal(t, []int64{2}, c.offsets())
}
