package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	kafkautils "github.com/nimeshabuddhika/account-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/storage/memory"
	"github.com/nimeshabuddhika/account-ledger/pkg/views"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-worker/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryRegistry struct {
	mu          sync.Mutex
	seen        map[string]int64
	err         error
	failLookups int // lookups failing with err before it recovers; 0 fails every lookup
	lookups     int
}

func (r *memoryRegistry) Lookup(_ context.Context, id string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.err != nil && (r.failLookups == 0 || r.lookups <= r.failLookups) {
		return 0, false, r.err
	}
	txID, ok := r.seen[id]
	return txID, ok, nil
}

func (r *memoryRegistry) Remember(_ context.Context, id string, txID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; !ok {
		r.seen[id] = txID
	}
	return nil
}

type fixture struct {
	accounts  *ledger.AccountManager
	registry  *memoryRegistry
	processor *OperationProcessor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ids, err := ledger.NewSnowflakeGenerator(2)
	require.NoError(t, err)
	accounts := ledger.NewAccountManager(ledger.AccountManagerConfig{Logger: logger, Store: memory.NewStore()})
	engine := ledger.NewEngine(ledger.EngineConfig{Logger: logger, Accounts: accounts, IDs: ids})
	_, err = accounts.Create(context.Background(), ledger.NewAccount{
		AccountNumber: "ACC-1", HolderName: "Jane Doe", InitialBalance: 1000, Type: ledger.AccountTypeSavings,
	})
	require.NoError(t, err)

	registry := &memoryRegistry{seen: map[string]int64{}}
	return fixture{
		accounts:  accounts,
		registry:  registry,
		processor: NewOperationProcessor(OperationProcessorConfig{Logger: logger, Poster: engine, Registry: registry}),
	}
}

func payload(t *testing.T, op views.LedgerOperation) []byte {
	t.Helper()
	b, err := json.Marshal(op)
	require.NoError(t, err)
	return b
}

func (f fixture) balance(t *testing.T) ledger.Amount {
	t.Helper()
	a, err := f.accounts.Get(context.Background(), "ACC-1")
	require.NoError(t, err)
	return a.Balance
}

func TestOperationProcessor_Posts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.processor.Process(ctx, payload(t, views.LedgerOperation{
		OperationID: "op-1", AccountNumber: "ACC-1", Type: ledger.TransactionTypeDebit, Amount: "2.50",
	}))
	require.NoError(t, out.Err)
	assert.Empty(t, out.Reason)
	assert.False(t, out.Duplicate)
	assert.Equal(t, ledger.Amount(250), out.Transaction.Amount)
	assert.Equal(t, ledger.Amount(750), f.balance(t))
	assert.Equal(t, out.Transaction.ID, f.registry.seen["op-1"])
}

func TestOperationProcessor_RedeliveryIsNotPostedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := payload(t, views.LedgerOperation{OperationID: "op-1", AccountNumber: "ACC-1", Type: ledger.TransactionTypeCredit, Amount: "1"})

	first := f.processor.Process(ctx, msg)
	require.NoError(t, first.Err)
	second := f.processor.Process(ctx, msg)
	require.NoError(t, second.Err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, ledger.Amount(1100), f.balance(t))
}

func TestOperationProcessor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"not json", `{"operationId":`, ReasonDecode},
		{"missing operation id", `{"accountNumber":"ACC-1","type":"CREDIT","amount":"1"}`, ReasonValidation},
		{"unknown type", `{"operationId":"x","accountNumber":"ACC-1","type":"REFUND","amount":"1"}`, ReasonValidation},
		{"too precise amount", `{"operationId":"x","accountNumber":"ACC-1","type":"CREDIT","amount":"0.001"}`, ReasonValidation},
		{"negative amount", `{"operationId":"x","accountNumber":"ACC-1","type":"CREDIT","amount":"-1"}`, ReasonRejected},
		{"unknown account", `{"operationId":"x","accountNumber":"NOPE","type":"CREDIT","amount":"1"}`, ReasonRejected},
		{"insufficient funds", `{"operationId":"x","accountNumber":"ACC-1","type":"DEBIT","amount":"10.01"}`, ReasonRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			out := f.processor.Process(context.Background(), []byte(tt.payload))
			assert.Equal(t, tt.reason, out.Reason)
			assert.Error(t, out.Err)
			assert.False(t, out.Retry)
			assert.Equal(t, ledger.Amount(1000), f.balance(t))
			assert.Empty(t, f.registry.seen)
		})
	}
}

func TestOperationProcessor_RegistryDown(t *testing.T) {
	f := newFixture(t)
	f.registry.err = errors.New("redis down")

	out := f.processor.Process(context.Background(), payload(t, views.LedgerOperation{
		OperationID: "op-1", AccountNumber: "ACC-1", Type: ledger.TransactionTypeCredit, Amount: "1",
	}))
	assert.True(t, out.Retry)
	assert.Equal(t, ReasonStoreUnavailable, out.Reason)
	assert.ErrorIs(t, out.Err, ledger.ErrStoreUnavailable)
	assert.Equal(t, ledger.Amount(1000), f.balance(t))
}

type unavailablePoster struct{}

func (unavailablePoster) Post(context.Context, string, ledger.Amount, ledger.TransactionType) (ledger.Transaction, error) {
	return ledger.Transaction{}, ledger.StoreUnavailable("atomic unit", errors.New("connection refused"))
}

func TestOperationProcessor_StoreUnavailableIsRetried(t *testing.T) {
	p := NewOperationProcessor(OperationProcessorConfig{Logger: zaptest.NewLogger(t), Poster: unavailablePoster{}})

	out := p.Process(context.Background(), payload(t, views.LedgerOperation{
		OperationID: "op-1", AccountNumber: "ACC-1", Type: ledger.TransactionTypeCredit, Amount: "1",
	}))
	assert.True(t, out.Retry)
	assert.ErrorIs(t, out.Err, ledger.ErrStoreUnavailable)
}

func TestOperationProcessor_CancelledIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.processor.Process(ctx, payload(t, views.LedgerOperation{
		OperationID: "op-1", AccountNumber: "ACC-1", Type: ledger.TransactionTypeCredit, Amount: "1",
	}))
	assert.True(t, out.Retry)
	assert.Empty(t, out.Reason)
	assert.Equal(t, ledger.Amount(1000), f.balance(t))
}

type recordingAcker struct{ acked []string }

func (r *recordingAcker) Ack(operationID string, _ *kafka.Message) {
	r.acked = append(r.acked, operationID)
}

type recordingProducer struct {
	produced []*kafka.Message
	err      error
}

func (r *recordingProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.produced = append(r.produced, msg)
	return nil
}

func newTestHandler(t *testing.T, f fixture, acker *recordingAcker, dlq *recordingProducer) *KafkaOperationHandler {
	t.Helper()
	return &KafkaOperationHandler{
		ctx:         context.Background(),
		logger:      zaptest.NewLogger(t),
		cfg:         &configs.Config{KafkaDLQTopic: "ledger.operations.dlq"},
		processor:   f.processor,
		acker:       acker,
		dlqProducer: dlq,
		retryPolicy: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	}
}

func operationMessage(value string) *kafka.Message {
	topic := "ledger.operations"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 7},
		Key:            []byte("ACC-1"),
		Value:          []byte(value),
		Headers:        []kafka.Header{{Key: pkg.KafkaHeaderTraceId, Value: []byte("trace-1")}},
	}
}

func TestKafkaOperationHandler_HandleMessage(t *testing.T) {
	t.Run("posted and acked", func(t *testing.T) {
		f := newFixture(t)
		acker, dlq := &recordingAcker{}, &recordingProducer{}
		h := newTestHandler(t, f, acker, dlq)

		h.handleMessage(context.Background(), operationMessage(`{"operationId":"op-1","accountNumber":"ACC-1","type":"CREDIT","amount":"1"}`))
		assert.Equal(t, []string{"op-1"}, acker.acked)
		assert.Empty(t, dlq.produced)
		assert.Equal(t, ledger.Amount(1100), f.balance(t))
	})

	t.Run("rejected goes to dlq and is acked", func(t *testing.T) {
		f := newFixture(t)
		acker, dlq := &recordingAcker{}, &recordingProducer{}
		h := newTestHandler(t, f, acker, dlq)

		h.handleMessage(context.Background(), operationMessage(`{"operationId":"op-2","accountNumber":"ACC-1","type":"DEBIT","amount":"99"}`))
		assert.Equal(t, []string{"op-2"}, acker.acked)
		require.Len(t, dlq.produced, 1)

		msg := dlq.produced[0]
		assert.Equal(t, "ledger.operations.dlq", kafkautils.TopicOf(msg))
		assert.Equal(t, ReasonRejected, kafkautils.HeaderValue(msg, pkg.KafkaHeaderDLQReason))
		assert.Equal(t, "trace-1", kafkautils.HeaderValue(msg, pkg.KafkaHeaderTraceId))

		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &body))
		assert.Equal(t, ReasonRejected, body["failure_reason"])
		assert.Equal(t, "ledger.operations", body["original_topic"])
	})

	t.Run("dlq failure leaves message uncommitted", func(t *testing.T) {
		f := newFixture(t)
		acker, dlq := &recordingAcker{}, &recordingProducer{err: errors.New("queue full")}
		h := newTestHandler(t, f, acker, dlq)

		h.handleMessage(context.Background(), operationMessage(`not json`))
		assert.Empty(t, acker.acked)
	})

	t.Run("interrupted is not acked", func(t *testing.T) {
		f := newFixture(t)
		acker, dlq := &recordingAcker{}, &recordingProducer{}
		h := newTestHandler(t, f, acker, dlq)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h.handleMessage(ctx, operationMessage(`{"operationId":"op-3","accountNumber":"ACC-1","type":"CREDIT","amount":"1"}`))
		assert.Empty(t, acker.acked)
		assert.Empty(t, dlq.produced)
	})

	t.Run("store outage is retried until it recovers", func(t *testing.T) {
		f := newFixture(t)
		f.registry.err = errors.New("redis down")
		f.registry.failLookups = 2
		acker, dlq := &recordingAcker{}, &recordingProducer{}
		h := newTestHandler(t, f, acker, dlq)

		h.handleMessage(context.Background(), operationMessage(`{"operationId":"op-4","accountNumber":"ACC-1","type":"CREDIT","amount":"1"}`))
		assert.Equal(t, []string{"op-4"}, acker.acked)
		assert.Empty(t, dlq.produced)
		assert.Equal(t, 3, f.registry.lookups)
		assert.Equal(t, ledger.Amount(1100), f.balance(t))
	})

	t.Run("store outage at shutdown leaves message uncommitted", func(t *testing.T) {
		f := newFixture(t)
		f.registry.err = errors.New("redis down")
		acker, dlq := &recordingAcker{}, &recordingProducer{}
		h := newTestHandler(t, f, acker, dlq)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		h.handleMessage(ctx, operationMessage(`{"operationId":"op-5","accountNumber":"ACC-1","type":"CREDIT","amount":"1"}`))
		assert.Empty(t, acker.acked)
		assert.Empty(t, dlq.produced)
		assert.Equal(t, ledger.Amount(1000), f.balance(t))
	})
}
