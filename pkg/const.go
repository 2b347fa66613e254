package pkg

const (
	HeaderTraceId   string = "X-Trace-Id"
	HeaderRequestId string = "X-Request-Id"
)

// Structured log field keys shared by the api and the worker.
const (
	TraceId       string = "trace_id"
	RequestId     string = "request_id"
	OperationId   string = "operation_id"
	AccountNumber string = "account_number"
	TransactionId string = "transaction_id"
)

// Kafka header keys.
const (
	KafkaHeaderTraceId   string = "x-trace-id"
	KafkaHeaderDLQReason string = "x-dlq-reason"
)

// LockBackend selects the per-account lock implementation.
type LockBackend string

const (
	LockBackendLocal LockBackend = "local"
	LockBackendRedis LockBackend = "redis"
)

// StoreBackend selects the ledger store implementation.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendPostgres StoreBackend = "postgres"
)
