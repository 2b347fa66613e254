package ledger

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// IDGenerator issues transaction identifiers. Ids are non-negative and never repeat.
type IDGenerator interface {
	Next() int64
}

// SnowflakeGenerator issues 63-bit snowflake ids: milliseconds since the snowflake epoch,
// a 10-bit node id and a 12-bit per-millisecond sequence. Ids issued within the same
// millisecond differ by sequence; when the sequence is exhausted the node waits for
// the next millisecond.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator returns a generator for nodeID, which must be unique per running
// process sharing a transaction log (0..1023).
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

// AccountNumberGenerator issues account numbers for accounts created without one.
type AccountNumberGenerator interface {
	NewAccountNumber() (string, error)
}

// ULIDAccountNumbers generates monotonic ULIDs, so numbers generated by one process
// sort in creation order.
type ULIDAccountNumbers struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewULIDAccountNumbers() *ULIDAccountNumbers {
	return &ULIDAccountNumbers{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULIDAccountNumbers) NewAccountNumber() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	return id.String(), nil
}
