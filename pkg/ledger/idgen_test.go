package ledger

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeGenerator_UniqueUnderContention(t *testing.T) {
	g, err := NewSnowflakeGenerator(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range ids {
		require.GreaterOrEqual(t, id, int64(0))
		_, dup := seen[id]
		require.False(t, dup, "id %d issued twice", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestSnowflakeGenerator_RejectsNodeOutOfRange(t *testing.T) {
	_, err := NewSnowflakeGenerator(1024)
	assert.Error(t, err)
}

func TestULIDAccountNumbers_Monotonic(t *testing.T) {
	g := NewULIDAccountNumbers()
	prev := ""
	for i := 0; i < 100; i++ {
		n, err := g.NewAccountNumber()
		require.NoError(t, err)
		_, err = ulid.ParseStrict(n)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}
