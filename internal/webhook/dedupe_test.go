package webhook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMemoryDedupeTryClaim(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	defer s.Close()
	ctx := context.Background()

	claimed, err := s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, claimed, "second claim of the same id must lose")

	processed, err := s.HasProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

// Exactly one of N concurrent claims for the same id wins.
func TestMemoryDedupeConcurrentClaims(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	defer s.Close()
	ctx := context.Background()

	const claimants = 32
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := s.TryClaim(ctx, "contested")
			require.NoError(t, err)
			if claimed {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestMemoryDedupeMarkProcessedIdempotent(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "evt-1"))
	require.NoError(t, s.MarkProcessed(ctx, "evt-1"))

	processed, err := s.HasProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryDedupeRelease(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	defer s.Close()
	ctx := context.Background()

	claimed, err := s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, s.Release(ctx, "evt-1"))

	claimed, err = s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, claimed, "a released id is claimable again")
}

func TestMemoryDedupeTTLExpiry(t *testing.T) {
	s := NewMemoryDedupeStore(30 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	claimed, err := s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(50 * time.Millisecond)

	processed, err := s.HasProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed, "expired entries read as unprocessed")

	claimed, err = s.TryClaim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, claimed, "expired ids are claimable again")
}

// Once marked and not yet expired, an id always reads processed and never
// wins a claim, regardless of the operation interleaving that preceded it.
func TestMemoryDedupeMarkedStaysMarkedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := NewMemoryDedupeStore(0)
		defer s.Close()

		ids := rapid.SliceOfN(
			rapid.StringMatching(`evt-[a-z0-9]{1,8}`), 1, 20,
		).Draw(t, "ids")

		marked := make(map[string]bool)
		for _, id := range ids {
			op := rapid.IntRange(0, 2).Draw(t, "op")
			switch op {
			case 0:
				claimed, err := s.TryClaim(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, !marked[id], claimed)
				marked[id] = true
			case 1:
				require.NoError(t, s.MarkProcessed(ctx, id))
				marked[id] = true
			case 2:
				require.NoError(t, s.Release(ctx, id))
				marked[id] = false
			}
		}

		for id, want := range marked {
			got, err := s.HasProcessed(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, got, "id %s", id)
		}
	})
}

func TestMemoryDedupeCloseIdempotent(t *testing.T) {
	s := NewMemoryDedupeStore(time.Minute)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestMemoryDedupeLen(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.TryClaim(ctx, fmt.Sprintf("evt-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.Len())
}
