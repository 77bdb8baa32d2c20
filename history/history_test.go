package history_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/history"
	"github.com/storepilot/storepilot/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordAndRecent(t *testing.T) {
	store := kvstore.NewMemoryStore()
	tracker := history.New(store)
	ctx := context.Background()

	tracker.Record(ctx, "tenant-1", &command.Command{Type: command.TypeProduct, Action: "update"})
	tracker.Record(ctx, "tenant-1", &command.Command{Type: command.TypeOrder, Action: "fulfill"})

	entries := tracker.Recent(ctx, "tenant-1")
	require.Len(t, entries, 2)
	assert.Equal(t, command.TypeProduct, entries[0].Type)
	assert.Equal(t, "update", entries[0].Action)
	assert.Equal(t, command.TypeOrder, entries[1].Type)
}

func TestTracker_TenantsIsolated(t *testing.T) {
	store := kvstore.NewMemoryStore()
	tracker := history.New(store)
	ctx := context.Background()

	tracker.Record(ctx, "tenant-1", &command.Command{Type: command.TypeProduct, Action: "delete"})

	assert.Empty(t, tracker.Recent(ctx, "tenant-2"))
	assert.Len(t, tracker.Recent(ctx, "tenant-1"), 1)
}

func TestTracker_EntriesExpire(t *testing.T) {
	store := kvstore.NewMemoryStore()
	tracker := history.New(store, history.WithWindow(5*time.Minute))

	now := time.Now()
	tracker.SetClock(func() time.Time { return now })
	ctx := context.Background()

	tracker.Record(ctx, "tenant-1", &command.Command{Type: command.TypeProduct, Action: "update"})

	// Four minutes later the entry is still visible.
	now = now.Add(4 * time.Minute)
	assert.Len(t, tracker.Recent(ctx, "tenant-1"), 1)

	// Past the window it is pruned even if the key still exists.
	now = now.Add(2 * time.Minute)
	assert.Empty(t, tracker.Recent(ctx, "tenant-1"))
}

func TestTracker_MissingTenant(t *testing.T) {
	tracker := history.New(kvstore.NewMemoryStore())
	assert.Empty(t, tracker.Recent(context.Background(), "nobody"))
}

func TestTracker_CorruptHistoryDiscarded(t *testing.T) {
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "history:tenant-1", "{not json", 0))

	tracker := history.New(store)
	assert.Empty(t, tracker.Recent(context.Background(), "tenant-1"))
}

func TestTracker_ConcurrentRecordsAllKept(t *testing.T) {
	store := kvstore.NewMemoryStore()
	tracker := history.New(store)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(ctx, "tenant-1", &command.Command{
				Type:   command.TypeProduct,
				Action: fmt.Sprintf("update-%d", i),
			})
		}()
	}
	wg.Wait()

	entries := tracker.Recent(ctx, "tenant-1")
	require.Len(t, entries, writers)

	seen := make(map[string]bool, writers)
	for _, e := range entries {
		seen[e.Action] = true
	}
	assert.Len(t, seen, writers)
}

// interleavedStore lets another tracker write between a Record's read
// and its swap, forcing the revision conflict path.
type interleavedStore struct {
	*kvstore.MemoryStore
	once    sync.Once
	between func()
}

func (s *interleavedStore) Swap(ctx context.Context, key, value string, ttl time.Duration, rev uint64) error {
	s.once.Do(s.between)
	return s.MemoryStore.Swap(ctx, key, value, ttl, rev)
}

func TestTracker_RecordMergesCompetingWriter(t *testing.T) {
	mem := kvstore.NewMemoryStore()
	ctx := context.Background()

	other := history.New(mem)
	store := &interleavedStore{
		MemoryStore: mem,
		between: func() {
			other.Record(ctx, "tenant-1", &command.Command{Type: command.TypeOrder, Action: "fulfill"})
		},
	}
	tracker := history.New(store)

	tracker.Record(ctx, "tenant-1", &command.Command{Type: command.TypeProduct, Action: "delete"})

	entries := other.Recent(ctx, "tenant-1")
	require.Len(t, entries, 2)

	actions := []string{entries[0].Action, entries[1].Action}
	assert.Contains(t, actions, "fulfill")
	assert.Contains(t, actions, "delete")
}
