package cache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stitchline/portal-client/cache"
	"github.com/stretchr/testify/require"
)

func countingFetch(calls *int32, data []string, tags ...cache.Tag) cache.FetchFunc {
	return func(ctx context.Context) (any, []cache.Tag, error) {
		atomic.AddInt32(calls, 1)
		return data, tags, nil
	}
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	store := cache.New()
	var calls int32

	fetch := func(ctx context.Context) (any, []cache.Tag, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(200 * time.Millisecond)
		return []string{"order-1"}, []cache.Tag{cache.ListTag("Order")}, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := store.Query(context.Background(), "orders:list", fetch)
			require.NoError(t, err)
			results[i] = data
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Equal(t, results[0], results[1])
}

func TestFreshDataIsServedFromCache(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"lead-7"}, cache.ListTag("Lead"))

	_, err := store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)
	_, err = store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTagInvalidationForcesRefetch(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"lead-7"}, cache.IDTag("Lead", 7), cache.ListTag("Lead"))

	_, err := store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)

	err = store.Mutate(context.Background(), func(ctx context.Context) error {
		return nil // the write itself succeeded
	}, []cache.Tag{cache.ListTag("Lead")})
	require.NoError(t, err)

	_, err = store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestInvalidationDuringFetchIsNotLost(t *testing.T) {
	store := cache.New()
	tag := cache.ListTag("Lead")
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	fetch := func(ctx context.Context) (any, []cache.Tag, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			close(inFlight)
			<-release
		}
		return fmt.Sprintf("v%d", n), []cache.Tag{tag}, nil
	}

	_, err := store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)
	store.Invalidate(context.Background(), tag)

	results := make(chan any, 1)
	go func() {
		data, queryErr := store.Query(context.Background(), "leads:list", fetch)
		if queryErr != nil {
			results <- queryErr
			return
		}
		results <- data
	}()

	<-inFlight
	// A write lands while the refetch is still in flight; the fetched
	// data predates it and must not be served as fresh.
	err = store.Mutate(context.Background(), func(ctx context.Context) error {
		return nil
	}, []cache.Tag{tag})
	require.NoError(t, err)
	close(release)

	require.Equal(t, "v3", <-results)

	// The post-mutation result is now cached; no further fetch needed.
	data, err := store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)
	require.Equal(t, "v3", data)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestItemTagInvalidationHitsCollections(t *testing.T) {
	store := cache.New()
	var listCalls, itemCalls int32

	_, err := store.Query(context.Background(), "leads:list", countingFetch(&listCalls, []string{"lead-7", "lead-9"},
		cache.IDTag("Lead", 7), cache.IDTag("Lead", 9), cache.ListTag("Lead")))
	require.NoError(t, err)
	_, err = store.Query(context.Background(), "leads:7", countingFetch(&itemCalls, []string{"lead-7"}, cache.IDTag("Lead", 7)))
	require.NoError(t, err)

	// Updating lead 7 invalidates both the item and every collection
	// holding it, but not unrelated resources.
	store.Invalidate(context.Background(), cache.IDTag("Lead", 7))

	_, listStatus, listStale := store.Peek("leads:list")
	require.Equal(t, cache.StatusSuccess, listStatus)
	require.True(t, listStale)
	_, _, itemStale := store.Peek("leads:7")
	require.True(t, itemStale)
}

func TestFailedMutationDoesNotInvalidate(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"lead-7"}, cache.ListTag("Lead"))

	_, err := store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)

	mutationErr := errors.New("validation failed")
	err = store.Mutate(context.Background(), func(ctx context.Context) error {
		return mutationErr
	}, []cache.Tag{cache.ListTag("Lead")})
	require.ErrorIs(t, err, mutationErr)

	_, err = store.Query(context.Background(), "leads:list", fetch)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSubscribedEntryIsRefetchedInBackground(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"order-1"}, cache.ListTag("Order"))

	unsubscribe := store.Subscribe("orders:list")
	defer unsubscribe()

	_, err := store.Query(context.Background(), "orders:list", fetch)
	require.NoError(t, err)

	store.Invalidate(context.Background(), cache.ListTag("Order"))

	require.Eventually(t, func() bool {
		if atomic.LoadInt32(&calls) != 2 {
			return false
		}
		_, status, stale := store.Peek("orders:list")
		return status == cache.StatusSuccess && !stale
	}, time.Second, 10*time.Millisecond)
}

func TestUnsubscribedEntryIsNotRefetched(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"order-1"}, cache.ListTag("Order"))

	_, err := store.Query(context.Background(), "orders:list", fetch)
	require.NoError(t, err)

	store.Invalidate(context.Background(), cache.ListTag("Order"))

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	_, _, stale := store.Peek("orders:list")
	require.True(t, stale)
}

func TestLastUnsubscribeMarksEntryStale(t *testing.T) {
	store := cache.New()
	var calls int32
	fetch := countingFetch(&calls, []string{"order-1"}, cache.ListTag("Order"))

	first := store.Subscribe("orders:list")
	second := store.Subscribe("orders:list")
	_, err := store.Query(context.Background(), "orders:list", fetch)
	require.NoError(t, err)

	first()
	_, _, stale := store.Peek("orders:list")
	require.False(t, stale)

	second()
	second() // unsubscribe funcs are idempotent
	_, _, stale = store.Peek("orders:list")
	require.True(t, stale)

	// A new subscriber revalidates before the data counts as fresh.
	_, err = store.Query(context.Background(), "orders:list", fetch)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestErrorStateIsStoredPerKey(t *testing.T) {
	store := cache.New()
	fetchErr := errors.New("upstream down")
	var calls int32

	failing := func(ctx context.Context) (any, []cache.Tag, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil, fetchErr
	}

	_, err := store.Query(context.Background(), "orders:list", failing)
	require.ErrorIs(t, err, fetchErr)
	require.ErrorIs(t, store.Err("orders:list"), fetchErr)

	_, status, _ := store.Peek("orders:list")
	require.Equal(t, cache.StatusError, status)

	// No automatic retry, but an explicit re-query fetches again.
	_, err = store.Query(context.Background(), "orders:list", failing)
	require.ErrorIs(t, err, fetchErr)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestResetDiscardsInFlightResults(t *testing.T) {
	store := cache.New()
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (any, []cache.Tag, error) {
		close(started)
		<-release
		return []string{"order-1"}, []cache.Tag{cache.ListTag("Order")}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := store.Query(context.Background(), "orders:list", fetch)
		require.NoError(t, err)
	}()

	<-started
	store.Reset() // logout while the fetch is in flight
	close(release)
	<-done

	// The stale response did not repopulate the cache.
	_, status, _ := store.Peek("orders:list")
	require.Equal(t, cache.StatusIdle, status)
}

func TestQueryAs(t *testing.T) {
	store := cache.New()

	leads, err := cache.QueryAs(context.Background(), store, "leads:list", func(ctx context.Context) ([]string, []cache.Tag, error) {
		return []string{"lead-7"}, []cache.Tag{cache.ListTag("Lead")}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"lead-7"}, leads)

	// Same key, different type: a wiring bug, reported as an error.
	_, err = cache.QueryAs(context.Background(), store, "leads:list", func(ctx context.Context) (int, []cache.Tag, error) {
		return 0, nil, nil
	})
	require.Error(t, err)
}
