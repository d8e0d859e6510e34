// Package cache deduplicates reads, caches responses by resource key, and
// refetches on related writes. Invalidation is an explicit tag graph: a
// mapping from key to tag set and tag to dependent keys, with a mutation
// walking the graph to mark intersecting entries stale.
package cache

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// Status of a cached resource.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// FetchFunc loads a resource. It returns the data together with the tag
// set the stored entry should carry; collection fetches tag each item
// plus the collection's LIST tag.
type FetchFunc func(ctx context.Context) (data any, tags []Tag, err error)

type entry struct {
	data        any
	err         error
	status      Status
	tags        []Tag
	subscribers int
	stale       bool
	// epoch counts invalidations of this entry. A fetch records it at
	// start; a mismatch at store time means a write landed mid-flight and
	// the result must stay stale.
	epoch uint64
	fetch FetchFunc
}

type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	byTag      map[Tag]map[string]struct{}
	group      singleflight.Group
	generation uint64
	log        zerolog.Logger
}

type Option func(*Store)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

func New(options ...Option) *Store {
	store := &Store{
		entries: make(map[string]*entry),
		byTag:   make(map[Tag]map[string]struct{}),
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

// Query returns the cached data for key when it is fresh; otherwise it
// runs fetch, stores the result, and returns it. Identical concurrent
// queries share a single underlying fetch. A fetch whose entry was
// invalidated while it was in flight does not count as a valid read:
// the entry stays stale and the query fetches again.
func (s *Store) Query(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	for {
		s.mu.Lock()
		if e, ok := s.entries[key]; ok && e.status == StatusSuccess && !e.stale {
			data := e.data
			s.mu.Unlock()
			return data, nil
		}
		generation := s.generation
		s.mu.Unlock()

		data, err, _ := s.group.Do(key, func() (interface{}, error) {
			s.mu.Lock()
			start := s.ensureEntryLocked(key)
			start.status = StatusLoading
			startEpoch := start.epoch
			s.mu.Unlock()

			data, tags, err := fetch(ctx)

			s.mu.Lock()
			defer s.mu.Unlock()
			if s.generation != generation {
				// The cache was reset (logout) while this fetch was in
				// flight; its result is no longer relevant.
				return data, err
			}
			e := s.ensureEntryLocked(key)
			e.fetch = fetch
			if err != nil {
				e.status = StatusError
				e.err = err
				return nil, err
			}
			e.status = StatusSuccess
			e.err = nil
			e.data = data
			// An invalidation that fired after the fetch started may not
			// be reflected in the fetched data.
			e.stale = e.epoch != startEpoch
			s.retagLocked(key, e, tags)
			return data, nil
		})
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		e, ok := s.entries[key]
		invalidatedMidFlight := ok && e.stale
		s.mu.Unlock()
		if !invalidatedMidFlight {
			return data, nil
		}
	}
}

// QueryAs is a typed wrapper over Store.Query.
func QueryAs[T any](ctx context.Context, s *Store, key string, fetch func(ctx context.Context) (T, []Tag, error)) (T, error) {
	data, err := s.Query(ctx, key, func(ctx context.Context) (any, []Tag, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := data.(T)
	if !ok {
		var zero T
		return zero, errors.Errorf("[cache.QueryAs] key %q holds %T", key, data)
	}
	return typed, nil
}

// Mutate runs a write and, on success, marks every entry whose tag set
// intersects invalidates as stale. Entries with active subscribers are
// refetched in the background; the staleness itself is visible to any
// query issued after Mutate returns.
func (s *Store) Mutate(ctx context.Context, run func(ctx context.Context) error, invalidates []Tag) error {
	if err := run(ctx); err != nil {
		return err
	}
	s.Invalidate(ctx, invalidates...)
	return nil
}

// Invalidate marks every entry carrying one of the tags as stale and
// schedules background refetches for subscribed entries.
func (s *Store) Invalidate(ctx context.Context, tags ...Tag) {
	s.mu.Lock()
	refetch := make(map[string]FetchFunc)
	for _, tag := range tags {
		for key := range s.byTag[tag] {
			e, ok := s.entries[key]
			if !ok {
				continue
			}
			e.stale = true
			e.epoch++
			if e.subscribers > 0 && e.fetch != nil {
				refetch[key] = e.fetch
			}
		}
	}
	s.mu.Unlock()

	if len(refetch) == 0 {
		return
	}

	background := context.WithoutCancel(ctx)
	var wg conc.WaitGroup
	for key, fetch := range refetch {
		wg.Go(func() {
			if _, err := s.Query(background, key, fetch); err != nil {
				s.log.Debug().Str("key", key).Err(err).Msg("background refetch failed")
			}
		})
	}
	go func() {
		if r := wg.WaitAndRecover(); r != nil {
			s.log.Error().Str("panic", r.String()).Msg("background refetch panicked")
		}
	}()
}

// Subscribe registers an active reader of key and returns the matching
// unsubscribe func. An entry whose subscriber count drops to zero is kept
// but marked stale, so the next subscriber always revalidates.
func (s *Store) Subscribe(key string) (unsubscribe func()) {
	s.mu.Lock()
	e := s.ensureEntryLocked(key)
	e.subscribers++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if e, ok := s.entries[key]; ok {
				e.subscribers--
				if e.subscribers <= 0 {
					e.subscribers = 0
					e.stale = true
				}
			}
		})
	}
}

// Peek reports the cached state for key without fetching.
func (s *Store) Peek(key string) (data any, status Status, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, StatusIdle, false
	}
	return e.data, e.status, e.stale
}

// Err returns the stored error state for key, if any.
func (s *Store) Err(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.err
	}
	return nil
}

// Reset drops every entry and bumps the generation so in-flight fetches
// started before the reset cannot repopulate the cache. Called on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.entries = make(map[string]*entry)
	s.byTag = make(map[Tag]map[string]struct{})
	s.log.Debug().Msg("cache reset")
}

func (s *Store) ensureEntryLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{status: StatusIdle}
		s.entries[key] = e
	}
	return e
}

func (s *Store) retagLocked(key string, e *entry, tags []Tag) {
	for _, tag := range e.tags {
		delete(s.byTag[tag], key)
		if len(s.byTag[tag]) == 0 {
			delete(s.byTag, tag)
		}
	}
	e.tags = tags
	for _, tag := range tags {
		keys, ok := s.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}
