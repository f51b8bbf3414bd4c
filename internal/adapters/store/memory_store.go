package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
)

// Operation names a DocumentStore call, used for fault injection.
type Operation string

const (
	OpAdd       Operation = "add"
	OpSet       Operation = "set"
	OpDelete    Operation = "delete"
	OpDeleteAll Operation = "delete_all"
	OpList      Operation = "list"
	OpSubscribe Operation = "subscribe"
)

// MemoryStore is an in-process DocumentStore. It backs STORE_DRIVER=memory
// and the service tests. Faults can be injected per operation.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]repositories.Document
	subscribers map[string]map[*memorySubscription]struct{}
	faults      map[Operation]error
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]repositories.Document),
		subscribers: make(map[string]map[*memorySubscription]struct{}),
		faults:      make(map[Operation]error),
		now:         time.Now,
	}
}

// FailWith makes every later call of op fail with err until cleared with a nil err.
func (s *MemoryStore) FailWith(op Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// BreakSubscriptions delivers err as a terminal event to every subscriber of collection.
func (s *MemoryStore) BreakSubscriptions(collection string, err error) {
	s.mu.Lock()
	subs := s.subscribers[collection]
	delete(s.subscribers, collection)
	s.mu.Unlock()

	for sub := range subs {
		sub.fail(err)
	}
}

// Count returns the number of documents in collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Add appends a document under a generated id
func (s *MemoryStore) Add(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	doc.ID = uuid.New().String()
	if err := s.put(ctx, OpAdd, collection, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Set writes a document under the caller's id
func (s *MemoryStore) Set(ctx context.Context, collection string, doc repositories.Document) error {
	if doc.ID == "" {
		return repositories.NewStoreError(repositories.StoreCodeOther, "document id is required", nil)
	}
	return s.put(ctx, OpSet, collection, doc)
}

func (s *MemoryStore) put(ctx context.Context, op Operation, collection string, doc repositories.Document) error {
	if err := ctx.Err(); err != nil {
		return repositories.NewStoreError(repositories.StoreCodeUnavailable, "request cancelled", err)
	}

	s.mu.Lock()
	if err := s.faults[op]; err != nil {
		s.mu.Unlock()
		return err
	}
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]repositories.Document)
	}
	s.collections[collection][doc.ID] = doc
	s.mu.Unlock()

	s.broadcast(collection)
	return nil
}

// Delete removes a document
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return repositories.NewStoreError(repositories.StoreCodeUnavailable, "request cancelled", err)
	}

	s.mu.Lock()
	if err := s.faults[OpDelete]; err != nil {
		s.mu.Unlock()
		return err
	}
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.broadcast(collection)
	}
	return nil
}

// DeleteAll removes every document of collection atomically
func (s *MemoryStore) DeleteAll(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, repositories.NewStoreError(repositories.StoreCodeUnavailable, "request cancelled", err)
	}

	s.mu.Lock()
	if err := s.faults[OpDeleteAll]; err != nil {
		s.mu.Unlock()
		return 0, err
	}
	n := len(s.collections[collection])
	delete(s.collections, collection)
	s.mu.Unlock()

	if n > 0 {
		s.broadcast(collection)
	}
	return n, nil
}

// List returns the collection ordered by timestamp descending
func (s *MemoryStore) List(ctx context.Context, collection string) ([]repositories.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[OpList]; err != nil {
		return nil, err
	}
	return s.orderedLocked(collection), nil
}

func (s *MemoryStore) orderedLocked(collection string) []repositories.Document {
	docs := make([]repositories.Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		docs = append(docs, doc)
	}
	sortNewestFirst(docs)
	return docs
}

// Subscribe opens a standing query on collection
func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (repositories.Subscription, error) {
	s.mu.Lock()
	if err := s.faults[OpSubscribe]; err != nil {
		s.mu.Unlock()
		return nil, err
	}

	sub := &memorySubscription{
		store:      s,
		collection: collection,
		events:     make(chan repositories.SnapshotEvent, 1),
	}
	if s.subscribers[collection] == nil {
		s.subscribers[collection] = make(map[*memorySubscription]struct{})
	}
	s.subscribers[collection][sub] = struct{}{}
	sub.deliver(repositories.SnapshotEvent{Snapshot: s.snapshotLocked(collection)})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

func (s *MemoryStore) snapshotLocked(collection string) *repositories.Snapshot {
	return &repositories.Snapshot{
		Collection: collection,
		Documents:  s.orderedLocked(collection),
		ReadAt:     s.now().UTC(),
	}
}

func (s *MemoryStore) broadcast(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers[collection] {
		sub.deliver(repositories.SnapshotEvent{Snapshot: s.snapshotLocked(collection)})
	}
}

func (s *MemoryStore) unsubscribe(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers[sub.collection], sub)
}

type memorySubscription struct {
	store      *MemoryStore
	collection string
	events     chan repositories.SnapshotEvent
	mu         sync.Mutex
	closed     bool
}

func (m *memorySubscription) Events() <-chan repositories.SnapshotEvent {
	return m.events
}

// deliver keeps only the newest undelivered event.
func (m *memorySubscription) deliver(ev repositories.SnapshotEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	replaceLatest(m.events, ev)
}

func (m *memorySubscription) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	replaceLatest(m.events, repositories.SnapshotEvent{Err: err})
	m.closed = true
	close(m.events)
}

func (m *memorySubscription) Close() {
	m.store.unsubscribe(m)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.events)
}

// replaceLatest sends ev on a buffered channel, first dropping a stale event
// the consumer has not picked up. Callers must be the channel's only sender.
func replaceLatest(ch chan repositories.SnapshotEvent, ev repositories.SnapshotEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- ev
}

func sortNewestFirst(docs []repositories.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Timestamp.Equal(docs[j].Timestamp) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Timestamp.After(docs[j].Timestamp)
	})
}
