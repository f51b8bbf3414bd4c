package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/clients/postgres"
)

const documentsTable = "documents"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	payload    JSONB       NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_ts_idx ON documents (collection, ts DESC);
`

// defaultPollInterval re-reads subscribed collections when no event bus is wired.
const defaultPollInterval = 5 * time.Second

// PostgresStore implements DocumentStore on a single JSONB documents table.
// Mutations are announced on the event bus so every instance's subscriptions
// re-read the collection; without a bus subscriptions poll.
type PostgresStore struct {
	client       *postgres.Client
	db           *goqu.Database
	bus          providers.EventBus
	pollInterval time.Duration
	now          func() time.Time
}

// NewPostgresStore creates a document store backed by Postgres. bus may be nil.
// A pollInterval of zero polls only when there is no bus.
func NewPostgresStore(client *postgres.Client, bus providers.EventBus, pollInterval time.Duration) *PostgresStore {
	if bus == nil && pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &PostgresStore{
		client:       client,
		db:           goqu.New("postgres", client.DB()),
		bus:          bus,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// GrantStatement is the statement an operator runs so role can use the
// documents table.
func GrantStatement(role string) string {
	return fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON TABLE %s TO %s;",
		pq.QuoteIdentifier(documentsTable), pq.QuoteIdentifier(role))
}

// InitSchema creates the documents table when it does not exist
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.client.DB().ExecContext(ctx, schemaSQL); err != nil {
		return classify("init schema", err)
	}
	return nil
}

// Add appends a document under a generated id
func (s *PostgresStore) Add(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	doc.ID = uuid.New().String()

	query, args, err := s.db.Insert(documentsTable).Rows(documentRecord(collection, doc)).ToSQL()
	if err != nil {
		return "", repositories.NewStoreError(repositories.StoreCodeOther, "failed to build insert query", err)
	}
	if _, err := s.client.DB().ExecContext(ctx, query, args...); err != nil {
		return "", classify("add document", err)
	}

	s.announce(ctx, collection, entities.ChangeAdded, doc.ID)
	return doc.ID, nil
}

// Set writes a document under the caller's id
func (s *PostgresStore) Set(ctx context.Context, collection string, doc repositories.Document) error {
	if doc.ID == "" {
		return repositories.NewStoreError(repositories.StoreCodeOther, "document id is required", nil)
	}

	query, args, err := s.db.Insert(documentsTable).
		Rows(documentRecord(collection, doc)).
		OnConflict(goqu.DoUpdate("collection, id", goqu.Record{
			"ts":      goqu.L("EXCLUDED.ts"),
			"payload": goqu.L("EXCLUDED.payload"),
		})).
		ToSQL()
	if err != nil {
		return repositories.NewStoreError(repositories.StoreCodeOther, "failed to build upsert query", err)
	}
	if _, err := s.client.DB().ExecContext(ctx, query, args...); err != nil {
		return classify("set document", err)
	}

	s.announce(ctx, collection, entities.ChangeAdded, doc.ID)
	return nil
}

// Delete removes a document
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	query, args, err := s.db.Delete(documentsTable).
		Where(goqu.Ex{"collection": collection, "id": id}).
		ToSQL()
	if err != nil {
		return repositories.NewStoreError(repositories.StoreCodeOther, "failed to build delete query", err)
	}

	result, err := s.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return classify("delete document", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.announce(ctx, collection, entities.ChangeRemoved, id)
	}
	return nil
}

// DeleteAll locks and enumerates the collection, then deletes exactly the
// enumerated documents in the same transaction.
func (s *PostgresStore) DeleteAll(ctx context.Context, collection string) (int, error) {
	tx, err := s.client.BeginTx(ctx)
	if err != nil {
		return 0, classify("begin batch delete", err)
	}
	defer tx.Rollback()

	selectQuery, args, err := s.db.From(documentsTable).
		Select("id").
		Where(goqu.Ex{"collection": collection}).
		ForUpdate(goqu.Wait).
		ToSQL()
	if err != nil {
		return 0, repositories.NewStoreError(repositories.StoreCodeOther, "failed to build enumerate query", err)
	}

	rows, err := tx.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return 0, classify("enumerate collection", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, classify("enumerate collection", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, classify("enumerate collection", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	deleteQuery, args, err := s.db.Delete(documentsTable).
		Where(goqu.Ex{"collection": collection, "id": ids}).
		ToSQL()
	if err != nil {
		return 0, repositories.NewStoreError(repositories.StoreCodeOther, "failed to build batch delete query", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return 0, classify("batch delete", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("commit batch delete", err)
	}

	s.announce(ctx, collection, entities.ChangeCleared, "")
	return len(ids), nil
}

// List returns the collection ordered by timestamp descending
func (s *PostgresStore) List(ctx context.Context, collection string) ([]repositories.Document, error) {
	query, args, err := s.db.From(documentsTable).
		Select("id", "ts", "payload").
		Where(goqu.Ex{"collection": collection}).
		Order(goqu.C("ts").Desc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, repositories.NewStoreError(repositories.StoreCodeOther, "failed to build list query", err)
	}

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list collection", err)
	}
	defer rows.Close()

	docs := make([]repositories.Document, 0)
	for rows.Next() {
		var (
			doc     repositories.Document
			payload []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Timestamp, &payload); err != nil {
			return nil, classify("scan document", err)
		}
		doc.Timestamp = doc.Timestamp.UTC()
		doc.Data = payload
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list collection", err)
	}
	return docs, nil
}

// Subscribe opens a standing query. The first snapshot is read before
// returning so permission problems surface immediately.
func (s *PostgresStore) Subscribe(ctx context.Context, collection string) (repositories.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	var changes <-chan *entities.CollectionEvent
	if s.bus != nil {
		ch, err := s.bus.Subscribe(ctx, providers.GetCollectionChannel(collection))
		if err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("Change notifications unavailable, falling back to polling")
		} else {
			changes = ch
		}
	}

	pollInterval := s.pollInterval
	if changes == nil && pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	first, err := s.List(ctx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &postgresSubscription{
		events: make(chan repositories.SnapshotEvent, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.events <- repositories.SnapshotEvent{Snapshot: s.snapshot(collection, first)}

	go s.watch(ctx, sub, collection, changes, pollInterval)
	return sub, nil
}

func (s *PostgresStore) watch(ctx context.Context, sub *postgresSubscription, collection string, changes <-chan *entities.CollectionEvent, pollInterval time.Duration) {
	defer close(sub.done)
	defer close(sub.events)

	var tick <-chan time.Time
	if pollInterval > 0 {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// Bus went away; keep the subscription alive by polling.
				changes = nil
				if tick == nil {
					ticker := time.NewTicker(defaultPollInterval)
					defer ticker.Stop()
					tick = ticker.C
				}
				continue
			}
		case <-tick:
		}

		docs, err := s.List(ctx, collection)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			replaceLatest(sub.events, repositories.SnapshotEvent{Err: err})
			return
		}
		replaceLatest(sub.events, repositories.SnapshotEvent{Snapshot: s.snapshot(collection, docs)})
	}
}

func (s *PostgresStore) snapshot(collection string, docs []repositories.Document) *repositories.Snapshot {
	return &repositories.Snapshot{
		Collection: collection,
		Documents:  docs,
		ReadAt:     s.now().UTC(),
	}
}

// announce tells other subscribers to re-read. A lost announcement only delays
// convergence until the next change or poll, so failures are logged, not returned.
func (s *PostgresStore) announce(ctx context.Context, collection string, kind entities.ChangeKind, id string) {
	if s.bus == nil {
		return
	}
	event := &entities.CollectionEvent{
		ID:         uuid.New().String(),
		Collection: collection,
		Kind:       kind,
		DocumentID: id,
		OccurredAt: s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, providers.GetCollectionChannel(collection), event); err != nil {
		log.Warn().Err(err).Str("collection", collection).Str("kind", string(kind)).Msg("Failed to announce collection change")
	}
}

type postgresSubscription struct {
	events chan repositories.SnapshotEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (p *postgresSubscription) Events() <-chan repositories.SnapshotEvent {
	return p.events
}

func (p *postgresSubscription) Close() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
}

func documentRecord(collection string, doc repositories.Document) goqu.Record {
	return goqu.Record{
		"collection": collection,
		"id":         doc.ID,
		"ts":         doc.Timestamp.UTC(),
		"payload":    string(doc.Data),
	}
}

// classify maps driver errors onto store codes. SQLSTATE 42501 is
// insufficient_privilege; class 08 and the 57P0x shutdown codes mean the
// server is unreachable.
func classify(operation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42501":
			return repositories.NewStoreError(repositories.StoreCodePermissionDenied, operation+": missing or insufficient permissions", err)
		case pqErr.Code.Class() == "08", pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03", pqErr.Code == "53300":
			return repositories.NewStoreError(repositories.StoreCodeUnavailable, operation+": database unavailable", err)
		}
		return repositories.NewStoreError(repositories.StoreCodeOther, fmt.Sprintf("%s: %s", operation, pqErr.Message), err)
	}
	if errors.Is(err, sql.ErrConnDone) || repositories.IsConnectivityError(err) {
		return repositories.NewStoreError(repositories.StoreCodeUnavailable, operation+": database unavailable", err)
	}
	return repositories.NewStoreError(repositories.StoreCodeOther, operation+" failed", err)
}
