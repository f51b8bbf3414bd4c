package repositories

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Document is one entry of a store collection. Data holds the JSON body;
// Timestamp mirrors the body's timestamp field and drives ordering.
type Document struct {
	ID        string
	Timestamp time.Time
	Data      json.RawMessage
}

// NewDocument encodes v as a document body.
func NewDocument(id string, timestamp time.Time, v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode document: %w", err)
	}
	return Document{ID: id, Timestamp: timestamp.UTC(), Data: data}, nil
}

// Snapshot is the full, authoritative content of a collection at one point,
// ordered by timestamp descending (newest first).
type Snapshot struct {
	Collection string
	Documents  []Document
	ReadAt     time.Time
}

// SnapshotEvent is delivered by a Subscription. An event with Err set is
// terminal: no further events follow it.
type SnapshotEvent struct {
	Snapshot *Snapshot
	Err      error
}

// Subscription is a standing query on one collection.
type Subscription interface {
	// Events delivers snapshots. When the consumer falls behind, older
	// undelivered snapshots are dropped in favour of the newest.
	Events() <-chan SnapshotEvent

	// Close cancels the subscription. It is safe to call more than once.
	Close()
}

// DocumentStore is the shared document store the widget persists to.
type DocumentStore interface {
	// Add appends a document under a store-generated id and returns that id.
	Add(ctx context.Context, collection string, doc Document) (string, error)

	// Set writes a document under the caller's id, replacing any previous one.
	Set(ctx context.Context, collection string, doc Document) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// DeleteAll enumerates the collection and removes every document in one
	// atomic batch: either all of them go or none do.
	DeleteAll(ctx context.Context, collection string) (int, error)

	// List returns the collection ordered by timestamp descending.
	List(ctx context.Context, collection string) ([]Document, error)

	// Subscribe opens a standing query ordered by timestamp descending. The
	// first event is the current content; every change yields a new full
	// snapshot.
	Subscribe(ctx context.Context, collection string) (Subscription, error)
}

// StoreErrorCode is the machine-readable category of a store failure.
type StoreErrorCode string

const (
	StoreCodePermissionDenied StoreErrorCode = "permission-denied"
	StoreCodeUnavailable      StoreErrorCode = "unavailable"
	StoreCodeOther            StoreErrorCode = "other"
)

// StoreError is returned by DocumentStore implementations.
type StoreError struct {
	Code    StoreErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the unwrap interface
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(code StoreErrorCode, message string, err error) *StoreError {
	return &StoreError{Code: code, Message: message, Err: err}
}

// StoreErrorCodeOf extracts the store code from err. Errors that did not come
// from a store are classified by shape: timeouts and broken connections are
// unavailable, anything else is other.
func StoreErrorCodeOf(err error) StoreErrorCode {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	if IsConnectivityError(err) {
		return StoreCodeUnavailable
	}
	return StoreCodeOther
}

// IsConnectivityError reports whether err means the store could not be reached.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
