// Package storage provides the durable document store used for session
// snapshots, preference profiles, and promoted patterns.
//
// Records are opaque JSON values keyed by (namespace, id). The store is
// deliberately flat: the data sets here are tens to low hundreds of
// records per user, so prefix scans stand in for secondary indexes.
package storage

import (
	"context"
	"errors"
)

// Namespaces used by the learning subsystem.
const (
	NamespaceSessions = "sessions"
	NamespaceProfiles = "profiles"
	NamespacePatterns = "patterns"
)

// Common storage errors.
var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates the backing store cannot be reached.
	// Best-effort writers treat this as a warning, not a failure.
	ErrUnavailable = errors.New("storage unavailable")
)

// Record is one stored document.
type Record struct {
	// Namespace groups related records (sessions, profiles, patterns).
	Namespace string

	// ID is unique within the namespace.
	ID string

	// Value is the JSON-encoded document.
	Value []byte
}

// Store is the durable document store contract.
//
// Implementations must be safe for concurrent use. Query returns all
// records in a namespace whose ID starts with prefix; an empty prefix
// returns the whole namespace.
type Store interface {
	Get(ctx context.Context, namespace, id string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	Query(ctx context.Context, namespace, prefix string) ([]*Record, error)
	Delete(ctx context.Context, namespace, id string) error
	Close() error
}
