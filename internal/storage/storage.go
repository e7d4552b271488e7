package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"booksdb/internal/dataset"
)

// Error kinds returned (wrapped) by every Storage implementation
var (
	ErrConnection   = errors.New("datastore unreachable")
	ErrPermission   = errors.New("permission denied")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
)

// WriteResult counts what a batch write did to a collection
type WriteResult struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// AccountResult tells whether an account was created or already existed
type AccountResult string

const (
	AccountCreated AccountResult = "created"
	AccountUpdated AccountResult = "updated"
	AccountSkipped AccountResult = "skipped"
)

// Storage defines the datastore operations the seeder needs
type Storage interface {
	// Ping checks that the datastore is reachable and credentials are accepted
	Ping(ctx context.Context) error

	// Account operations

	// EnsureAccount creates the account, or updates its password and roles if it exists
	EnsureAccount(ctx context.Context, account dataset.Account, password string) (AccountResult, error)

	// Index operations

	// ListIndexes returns the names of the indexes on a collection
	ListIndexes(ctx context.Context, collection string) ([]string, error)
	// CreateIndex creates an index; creating an identical existing index is a no-op
	CreateIndex(ctx context.Context, collection string, index dataset.Index) error

	// Document operations

	// CountDocuments returns the number of documents in a collection
	CountDocuments(ctx context.Context, collection string) (int64, error)
	// InsertMany inserts documents in order, stopping at the first failure
	InsertMany(ctx context.Context, collection string, docs []bson.D) (WriteResult, error)
	// ReplaceByKey replaces each document matched by its key field, inserting it when absent
	ReplaceByKey(ctx context.Context, collection, key string, docs []bson.D) (WriteResult, error)
	// InsertMissing inserts each document whose key is absent and leaves existing ones untouched
	InsertMissing(ctx context.Context, collection, key string, docs []bson.D) (WriteResult, error)

	// Counter operations

	// NextSequence atomically increments field on the counter document and
	// returns the value it had before the increment
	NextSequence(ctx context.Context, collection, counterID, field string) (int64, error)

	// Lifecycle
	Close(ctx context.Context) error
}
