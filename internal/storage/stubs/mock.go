package stubs

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

type mockCollection struct {
	docs    []bson.D
	indexes map[string]dataset.Index
}

// MockDB is an in-memory implementation of the Storage interface for testing.
// Unique indexes are enforced the way MongoDB enforces them.
type MockDB struct {
	mu          sync.RWMutex
	collections map[string]*mockCollection
	accounts    map[string]mockAccount

	writes     int
	failAfter  int
	failErr    error
	pingErr    error
	accountErr error
}

type mockAccount struct {
	password string
	roles    []dataset.Role
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		collections: make(map[string]*mockCollection),
		accounts:    make(map[string]mockAccount),
		failAfter:   -1,
	}
}

// FailAfter makes every document write after the first n successful ones fail with err
func (m *MockDB) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = 0
	m.failAfter = n
	m.failErr = err
}

// Heal clears all injected failures
func (m *MockDB) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = -1
	m.failErr = nil
	m.pingErr = nil
	m.accountErr = nil
}

// FailPing makes Ping return err
func (m *MockDB) FailPing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// FailAccount makes EnsureAccount return err
func (m *MockDB) FailAccount(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountErr = err
}

// Ping returns the injected ping failure, if any
func (m *MockDB) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

// EnsureAccount records the account
func (m *MockDB) EnsureAccount(ctx context.Context, account dataset.Account, password string) (storage.AccountResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accountErr != nil {
		return "", m.accountErr
	}

	_, exists := m.accounts[account.User]
	m.accounts[account.User] = mockAccount{password: password, roles: account.Roles}
	if exists {
		return storage.AccountUpdated, nil
	}
	return storage.AccountCreated, nil
}

// HasAccount reports whether an account exists with the given password
func (m *MockDB) HasAccount(user, password string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[user]
	return ok && a.password == password
}

// ListIndexes returns index names sorted by name; an existing collection always has _id_
func (m *MockDB) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	names := []string{"_id_"}
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateIndex adds an index, failing if stored documents already violate it
func (m *MockDB) CreateIndex(ctx context.Context, collection string, index dataset.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if index.Unique {
		seen := make(map[string]bool)
		for _, d := range c.docs {
			for _, k := range dataset.IndexKeys(d, index) {
				if seen[k] {
					return fmt.Errorf("failed to create index %s on %s: %w", index.Name(), collection, storage.ErrDuplicateKey)
				}
				seen[k] = true
			}
		}
	}
	c.indexes[index.Name()] = index
	return nil
}

// CountDocuments returns the number of documents in a collection
func (m *MockDB) CountDocuments(ctx context.Context, collection string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.collections[collection]; ok {
		return int64(len(c.docs)), nil
	}
	return 0, nil
}

// Documents returns a copy of the stored documents in insertion order
func (m *MockDB) Documents(collection string) []bson.D {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	out := make([]bson.D, len(c.docs))
	copy(out, c.docs)
	return out
}

// InsertMany inserts in order and stops at the first failure
func (m *MockDB) InsertMany(ctx context.Context, collection string, docs []bson.D) (storage.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res storage.WriteResult
	c := m.collection(collection)
	for _, d := range docs {
		if err := m.checkWrite(collection); err != nil {
			return res, err
		}
		if err := c.checkUnique(d, -1); err != nil {
			return res, fmt.Errorf("failed to insert into %s: %w", collection, err)
		}
		c.docs = append(c.docs, d)
		res.Inserted++
	}
	return res, nil
}

// ReplaceByKey replaces documents matched by key, inserting the missing ones
func (m *MockDB) ReplaceByKey(ctx context.Context, collection, key string, docs []bson.D) (storage.WriteResult, error) {
	return m.upsert(collection, key, docs, true)
}

// InsertMissing inserts documents whose key is absent
func (m *MockDB) InsertMissing(ctx context.Context, collection, key string, docs []bson.D) (storage.WriteResult, error) {
	return m.upsert(collection, key, docs, false)
}

func (m *MockDB) upsert(collection, key string, docs []bson.D, replace bool) (storage.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res storage.WriteResult
	c := m.collection(collection)
	for _, d := range docs {
		v, err := dataset.BusinessKey(d, key)
		if err != nil {
			return res, fmt.Errorf("%s: %w", collection, err)
		}
		if err := m.checkWrite(collection); err != nil {
			return res, err
		}

		pos := c.find(key, v)
		switch {
		case pos < 0:
			if err := c.checkUnique(d, -1); err != nil {
				return res, fmt.Errorf("failed to write %s: %w", collection, err)
			}
			c.docs = append(c.docs, d)
			res.Inserted++
		case !replace || reflect.DeepEqual(c.docs[pos], d):
			res.Unchanged++
		default:
			if err := c.checkUnique(d, pos); err != nil {
				return res, fmt.Errorf("failed to write %s: %w", collection, err)
			}
			c.docs[pos] = d
			res.Updated++
		}
	}
	return res, nil
}

// NextSequence increments a counter field and returns the previous value
func (m *MockDB) NextSequence(ctx context.Context, collection, counterID, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("counter %s in %s: %w", counterID, collection, storage.ErrNotFound)
	}
	pos := c.find("_id", counterID)
	if pos < 0 {
		return 0, fmt.Errorf("counter %s in %s: %w", counterID, collection, storage.ErrNotFound)
	}

	doc := append(bson.D(nil), c.docs[pos]...)
	for i, e := range doc {
		if e.Key != field {
			continue
		}
		var before int64
		switch v := e.Value.(type) {
		case int32:
			before = int64(v)
			doc[i].Value = v + 1
		case int64:
			before = v
			doc[i].Value = v + 1
		case int:
			before = int64(v)
			doc[i].Value = v + 1
		default:
			return 0, fmt.Errorf("counter field %s has type %T", field, e.Value)
		}
		c.docs[pos] = doc
		return before, nil
	}
	return 0, fmt.Errorf("counter field %s: %w", field, storage.ErrNotFound)
}

// Close does nothing for mock DB
func (m *MockDB) Close(ctx context.Context) error {
	return nil
}

func (m *MockDB) collection(name string) *mockCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &mockCollection{indexes: make(map[string]dataset.Index)}
		m.collections[name] = c
	}
	return c
}

// checkWrite applies injected failures; must be called with mu held
func (m *MockDB) checkWrite(collection string) error {
	if m.failAfter >= 0 && m.writes >= m.failAfter {
		return fmt.Errorf("write to %s: %w", collection, m.failErr)
	}
	m.writes++
	return nil
}

func (c *mockCollection) find(key string, v any) int {
	want := dataset.KeyOf(v)
	for i, d := range c.docs {
		got, err := dataset.BusinessKey(d, key)
		if err == nil && dataset.KeyOf(got) == want {
			return i
		}
	}
	return -1
}

// checkUnique rejects d if it collides on a unique index with any stored
// document other than the one at position skip
func (c *mockCollection) checkUnique(d bson.D, skip int) error {
	for _, idx := range c.indexes {
		if !idx.Unique {
			continue
		}
		keys := make(map[string]bool)
		for _, k := range dataset.IndexKeys(d, idx) {
			keys[k] = true
		}
		for i, other := range c.docs {
			if i == skip {
				continue
			}
			for _, k := range dataset.IndexKeys(other, idx) {
				if keys[k] {
					return fmt.Errorf("index %s: %w", idx.Name(), storage.ErrDuplicateKey)
				}
			}
		}
	}
	return nil
}
