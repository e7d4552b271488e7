package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

// Server error codes the driver does not export
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeUserAlreadyExists    = 51003
)

type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDB connects to MongoDB and checks the connection with a ping
func NewMongoDB(ctx context.Context, uri, database string, timeout time.Duration) (*MongoDB, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, wrap(err, "failed to connect to MongoDB")
	}

	m := &MongoDB{client: client, db: client.Database(database)}
	if err := m.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// Database returns the name of the target database
func (m *MongoDB) Database() string {
	return m.db.Name()
}

// Ping runs the ping command against the target database
func (m *MongoDB) Ping(ctx context.Context) error {
	if err := m.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return wrap(err, "failed to ping MongoDB")
	}
	return nil
}

// EnsureAccount creates the user on the target database, or updates it if it exists
func (m *MongoDB) EnsureAccount(ctx context.Context, account dataset.Account, password string) (storage.AccountResult, error) {
	roles := make(bson.A, 0, len(account.Roles))
	for _, r := range account.Roles {
		roles = append(roles, bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.DB}})
	}

	var info struct {
		Users []bson.Raw `bson:"users"`
	}
	if err := m.db.RunCommand(ctx, bson.D{{Key: "usersInfo", Value: account.User}}).Decode(&info); err != nil {
		return "", wrap(err, "failed to look up user %s", account.User)
	}

	if len(info.Users) == 0 {
		err := m.db.RunCommand(ctx, bson.D{
			{Key: "createUser", Value: account.User},
			{Key: "pwd", Value: password},
			{Key: "roles", Value: roles},
		}).Err()
		if err == nil {
			return storage.AccountCreated, nil
		}
		if !hasCode(err, codeUserAlreadyExists) {
			return "", wrap(err, "failed to create user %s", account.User)
		}
	}

	err := m.db.RunCommand(ctx, bson.D{
		{Key: "updateUser", Value: account.User},
		{Key: "pwd", Value: password},
		{Key: "roles", Value: roles},
	}).Err()
	if err != nil {
		return "", wrap(err, "failed to update user %s", account.User)
	}
	return storage.AccountUpdated, nil
}

// ListIndexes returns index names; a missing collection has none
func (m *MongoDB) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	specs, err := m.db.Collection(collection).Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, wrap(err, "failed to list indexes on %s", collection)
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names, nil
}

// CreateIndex creates an index named the way MongoDB would name it
func (m *MongoDB) CreateIndex(ctx context.Context, collection string, index dataset.Index) error {
	model := mongo.IndexModel{
		Keys:    index.Keys(),
		Options: options.Index().SetName(index.Name()).SetUnique(index.Unique),
	}
	if _, err := m.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return wrap(err, "failed to create index %s on %s", index.Name(), collection)
	}
	return nil
}

// CountDocuments returns the number of documents in a collection
func (m *MongoDB) CountDocuments(ctx context.Context, collection string) (int64, error) {
	n, err := m.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, wrap(err, "failed to count %s", collection)
	}
	return n, nil
}

// InsertMany inserts documents in one ordered batch
func (m *MongoDB) InsertMany(ctx context.Context, collection string, docs []bson.D) (storage.WriteResult, error) {
	if len(docs) == 0 {
		return storage.WriteResult{}, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = d
	}

	res, err := m.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	if err != nil {
		return storage.WriteResult{Inserted: insertedBeforeFailure(err)}, wrap(err, "failed to insert into %s", collection)
	}
	return storage.WriteResult{Inserted: len(res.InsertedIDs)}, nil
}

// insertedBeforeFailure returns how many documents of an ordered insert were
// stored before err. InsertedIDs cannot tell, the driver lists every _id it
// assigned whether or not the server accepted the document.
func insertedBeforeFailure(err error) int {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		first := bwe.WriteErrors[0].Index
		for _, we := range bwe.WriteErrors[1:] {
			first = min(first, we.Index)
		}
		return first
	}
	return 0
}

// ReplaceByKey upserts each document by its business key in one ordered bulk write
func (m *MongoDB) ReplaceByKey(ctx context.Context, collection, key string, docs []bson.D) (storage.WriteResult, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		v, err := dataset.BusinessKey(d, key)
		if err != nil {
			return storage.WriteResult{}, fmt.Errorf("%s: %w", collection, err)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: key, Value: v}}).
			SetReplacement(d).
			SetUpsert(true))
	}
	return m.bulkWrite(ctx, collection, models)
}

// InsertMissing upserts with $setOnInsert so stored documents are never modified
func (m *MongoDB) InsertMissing(ctx context.Context, collection, key string, docs []bson.D) (storage.WriteResult, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		v, err := dataset.BusinessKey(d, key)
		if err != nil {
			return storage.WriteResult{}, fmt.Errorf("%s: %w", collection, err)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: key, Value: v}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: d}}).
			SetUpsert(true))
	}
	return m.bulkWrite(ctx, collection, models)
}

func (m *MongoDB) bulkWrite(ctx context.Context, collection string, models []mongo.WriteModel) (storage.WriteResult, error) {
	if len(models) == 0 {
		return storage.WriteResult{}, nil
	}

	res, err := m.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	var result storage.WriteResult
	if res != nil {
		result = storage.WriteResult{
			Inserted:  int(res.UpsertedCount),
			Updated:   int(res.ModifiedCount),
			Unchanged: int(res.MatchedCount - res.ModifiedCount),
		}
	}
	if err != nil {
		return result, wrap(err, "failed to write %s", collection)
	}
	return result, nil
}

// NextSequence increments the counter field and returns its previous value
func (m *MongoDB) NextSequence(ctx context.Context, collection, counterID, field string) (int64, error) {
	var before bson.M
	err := m.db.Collection(collection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: counterID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: 1}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("counter %s in %s: %w", counterID, collection, storage.ErrNotFound)
	}
	if err != nil {
		return 0, wrap(err, "failed to increment %s", field)
	}

	switch v := before[field].(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("counter field %s: %w", field, storage.ErrNotFound)
}

// Close disconnects the client; calling it twice is safe
func (m *MongoDB) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	return err
}

// wrap attaches the matching storage error kind so callers can use errors.Is
func wrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", msg, kind, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func kindOf(err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case hasCode(err, codeUnauthorized), hasCode(err, codeAuthenticationFailed):
		return storage.ErrPermission
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return storage.ErrConnection
	}
	return nil
}

func hasCode(err error, code int) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(code)
}
