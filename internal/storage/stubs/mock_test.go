package stubs

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

func user(id int32, name string) bson.D {
	return bson.D{{Key: "user_id", Value: id}, {Key: "username", Value: name}}
}

func TestMockDB_ReplaceByKey(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	res, err := db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(1, "admin"), user(2, "bookworm")})
	if err != nil {
		t.Fatalf("Failed to upsert users: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", res.Inserted)
	}

	res, err = db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(1, "admin"), user(2, "reader")})
	if err != nil {
		t.Fatalf("Failed to upsert users: %v", err)
	}
	if res != (storage.WriteResult{Updated: 1, Unchanged: 1}) {
		t.Errorf("Unexpected result on rerun: %+v", res)
	}

	count, _ := db.CountDocuments(ctx, "app_user")
	if count != 2 {
		t.Errorf("Expected 2 users, got %d", count)
	}
	if got := db.Documents("app_user")[1]; got[1].Value != "reader" {
		t.Errorf("Expected replaced username, got %v", got[1].Value)
	}
}

func TestMockDB_InsertMissing(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	counter := bson.D{{Key: "_id", Value: "counters"}, {Key: "next_book_id", Value: int32(7)}}
	if _, err := db.InsertMissing(ctx, "counter", "_id", []bson.D{counter}); err != nil {
		t.Fatalf("Failed to insert counter: %v", err)
	}

	next, err := db.NextSequence(ctx, "counter", "counters", "next_book_id")
	if err != nil {
		t.Fatalf("Failed to increment counter: %v", err)
	}
	if next != 7 {
		t.Errorf("Expected 7, got %d", next)
	}

	res, err := db.InsertMissing(ctx, "counter", "_id", []bson.D{counter})
	if err != nil {
		t.Fatalf("Failed to reinsert counter: %v", err)
	}
	if res.Unchanged != 1 || res.Inserted != 0 {
		t.Errorf("Expected counter to be left alone, got %+v", res)
	}

	next, _ = db.NextSequence(ctx, "counter", "counters", "next_book_id")
	if next != 8 {
		t.Errorf("Expected counter to keep its value and return 8, got %d", next)
	}
}

func TestMockDB_NextSequence_Missing(t *testing.T) {
	db := NewMockDB()

	_, err := db.NextSequence(context.Background(), "counter", "counters", "next_book_id")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMockDB_UniqueIndex(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	idx := dataset.Index{Fields: []string{"username"}, Unique: true}
	if err := db.CreateIndex(ctx, "app_user", idx); err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	if _, err := db.InsertMany(ctx, "app_user", []bson.D{user(1, "admin")}); err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}

	_, err := db.InsertMany(ctx, "app_user", []bson.D{user(2, "admin")})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on insert, got %v", err)
	}

	// Replacing a document must not collide with itself
	if _, err := db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(1, "admin")}); err != nil {
		t.Errorf("Expected replace of the same user to succeed, got %v", err)
	}

	if _, err := db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(3, "admin")}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on upsert, got %v", err)
	}

	names, _ := db.ListIndexes(ctx, "app_user")
	if len(names) != 2 || names[0] != "_id_" || names[1] != "username_1" {
		t.Errorf("Unexpected indexes: %v", names)
	}
}

func TestMockDB_CreateIndex_ExistingDuplicates(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	_, _ = db.InsertMany(ctx, "app_user", []bson.D{user(1, "admin"), user(2, "admin")})

	err := db.CreateIndex(ctx, "app_user", dataset.Index{Fields: []string{"username"}, Unique: true})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestMockDB_FailAfter(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	boom := errors.New("connection reset")

	db.FailAfter(1, boom)
	res, err := db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(1, "admin"), user(2, "bookworm")})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected injected failure, got %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("Expected 1 write before the failure, got %d", res.Inserted)
	}

	db.Heal()
	if _, err := db.ReplaceByKey(ctx, "app_user", "user_id", []bson.D{user(1, "admin"), user(2, "bookworm")}); err != nil {
		t.Fatalf("Expected writes to succeed after Heal, got %v", err)
	}
	count, _ := db.CountDocuments(ctx, "app_user")
	if count != 2 {
		t.Errorf("Expected 2 users, got %d", count)
	}
}

func TestMockDB_EnsureAccount(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	account := dataset.Account{User: "appuser", Roles: []dataset.Role{{Role: "readWrite", DB: "booksdb"}}}

	res, err := db.EnsureAccount(ctx, account, "one")
	if err != nil || res != storage.AccountCreated {
		t.Fatalf("Expected account to be created, got %v, %v", res, err)
	}

	res, err = db.EnsureAccount(ctx, account, "two")
	if err != nil || res != storage.AccountUpdated {
		t.Fatalf("Expected account to be updated, got %v, %v", res, err)
	}
	if !db.HasAccount("appuser", "two") {
		t.Error("Expected password to be updated")
	}

	db.FailAccount(storage.ErrPermission)
	if _, err := db.EnsureAccount(ctx, account, "three"); !errors.Is(err, storage.ErrPermission) {
		t.Errorf("Expected ErrPermission, got %v", err)
	}
}
