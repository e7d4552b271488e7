package seeder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"booksdb/internal/dataset"
	"booksdb/internal/fixtures"
	"booksdb/internal/storage"
	"booksdb/internal/storage/stubs"
)

func newTestSeeder(db storage.Storage, opts Options) *Seeder {
	s := New(db, zap.NewNop(), opts)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	runs := 0
	s.newID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	return s
}

func booksDataset(t *testing.T) dataset.Dataset {
	ds, err := fixtures.BooksDB("booksdb")
	require.NoError(t, err)
	return ds
}

func storedCounts(t *testing.T, db *stubs.MockDB) map[string]int64 {
	counts := make(map[string]int64)
	for _, name := range []string{
		fixtures.UsersCollection, fixtures.AuthorsCollection, fixtures.GenresCollection,
		fixtures.BooksCollection, fixtures.CounterCollection,
	} {
		n, err := db.CountDocuments(context.Background(), name)
		require.NoError(t, err)
		counts[name] = n
	}
	return counts
}

var fixtureCounts = map[string]int64{
	fixtures.UsersCollection:   3,
	fixtures.AuthorsCollection: 8,
	fixtures.GenresCollection:  7,
	fixtures.BooksCollection:   6,
	fixtures.CounterCollection: 1,
}

func embeddedReviews(docs []bson.D) int {
	n := 0
	for _, d := range docs {
		for _, v := range dataset.Values(d, "reviews.review_id") {
			if v != nil {
				n++
			}
		}
	}
	return n
}

func TestSeed_EmptyStore(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})

	report, err := s.Seed(context.Background(), booksDataset(t))
	require.NoError(t, err)

	assert.Equal(t, fixtureCounts, storedCounts(t, db))
	assert.Equal(t, 6, embeddedReviews(db.Documents(fixtures.BooksCollection)))
	assert.Equal(t, 6, report.EmbeddedReviews())

	assert.Equal(t, 25, report.Inserted())
	assert.Equal(t, 0, report.Updated())
	assert.Equal(t, 9, report.IndexesCreated())
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "booksdb", report.Dataset)

	books, ok := report.Collection(fixtures.BooksCollection)
	require.True(t, ok)
	assert.Equal(t, storage.WriteResult{Inserted: 6}, books.WriteResult)
	assert.Equal(t, dataset.StrategyUpsert, books.Strategy)

	names, err := db.ListIndexes(context.Background(), fixtures.BooksCollection)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"_id_", "isbn_1", "book_id_1", "title_text", "authors.name_1", "genres.name_1"}, names)
}

func TestSeed_Idempotent(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()

	_, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)
	once := storedCounts(t, db)

	report, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	assert.Equal(t, once, storedCounts(t, db))
	assert.Equal(t, 0, report.Inserted())
	assert.Equal(t, 0, report.Updated())
	assert.Equal(t, 0, report.IndexesCreated())
	for _, c := range report.Collections {
		assert.Equal(t, c.Declared, c.Unchanged, c.Name)
	}
}

func TestSeed_UniqueISBN(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()

	_, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	duplicate := dataset.Dataset{
		Name: "duplicate-isbn",
		Collections: []dataset.Collection{{
			Name:     fixtures.BooksCollection,
			Strategy: dataset.StrategyInsert,
			Documents: []bson.D{{
				{Key: "book_id", Value: int32(7)},
				{Key: "isbn", Value: "978-0-13-468599-1"},
				{Key: "title", Value: "Effective Java, 4th Edition"},
			}},
			Indexes: []dataset.Index{{Fields: []string{"isbn"}, Unique: true}},
		}},
	}

	_, err = s.Seed(ctx, duplicate)
	require.Error(t, err)

	var seedErr *Error
	require.ErrorAs(t, err, &seedErr)
	assert.Equal(t, KindDuplicateKey, seedErr.Kind)
	assert.Equal(t, fixtures.BooksCollection, seedErr.Collection)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, ExitDatabase, ExitCode(err))

	n, _ := db.CountDocuments(ctx, fixtures.BooksCollection)
	assert.Equal(t, int64(6), n)
}

func TestSeed_UniqueUsername(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()

	_, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	impostor := dataset.Dataset{Collections: []dataset.Collection{{
		Name: fixtures.UsersCollection,
		Key:  "user_id",
		Documents: []bson.D{{
			{Key: "user_id", Value: int32(4)},
			{Key: "username", Value: "admin"},
			{Key: "password_hash", Value: "x"},
		}},
	}}}

	_, err = s.Seed(ctx, impostor)
	var seedErr *Error
	require.ErrorAs(t, err, &seedErr)
	assert.Equal(t, KindDuplicateKey, seedErr.Kind)
}

func TestSeed_RetryAfterInterruption(t *testing.T) {
	clean := stubs.NewMockDB()
	_, err := newTestSeeder(clean, Options{}).Seed(context.Background(), booksDataset(t))
	require.NoError(t, err)

	for _, failAfter := range []int{0, 2, 5, 11, 20, 24} {
		t.Run(fmt.Sprintf("fail after %d writes", failAfter), func(t *testing.T) {
			db := stubs.NewMockDB()
			s := newTestSeeder(db, Options{})
			ctx := context.Background()

			db.FailAfter(failAfter, storage.ErrConnection)
			_, err := s.Seed(ctx, booksDataset(t))
			require.Error(t, err)
			var seedErr *Error
			require.ErrorAs(t, err, &seedErr)
			assert.Equal(t, KindConnection, seedErr.Kind)

			db.Heal()
			_, err = s.Seed(ctx, booksDataset(t))
			require.NoError(t, err)

			assert.Equal(t, storedCounts(t, clean), storedCounts(t, db))
			for name := range fixtureCounts {
				assert.Equal(t, clean.Documents(name), db.Documents(name), name)
			}
		})
	}
}

func TestSeed_InvalidDatasetWritesNothing(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})

	ds := booksDataset(t)
	books := &ds.Collections[3]
	books.Documents = append(books.Documents, books.Documents[0])

	_, err := s.Seed(context.Background(), ds)
	require.Error(t, err)

	var seedErr *Error
	require.ErrorAs(t, err, &seedErr)
	assert.Equal(t, KindInvalidDataset, seedErr.Kind)
	assert.ErrorIs(t, err, dataset.ErrInvalid)
	assert.Equal(t, ExitConfig, ExitCode(err))

	for name, n := range storedCounts(t, db) {
		assert.Zero(t, n, name)
	}
	names, _ := db.ListIndexes(context.Background(), fixtures.BooksCollection)
	assert.Empty(t, names)
}

func TestSeed_ConnectionFailure(t *testing.T) {
	db := stubs.NewMockDB()
	db.FailPing(fmt.Errorf("failed to ping MongoDB: %w", storage.ErrConnection))
	s := newTestSeeder(db, Options{AccountPassword: "secret"})

	_, err := s.Seed(context.Background(), booksDataset(t))
	require.Error(t, err)
	assert.Equal(t, ExitNetwork, ExitCode(err))
	assert.False(t, db.HasAccount(fixtures.AccountUser, "secret"))
}

func TestSeed_Account(t *testing.T) {
	ctx := context.Background()

	t.Run("no password configured", func(t *testing.T) {
		db := stubs.NewMockDB()
		report, err := newTestSeeder(db, Options{}).Seed(ctx, booksDataset(t))
		require.NoError(t, err)
		assert.Equal(t, storage.AccountSkipped, report.Account)
	})

	t.Run("explicitly skipped", func(t *testing.T) {
		db := stubs.NewMockDB()
		report, err := newTestSeeder(db, Options{AccountPassword: "secret", SkipAccount: true}).Seed(ctx, booksDataset(t))
		require.NoError(t, err)
		assert.Equal(t, storage.AccountSkipped, report.Account)
		assert.False(t, db.HasAccount(fixtures.AccountUser, "secret"))
	})

	t.Run("created then updated", func(t *testing.T) {
		db := stubs.NewMockDB()
		s := newTestSeeder(db, Options{AccountPassword: "secret"})

		report, err := s.Seed(ctx, booksDataset(t))
		require.NoError(t, err)
		assert.Equal(t, storage.AccountCreated, report.Account)
		assert.Equal(t, fixtures.AccountUser, report.AccountUser)
		assert.True(t, db.HasAccount(fixtures.AccountUser, "secret"))

		report, err = s.Seed(ctx, booksDataset(t))
		require.NoError(t, err)
		assert.Equal(t, storage.AccountUpdated, report.Account)
	})

	t.Run("user overridden", func(t *testing.T) {
		db := stubs.NewMockDB()
		report, err := newTestSeeder(db, Options{AccountUser: "reporting", AccountPassword: "pw"}).Seed(ctx, booksDataset(t))
		require.NoError(t, err)
		assert.Equal(t, "reporting", report.AccountUser)
		assert.True(t, db.HasAccount("reporting", "pw"))
		assert.False(t, db.HasAccount(fixtures.AccountUser, "pw"))
	})

	t.Run("permission denied", func(t *testing.T) {
		db := stubs.NewMockDB()
		db.FailAccount(fmt.Errorf("failed to create user appuser: %w", storage.ErrPermission))

		_, err := newTestSeeder(db, Options{AccountPassword: "secret"}).Seed(ctx, booksDataset(t))
		var seedErr *Error
		require.ErrorAs(t, err, &seedErr)
		assert.Equal(t, KindPermission, seedErr.Kind)
		assert.Equal(t, ExitPermission, ExitCode(err))

		n, _ := db.CountDocuments(ctx, fixtures.BooksCollection)
		assert.Zero(t, n, "nothing is written after a permission failure")
	})
}

func TestSeed_CounterNeverMovesBackwards(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()

	_, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	next, err := db.NextSequence(ctx, fixtures.CounterCollection, "counters", "next_book_id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), next)

	_, err = s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	next, err = db.NextSequence(ctx, fixtures.CounterCollection, "counters", "next_book_id")
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
}

func TestSeed_SkipStrategy(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()

	ds := dataset.Dataset{Collections: []dataset.Collection{
		{
			Name:      fixtures.GenresCollection,
			Label:     "genres",
			Strategy:  dataset.StrategySkip,
			Documents: []bson.D{{{Key: "genre_id", Value: int32(1)}, {Key: "name", Value: "Programming"}}},
		},
		{
			Name:      fixtures.CounterCollection,
			Key:       "_id",
			Strategy:  dataset.StrategyKeep,
			Documents: []bson.D{{{Key: "_id", Value: "counters"}, {Key: "next_book_id", Value: int32(1)}}},
		},
	}}

	report, err := s.Seed(ctx, ds)
	require.NoError(t, err)
	genres, _ := report.Collection(fixtures.GenresCollection)
	assert.False(t, genres.Skipped)
	assert.Equal(t, 1, genres.Inserted)
	assert.Equal(t, "MongoDB initialization complete! Seeded 1 genres, 1 counter.", report.Banner())

	report, err = s.Seed(ctx, ds)
	require.NoError(t, err)
	genres, _ = report.Collection(fixtures.GenresCollection)
	assert.True(t, genres.Skipped)
	assert.Zero(t, genres.Inserted)
	assert.Equal(t, "MongoDB initialization complete! Seeded 1 counter. Skipped genres (already populated).", report.Banner())

	report.Collections = report.Collections[:1]
	assert.Equal(t, "MongoDB initialization complete! Skipped genres (already populated).", report.Banner())

	n, _ := db.CountDocuments(ctx, fixtures.GenresCollection)
	assert.Equal(t, int64(1), n)
}

func TestSeed_History(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{HistoryCollection: "seed_runs"})
	ctx := context.Background()

	first, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)
	second, err := s.Seed(ctx, booksDataset(t))
	require.NoError(t, err)

	runs := db.Documents("seed_runs")
	require.Len(t, runs, 2)
	assert.Equal(t, []any{first.RunID}, dataset.Values(runs[0], "_id"))
	assert.Equal(t, []any{second.RunID}, dataset.Values(runs[1], "_id"))
	assert.Equal(t, []any{9}, dataset.Values(runs[0], "indexes_created"))
	assert.Equal(t, []any{0}, dataset.Values(runs[1], "indexes_created"))
}

func TestStatus(t *testing.T) {
	db := stubs.NewMockDB()
	s := newTestSeeder(db, Options{})
	ctx := context.Background()
	ds := booksDataset(t)

	before, err := s.Status(ctx, ds)
	require.NoError(t, err)
	require.Len(t, before, 5)
	for _, cs := range before {
		if cs.Name == fixtures.CounterCollection {
			assert.Empty(t, cs.MissingIndexes)
		}
		assert.False(t, cs.Seeded(), cs.Name)
	}

	_, err = s.Seed(ctx, ds)
	require.NoError(t, err)

	after, err := s.Status(ctx, ds)
	require.NoError(t, err)
	for _, cs := range after {
		assert.True(t, cs.Seeded(), cs.Name)
		assert.Equal(t, fixtureCounts[cs.Name], cs.Stored)
	}

	var buf bytes.Buffer
	WriteStatus(&buf, after)
	assert.Contains(t, buf.String(), "6/6 documents")
}

func TestReport_Summary(t *testing.T) {
	color.NoColor = true

	db := stubs.NewMockDB()
	report, err := newTestSeeder(db, Options{}).Seed(context.Background(), booksDataset(t))
	require.NoError(t, err)

	assert.Equal(t, "MongoDB initialization complete! Seeded 3 users, 8 authors, 7 genres, 6 books, 1 counter.", report.Banner())

	var buf bytes.Buffer
	report.WriteSummary(&buf)
	out := buf.String()
	assert.Contains(t, out, report.Banner())
	assert.Contains(t, out, "6 inserted, 0 updated, 0 unchanged (6 embedded reviews)")
	assert.Contains(t, out, "9 created, 0 already present")
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindDuplicateKey, Collection: "book", Index: "isbn_1", Err: storage.ErrDuplicateKey}
	assert.Equal(t, "seed failed on book index isbn_1 (duplicate_key): duplicate key", err.Error())

	err = &Error{Kind: KindConnection, Err: storage.ErrConnection}
	assert.Equal(t, "seed failed (connection): datastore unreachable", err.Error())

	assert.Equal(t, ExitInternal, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitNetwork, ExitCode(fmt.Errorf("failed to ping MongoDB: %w", storage.ErrConnection)))
	assert.Equal(t, ExitConfig, ExitCode(fmt.Errorf("dataset.yaml: %w", dataset.ErrInvalid)))
}
