// Package seeder brings a datastore to the state a dataset describes: the
// account is provisioned, every declared index exists, and every document is
// stored exactly once no matter how many times the seeder runs.
//
// Re-running is safe for the upsert and keep strategies; those are the only
// ones a retry after an interrupted run can rely on.
package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

// Options control the privileged and optional parts of a run
type Options struct {
	// AccountUser overrides the account name declared by the dataset
	AccountUser string
	// AccountPassword is required for the account to be provisioned
	AccountPassword string
	// SkipAccount disables account provisioning entirely
	SkipAccount bool
	// HistoryCollection receives one document per successful run; empty disables it
	HistoryCollection string
}

// Seeder writes datasets into a Storage
type Seeder struct {
	db     storage.Storage
	logger *zap.Logger
	opts   Options
	now    func() time.Time
	newID  func() string
}

// New creates a seeder
func New(db storage.Storage, logger *zap.Logger, opts Options) *Seeder {
	return &Seeder{
		db:     db,
		logger: logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Seed validates the dataset and then provisions, indexes and writes it, in
// that order. The dataset is validated in full before the first write.
func (s *Seeder) Seed(ctx context.Context, ds dataset.Dataset) (*Report, error) {
	if err := ds.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidDataset, Err: err}
	}

	report := &Report{
		RunID:     s.newID(),
		Dataset:   ds.Name,
		StartedAt: s.now(),
	}
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("dataset", ds.Name))
	logger.Info("Seeding started", zap.Int("collections", len(ds.Collections)), zap.Int("documents", ds.DocumentCount()))

	if err := s.db.Ping(ctx); err != nil {
		logger.Error("Datastore unreachable", zap.Error(err))
		return nil, newError(err, "", "")
	}

	if err := s.provisionAccount(ctx, ds.Account, report, logger); err != nil {
		return nil, err
	}

	for _, c := range ds.Collections {
		if err := s.ensureIndexes(ctx, c, report, logger); err != nil {
			return nil, err
		}
		if err := s.writeCollection(ctx, c, report, logger); err != nil {
			return nil, err
		}
	}

	report.FinishedAt = s.now()
	if s.opts.HistoryCollection != "" {
		if err := s.recordRun(ctx, report); err != nil {
			logger.Error("Failed to record seed run", zap.Error(err))
			return nil, newError(err, s.opts.HistoryCollection, "")
		}
	}

	logger.Info("Seeding complete",
		zap.Int("inserted", report.Inserted()),
		zap.Int("updated", report.Updated()),
		zap.Int("indexes_created", report.IndexesCreated()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *Seeder) provisionAccount(ctx context.Context, declared *dataset.Account, report *Report, logger *zap.Logger) error {
	report.Account = storage.AccountSkipped
	if declared == nil {
		return nil
	}

	account := *declared
	if s.opts.AccountUser != "" {
		account.User = s.opts.AccountUser
	}
	report.AccountUser = account.User

	switch {
	case s.opts.SkipAccount:
		logger.Info("Account provisioning disabled", zap.String("user", account.User))
		return nil
	case s.opts.AccountPassword == "":
		logger.Warn("No account password configured, skipping account provisioning", zap.String("user", account.User))
		return nil
	}

	res, err := s.db.EnsureAccount(ctx, account, s.opts.AccountPassword)
	if err != nil {
		logger.Error("Failed to provision account", zap.Error(err), zap.String("user", account.User))
		return newError(fmt.Errorf("account %s: %w", account.User, err), "", "")
	}

	report.Account = res
	logger.Info("Account provisioned", zap.String("user", account.User), zap.String("result", string(res)))
	return nil
}

func (s *Seeder) ensureIndexes(ctx context.Context, c dataset.Collection, report *Report, logger *zap.Logger) error {
	if len(c.Indexes) == 0 {
		return nil
	}

	names, err := s.db.ListIndexes(ctx, c.Name)
	if err != nil {
		return newError(err, c.Name, "")
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}

	for _, idx := range c.Indexes {
		ir := IndexReport{Collection: c.Name, Name: idx.Name(), Unique: idx.Unique}
		if !existing[ir.Name] {
			if err := s.db.CreateIndex(ctx, c.Name, idx); err != nil {
				logger.Error("Failed to create index", zap.Error(err), zap.String("collection", c.Name), zap.String("index", ir.Name))
				return newError(err, c.Name, ir.Name)
			}
			ir.Created = true
			logger.Debug("Index created", zap.String("collection", c.Name), zap.String("index", ir.Name))
		}
		report.Indexes = append(report.Indexes, ir)
	}
	return nil
}

func (s *Seeder) writeCollection(ctx context.Context, c dataset.Collection, report *Report, logger *zap.Logger) error {
	cr := CollectionReport{
		Name:     c.Name,
		Label:    c.DisplayName(),
		Strategy: c.EffectiveStrategy(),
		Declared: len(c.Documents),
		Reviews:  countEmbedded(c.Documents, "reviews"),
	}

	var (
		res storage.WriteResult
		err error
	)
	switch cr.Strategy {
	case dataset.StrategyUpsert:
		res, err = s.db.ReplaceByKey(ctx, c.Name, c.Key, c.Documents)
	case dataset.StrategyKeep:
		res, err = s.db.InsertMissing(ctx, c.Name, c.Key, c.Documents)
	case dataset.StrategySkip:
		var n int64
		n, err = s.db.CountDocuments(ctx, c.Name)
		if err == nil && n > 0 {
			cr.Skipped = true
			logger.Info("Collection already populated, skipping", zap.String("collection", c.Name), zap.Int64("documents", n))
			break
		}
		if err == nil {
			res, err = s.db.InsertMany(ctx, c.Name, c.Documents)
		}
	case dataset.StrategyInsert:
		res, err = s.db.InsertMany(ctx, c.Name, c.Documents)
	}

	cr.WriteResult = res
	if err != nil {
		logger.Error("Failed to seed collection",
			zap.Error(err),
			zap.String("collection", c.Name),
			zap.Int("written_before_failure", res.Inserted+res.Updated+res.Unchanged),
		)
		return newError(err, c.Name, "")
	}

	report.Collections = append(report.Collections, cr)
	logger.Info("Collection seeded",
		zap.String("collection", c.Name),
		zap.String("strategy", string(cr.Strategy)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Bool("skipped", cr.Skipped),
	)
	return nil
}

func (s *Seeder) recordRun(ctx context.Context, report *Report) error {
	collections := make(bson.A, 0, len(report.Collections))
	for _, c := range report.Collections {
		collections = append(collections, bson.D{
			{Key: "collection", Value: c.Name},
			{Key: "strategy", Value: string(c.Strategy)},
			{Key: "inserted", Value: c.Inserted},
			{Key: "updated", Value: c.Updated},
			{Key: "unchanged", Value: c.Unchanged},
			{Key: "skipped", Value: c.Skipped},
		})
	}

	doc := bson.D{
		{Key: "_id", Value: report.RunID},
		{Key: "dataset", Value: report.Dataset},
		{Key: "started_at", Value: report.StartedAt},
		{Key: "finished_at", Value: report.FinishedAt},
		{Key: "account", Value: string(report.Account)},
		{Key: "indexes_created", Value: report.IndexesCreated()},
		{Key: "collections", Value: collections},
	}
	_, err := s.db.InsertMany(ctx, s.opts.HistoryCollection, []bson.D{doc})
	return err
}

// countEmbedded counts the elements of the array stored under field in each document
func countEmbedded(docs []bson.D, field string) int {
	n := 0
	for _, d := range docs {
		for _, e := range d {
			if e.Key != field {
				continue
			}
			if arr, ok := e.Value.(bson.A); ok {
				n += len(arr)
			}
		}
	}
	return n
}
