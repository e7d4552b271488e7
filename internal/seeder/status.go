package seeder

import (
	"context"
	"fmt"
	"io"

	"booksdb/internal/dataset"
)

// CollectionStatus compares a dataset collection with what is stored
type CollectionStatus struct {
	Name           string
	Expected       int
	Stored         int64
	MissingIndexes []string
}

// Seeded reports whether the collection holds at least the dataset's documents and all its indexes
func (c CollectionStatus) Seeded() bool {
	return c.Stored >= int64(c.Expected) && len(c.MissingIndexes) == 0
}

// Status reads document counts and indexes without writing anything
func (s *Seeder) Status(ctx context.Context, ds dataset.Dataset) ([]CollectionStatus, error) {
	if err := s.db.Ping(ctx); err != nil {
		return nil, newError(err, "", "")
	}

	out := make([]CollectionStatus, 0, len(ds.Collections))
	for _, c := range ds.Collections {
		n, err := s.db.CountDocuments(ctx, c.Name)
		if err != nil {
			return nil, newError(err, c.Name, "")
		}
		names, err := s.db.ListIndexes(ctx, c.Name)
		if err != nil {
			return nil, newError(err, c.Name, "")
		}
		existing := make(map[string]bool, len(names))
		for _, name := range names {
			existing[name] = true
		}

		cs := CollectionStatus{Name: c.Name, Expected: len(c.Documents), Stored: n}
		for _, idx := range c.Indexes {
			if !existing[idx.Name()] {
				cs.MissingIndexes = append(cs.MissingIndexes, idx.Name())
			}
		}
		out = append(out, cs)
	}
	return out, nil
}

// WriteStatus prints one line per collection
func WriteStatus(w io.Writer, statuses []CollectionStatus) {
	for _, cs := range statuses {
		state := green.Sprint("seeded")
		if !cs.Seeded() {
			state = "pending"
		}
		fmt.Fprintf(w, "  %-12s %d/%d documents  %s", cs.Name, cs.Stored, cs.Expected, state)
		if len(cs.MissingIndexes) > 0 {
			fmt.Fprintf(w, "  missing indexes: %v", cs.MissingIndexes)
		}
		fmt.Fprintln(w)
	}
}
