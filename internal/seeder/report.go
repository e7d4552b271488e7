package seeder

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

var (
	green = color.New(color.FgGreen, color.Bold)
	dim   = color.New(color.Faint)
)

// CollectionReport is what a run did to one collection
type CollectionReport struct {
	Name     string
	Label    string
	Strategy dataset.Strategy
	Declared int
	Skipped  bool
	// Reviews is the number of reviews embedded in the declared documents
	Reviews int
	storage.WriteResult
}

// IndexReport tells whether an index was created by this run
type IndexReport struct {
	Collection string
	Name       string
	Unique     bool
	Created    bool
}

// Report summarises a successful seed run
type Report struct {
	RunID       string
	Dataset     string
	AccountUser string
	Account     storage.AccountResult
	Collections []CollectionReport
	Indexes     []IndexReport
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Inserted returns the number of documents inserted across collections
func (r *Report) Inserted() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Inserted
	}
	return n
}

// Updated returns the number of documents replaced across collections
func (r *Report) Updated() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Updated
	}
	return n
}

// IndexesCreated returns the number of indexes this run created
func (r *Report) IndexesCreated() int {
	n := 0
	for _, idx := range r.Indexes {
		if idx.Created {
			n++
		}
	}
	return n
}

// EmbeddedReviews returns the number of reviews embedded across collections
func (r *Report) EmbeddedReviews() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Reviews
	}
	return n
}

// Collection returns the report for one collection
func (r *Report) Collection(name string) (CollectionReport, bool) {
	for _, c := range r.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionReport{}, false
}

// Banner is the one-line completion message, e.g.
// "MongoDB initialization complete! Seeded 3 users, 8 authors, 7 genres, 6 books, 1 counter."
// Collections left alone under the skip strategy are listed separately.
func (r *Report) Banner() string {
	var seeded, skipped []string
	for _, c := range r.Collections {
		if c.Skipped {
			skipped = append(skipped, c.Label)
			continue
		}
		seeded = append(seeded, fmt.Sprintf("%d %s", c.Declared, c.Label))
	}

	var b strings.Builder
	b.WriteString("MongoDB initialization complete!")
	if len(seeded) > 0 {
		fmt.Fprintf(&b, " Seeded %s.", strings.Join(seeded, ", "))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, " Skipped %s (already populated).", strings.Join(skipped, ", "))
	}
	return b.String()
}

// WriteSummary prints the banner followed by per-collection details
func (r *Report) WriteSummary(w io.Writer) {
	green.Fprintf(w, "✅ %s\n", r.Banner())

	for _, c := range r.Collections {
		if c.Skipped {
			fmt.Fprintf(w, "  %-12s skipped (already populated)\n", c.Label)
			continue
		}
		fmt.Fprintf(w, "  %-12s %d inserted, %d updated, %d unchanged", c.Label, c.Inserted, c.Updated, c.Unchanged)
		if c.Reviews > 0 {
			fmt.Fprintf(w, " (%d embedded reviews)", c.Reviews)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  %-12s %d created, %d already present\n", "indexes", r.IndexesCreated(), len(r.Indexes)-r.IndexesCreated())
	if r.AccountUser != "" {
		fmt.Fprintf(w, "  %-12s %s (%s)\n", "account", r.AccountUser, r.Account)
	}
	dim.Fprintf(w, "  run %s in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
