// Package dataset describes what a seed run writes: an optional account,
// and an ordered list of collections with their literal documents and indexes.
package dataset

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Strategy decides what happens to documents that may already be stored
type Strategy string

const (
	// StrategyUpsert replaces the stored document with the same business key, or inserts it
	StrategyUpsert Strategy = "upsert"
	// StrategyKeep inserts documents whose business key is absent and leaves the rest untouched
	StrategyKeep Strategy = "keep"
	// StrategySkip skips the whole collection when it already holds any document
	StrategySkip Strategy = "skip"
	// StrategyInsert inserts blindly; a rerun fails on unique indexes
	StrategyInsert Strategy = "insert"
)

func (s Strategy) valid() bool {
	switch s {
	case StrategyUpsert, StrategyKeep, StrategySkip, StrategyInsert:
		return true
	}
	return false
}

// needsKey reports whether the strategy matches documents by business key
func (s Strategy) needsKey() bool {
	return s == StrategyUpsert || s == StrategyKeep
}

// IndexKind is the type of an index key
type IndexKind string

const (
	KindExact IndexKind = "exact"
	KindDesc  IndexKind = "desc"
	KindText  IndexKind = "text"
)

// Index declares an index on one or more fields of a collection
type Index struct {
	Fields []string  `yaml:"fields"`
	Unique bool      `yaml:"unique"`
	Kind   IndexKind `yaml:"kind"`
}

func (i Index) kind() IndexKind {
	if i.Kind == "" {
		return KindExact
	}
	return i.Kind
}

// Keys returns the index key document in field order
func (i Index) Keys() bson.D {
	keys := make(bson.D, 0, len(i.Fields))
	for _, f := range i.Fields {
		switch i.kind() {
		case KindText:
			keys = append(keys, bson.E{Key: f, Value: "text"})
		case KindDesc:
			keys = append(keys, bson.E{Key: f, Value: -1})
		default:
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
	}
	return keys
}

// Name returns the index name MongoDB would generate for the same keys, e.g. "isbn_1" or "title_text"
func (i Index) Name() string {
	parts := make([]string, 0, len(i.Fields)*2)
	for _, k := range i.Keys() {
		parts = append(parts, k.Key, fmt.Sprint(k.Value))
	}
	return strings.Join(parts, "_")
}

// Role grants a built-in role on a database
type Role struct {
	Role string `yaml:"role"`
	DB   string `yaml:"db"`
}

// Account is a database user to provision. The password is never part of a dataset.
type Account struct {
	User  string `yaml:"user"`
	Roles []Role `yaml:"roles"`
}

// Collection pairs a collection name with its documents and indexes
type Collection struct {
	Name      string
	Label     string
	Key       string
	Strategy  Strategy
	Documents []bson.D
	Indexes   []Index
}

// DisplayName returns the label used in summaries, defaulting to the collection name
func (c Collection) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// EffectiveStrategy returns the declared strategy, defaulting to upsert
func (c Collection) EffectiveStrategy() Strategy {
	if c.Strategy == "" {
		return StrategyUpsert
	}
	return c.Strategy
}

// Dataset is the full description of a seed run
type Dataset struct {
	Name        string
	Account     *Account
	Collections []Collection
}

// Collection looks up a collection by name
func (d Dataset) Collection(name string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// DocumentCount returns the number of documents across all collections
func (d Dataset) DocumentCount() int {
	n := 0
	for _, c := range d.Collections {
		n += len(c.Documents)
	}
	return n
}
