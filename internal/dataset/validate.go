package dataset

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrInvalid marks a dataset that must be rejected before anything is written
var ErrInvalid = errors.New("invalid dataset")

// Validate checks the dataset's structure, business keys and the uniqueness of
// every unique index within the dataset itself. All problems are reported together.
func (d Dataset) Validate() error {
	var problems []error

	if d.Account != nil {
		problems = append(problems, d.Account.validate()...)
	}

	if len(d.Collections) == 0 {
		problems = append(problems, errors.New("no collections declared"))
	}

	seen := make(map[string]bool)
	for i, c := range d.Collections {
		if seen[c.Name] {
			problems = append(problems, fmt.Errorf("collection %q declared twice", c.Name))
			continue
		}
		seen[c.Name] = true
		for _, err := range c.validate() {
			problems = append(problems, fmt.Errorf("collections[%d] %q: %w", i, c.Name, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
	}
	return nil
}

func (a Account) validate() []error {
	var problems []error
	if a.User == "" {
		problems = append(problems, errors.New("account: user is required"))
	}
	if len(a.Roles) == 0 {
		problems = append(problems, errors.New("account: at least one role is required"))
	}
	for i, r := range a.Roles {
		if r.Role == "" || r.DB == "" {
			problems = append(problems, fmt.Errorf("account: roles[%d] needs both role and db", i))
		}
	}
	return problems
}

func (c Collection) validate() []error {
	var problems []error

	switch {
	case c.Name == "":
		problems = append(problems, errors.New("name is required"))
	case strings.ContainsAny(c.Name, "$\x00"):
		problems = append(problems, errors.New("name contains an illegal character"))
	case strings.HasPrefix(c.Name, "system."):
		problems = append(problems, errors.New("system collections cannot be seeded"))
	}

	strategy := c.EffectiveStrategy()
	if !strategy.valid() {
		problems = append(problems, fmt.Errorf("unknown strategy %q", c.Strategy))
	} else if strategy.needsKey() && c.Key == "" {
		problems = append(problems, fmt.Errorf("strategy %q requires a key", strategy))
	}

	if c.Key != "" {
		keys := make(map[string]int)
		for i, doc := range c.Documents {
			v, err := BusinessKey(doc, c.Key)
			if err != nil {
				problems = append(problems, fmt.Errorf("documents[%d]: %w", i, err))
				continue
			}
			k := KeyOf(v)
			if prev, dup := keys[k]; dup {
				problems = append(problems, fmt.Errorf("documents[%d]: key %s=%v already used by documents[%d]", i, c.Key, v, prev))
				continue
			}
			keys[k] = i
		}
	}

	names := make(map[string]bool)
	textIndexes := 0
	for i, idx := range c.Indexes {
		if err := idx.validate(); err != nil {
			problems = append(problems, fmt.Errorf("indexes[%d]: %w", i, err))
			continue
		}
		if names[idx.Name()] {
			problems = append(problems, fmt.Errorf("indexes[%d]: %s declared twice", i, idx.Name()))
		}
		names[idx.Name()] = true
		if idx.kind() == KindText {
			textIndexes++
		}
		if idx.Unique {
			problems = append(problems, c.duplicatesFor(idx)...)
		}
	}
	if textIndexes > 1 {
		problems = append(problems, errors.New("only one text index is allowed per collection"))
	}

	return problems
}

func (i Index) validate() error {
	if len(i.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	for _, f := range i.Fields {
		if f == "" || strings.HasPrefix(f, "$") || strings.Contains(f, "..") {
			return fmt.Errorf("illegal field name %q", f)
		}
	}
	switch i.kind() {
	case KindExact, KindDesc:
	case KindText:
		if i.Unique {
			return errors.New("a text index cannot be unique")
		}
	default:
		return fmt.Errorf("unknown index kind %q", i.Kind)
	}
	return nil
}

// duplicatesFor reports documents that would collide on a unique index
func (c Collection) duplicatesFor(idx Index) []error {
	var problems []error
	owners := make(map[string]int)
	for i, doc := range c.Documents {
		for _, k := range IndexKeys(doc, idx) {
			if prev, dup := owners[k]; dup && prev != i {
				problems = append(problems, fmt.Errorf("documents[%d]: duplicate value for unique index %s (also in documents[%d])", i, idx.Name(), prev))
				break
			}
			owners[k] = i
		}
	}
	return problems
}

// IndexKeys returns the index entries a document produces for idx.
// Compound indexes combine one value per field.
func IndexKeys(doc bson.D, idx Index) []string {
	entries := []string{""}
	for n, f := range idx.Fields {
		var next []string
		for _, prefix := range entries {
			for _, v := range Values(doc, f) {
				if n == 0 {
					next = append(next, KeyOf(v))
				} else {
					next = append(next, prefix+"\x1f"+KeyOf(v))
				}
			}
		}
		entries = next
	}
	return dedupe(entries)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
