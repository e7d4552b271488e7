package seeder

import (
	"errors"
	"fmt"
	"strings"

	"booksdb/internal/dataset"
	"booksdb/internal/storage"
)

// Kind categorises a seed failure
type Kind string

const (
	KindConnection     Kind = "connection"
	KindPermission     Kind = "permission"
	KindDuplicateKey   Kind = "duplicate_key"
	KindInvalidDataset Kind = "invalid_dataset"
	KindInternal       Kind = "internal"
)

// Exit codes for each failure category
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitDatabase   = 2
	ExitNetwork    = 3
	ExitPermission = 5
	ExitInternal   = 10
)

// Error is a failed seed run, naming where it failed and why
type Error struct {
	Kind       Kind
	Collection string
	Index      string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("seed failed")
	switch {
	case e.Collection != "" && e.Index != "":
		fmt.Fprintf(&b, " on %s index %s", e.Collection, e.Index)
	case e.Collection != "":
		fmt.Fprintf(&b, " on %s", e.Collection)
	}
	fmt.Fprintf(&b, " (%s): %v", e.Kind, e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, collection, index string) *Error {
	return &Error{Kind: classify(err), Collection: collection, Index: index, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, dataset.ErrInvalid):
		return KindInvalidDataset
	case errors.Is(err, storage.ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, storage.ErrPermission):
		return KindPermission
	case errors.Is(err, storage.ErrConnection):
		return KindConnection
	}
	return KindInternal
}

// ExitCode maps an error to a process exit code. Errors that are not an
// *Error are classified by the storage or dataset error they wrap.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	kind := classify(err)
	var seedErr *Error
	if errors.As(err, &seedErr) {
		kind = seedErr.Kind
	}
	switch kind {
	case KindInvalidDataset:
		return ExitConfig
	case KindDuplicateKey:
		return ExitDatabase
	case KindConnection:
		return ExitNetwork
	case KindPermission:
		return ExitPermission
	}
	return ExitInternal
}
