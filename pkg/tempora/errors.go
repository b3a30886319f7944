package tempora

import (
	"github.com/temporadb/tempora/internal/terr"
)

// ErrMissingDatabaseURL is returned by New when neither a database URL nor
// an existing connection pool was provided.
var ErrMissingDatabaseURL = terr.New(terr.ErrConfigInvalid,
	"a database connection is required; use WithDatabaseURL or WithDB")

// Error codes callers can test against with IsCode. The codes are stable
// across releases.
const (
	CodeSchemaInvalid      = terr.ErrSchemaInvalid
	CodeSchemaConflict     = terr.ErrSchemaConflict
	CodeUnsupportedType    = terr.ErrUnsupportedType
	CodeValidationBypass   = terr.ErrValidationBypass
	CodeOptimisticConflict = terr.ErrOptimisticConflict
	CodeRecordNotFound     = terr.ErrRecordNotFound
	CodeDDLApplication     = terr.ErrDDLApplication
)

// IsCode reports whether err carries the given error code anywhere in its
// chain.
func IsCode(err error, code terr.Code) bool {
	return terr.Is(err, code)
}

// IsOptimisticConflict reports whether an update lost a race against a
// concurrent updater; the caller should reload and retry.
func IsOptimisticConflict(err error) bool {
	return terr.Is(err, terr.ErrOptimisticConflict)
}

// IsRecordNotFound reports whether a write targeted a missing record.
func IsRecordNotFound(err error) bool {
	return terr.Is(err, terr.ErrRecordNotFound)
}
