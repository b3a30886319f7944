// Package terr provides standardized error handling for tempora.
// All errors carry stable, machine-readable codes, structured context,
// and proper wrapping.
package terr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code represents a stable, machine-readable error code.
// Format: E{category}{number} where category is 1-6 and number is 001-999.
type Code string

// Error codes organized by category.
const (
	// Schema errors (E1xxx) - problems with table declarations
	ErrSchemaInvalid   Code = "E1001" // Table declaration is malformed
	ErrSchemaConflict  Code = "E1002" // Declared and live schema disagree destructively
	ErrSchemaDuplicate Code = "E1003" // Duplicate table or column name
	ErrUnsupportedType Code = "E1004" // Logical type has no mapping for the dialect

	// Write-path errors (E2xxx) - problems with record values
	ErrValidationBypass   Code = "E2001" // Value incompatible with column type after coercion
	ErrOptimisticConflict Code = "E2002" // Versioned update lost a concurrent race
	ErrRecordNotFound     Code = "E2003" // No record for the given id / version

	// DDL errors (E3xxx) - problems applying schema changes
	ErrDDLApplication Code = "E3001" // A specific schema change failed to apply

	// SQL errors (E4xxx) - problems with database operations
	ErrSQLExecution   Code = "E4001" // SQL statement failed to execute
	ErrSQLTransaction Code = "E4002" // Transaction operation failed

	// Introspection errors (E5xxx)
	ErrIntrospection Code = "E5001" // Catalog introspection failed

	// Config errors (E6xxx)
	ErrConfigInvalid Code = "E6001" // Configuration file is malformed
)

// Error is the standard error type for tempora.
type Error struct {
	code    Code
	message string
	context map[string]any
	cause   error
}

// Error returns the formatted error string.
// Format:
//
//	[E3001] failed to apply schema change
//	  change: add_column
//	  table: products
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.code, e.message))

	// Write context in sorted order for deterministic output
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			b.WriteString(fmt.Sprintf("\n  %s: %v", k, e.context[k]))
		}
	}

	if e.cause != nil {
		b.WriteString(fmt.Sprintf("\n  cause: %v", e.cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error for errors.Unwrap compatibility.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.code == targetErr.code
	}
	return false
}

// GetCode returns the error code.
func (e *Error) GetCode() Code {
	return e.code
}

// GetMessage returns the error message.
func (e *Error) GetMessage() string {
	return e.message
}

// GetContext returns the error context map.
func (e *Error) GetContext() map[string]any {
	return e.context
}

// With adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) With(key string, value any) *Error {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

// WithTable adds table context to the error.
func (e *Error) WithTable(table string) *Error {
	return e.With("table", table)
}

// WithColumn adds column context to the error.
func (e *Error) WithColumn(name string) *Error {
	return e.With("column", name)
}

// WithSQL adds SQL statement context to the error.
func (e *Error) WithSQL(sql string) *Error {
	return e.With("sql", sql)
}

// WithChange adds schema-change context to the error.
func (e *Error) WithChange(kind string) *Error {
	return e.With("change", kind)
}

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error that wraps an existing error.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return New(code, msg)
	}
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
		cause:   err,
	}
}

// Wrapf creates a new Error that wraps an existing error with a formatted message.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	return Wrap(code, err, fmt.Sprintf(format, args...))
}

// GetErrorCode extracts the error code from an error chain.
// Returns empty string if no code is found.
func GetErrorCode(err error) Code {
	if err == nil {
		return ""
	}
	var terr *Error
	if errors.As(err, &terr) {
		return terr.code
	}
	return ""
}

// Is checks if an error has the specified code.
func Is(err error, code Code) bool {
	return GetErrorCode(err) == code
}

// WrapSQL creates an ErrSQLExecution error with operation and table context.
// Example: WrapSQL(err, "introspect columns", "products")
func WrapSQL(err error, op string, table string) *Error {
	e := Wrap(ErrSQLExecution, err, "failed to "+op)
	if table != "" {
		e.WithTable(table)
	}
	return e
}
