package engine

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tasktimer/internal/repo"
)

// ValidationError reports bad caller input. Nothing is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing task, tag or session.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }

// ErrConcurrencyInvariant is returned when a start would leave two tasks running.
var ErrConcurrencyInvariant = errors.New("another task is already running")

// TransactionError wraps a store failure. The transaction was rolled back.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Busy reports whether the failure was SQLITE_BUSY and may succeed on retry.
func (e *TransactionError) Busy() bool { return IsBusy(e.Err) }

// IsBusy returns true if err is a SQLITE_BUSY error.
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// IsConstraint returns true if err is a constraint violation.
func IsConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}

// fail maps an error from a store call onto the engine taxonomy.
func (e Engine) fail(op, kind string, id int64, err error) error {
	var (
		ve ValidationError
		nf NotFoundError
		te *TransactionError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve), errors.As(err, &nf), errors.As(err, &te), errors.Is(err, ErrConcurrencyInvariant):
		return err
	case isNotFound(err):
		return NotFoundError{Kind: kind, ID: id}
	case IsConstraint(err) && strings.Contains(err.Error(), "tasks.is_running"):
		return ErrConcurrencyInvariant
	}
	e.Log.Error().Err(err).Str("op", op).Int64("id", id).Msg("store operation failed")
	return &TransactionError{Op: op, Err: err}
}
