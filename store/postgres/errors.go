package postgres

import (
	stderrors "errors"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

// ErrorKind categorizes a StoreError for the runtime's recovery policy:
// ConstraintViolation is fatal (a bug in the host), DatabaseUnavailable is
// retried by Flush's bounded retry, everything else aborts the current block's
// transaction without advancing got_block.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrConflictingID
	ErrUnknownField
	ErrUnknownTable
	ErrQueryExecution
	ErrDeploymentNotFound
	ErrUnknownShard
	ErrDatabaseUnavailable
	ErrConstraintViolation
	ErrCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConflictingID:
		return "ConflictingId"
	case ErrUnknownField:
		return "UnknownField"
	case ErrUnknownTable:
		return "UnknownTable"
	case ErrQueryExecution:
		return "QueryExecutionError"
	case ErrDeploymentNotFound:
		return "DeploymentNotFound"
	case ErrUnknownShard:
		return "UnknownShard"
	case ErrDatabaseUnavailable:
		return "DatabaseUnavailable"
	case ErrConstraintViolation:
		return "ConstraintViolation"
	case ErrCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// StoreError is a typed, wrapped error crossing the relational store's
// boundary; callers switch on Kind rather than string-matching Error().
type StoreError struct {
	Kind  ErrorKind
	cause error
}

// NewStoreError wraps cause with kind using pkg/errors so the original stack
// trace survives.
func NewStoreError(kind ErrorKind, cause error) *StoreError {
	return &StoreError{Kind: kind, cause: errors.WithStack(cause)}
}

func (e *StoreError) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *StoreError) Unwrap() error { return e.cause }

// IsFatal reports whether the runtime must treat this error as a bug rather
// than a transient condition to retry.
func (e *StoreError) IsFatal() bool {
	return e.Kind == ErrConstraintViolation
}

// IsRetryable reports whether Flush's bounded retry should retry the
// operation that produced this error.
func (e *StoreError) IsRetryable() bool {
	return e.Kind == ErrDatabaseUnavailable
}

// IsFatal reports whether err wraps a StoreError the runtime must treat as a
// host bug: the runtime exits instead of retrying the block.
func IsFatal(err error) bool {
	var se *StoreError
	return stderrors.As(err, &se) && se.IsFatal()
}

// IsRetryable reports whether err wraps a StoreError worth retrying with a
// fresh connection, the predicate Flush's bounded retry uses.
func IsRetryable(err error) bool {
	var se *StoreError
	return stderrors.As(err, &se) && se.IsRetryable()
}

// classifyExecError maps a failed statement execution onto a StoreError
// kind: integrity-constraint violations (SQLSTATE class 23) mean the host
// generated an impossible write and are fatal; everything else aborts the
// current block's transaction as a plain query error.
func classifyExecError(err error) *StoreError {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return NewStoreError(ErrConstraintViolation, err)
	}
	return NewStoreError(ErrQueryExecution, err)
}
