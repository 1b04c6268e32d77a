package cloudvm_db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrNoDocument is matched by errors.Is for every not-found QueryBuilderError.
	ErrNoDocument = errors.New("no document found")

	// ErrUnfilteredWrite is returned for an update or delete without any condition.
	// Call Force on the query to allow it.
	ErrUnfilteredWrite = errors.New("refusing to update or delete a whole collection without a filter")
)

// QueryBuilderError reports a failed store operation against one collection. A nil
// underlying error means nothing matched.
type QueryBuilderError struct {
	collection   string
	genericError error
}

// Error renders a readable message using the collection name, e.g. "Vm not found" for a
// lookup in "vms".
func (e QueryBuilderError) Error() string {
	friendlyName := strings.ReplaceAll(e.collection, " ", "_")
	friendlyName = cases.Title(language.English).String(friendlyName)
	if e.genericError != nil {
		return friendlyName + ": " + e.genericError.Error()
	}
	if strings.HasSuffix(friendlyName, "ies") {
		friendlyName = friendlyName[:len(friendlyName)-3] + "y"
	}
	friendlyName = strings.TrimSuffix(friendlyName, "s")
	return friendlyName + " not found"
}

func (e *QueryBuilderError) Unwrap() error {
	if e.genericError == nil {
		return ErrNoDocument
	}
	return e.genericError
}

// NotFound reports whether the error means that nothing matched.
func (e *QueryBuilderError) NotFound() bool {
	return e.genericError == nil
}

// Violates reports whether the underlying Postgres error carries the given SQLSTATE.
func (e *QueryBuilderError) Violates(code PostgresErrorCode) bool {
	var pgError *pgconn.PgError
	if errors.As(e.genericError, &pgError) {
		return pgError.Code == string(code)
	}
	return false
}

func PostgresError(collection string, err error) *QueryBuilderError {
	return &QueryBuilderError{
		collection:   collection,
		genericError: err,
	}
}

func NotFoundError(collection string) *QueryBuilderError {
	return &QueryBuilderError{
		collection:   collection,
		genericError: nil,
	}
}

// IsViolation reports whether err is a QueryBuilderError violating code.
func IsViolation(err error, code PostgresErrorCode) bool {
	var qbErr *QueryBuilderError
	if errors.As(err, &qbErr) {
		return qbErr.Violates(code)
	}
	return false
}

type PostgresErrorCode string

const (
	PostgresErrorCodeUniqueViolation     PostgresErrorCode = "23505"
	PostgresErrorCodeNotNullViolation    PostgresErrorCode = "23502"
	PostgresErrorCodeForeignKeyViolation PostgresErrorCode = "23503"
	PostgresErrorCodeCheckViolation      PostgresErrorCode = "23514"
)
