package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations. Match them with errors.Is.
var (
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict is returned when concurrent writers touch the
	// same records. Dispatcher workers mirror cost records in parallel, so
	// writes of the cost table hit this under load.
	ErrTransactionConflict = errors.New("transaction conflict")

	ErrNotFound = errors.New("record not found")
)

// queryErrorPatterns maps SurrealDB query error text to sentinels.
var queryErrorPatterns = []struct {
	substr   string
	sentinel error
}{
	{"already exists", ErrAlreadyExists},
	{"Transaction conflict", ErrTransactionConflict},
}

// wrapQueryError tags known SurrealDB query errors with a sentinel.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	var qe *surrealdb.QueryError
	if err == nil || !errors.As(err, &qe) {
		return err
	}
	for _, p := range queryErrorPatterns {
		if strings.Contains(qe.Message, p.substr) {
			return fmt.Errorf("%w: %s", p.sentinel, qe.Message)
		}
	}
	return err
}

// conflictAttempts bounds retries of a write that lost a transaction conflict.
const conflictAttempts = 3

// retryOnConflict runs write until it succeeds, fails with another error,
// or conflictAttempts is reached.
func retryOnConflict(ctx context.Context, write func() error) error {
	var err error
	for range conflictAttempts {
		if err = write(); !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
