package cli

import (
	"errors"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/merge"
	"github.com/lherron/msgmerge/internal/verify"
)

// Exit codes
const (
	exitFailure      = 1
	exitUsage        = 2
	exitInconsistent = 3
	exitMergeFailed  = 4
	exitPartial      = 5
)

// ExitCodeError carries the process exit code of a failed command.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }

func (e *ExitCodeError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExitCodeError
	if errors.As(err, &existing) {
		return err
	}
	return &ExitCodeError{Code: code, Err: err}
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *ExitCodeError
	if errors.As(err, &e) {
		return e.Code
	}
	return exitFailure
}

// classify maps the typed errors of a merge or check onto exit codes.
func classify(err error) error {
	var (
		cfgErr      *merge.ConfigurationError
		missingErr  *db.MissingTableError
		mismatchErr *merge.SchemaMismatchError
		batchErr    *merge.BatchInsertError
		consErr     *verify.ConsistencyError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cfgErr):
		return exitError(exitUsage, err)
	case errors.As(err, &consErr):
		return exitError(exitInconsistent, err)
	case errors.As(err, &missingErr), errors.As(err, &mismatchErr), errors.As(err, &batchErr):
		return exitError(exitMergeFailed, err)
	default:
		return exitError(exitFailure, err)
	}
}
