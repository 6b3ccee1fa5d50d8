package assessment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	errNoFile = errors.New("No file uploaded")
	errNotCSV = errors.New("Only CSV files allowed")

	// ErrAsyncDisabled is returned by UploadAsync when no upload event
	// publisher is configured.
	ErrAsyncDisabled = errors.New("asynchronous processing not configured")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a failure of the blob store or metadata repository.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidateUpload rejects a missing file or a name without a .csv extension
// before anything is stored or parsed.
func ValidateUpload(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{reason: errNoFile}
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return ValidationError{reason: errNotCSV}
	}
	return nil
}
