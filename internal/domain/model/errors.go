package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by the upload and delivery paths.
var (
	// ErrValidation marks bad upload shape, size, count or session id. Raised before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a blob store put/get failure.
	ErrStorage = errors.New("storage failed")
	// ErrPublish marks a job publish failure after a successful store.
	ErrPublish = errors.New("publish failed")
)

// FailureKind names the class of a per-file failure in upload reports.
type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindStorage    FailureKind = "storage"
	KindPublish    FailureKind = "publish"
)

// Sentinel returns the sentinel error matching the kind.
func (k FailureKind) Sentinel() error {
	switch k {
	case KindStorage:
		return ErrStorage
	case KindPublish:
		return ErrPublish
	default:
		return ErrValidation
	}
}

// FileError describes why one file of a multi-file upload failed.
type FileError struct {
	Index int
	Name  string
	Key   string
	Kind  FailureKind
	Err   error
}

// NewFileError builds a FileError. err may be nil, in which case the kind's sentinel is used.
func NewFileError(index int, name string, kind FailureKind, err error) *FileError {
	if err == nil {
		err = kind.Sentinel()
	}
	return &FileError{Index: index, Name: name, Kind: kind, Err: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %d (%s): %s: %v", e.Index, e.Name, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *FileError) Unwrap() []error {
	return []error{e.Kind.Sentinel(), e.Err}
}

// Validationf returns an ErrValidation wrapping a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
