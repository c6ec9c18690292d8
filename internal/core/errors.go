package core

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound     = errors.New("invoice data not found")
	ErrEmptyInvoiceData = fmt.Errorf("empty invoice data: %w", ErrDataNotFound)
	ErrTemplateNotFound = errors.New("template not found")
	ErrEncoding         = errors.New("payload cannot be encoded")
	ErrIO               = errors.New("spool write failed")
	ErrUnknownOutput    = errors.New("unknown output kind")
)

type ErrorKind string

const (
	KindDataNotFound ErrorKind = "data_not_found"
	KindTemplate     ErrorKind = "template"
	KindEncoding     ErrorKind = "encoding"
	KindIO           ErrorKind = "io"
	KindPanic        ErrorKind = "panic"
	KindUnknown      ErrorKind = "unknown"
)

// PanicError carries a value recovered from a panicking processor.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.Value)
}

func Classify(err error) ErrorKind {
	var pe *PanicError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataNotFound):
		return KindDataNotFound
	case errors.Is(err, ErrTemplateNotFound):
		return KindTemplate
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.As(err, &pe):
		return KindPanic
	}
	return KindUnknown
}

// IsRetryable reports whether a failed job may be attempted again.
// Only missing invoice data is final; everything else is assumed transient.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrDataNotFound)
}
