package pansim

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the fatal error categories recognized by the
// simulator's validation and transport layers.
type ErrorKind string

// The four error kinds the simulator distinguishes. All of them are
// fatal: there is no per-tick retry anywhere in the pipeline.
const (
	InvalidModel   ErrorKind = "InvalidModel"
	InvalidInput   ErrorKind = "InvalidInput"
	TransportError ErrorKind = "TransportError"
	ConfigError    ErrorKind = "ConfigError"
)

// KindError wraps an error with the category that should drive how a
// caller reports it (exit code, log level, whether the rank should abort).
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// Wrap annotates err with a message and tags it with kind, preserving
// the original error in the chain so callers can still errors.Is/As it.
func Wrap(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind ErrorKind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// Newf creates a new KindError with a formatted message.
func Newf(kind ErrorKind, format string, args ...interface{}) error {
	return &KindError{Kind: kind, Err: errors.Errorf(format, args...)}
}

// IsKind reports whether err (or any error in its chain) is a KindError
// of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// Message templates shared across the validation and loading paths,
// following the format-string-constant convention used throughout this
// codebase's configuration loaders.
const (
	DistributionSumError       = "distribution %q does not sum to 1 (got %f, tolerance %f)"
	UnknownDistributionError   = "distribution %q uses unknown family %q, only categorical and fixed are supported"
	UnknownNameReferenceError  = "%s references unknown name %q"
	TransmissionProbRangeError = "derived transmission_prob[%d,%d,%d,%d,%d,%d] = %f is outside [0,1]"
	MalformedVisitError        = "visit (lid=%d, pid=%d) has start_time %d > end_time %d"
	MissingPartitionEntryError = "%s %d is not present in the partition table"
	MissingEnvVarError         = "required configuration value %q is not set"
	SchemaMismatchError        = "record batch schema %q does not match expected %q"
)
