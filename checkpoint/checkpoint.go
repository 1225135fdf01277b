// Package checkpoint decorates errors with the location they passed through,
// building something similar to a stacktrace while the driver unwinds from the
// block device up to the filesystem surface.
// Every error added to a checkpoint can be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error by a new checkpoint which only adds the caller location.
// It returns nil, if err == nil.
func From(err error) error {
	if err == nil || passThrough(err) {
		return err
	}

	return newCheckpoint(err, nil)
}

// Wrap adds a checkpoint to the cause and describes it by another error, most
// of the time one of the package level sentinels of the driver:
//  func (v *VFat) FatEntry(cluster Cluster) (FatEntry, error) {
//  	data, err := v.device.Get(sector)
//  	if err != nil {
//  		return 0, checkpoint.Wrap(err, ErrReadFAT)
//  	}
//  	...
//  }
// Both errors.Is(err, ErrReadFAT) and errors.Is(err, <cause>) are true afterwards.
//
// It may also be used the other way round to attach details to a sentinel:
//  checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("cluster %d points to %d", c, next))
//
// Returns nil if cause == nil.
func Wrap(cause, err error) error {
	if cause == nil || passThrough(cause) {
		return cause
	}

	return newCheckpoint(cause, err)
}

// Wrapf is Wrap with a formatted description.
func Wrapf(cause error, format string, args ...interface{}) error {
	if cause == nil || passThrough(cause) {
		return cause
	}

	return newCheckpoint(cause, fmt.Errorf(format, args...))
}

// passThrough reports errors which must be returned unchanged, because callers
// compare them with == (https://github.com/golang/go/issues/39155).
func passThrough(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

func newCheckpoint(cause, err error) *checkpoint {
	// Skip newCheckpoint and the exported function.
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:   err,
		cause: cause,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	// err describes the checkpoint. It is nil for checkpoints created by From.
	err   error
	cause error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	causeString := e.cause.Error()
	if _, ok := e.cause.(*checkpoint); !ok {
		causeString = "File: unknown\n\t" + strings.ReplaceAll(causeString, "\n", "\n\t")
	}

	if e.err == nil {
		return fmt.Sprintf("File: %s\n%v", e.location(), causeString)
	}
	return fmt.Sprintf("File: %s\n\t%v\n%v", e.location(), e.err, causeString)
}

func (e *checkpoint) Unwrap() error {
	return e.cause
}

func (e *checkpoint) Is(target error) bool {
	if e.err == nil {
		return false
	}
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	if e.err == nil {
		return false
	}
	return errors.As(e.err, target)
}
