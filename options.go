package gofat32

import (
	"github.com/sirupsen/logrus"
)

type options struct {
	log        logrus.FieldLogger
	skipChecks bool
	taskHandle bool
}

// Option configures mounting and the sector cache.
type Option func(o *options)

// WithLogger sets the logger used by the driver.
// By default the logrus standard logger is used.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// SkipChecks skips the geometry validation of the EBPB while mounting, which may
// allow you to open not perfectly standard FAT32 filesystems.
// Signatures are still checked.
// Use with caution!
func SkipChecks() Option {
	return func(o *options) {
		o.skipChecks = true
	}
}

// WithTaskHandle makes Mount serialize volume access through a single owner
// goroutine instead of a mutex.
func WithTaskHandle() Option {
	return func(o *options) {
		o.taskHandle = true
	}
}

func newOptions(opts []Option) options {
	o := options{
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
