package gofat32

import (
	"sync"
)

// Handle shares a VFat between several holders. Lock runs fn with exclusive
// access to the volume and returns its error. No two functions passed to Lock
// of the same Handle ever run at the same time.
//
// Results are passed out of fn by capturing variables:
//  var entry FatEntry
//  err := h.Lock(func(v *VFat) (err error) {
//  	entry, err = v.FatEntry(2)
//  	return err
//  })
type Handle interface {
	Lock(fn func(v *VFat) error) error
}

// MutexHandle guards a VFat by a mutex.
type MutexHandle struct {
	mu   sync.Mutex
	vfat *VFat
}

// NewMutexHandle wraps v. v must not be used directly afterwards.
func NewMutexHandle(v *VFat) *MutexHandle {
	return &MutexHandle{vfat: v}
}

// Lock runs fn while holding the mutex.
func (h *MutexHandle) Lock(fn func(v *VFat) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(h.vfat)
}

type request struct {
	fn   func(v *VFat) error
	done chan error
}

// TaskHandle gives a single goroutine ownership of a VFat. Lock sends the
// function to that goroutine and waits until it ran.
// Close stops the goroutine; Lock returns ErrClosed afterwards.
type TaskHandle struct {
	requests chan request
	quit     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewTaskHandle starts the owner goroutine for v. v must not be used directly afterwards.
func NewTaskHandle(v *VFat) *TaskHandle {
	h := &TaskHandle{
		requests: make(chan request),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go h.run(v)
	return h
}

func (h *TaskHandle) run(v *VFat) {
	defer close(h.stopped)
	for {
		select {
		case req := <-h.requests:
			req.done <- req.fn(v)
		case <-h.quit:
			return
		}
	}
}

// Lock runs fn on the owner goroutine. It returns ErrClosed after Close.
func (h *TaskHandle) Lock(fn func(v *VFat) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case h.requests <- req:
	case <-h.quit:
		return ErrClosed
	}
	return <-req.done
}

// Close stops the owner goroutine after the running function returned.
// It is safe to call Close more than once.
func (h *TaskHandle) Close() error {
	h.once.Do(func() {
		close(h.quit)
	})
	<-h.stopped
	return nil
}
