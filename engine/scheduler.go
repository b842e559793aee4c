package engine

import (
	"sync"
	"time"
)

// Scheduler runs tasks one at a time on a single logical thread.
type Scheduler interface {
	// Post queues task to run after the current task returns.
	Post(task func())
	// After queues task once d has elapsed. The returned func cancels it and
	// reports whether it was still pending.
	After(d time.Duration, task func()) (cancel func() bool)
}

// Loop is a cooperative event loop: an unbounded FIFO of tasks drained by the
// goroutine calling Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start() *Loop {
	go l.Run()
	return l
}

// Run executes queued tasks until Stop is called and the queue is empty.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			stopped := l.stopped
			l.mu.Unlock()
			if stopped {
				return
			}
			<-l.wake
			continue
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) After(d time.Duration, task func()) func() bool {
	t := time.AfterFunc(d, func() { l.Post(task) })
	return t.Stop
}

// Do runs task on the loop and waits for it to finish. It returns false if
// the loop is already stopped.
func (l *Loop) Do(task func()) bool {
	finished := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, func() {
		defer close(finished)
		task()
	})
	l.mu.Unlock()
	l.signal()
	<-finished
	return true
}

// Stop refuses new tasks. Tasks already queued still run.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.signal()
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
