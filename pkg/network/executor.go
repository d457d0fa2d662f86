package network

import "time"

// Executor runs bus tasks. Handlers, reply and refuse callbacks and call
// timeouts are always scheduled on an Executor, never run inside the call
// that triggered them.
type Executor interface {
	// Schedule queues task for execution.
	Schedule(task func())

	// After queues task once d has elapsed.
	After(d time.Duration, task func()) Timer
}

// Timer is a pending delayed task.
type Timer interface {
	// Stop prevents the task from being queued. It reports whether the
	// call stopped the timer.
	Stop() bool
}
