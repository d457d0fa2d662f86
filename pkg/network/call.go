package network

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
)

// CallOptions are the caller side hooks of a call.
type CallOptions struct {
	// Success receives the reply. The reply is itself a Call, so the
	// receiver may answer it to continue the exchange.
	Success func(reply *Call)

	// Error receives refusals, including unreachable peers and timeouts.
	Error func(err *failure.Error)

	// Timeout refuses the call with a Timeout failure when positive and the
	// call is still unresolved once it elapses.
	Timeout time.Duration
}

// CallOption configures a call.
type CallOption func(*CallOptions)

// WithSuccess sets the reply callback.
func WithSuccess(fn func(reply *Call)) CallOption {
	return func(o *CallOptions) {
		o.Success = fn
	}
}

// WithError sets the refusal callback.
func WithError(fn func(err *failure.Error)) CallOption {
	return func(o *CallOptions) {
		o.Error = fn
	}
}

// WithTimeout sets the call deadline. Zero or negative disables it.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		o.Timeout = d
	}
}

// Envelope is the routing information of a call.
type Envelope struct {
	From  Address
	To    Address
	Topic string
	Data  any

	// Participant is the participant the call is delivered to. Reply legs
	// carry none.
	Participant Participant
}

// Call is the one-shot reply/refuse capability handed to a handler.
type Call struct {
	Envelope

	exec     Executor
	opts     CallOptions
	resolved atomic.Bool

	mu    sync.Mutex
	timer Timer
}

// NewCall creates a call and starts its timeout, if any.
func NewCall(exec Executor, env Envelope, opts ...CallOption) *Call {
	c := &Call{Envelope: env, exec: exec}
	for _, opt := range opts {
		opt(&c.opts)
	}

	if c.opts.Timeout > 0 {
		c.mu.Lock()
		c.timer = exec.After(c.opts.Timeout, func() {
			c.Refuse(failure.Timeout("call timed out"))
		})
		c.mu.Unlock()
	}
	return c
}

// HasSuccess reports whether the caller registered a reply callback.
func (c *Call) HasSuccess() bool {
	return c.opts.Success != nil
}

// HasError reports whether the caller registered a refusal callback.
func (c *Call) HasError() bool {
	return c.opts.Error != nil
}

// ExpectsAnswer reports whether anyone observes the outcome of the call.
func (c *Call) ExpectsAnswer() bool {
	return c.HasSuccess() || c.HasError()
}

// Timeout returns the call deadline, zero when there is none.
func (c *Call) Timeout() time.Duration {
	return c.opts.Timeout
}

// Resolved reports whether the call was replied to, refused or timed out.
func (c *Call) Resolved() bool {
	return c.resolved.Load()
}

// Reply resolves the call with data. The options configure the reply leg:
// the caller's success callback receives a new Call addressed back to this
// call's receiver. Reply reports whether it had effect.
func (c *Call) Reply(data any, opts ...CallOption) bool {
	if !c.settle() {
		return false
	}

	next := NewCall(c.exec, Envelope{
		From:  c.To,
		To:    c.From,
		Topic: c.Topic,
		Data:  data,
	}, opts...)

	if success := c.opts.Success; success != nil {
		c.exec.Schedule(func() {
			success(next)
		})
	}
	return true
}

// Refuse resolves the call with a failure. Reasons that are not already a
// *failure.Error are wrapped into a generic one. Refuse reports whether it
// had effect.
func (c *Call) Refuse(reason any) bool {
	if !c.settle() {
		return false
	}

	err := failure.From(reason)
	if onError := c.opts.Error; onError != nil {
		c.exec.Schedule(func() {
			onError(err)
		})
	}
	return true
}

func (c *Call) settle() bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}

	c.mu.Lock()
	timer := c.timer
	c.timer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return true
}
