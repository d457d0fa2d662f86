// Package router implements a network: the name table of connected
// participants and the dispatch of listen, send and unlisten requests through
// the address registry.
package router

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"

	"github.com/rmacdonaldsmith/meshbus-go/internal/addressing"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

var (
	// ErrInvalidName is returned for empty or reserved names
	ErrInvalidName = errors.New("name must be non-empty and must not be the wildcard")
	// ErrNameTaken is returned when a name is already bound to a participant
	ErrNameTaken = errors.New("name is already connected")
	// ErrNotConnected is returned when a name is not bound to a participant
	ErrNotConnected = errors.New("name is not connected")
	// ErrMissingField is returned when a required request field is absent
	ErrMissingField = errors.New("missing required field")
	// ErrClosed is returned once the router has been closed
	ErrClosed = errors.New("router is closed")

	// ErrGateToGate is returned for sends going through a gate on both ends
	ErrGateToGate = addressing.ErrGateToGate
	// ErrRemovalDependency is returned for unlisten filters given without
	// the filters they depend on
	ErrRemovalDependency = addressing.ErrRemovalDependency
)

// Stats is a point in time summary of a router.
type Stats struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Nodes         int    `json:"nodes"`
	Gates         int    `json:"gates"`
	Registrations int    `json:"registrations"`
}

type binding struct {
	participant network.Participant
	gate        network.Gate
	cancels     []func()
}

// Router owns the participants connected to one network.
type Router struct {
	id     uuid.UUID
	cfg    Config
	logger *slog.Logger
	msink  metrics.MetricSink
	exec   network.Executor
	owned  io.Closer

	mu       sync.Mutex
	registry *addressing.Registry
	bindings map[string]*binding
	closed   bool
}

// New creates a router with the given configuration.
func New(cfg Config) (*Router, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Router{
		id:       uuid.New(),
		cfg:      cfg,
		logger:   cfg.Logger.With(telemetry.LabelRouter.L(cfg.Name)),
		msink:    cfg.MetricSink,
		exec:     cfg.Executor,
		registry: addressing.NewRegistry(),
		bindings: make(map[string]*binding),
	}

	if r.exec == nil {
		queue := NewQueue(r.logger)
		r.exec, r.owned = queue, queue
	}
	return r, nil
}

// ID returns the router instance id.
func (r *Router) ID() uuid.UUID {
	return r.id
}

// Name returns the configured router name.
func (r *Router) Name() string {
	return r.cfg.Name
}

// Executor returns the executor running the router tasks.
func (r *Router) Executor() network.Executor {
	return r.exec
}

// Connect binds name to p and starts relaying its signals. Gates are
// recognized here, once, by their capability.
func (r *Router) Connect(name string, p network.Participant) error {
	if err := validName(name); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: participant", ErrMissingField)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, taken := r.bindings[name]; taken {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	b := &binding{participant: p}
	if gate, ok := p.(network.Gate); ok {
		b.gate = gate
		r.registry.AddGate(name)
	}

	b.cancels = []func(){
		p.OnListen(func(req network.ListenRequest) error {
			return r.Listen(name, req.To, req.Topics, req.Handler)
		}),
		p.OnSend(func(req network.SendRequest) error {
			from := network.Local(name)
			if b.gate != nil {
				if req.From == "" {
					return fmt.Errorf("%w: gate sender", ErrMissingField)
				}
				from = network.Address{Gate: name, Node: req.From}
			}
			return r.Send(from, req.To, req.Topic, req.Data, req.Options...)
		}),
		p.OnUnlisten(func(req network.ListenRequest) error {
			return r.Unlisten(name, req.To, req.Topics, req.Handler)
		}),
	}
	r.bindings[name] = b

	r.msink.SetGaugeWithLabels(telemetry.MetricRouterConnectedNodes, float32(len(r.bindings)), r.labels())
	r.logger.Debug("participant connected", telemetry.LabelNode.L(name), telemetry.LabelGate.L(b.gate != nil))
	return nil
}

// Disconnect unbinds name, removing the listener registrations it made.
func (r *Router) Disconnect(name string) error {
	r.mu.Lock()
	b, ok := r.bindings[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	// Without filters removal cannot violate the dependency chain.
	_ = r.registry.Remove(name, nil, nil, nil)
	if b.gate != nil {
		r.registry.RemoveGate(name)
	}
	delete(r.bindings, name)
	count := len(r.bindings)
	r.mu.Unlock()

	for _, cancel := range b.cancels {
		cancel()
	}

	r.msink.SetGaugeWithLabels(telemetry.MetricRouterConnectedNodes, float32(count), r.labels())
	r.logger.Debug("participant disconnected", telemetry.LabelNode.L(name))
	return nil
}

// Reconnect binds name to p, disconnecting the previous participant if any.
func (r *Router) Reconnect(name string, p network.Participant) error {
	if err := r.Disconnect(name); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return r.Connect(name, p)
}

// Node returns the participant bound to name.
func (r *Router) Node(name string) (network.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[name]
	if !ok {
		return nil, false
	}
	return b.participant, true
}

// Names returns every name p is connected under, sorted.
func (r *Router) Names(p network.Participant) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, b := range r.bindings {
		if b.participant == p {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsGate reports whether name is bound to a gate.
func (r *Router) IsGate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[name]
	return ok && b.gate != nil
}

// Connected returns every connected name, sorted.
func (r *Router) Connected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a summary of the router state.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		ID:            r.id.String(),
		Name:          r.cfg.Name,
		Nodes:         len(r.bindings),
		Gates:         len(r.registry.Gates()),
		Registrations: r.registry.Len(),
	}
}

// Listen registers h for the listener as, on every topic, for messages sent
// by the sources in from.
func (r *Router) Listen(as string, from network.Selector, topics []string, h network.Handler) error {
	if err := validName(as); err != nil {
		return err
	}
	if err := validSelector("to", from); err != nil {
		return err
	}
	if err := validTopics(topics); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: handler", ErrMissingField)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.registry.Add(as, from, topics, h)
	return nil
}

// Unlisten removes registrations of the listener as. A nil h removes every
// handler registered on the topics.
func (r *Router) Unlisten(as string, from network.Selector, topics []string, h network.Handler) error {
	if err := validName(as); err != nil {
		return err
	}
	if err := validSelector("to", from); err != nil {
		return err
	}
	if err := validTopics(topics); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	return r.registry.Remove(as, from, topics, h)
}

// Send dispatches data on topic from the sender as to the listeners in to.
// Every destination group is delivered as one executor task; Send always
// returns before any handler runs.
func (r *Router) Send(as network.Address, to network.Selector, topic string, data any, opts ...network.CallOption) error {
	if as.Node == "" || as.Node == network.Wildcard || as.Gate == network.Wildcard {
		return fmt.Errorf("%w: sender %q", ErrInvalidName, as)
	}
	if err := validSelector("to", to); err != nil {
		return err
	}
	if topic == "" {
		return fmt.Errorf("%w: topic", ErrMissingField)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	groups, err := r.registry.Resolve(as, to, topic)
	r.mu.Unlock()

	if err != nil {
		r.msink.IncrCounterWithLabels(telemetry.MetricRouterSendErrorCount, 1, r.labels())
		return err
	}
	r.msink.IncrCounterWithLabels(telemetry.MetricRouterSendCount, 1, r.labels())

	merged := r.callOptions(opts)
	if len(groups) == 0 {
		// A wildcard matching nobody: the unaddressed call only exists so
		// that its timeout, if any, still refuses the caller.
		network.NewCall(r.exec, network.Envelope{From: as, Topic: topic, Data: data}, merged)
		return nil
	}
	for _, group := range groups {
		call := network.NewCall(r.exec, network.Envelope{
			From:  as,
			To:    group.Address(),
			Topic: topic,
			Data:  data,
		}, merged)

		r.exec.Schedule(func() {
			r.deliver(group, call)
		})
	}
	return nil
}

// Close disconnects every participant and stops the executor the router
// owns.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		_ = r.Disconnect(name)
	}

	if r.owned != nil {
		return r.owned.Close()
	}
	return nil
}

// callOptions folds the send options into one, applying the default timeout
// and counting refusals observed by the caller.
func (r *Router) callOptions(opts []network.CallOption) network.CallOption {
	var merged network.CallOptions
	merged.Timeout = r.cfg.DefaultTimeout
	for _, opt := range opts {
		opt(&merged)
	}

	if onError := merged.Error; onError != nil {
		merged.Error = func(err *failure.Error) {
			r.msink.IncrCounterWithLabels(
				telemetry.MetricRouterRefusalCount,
				1,
				r.labels(telemetry.LabelKind.M(err.Kind.String())),
			)
			onError(err)
		}
	}

	return func(o *network.CallOptions) {
		*o = merged
	}
}

func (r *Router) deliver(group addressing.Group, call *network.Call) {
	name := group.Node
	if group.Gate != "" {
		name = group.Gate
	}

	r.mu.Lock()
	b, ok := r.bindings[name]
	r.mu.Unlock()

	if !ok || (group.Gate != "" && b.gate == nil) {
		r.msink.IncrCounterWithLabels(telemetry.MetricRouterUnreachableCount, 1, r.labels())
		r.logger.Debug(
			"peer unreachable",
			telemetry.LabelFrom.L(call.From.String()),
			telemetry.LabelTo.L(call.To.String()),
			telemetry.LabelTopic.L(call.Topic),
		)
		call.Refuse(failure.Disconnected("peer unreachable"))
		return
	}

	call.Participant = b.participant
	if group.Gate != "" {
		r.msink.IncrCounterWithLabels(telemetry.MetricRouterDeliveryCount, 1, r.labels(telemetry.LabelGate.M(group.Gate)))
		b.gate.Transfer(call)
		return
	}

	for _, h := range group.Handlers {
		r.msink.IncrCounterWithLabels(telemetry.MetricRouterDeliveryCount, 1, r.labels(telemetry.LabelNode.M(group.Node)))
		r.serve(h, call)
	}
}

func (r *Router) serve(h network.Handler, call *network.Call) {
	defer func() {
		if rec := recover(); rec != nil {
			r.msink.IncrCounterWithLabels(telemetry.MetricRouterPanicCount, 1, r.labels())
			r.logger.Error(
				"handler panicked",
				telemetry.LabelError.L(rec),
				telemetry.LabelNode.L(call.To.Node),
				telemetry.LabelTopic.L(call.Topic),
			)
			call.Refuse(failure.New(fmt.Sprintf("handler panicked: %v", rec), nil))
		}
	}()
	h.Serve(call)
}

func (r *Router) labels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(r.cfg.MetricLabels)+1+len(extra))
	labels = append(labels, r.cfg.MetricLabels...)
	labels = append(labels, telemetry.LabelRouter.M(r.cfg.Name))
	return append(labels, extra...)
}

func validName(name string) error {
	if name == "" || name == network.Wildcard {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validSelector(field string, sel network.Selector) error {
	if len(sel) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	for _, addr := range sel {
		if addr.Node == "" {
			return fmt.Errorf("%w: %s node", ErrMissingField, field)
		}
	}
	return nil
}

func validTopics(topics []string) error {
	if len(topics) == 0 {
		return fmt.Errorf("%w: topic", ErrMissingField)
	}
	for _, topic := range topics {
		if topic == "" {
			return fmt.Errorf("%w: topic", ErrMissingField)
		}
	}
	return nil
}
