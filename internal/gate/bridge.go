// Package gate implements gates: participants forwarding calls into another
// network and correlating the answers that come back.
package gate

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"

	"github.com/rmacdonaldsmith/meshbus-go/internal/correlation"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	wire "github.com/rmacdonaldsmith/meshbus-go/pkg/gate"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

var (
	// ErrNoTransport is raised when a bridge transfers without a transport
	ErrNoTransport = errors.New("gate bridge has no transport bound")
	// ErrNotLinked is returned when a memory gate has no peer
	ErrNotLinked = errors.New("memory gate is not linked")
	// ErrAlreadyLinked is returned when linking a gate linked elsewhere
	ErrAlreadyLinked = errors.New("memory gate is already linked to another gate")
	// ErrSelfLink is returned when linking a gate to itself
	ErrSelfLink = errors.New("memory gate cannot be linked to itself")
	// ErrClosed is returned once a gate has been closed
	ErrClosed = errors.New("gate is closed")
	// ErrMissingName is returned when a remote gate does not name itself
	ErrMissingName = errors.New("gate name is required")
)

// Network is the part of a router a gate server needs to attach the gates it
// accepts.
type Network interface {
	Connect(name string, p network.Participant) error
	Disconnect(name string) error
}

// payload is what a bridge forwards for one call leg.
type payload struct {
	Node      string
	Topic     string
	Data      any
	Sender    network.Address
	InReplyTo uint64
}

// Bridge is a gate whose far side is reached through a wire.Transport.
type Bridge struct {
	network.Signals

	id     uuid.UUID
	cfg    Config
	logger *slog.Logger
	msink  metrics.MetricSink

	mu        sync.Mutex
	transport wire.Transport
	pending   *correlation.Registry[*network.Call]
	closed    bool
}

// NewBridge creates a bridge sending through transport, which may be bound
// later with Bind.
func NewBridge(cfg Config, transport wire.Transport) *Bridge {
	cfg.SetDefaults()
	return &Bridge{
		id:        uuid.New(),
		cfg:       cfg,
		logger:    cfg.Logger.With(telemetry.LabelGate.L(cfg.Name)),
		msink:     cfg.MetricSink,
		transport: transport,
		pending:   correlation.New[*network.Call](cfg.MaxPending),
	}
}

// ID returns the bridge instance id.
func (b *Bridge) ID() uuid.UUID {
	return b.id
}

// Name returns the configured gate name.
func (b *Bridge) Name() string {
	return b.cfg.Name
}

// Bind sets the transport.
func (b *Bridge) Bind(transport wire.Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport = transport
}

// Pending returns the number of calls waiting for an answer.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

// Transfer forwards a call addressed through the gate to the far side.
func (b *Bridge) Transfer(call *network.Call) {
	b.transfer(wire.IntentRequest, &payload{
		Node:   call.To.Node,
		Topic:  call.Topic,
		Data:   call.Data,
		Sender: call.From,
	}, call)
}

// Close refuses every pending call as unreachable. Calls transferred after
// Close are refused too.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	stale := b.pending.Drain()
	b.mu.Unlock()

	for _, call := range stale {
		call.Refuse(failure.Disconnected("peer unreachable"))
	}
	b.logger.Debug("gate closed", telemetry.LabelPending.L(len(stale)))
	return nil
}

// transfer sends one leg. When call observes its outcome, it is kept as a
// pending call until the far side answers it or it gets evicted. Requests
// need a destination node; a nil Data is a valid body.
func (b *Bridge) transfer(intent wire.Intent, p *payload, call *network.Call) {
	if p == nil || (intent == wire.IntentRequest && p.Node == "") {
		if call != nil {
			call.Refuse(failure.New("gate transfer requires a destination node", nil))
		}
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if call != nil {
			call.Refuse(failure.Disconnected("peer unreachable"))
		}
		return
	}
	transport := b.transport
	if transport == nil {
		b.mu.Unlock()
		panic(ErrNoTransport)
	}

	var (
		id       uint64
		evicted  *network.Call
		didEvict bool
	)
	if call != nil && call.ExpectsAnswer() {
		id, evicted, didEvict = b.pending.Add(call)
	}
	pending := b.pending.Len()
	b.mu.Unlock()

	b.msink.SetGaugeWithLabels(telemetry.MetricGatePendingCalls, float32(pending), b.labels())
	if didEvict {
		b.msink.IncrCounterWithLabels(telemetry.MetricGateEvictionCount, 1, b.labels())
		b.logger.Warn("pending call evicted", telemetry.LabelTo.L(evicted.To.String()))
		evicted.Refuse(failure.Disconnected("peer unreachable"))
	}

	d := wire.Descriptor{
		ID:        id,
		InReplyTo: p.InReplyTo,
		Node:      p.Node,
		Data:      p.Data,
		Sender:    p.Sender,
		Topic:     p.Topic,
		IsRequest: intent == wire.IntentRequest,
		IsReply:   intent == wire.IntentReply,
		IsRefuse:  intent == wire.IntentRefuse,
	}
	if call != nil {
		d.HasSuccessHandler = call.HasSuccess()
		d.HasErrorHandler = call.HasError()
	}

	if err := transport.Transfer(d); err != nil {
		b.msink.IncrCounterWithLabels(telemetry.MetricGateTransferErrorCount, 1, b.labels(telemetry.LabelIntent.M(intent.String())))
		b.logger.Debug("transfer failed", telemetry.LabelIntent.L(intent.String()), telemetry.LabelError.L(err))
		if id != 0 {
			b.mu.Lock()
			b.pending.Remove(id)
			b.mu.Unlock()
		}
		if call != nil {
			call.Refuse(failure.Disconnected("peer unreachable"))
		}
		return
	}
	b.msink.IncrCounterWithLabels(telemetry.MetricGateTransferCount, 1, b.labels(telemetry.LabelIntent.M(intent.String())))
}

// Receive handles a descriptor coming from the far side. Requests become a
// local send; replies and refusals resolve the pending call they name.
func (b *Bridge) Receive(d wire.Descriptor) {
	intent := d.Intent()
	b.msink.IncrCounterWithLabels(telemetry.MetricGateReceiveCount, 1, b.labels(telemetry.LabelIntent.M(intent.String())))

	if intent == wire.IntentRequest {
		b.receiveRequest(d)
		return
	}

	b.mu.Lock()
	call, ok := b.pending.Remove(d.InReplyTo)
	b.mu.Unlock()

	if !ok {
		b.msink.IncrCounterWithLabels(telemetry.MetricGateReceiveMissCount, 1, b.labels())
		b.logger.Debug("no pending call for answer", telemetry.LabelCallID.L(d.InReplyTo), telemetry.LabelIntent.L(intent.String()))
		return
	}

	if intent == wire.IntentRefuse {
		call.Refuse(failure.Decode(d.Data))
		return
	}
	call.Reply(d.Data, b.answerOptions(d)...)
}

func (b *Bridge) receiveRequest(d wire.Descriptor) {
	err := b.RaiseSend(network.SendRequest{
		From:    d.Sender.Node,
		To:      network.Node(d.Node),
		Topic:   d.Topic,
		Data:    d.Data,
		Options: b.answerOptions(d),
	})
	if err == nil {
		return
	}

	b.logger.Debug("request rejected", telemetry.LabelNode.L(d.Node), telemetry.LabelTopic.L(d.Topic), telemetry.LabelError.L(err))
	if d.HasErrorHandler {
		b.transfer(wire.IntentRefuse, &payload{
			Node:      d.Sender.Node,
			Topic:     d.Topic,
			Data:      failure.New(err.Error(), nil).Map(),
			InReplyTo: d.ID,
		}, nil)
	}
}

// answerOptions builds the local callbacks of a leg received from the far
// side. They only exist when the far side observes them and they send the
// outcome back naming the far side's pending call.
func (b *Bridge) answerOptions(d wire.Descriptor) []network.CallOption {
	var opts []network.CallOption
	if d.HasSuccessHandler {
		opts = append(opts, network.WithSuccess(func(reply *network.Call) {
			b.transfer(wire.IntentReply, &payload{
				Node:      d.Sender.Node,
				Topic:     d.Topic,
				Data:      reply.Data,
				Sender:    reply.From,
				InReplyTo: d.ID,
			}, reply)
		}))
	}
	if d.HasErrorHandler {
		opts = append(opts, network.WithError(func(err *failure.Error) {
			b.transfer(wire.IntentRefuse, &payload{
				Node:      d.Sender.Node,
				Topic:     d.Topic,
				Data:      err.Map(),
				InReplyTo: d.ID,
			}, nil)
		}))
	}
	return opts
}

func (b *Bridge) labels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(b.cfg.MetricLabels)+1+len(extra))
	labels = append(labels, b.cfg.MetricLabels...)
	labels = append(labels, telemetry.LabelGate.M(b.cfg.Name))
	return append(labels, extra...)
}
