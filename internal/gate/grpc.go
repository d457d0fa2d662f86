package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	wire "github.com/rmacdonaldsmith/meshbus-go/pkg/gate"
)

const (
	// GRPCServiceName is the gRPC service carrying gate links
	GRPCServiceName = "meshbus.gate.v1.Gate"
	// GRPCLinkMethod is the full method name of the bidirectional link stream
	GRPCLinkMethod = "/" + GRPCServiceName + "/Link"
	// GRPCGateMetadataKey names the dialing gate in the stream metadata
	GRPCGateMetadataKey = "meshbus-gate"
)

// linkService is implemented by GRPCServer for the service registration.
type linkService interface {
	serveLink(stream grpc.ServerStream) error
}

func linkHandler(srv any, stream grpc.ServerStream) error {
	return srv.(linkService).serveLink(stream)
}

// gateServiceDesc describes the gate service. Each message of the Link stream
// is a google.protobuf.Struct holding one descriptor.
var gateServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*linkService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Link",
			Handler:       linkHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "meshbus/gate/v1/gate.proto",
}

// linkStream is the part of a client or server stream a link uses.
type linkStream interface {
	Context() context.Context
	SendMsg(m any) error
	RecvMsg(m any) error
}

// streamTransport sends descriptors on a gRPC stream. Sends are serialized
// since a stream does not support concurrent SendMsg calls.
type streamTransport struct {
	mu     sync.Mutex
	stream linkStream
}

func (t *streamTransport) Transfer(d wire.Descriptor) error {
	msg, err := encodeStruct(d)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream.SendMsg(msg)
}

func encodeStruct(d wire.Descriptor) (*structpb.Struct, error) {
	buf, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return structpb.NewStruct(fields)
}

func decodeStruct(msg *structpb.Struct) (wire.Descriptor, error) {
	var d wire.Descriptor
	buf, err := json.Marshal(msg.AsMap())
	if err != nil {
		return d, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if err := json.Unmarshal(buf, &d); err != nil {
		return d, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	return d, nil
}

// pumpStream feeds every received descriptor to the bridge until the stream
// ends. A clean end of stream returns nil.
func pumpStream(stream linkStream, b *Bridge) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}

		d, err := decodeStruct(msg)
		if err != nil {
			b.logger.Warn("dropping malformed descriptor", telemetry.LabelError.L(err))
			continue
		}
		b.Receive(d)
	}
}

// GRPCServer accepts gate links over gRPC and connects every linked gate to
// a network under the name the dialer gave itself.
type GRPCServer struct {
	sessions *sessions
}

// NewGRPCServer creates a gRPC gate server attaching gates to n. cfg is the
// template of every accepted gate.
func NewGRPCServer(n Network, cfg Config) *GRPCServer {
	return &GRPCServer{sessions: newSessions(n, cfg)}
}

// Register adds the gate service to a gRPC server.
func (s *GRPCServer) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&gateServiceDesc, s)
}

// Gates returns the names of the linked gates, sorted.
func (s *GRPCServer) Gates() []string {
	return s.sessions.names()
}

func (s *GRPCServer) serveLink(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	values := md.Get(GRPCGateMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return status.Errorf(codes.InvalidArgument, "missing %s metadata", GRPCGateMetadataKey)
	}
	name := values[0]

	bridge, closeFn, err := s.sessions.open(name, &streamTransport{stream: stream})
	if err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer closeFn()

	bridge.logger.Info("gate linked over grpc")
	err = pumpStream(stream, bridge)
	bridge.logger.Info("gate link ended", telemetry.LabelError.L(err))
	return err
}

// GRPCGate is the dialing side of a gRPC gate link.
type GRPCGate struct {
	*Bridge

	cancel    context.CancelFunc
	stream    grpc.ClientStream
	transport *streamTransport
	done      chan struct{}
	err       error
}

// DialGRPC opens a link on cc, naming this side name for the remote network.
// The returned gate must be connected to the local network by the caller,
// and lives until Close or until the stream fails.
func DialGRPC(cc grpc.ClientConnInterface, name string, cfg Config) (*GRPCGate, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = metadata.AppendToOutgoingContext(ctx, GRPCGateMetadataKey, name)

	stream, err := cc.NewStream(ctx, &gateServiceDesc.Streams[0], GRPCLinkMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open gate link: %w", err)
	}

	transport := &streamTransport{stream: stream}
	g := &GRPCGate{
		Bridge:    NewBridge(cfg, transport),
		cancel:    cancel,
		stream:    stream,
		transport: transport,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(g.done)
		g.err = pumpStream(stream, g.Bridge)
		_ = g.Bridge.Close()
	}()
	return g, nil
}

// Done is closed once the link has ended.
func (g *GRPCGate) Done() <-chan struct{} {
	return g.done
}

// Err waits for the link to end and returns the error that ended it, nil for
// a clean end.
func (g *GRPCGate) Err() error {
	<-g.done
	return g.err
}

// Close ends the link and refuses the pending calls.
func (g *GRPCGate) Close() error {
	g.transport.mu.Lock()
	_ = g.stream.CloseSend()
	g.transport.mu.Unlock()

	g.cancel()
	<-g.done
	return g.Bridge.Close()
}
