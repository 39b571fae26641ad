// Package query serves the emitted forwarding state over gRPC. Messages are
// protobuf well-known types, so the service needs no generated code.
package query

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/internal/observability"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "satroute.v1.ForwardingState"

// ForwardingStateServer is the server API of ServiceName.
type ForwardingStateServer interface {
	// Lookup takes {src, dst} and returns every entry of the pair.
	Lookup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Bandwidth takes {node} (omitted for all nodes) and returns its
	// interface bandwidths.
	Bandwidth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Summary returns the step id and table size.
	Summary(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Service answers queries from a Reader.
type Service struct {
	reader Reader
	log    logging.Logger
}

// NewService constructs the query service.
func NewService(r Reader, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{reader: r, log: log}
}

func (s *Service) Lookup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.requestLogger(ctx)
	src, err := intField(req, "src")
	if err != nil {
		return nil, ToStatusError(err)
	}
	dst, err := intField(req, "dst")
	if err != nil {
		return nil, ToStatusError(err)
	}

	step, err := s.reader.Step()
	if err != nil {
		return nil, ToStatusError(err)
	}
	recs, err := s.reader.Lookup(src, dst)
	if err != nil {
		log.Warn(ctx, "lookup failed", logging.Int("src", src), logging.Int("dst", dst), logging.Err(err))
		return nil, ToStatusError(err)
	}
	if len(recs) == 0 {
		return nil, ToStatusError(fmt.Errorf("%w: no entries from %d to %d", ErrNotFound, src, dst))
	}

	entries := make([]any, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, map[string]any{
			"next_hop":  r.NextHop,
			"local_if":  r.LocalInterface,
			"remote_if": r.RemoteInterface,
			"path_id":   r.PathID,
			"drop":      r.IsDrop(),
		})
	}
	return toStruct(map[string]any{
		"step_ns": step,
		"src":     src,
		"dst":     dst,
		"entries": entries,
	})
}

func (s *Service) Bandwidth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	node := -1
	if _, ok := req.GetFields()["node"]; ok {
		n, err := intField(req, "node")
		if err != nil {
			return nil, ToStatusError(err)
		}
		node = n
	}

	step, err := s.reader.Step()
	if err != nil {
		return nil, ToStatusError(err)
	}
	recs, err := s.reader.Bandwidth(node)
	if err != nil {
		s.requestLogger(ctx).Warn(ctx, "bandwidth query failed", logging.Int("node", node), logging.Err(err))
		return nil, ToStatusError(err)
	}
	if node >= 0 && len(recs) == 0 {
		return nil, ToStatusError(fmt.Errorf("%w: no interfaces on node %d", ErrNotFound, node))
	}

	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, map[string]any{
			"node":      r.Node,
			"interface": r.Interface,
			"bandwidth": r.Bandwidth,
		})
	}
	return toStruct(map[string]any{"step_ns": step, "interfaces": out})
}

func (s *Service) Summary(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	step, err := s.reader.Step()
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(map[string]any{
		"step_ns":    step,
		"entries":    s.reader.Count(),
		"satellites": s.reader.NumSatellites(),
	})
}

func (s *Service) requestLogger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func intField(req *structpb.Struct, name string) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidRequest, name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRequest, name)
	}
	f := n.NumberValue
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q = %v is not a node id", ErrInvalidRequest, name, f)
	}
	return int(f), nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s, nil
}

// RegisterForwardingStateServer registers srv on s.
func RegisterForwardingStateServer(s grpc.ServiceRegistrar, srv ForwardingStateServer) {
	s.RegisterService(&forwardingStateServiceDesc, srv)
}

// NewServer builds a gRPC server with the request id, metrics and tracing
// interceptors and the service registered. collector may be nil.
func NewServer(r Reader, log logging.Logger, collector *observability.QueryCollector) *grpc.Server {
	if log == nil {
		log = logging.Noop()
	}
	interceptors := []grpc.UnaryServerInterceptor{RequestIDUnaryServerInterceptor(log)}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	interceptors = append(interceptors, TracingUnaryServerInterceptor())

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	RegisterForwardingStateServer(server, NewService(r, log))
	return server
}

var forwardingStateServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForwardingStateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lookup", Handler: structHandler("Lookup", ForwardingStateServer.Lookup)},
		{MethodName: "Bandwidth", Handler: structHandler("Bandwidth", ForwardingStateServer.Bandwidth)},
		{MethodName: "Summary", Handler: summaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "satroute/v1/forwarding_state.proto",
}

func structHandler(method string, call func(ForwardingStateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ForwardingStateServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ForwardingStateServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func summaryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForwardingStateServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Summary"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ForwardingStateServer).Summary(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
