package query

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/constellation-router/model"
)

// Client calls a ForwardingState server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure connection to addr. Callers close the returned
// connection.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(requestIDUnaryClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// LookupResult is the decoded answer of Lookup.
type LookupResult struct {
	StepNs  int64
	Records []model.Record
}

// Summary is the decoded answer of Summary.
type Summary struct {
	StepNs     int64
	Entries    int
	Satellites int
}

// Lookup returns the entries of (src, dst).
func (c *Client) Lookup(ctx context.Context, src, dst int) (*LookupResult, error) {
	req, err := structpb.NewStruct(map[string]any{"src": src, "dst": dst})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Lookup", req, out); err != nil {
		return nil, err
	}

	res := &LookupResult{StepNs: int64(number(out, "step_ns"))}
	for _, v := range out.GetFields()["entries"].GetListValue().GetValues() {
		e := v.GetStructValue()
		res.Records = append(res.Records, model.Record{
			Src: src,
			Dst: dst,
			ForwardingEntry: model.ForwardingEntry{
				NextHop:         int(number(e, "next_hop")),
				LocalInterface:  int(number(e, "local_if")),
				RemoteInterface: int(number(e, "remote_if")),
				PathID:          int(number(e, "path_id")),
			},
		})
	}
	return res, nil
}

// Bandwidth returns the interface bandwidths of node, or of every node when
// node is negative.
func (c *Client) Bandwidth(ctx context.Context, node int) ([]model.BandwidthRecord, error) {
	fields := map[string]any{}
	if node >= 0 {
		fields["node"] = node
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Bandwidth", req, out); err != nil {
		return nil, err
	}

	var recs []model.BandwidthRecord
	for _, v := range out.GetFields()["interfaces"].GetListValue().GetValues() {
		e := v.GetStructValue()
		recs = append(recs, model.BandwidthRecord{
			InterfaceRef: model.InterfaceRef{Node: int(number(e, "node")), Interface: int(number(e, "interface"))},
			Bandwidth:    number(e, "bandwidth"),
		})
	}
	return recs, nil
}

// Summary returns the served step and table size.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Summary", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return &Summary{
		StepNs:     int64(number(out, "step_ns")),
		Entries:    int(number(out, "entries")),
		Satellites: int(number(out, "satellites")),
	}, nil
}

func number(s *structpb.Struct, name string) float64 {
	return s.GetFields()[name].GetNumberValue()
}
