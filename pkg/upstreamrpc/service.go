package upstreamrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// serviceName is the fully-qualified RPC service name carried over the
// wire; it has no bearing on the JSON codec, only on gRPC's routing.
const serviceName = "upstreamrpc.RawData"

// RawDataClient is the client-side contract a transaction stream source
// uses to open the upstream's transaction feed. Hand-written in the shape
// protoc-gen-go-grpc would emit for a single server-streaming RPC.
type RawDataClient interface {
	GetTransactions(ctx context.Context, in *GetTransactionsRequest, opts ...grpc.CallOption) (RawData_GetTransactionsClient, error)
}

type rawDataClient struct {
	cc grpc.ClientConnInterface
}

// NewRawDataClient wraps cc (typically from grpc.NewClient) as a RawDataClient.
func NewRawDataClient(cc grpc.ClientConnInterface) RawDataClient {
	return &rawDataClient{cc: cc}
}

func (c *rawDataClient) GetTransactions(ctx context.Context, in *GetTransactionsRequest, opts ...grpc.CallOption) (RawData_GetTransactionsClient, error) {
	stream, err := c.cc.NewStream(ctx, &rawDataGetTransactionsStreamDesc, "/"+serviceName+"/GetTransactions", opts...)
	if err != nil {
		return nil, err
	}
	x := &rawDataGetTransactionsClient{ClientStream: stream}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// RawData_GetTransactionsClient is the client side of the response stream.
type RawData_GetTransactionsClient interface {
	Recv() (*TransactionsResponse, error)
	grpc.ClientStream
}

type rawDataGetTransactionsClient struct {
	grpc.ClientStream
}

func (x *rawDataGetTransactionsClient) Recv() (*TransactionsResponse, error) {
	m := new(TransactionsResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RawDataServer is the server-side contract the mock upstream implements.
type RawDataServer interface {
	GetTransactions(*GetTransactionsRequest, RawData_GetTransactionsServer) error
}

// UnimplementedRawDataServer can be embedded to satisfy RawDataServer for
// forward compatibility, matching the generated-code convention.
type UnimplementedRawDataServer struct{}

func (UnimplementedRawDataServer) GetTransactions(*GetTransactionsRequest, RawData_GetTransactionsServer) error {
	return status.Error(codes.Unimplemented, "method GetTransactions not implemented")
}

// RawData_GetTransactionsServer is the server side of the response stream.
type RawData_GetTransactionsServer interface {
	Send(*TransactionsResponse) error
	grpc.ServerStream
}

type rawDataGetTransactionsServer struct {
	grpc.ServerStream
}

func (x *rawDataGetTransactionsServer) Send(m *TransactionsResponse) error {
	return x.ServerStream.SendMsg(m)
}

func rawDataGetTransactionsHandler(srv any, stream grpc.ServerStream) error {
	m := new(GetTransactionsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RawDataServer).GetTransactions(m, &rawDataGetTransactionsServer{ServerStream: stream})
}

var rawDataGetTransactionsStreamDesc = grpc.StreamDesc{
	StreamName:    "GetTransactions",
	ServerStreams: true,
}

// RawDataServiceDesc is the grpc.ServiceDesc registered with the server,
// mirroring the _grpc.pb.go ServiceDesc protoc-gen-go-grpc emits.
var RawDataServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RawDataServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetTransactions",
			Handler:       rawDataGetTransactionsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "upstreamrpc.proto",
}

// RegisterRawDataServer registers srv against s.
func RegisterRawDataServer(s grpc.ServiceRegistrar, srv RawDataServer) {
	s.RegisterService(&RawDataServiceDesc, srv)
}
