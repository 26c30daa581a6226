package fanout

import (
	"google.golang.org/grpc"
)

const ServiceName = "relay.stream.v1.RelayStream"

// RelayStreamServer is the server API of the fan-out service.
type RelayStreamServer interface {
	StreamAccounts(*Empty, grpc.ServerStream) error
	StreamSlots(*Empty, grpc.ServerStream) error
	StreamTransactions(*Empty, grpc.ServerStream) error
	StreamAll(*Empty, grpc.ServerStream) error
	StreamPoolEvents(*PoolRequest, grpc.ServerStream) error
	// Subscribe is retired and answers Unimplemented.
	Subscribe(*Empty, grpc.ServerStream) error
}

func RegisterRelayStreamServer(s grpc.ServiceRegistrar, srv RelayStreamServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func emptyHandler(call func(RelayStreamServer, *Empty, grpc.ServerStream) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		m := new(Empty)
		if err := stream.RecvMsg(m); err != nil {
			return err
		}
		return call(srv.(RelayStreamServer), m, stream)
	}
}

func poolEventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(PoolRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RelayStreamServer).StreamPoolEvents(m, stream)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamAccounts", Handler: emptyHandler(RelayStreamServer.StreamAccounts), ServerStreams: true},
		{StreamName: "StreamSlots", Handler: emptyHandler(RelayStreamServer.StreamSlots), ServerStreams: true},
		{StreamName: "StreamTransactions", Handler: emptyHandler(RelayStreamServer.StreamTransactions), ServerStreams: true},
		{StreamName: "StreamAll", Handler: emptyHandler(RelayStreamServer.StreamAll), ServerStreams: true},
		{StreamName: "StreamPoolEvents", Handler: poolEventsHandler, ServerStreams: true},
		{StreamName: "Subscribe", Handler: emptyHandler(RelayStreamServer.Subscribe), ServerStreams: true},
	},
	Metadata: "relay/stream/v1/stream.proto",
}
