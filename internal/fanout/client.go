package fanout

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"ledgerRelay/internal/model"
)

// Client calls the fan-out service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

func (c *Client) Close() error { return c.conn.Close() }

// Stream receives messages of one type from a server-streaming call.
type Stream[T any] struct {
	cs grpc.ClientStream
}

// Recv blocks for the next message. It returns io.EOF when the server ends
// the call.
func (s *Stream[T]) Recv() (*T, error) {
	m := new(T)
	if err := s.cs.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func open[T any](ctx context.Context, conn *grpc.ClientConn, method string, req any) (*Stream[T], error) {
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, "/"+ServiceName+"/"+method, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream[T]{cs: cs}, nil
}

func (c *Client) StreamAccounts(ctx context.Context) (*Stream[model.AccountUpdate], error) {
	return open[model.AccountUpdate](ctx, c.conn, "StreamAccounts", &Empty{})
}

func (c *Client) StreamSlots(ctx context.Context) (*Stream[model.SlotUpdate], error) {
	return open[model.SlotUpdate](ctx, c.conn, "StreamSlots", &Empty{})
}

func (c *Client) StreamTransactions(ctx context.Context) (*Stream[model.TransactionEvent], error) {
	return open[model.TransactionEvent](ctx, c.conn, "StreamTransactions", &Empty{})
}

func (c *Client) StreamAll(ctx context.Context) (*Stream[model.Envelope], error) {
	return open[model.Envelope](ctx, c.conn, "StreamAll", &Empty{})
}

func (c *Client) StreamPoolEvents(ctx context.Context, poolID string) (*Stream[model.PoolEvent], error) {
	return open[model.PoolEvent](ctx, c.conn, "StreamPoolEvents", &PoolRequest{PoolID: poolID})
}

func (c *Client) Subscribe(ctx context.Context) (*Stream[model.Envelope], error) {
	return open[model.Envelope](ctx, c.conn, "Subscribe", &Empty{})
}
