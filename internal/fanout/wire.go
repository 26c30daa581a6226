package fanout

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/codec"
	"ledgerRelay/internal/model"
)

// CodecName is the gRPC content subtype carrying relay messages.
const CodecName = "relay"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// Empty is the request of the per-kind streaming calls.
type Empty struct{}

// PoolRequest selects the pool whose events a client receives.
type PoolRequest struct {
	PoolID string
}

// wireCodec marshals the relay message types with the protobuf-compatible
// encoders from package codec.
type wireCodec struct{}

func (wireCodec) Name() string { return CodecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *Empty:
		return nil, nil
	case *PoolRequest:
		var b []byte
		if m.PoolID != "" {
			b = protowire.AppendTag(b, 1, protowire.BytesType)
			b = protowire.AppendString(b, m.PoolID)
		}
		return b, nil
	case *model.AccountUpdate:
		return codec.EncodeAccount(m), nil
	case *model.SlotUpdate:
		return codec.EncodeSlot(m), nil
	case *model.TransactionEvent:
		return codec.EncodeTransaction(m), nil
	case *model.Envelope:
		return codec.EncodeWrapper(*m)
	case *model.PoolEvent:
		return codec.EncodePoolEvent(m), nil
	default:
		return nil, fmt.Errorf("relay codec: cannot marshal %T", v)
	}
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *Empty:
		return nil
	case *PoolRequest:
		return unmarshalPoolRequest(data, m)
	case *model.AccountUpdate:
		acc, err := codec.DecodeAccount(data)
		if err != nil {
			return err
		}
		*m = *acc
	case *model.SlotUpdate:
		slot, err := codec.DecodeSlot(data)
		if err != nil {
			return err
		}
		*m = *slot
	case *model.TransactionEvent:
		tx, err := codec.DecodeTransaction(data)
		if err != nil {
			return err
		}
		*m = *tx
	case *model.Envelope:
		env, err := codec.DecodeWrapper(data)
		if err != nil {
			return err
		}
		*m = env
	case *model.PoolEvent:
		ev, err := codec.DecodePoolEvent(data)
		if err != nil {
			return err
		}
		*m = *ev
	default:
		return fmt.Errorf("relay codec: cannot unmarshal into %T", v)
	}
	return nil
}

func unmarshalPoolRequest(b []byte, m *PoolRequest) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.PoolID = s
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
