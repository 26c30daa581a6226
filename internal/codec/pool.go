package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// PoolEvent fields: 1 pool_id, 2 variant, 3 event_type, 4 slot, 5 signature,
// 6 payload (JSON bytes).
func EncodePoolEvent(ev *model.PoolEvent) []byte {
	var b []byte
	b = appendString(b, 1, ev.PoolID)
	b = appendString(b, 2, string(ev.Variant))
	b = appendString(b, 3, ev.EventType)
	b = appendVarint(b, 4, ev.Slot)
	b = appendString(b, 5, ev.Signature)
	b = appendBytes(b, 6, ev.Payload)
	return b
}

func DecodePoolEvent(b []byte) (*model.PoolEvent, error) {
	ev := &model.PoolEvent{}
	if err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			s   string
			n   int
			err error
		)
		switch num {
		case 1:
			ev.PoolID, n, err = readString(typ, b)
		case 2:
			s, n, err = readString(typ, b)
			ev.Variant = model.PoolVariant(s)
		case 3:
			ev.EventType, n, err = readString(typ, b)
		case 4:
			ev.Slot, n, err = readVarint(typ, b)
		case 5:
			ev.Signature, n, err = readString(typ, b)
		case 6:
			ev.Payload, n, err = readBytes(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	}); err != nil {
		return nil, fault.New(fault.Decode, "decode pool event", err)
	}
	return ev, nil
}
