package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// SlotUpdate fields: 1 slot, 2 parent (optional), 3 status, 4 dead_error.
func EncodeSlot(s *model.SlotUpdate) []byte {
	return appendSlot(nil, s)
}

func appendSlot(b []byte, s *model.SlotUpdate) []byte {
	b = appendVarint(b, 1, s.Slot)
	if s.Parent != nil {
		b = appendOptionalVarint(b, 2, *s.Parent)
	}
	b = appendVarint(b, 3, uint64(s.Status))
	b = appendString(b, 4, s.DeadError)
	return b
}

func DecodeSlot(b []byte) (*model.SlotUpdate, error) {
	s := &model.SlotUpdate{}
	if err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			s.Slot, n, err = readVarint(typ, b)
		case 2:
			v, n, err = readVarint(typ, b)
			s.Parent = &v
		case 3:
			v, n, err = readVarint(typ, b)
			s.Status = model.SlotStatus(int32(v))
		case 4:
			s.DeadError, n, err = readString(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	}); err != nil {
		return nil, fault.New(fault.Decode, "decode slot update", err)
	}
	return s, nil
}
