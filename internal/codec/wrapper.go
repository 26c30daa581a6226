package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

var errEmptyWrapper = errors.New("wrapper carries no event")

// Wrapper fields form a oneof: 1 account, 2 slot, 3 transaction. The field
// number equals the envelope Kind.
func EncodeWrapper(env model.Envelope) ([]byte, error) {
	switch {
	case env.Kind == model.KindAccount && env.Account != nil:
		return appendMessage(nil, 1, EncodeAccount(env.Account)), nil
	case env.Kind == model.KindSlot && env.Slot != nil:
		return appendMessage(nil, 2, EncodeSlot(env.Slot)), nil
	case env.Kind == model.KindTransaction && env.Transaction != nil:
		return appendMessage(nil, 3, EncodeTransaction(env.Transaction)), nil
	default:
		return nil, fmt.Errorf("encode wrapper: envelope kind %s has no payload", env.Kind)
	}
}

// DecodeWrapper returns the variant carried by b. When several variants are
// present the last one wins, matching protobuf oneof semantics.
func DecodeWrapper(b []byte) (model.Envelope, error) {
	var env model.Envelope
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || num > 3 {
			return skip(num, typ, b)
		}
		raw, n, err := readRaw(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			a, err := DecodeAccount(raw)
			if err != nil {
				return 0, err
			}
			env = model.AccountEnvelope(a)
		case 2:
			s, err := DecodeSlot(raw)
			if err != nil {
				return 0, err
			}
			env = model.SlotEnvelope(s)
		case 3:
			t, err := DecodeTransaction(raw)
			if err != nil {
				return 0, err
			}
			env = model.TransactionEnvelope(t)
		}
		return n, nil
	})
	if err == nil && env.Kind == 0 {
		err = errEmptyWrapper
	}
	if err != nil {
		return model.Envelope{}, fault.New(fault.Decode, "decode wrapper", err)
	}
	return env, nil
}

// Encode serializes env either bare or inside a Wrapper and derives the
// matching stream key.
func Encode(env model.Envelope, wrapped bool) (key string, payload []byte, err error) {
	key, err = Key(env, wrapped)
	if err != nil {
		return "", nil, err
	}
	if wrapped {
		payload, err = EncodeWrapper(env)
		return key, payload, err
	}
	switch env.Kind {
	case model.KindAccount:
		payload = EncodeAccount(env.Account)
	case model.KindSlot:
		payload = EncodeSlot(env.Slot)
	case model.KindTransaction:
		payload = EncodeTransaction(env.Transaction)
	}
	return key, payload, nil
}

// Decode reads a bare payload of the given kind.
func Decode(kind model.Kind, b []byte) (model.Envelope, error) {
	switch kind {
	case model.KindAccount:
		a, err := DecodeAccount(b)
		if err != nil {
			return model.Envelope{}, err
		}
		return model.AccountEnvelope(a), nil
	case model.KindSlot:
		s, err := DecodeSlot(b)
		if err != nil {
			return model.Envelope{}, err
		}
		return model.SlotEnvelope(s), nil
	case model.KindTransaction:
		t, err := DecodeTransaction(b)
		if err != nil {
			return model.Envelope{}, err
		}
		return model.TransactionEnvelope(t), nil
	default:
		return model.Envelope{}, fault.Errorf(fault.Decode, "decode", "unknown event kind %d", kind)
	}
}
