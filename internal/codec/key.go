package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"ledgerRelay/internal/model"
)

// Key returns the stream entry key for env. Raw keys are the hex natural
// identifier; wrapped keys prefix it with the one-byte kind tag so keys of
// different kinds never collide on a shared stream.
func Key(env model.Envelope, wrapped bool) (string, error) {
	var id []byte
	switch {
	case env.Kind == model.KindAccount && env.Account != nil:
		id = env.Account.Pubkey
	case env.Kind == model.KindSlot && env.Slot != nil:
		id = slotID(env.Slot.Slot)
	case env.Kind == model.KindTransaction && env.Transaction != nil:
		id = env.Transaction.Signature
	default:
		return "", fmt.Errorf("key: envelope kind %s has no payload", env.Kind)
	}
	if !wrapped {
		return hex.EncodeToString(id), nil
	}
	tagged := make([]byte, 0, len(id)+1)
	tagged = append(tagged, byte(env.Kind))
	tagged = append(tagged, id...)
	return hex.EncodeToString(tagged), nil
}

func AccountKey(pubkey []byte, wrapped bool) string {
	return mustKey(model.Envelope{Kind: model.KindAccount, Account: &model.AccountUpdate{Pubkey: pubkey}}, wrapped)
}

func SlotKey(slot uint64, wrapped bool) string {
	return mustKey(model.Envelope{Kind: model.KindSlot, Slot: &model.SlotUpdate{Slot: slot}}, wrapped)
}

func TransactionKey(signature []byte, wrapped bool) string {
	return mustKey(model.Envelope{Kind: model.KindTransaction, Transaction: &model.TransactionEvent{Signature: signature}}, wrapped)
}

func mustKey(env model.Envelope, wrapped bool) string {
	key, err := Key(env, wrapped)
	if err != nil {
		panic(err)
	}
	return key
}

func slotID(slot uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], slot)
	return b[:]
}
