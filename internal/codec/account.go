package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// AccountUpdate fields:
//
//	1 slot uint64          6 rent_epoch uint64
//	2 pubkey bytes         7 data bytes
//	3 lamports uint64      8 write_version uint64
//	4 owner bytes          9 txn_signature optional bytes
//	5 executable bool
func EncodeAccount(a *model.AccountUpdate) []byte {
	return appendAccount(nil, a)
}

func appendAccount(b []byte, a *model.AccountUpdate) []byte {
	b = appendVarint(b, 1, a.Slot)
	b = appendBytes(b, 2, a.Pubkey)
	b = appendVarint(b, 3, a.Lamports)
	b = appendBytes(b, 4, a.Owner)
	b = appendBool(b, 5, a.Executable)
	b = appendVarint(b, 6, a.RentEpoch)
	b = appendBytes(b, 7, a.Data)
	b = appendVarint(b, 8, a.WriteVersion)
	if a.TxnSignature != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, a.TxnSignature)
	}
	return b
}

func DecodeAccount(b []byte) (*model.AccountUpdate, error) {
	a := &model.AccountUpdate{}
	if err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			a.Slot, n, err = readVarint(typ, b)
		case 2:
			a.Pubkey, n, err = readBytes(typ, b)
		case 3:
			a.Lamports, n, err = readVarint(typ, b)
		case 4:
			a.Owner, n, err = readBytes(typ, b)
		case 5:
			v, n, err = readVarint(typ, b)
			a.Executable = protowire.DecodeBool(v)
		case 6:
			a.RentEpoch, n, err = readVarint(typ, b)
		case 7:
			a.Data, n, err = readBytes(typ, b)
		case 8:
			a.WriteVersion, n, err = readVarint(typ, b)
		case 9:
			a.TxnSignature, n, err = readBytes(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	}); err != nil {
		return nil, fault.New(fault.Decode, "decode account update", err)
	}
	return a, nil
}
