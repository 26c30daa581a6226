package idl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"
)

const maxDepth = 32

var errTooDeep = errors.New("type nesting too deep")

type decoder struct {
	schema *Schema
	dec    *bin.Decoder
}

func newDecoder(s *Schema, data []byte) *decoder {
	return &decoder{schema: s, dec: bin.NewBorshDecoder(data)}
}

func (d *decoder) typeDef(def *TypeDef, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}
	switch def.Type.Kind {
	case "struct", "":
		return d.fields(def.Type.Fields, depth)
	case "enum":
		idx, err := d.dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(def.Type.Variants) {
			return nil, fmt.Errorf("%s: variant %d out of range", def.Name, idx)
		}
		variant := def.Type.Variants[idx]
		if len(variant.Fields) == 0 {
			return variant.Name, nil
		}
		fields, err := d.fields(variant.Fields, depth)
		if err != nil {
			return nil, fmt.Errorf("%s::%s: %w", def.Name, variant.Name, err)
		}
		return map[string]any{variant.Name: fields}, nil
	default:
		return nil, fmt.Errorf("%s: unsupported kind %q", def.Name, def.Type.Kind)
	}
}

// fields decodes a struct body. Tuple elements are keyed by position.
func (d *decoder) fields(fields []Field, depth int) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for i, f := range fields {
		v, err := d.value(&f.Type, depth+1)
		if err != nil {
			name := f.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if f.Name == "" {
			out[strconv.Itoa(i)] = v
		} else {
			out[f.Name] = v
		}
	}
	return out, nil
}

func (d *decoder) value(t *Type, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}
	switch {
	case t.Primitive != "":
		return d.primitive(t.Primitive)
	case t.Vec != nil:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		if t.Vec.Primitive == "u8" {
			return d.dec.ReadNBytes(n)
		}
		return d.sequence(t.Vec, n, depth)
	case t.Option != nil:
		present, err := d.dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if present == 0 {
			return nil, nil
		}
		return d.value(t.Option, depth+1)
	case t.COption != nil:
		tag, err := d.dec.ReadUint32(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			return nil, nil
		case 1:
			return d.value(t.COption, depth+1)
		default:
			return nil, fmt.Errorf("invalid coption tag %d", tag)
		}
	case t.Array != nil:
		if t.Array.Primitive == "u8" {
			return d.dec.ReadNBytes(t.Len)
		}
		return d.sequence(t.Array, t.Len, depth)
	case t.Defined != "":
		def, ok := d.schema.types[t.Defined]
		if !ok {
			return nil, fmt.Errorf("undefined type %q", t.Defined)
		}
		return d.typeDef(def, depth+1)
	default:
		return nil, errors.New("empty type")
	}
}

func (d *decoder) sequence(elem *Type, n, depth int) ([]any, error) {
	out := make([]any, 0, min(n, d.dec.Remaining()))
	for i := 0; i < n; i++ {
		v, err := d.value(elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// length reads a borsh u32 collection length and rejects values that cannot
// fit in the remaining input.
func (d *decoder) length() (int, error) {
	n, err := d.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return 0, err
	}
	if int(n) > d.dec.Remaining() {
		return 0, fmt.Errorf("length %d exceeds %d remaining bytes", n, d.dec.Remaining())
	}
	return int(n), nil
}

func (d *decoder) primitive(name string) (any, error) {
	le := binary.LittleEndian
	switch name {
	case "bool":
		return d.dec.ReadBool()
	case "u8":
		return d.dec.ReadUint8()
	case "i8":
		b, err := d.dec.ReadUint8()
		return int8(b), err
	case "u16":
		return d.dec.ReadUint16(le)
	case "i16":
		return d.dec.ReadInt16(le)
	case "u32":
		return d.dec.ReadUint32(le)
	case "i32":
		return d.dec.ReadInt32(le)
	case "u64":
		return d.dec.ReadUint64(le)
	case "i64":
		return d.dec.ReadInt64(le)
	case "f32":
		return d.dec.ReadFloat32(le)
	case "f64":
		return d.dec.ReadFloat64(le)
	case "u128", "i128":
		b, err := d.dec.ReadNBytes(16)
		if err != nil {
			return nil, err
		}
		return int128String(b, name == "i128"), nil
	case "string":
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		b, err := d.dec.ReadNBytes(n)
		return string(b), err
	case "bytes":
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		return d.dec.ReadNBytes(n)
	case "pubkey", "publicKey":
		b, err := d.dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		return base58.Encode(b), nil
	default:
		return nil, fmt.Errorf("unsupported primitive %q", name)
	}
}

// int128String renders a little-endian 128-bit integer in decimal so values
// above 2^53 survive JSON consumers.
func int128String(le []byte, signed bool) string {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	v := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return v.String()
}
