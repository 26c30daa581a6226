// Package idl loads program interface descriptions and decodes the
// borsh-encoded account and event payloads they describe.
package idl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// IDL is the subset of an Anchor program description the relay uses.
type IDL struct {
	Address  string       `json:"address"`
	Metadata *Metadata    `json:"metadata,omitempty"`
	Accounts []Definition `json:"accounts"`
	Events   []Definition `json:"events"`
	Types    []TypeDef    `json:"types"`
}

type Metadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Definition names an account or event and its 8-byte discriminator. The
// field layout lives in Types under the same name.
type Definition struct {
	Name          string `json:"name"`
	Discriminator []byte `json:"-"`
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name          string `json:"name"`
		Discriminator []int  `json:"discriminator"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Name = raw.Name
	d.Discriminator = make([]byte, len(raw.Discriminator))
	for i, v := range raw.Discriminator {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s: discriminator byte %d out of range", raw.Name, v)
		}
		d.Discriminator[i] = byte(v)
	}
	return nil
}

type TypeDef struct {
	Name string   `json:"name"`
	Type TypeBody `json:"type"`
}

// TypeBody is a struct (Fields) or an enum (Variants).
type TypeBody struct {
	Kind     string    `json:"kind"`
	Fields   []Field   `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

type Variant struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is a named struct field, or an unnamed tuple element when Name is empty.
type Field struct {
	Name string
	Type Type
}

func (f *Field) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var named struct {
			Name string          `json:"name"`
			Type json.RawMessage `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &named); err != nil {
			return err
		}
		if named.Name != "" && len(named.Type) > 0 {
			f.Name = named.Name
			return json.Unmarshal(named.Type, &f.Type)
		}
	}
	return json.Unmarshal(trimmed, &f.Type)
}

// Type is one field type. Exactly one of Primitive, Vec, Option, COption,
// Array or Defined is set. COption carries a u32 presence tag where Option
// carries a u8.
type Type struct {
	Primitive string
	Vec       *Type
	Option    *Type
	COption   *Type
	Array     *Type
	Len       int
	Defined   string
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var prim string
	if err := json.Unmarshal(data, &prim); err == nil {
		t.Primitive = prim
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unsupported type %s", data)
	}
	for key, raw := range obj {
		switch key {
		case "vec":
			t.Vec = new(Type)
			return json.Unmarshal(raw, t.Vec)
		case "option":
			t.Option = new(Type)
			return json.Unmarshal(raw, t.Option)
		case "coption":
			t.COption = new(Type)
			return json.Unmarshal(raw, t.COption)
		case "array":
			var parts []json.RawMessage
			if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
				return fmt.Errorf("array type must be [type, len]: %s", raw)
			}
			t.Array = new(Type)
			if err := json.Unmarshal(parts[0], t.Array); err != nil {
				return err
			}
			if err := json.Unmarshal(parts[1], &t.Len); err != nil {
				return fmt.Errorf("array length: %w", err)
			}
			return nil
		case "defined":
			var name string
			if err := json.Unmarshal(raw, &name); err == nil {
				t.Defined = name
				return nil
			}
			var ref struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(raw, &ref); err != nil {
				return err
			}
			t.Defined = ref.Name
			return nil
		}
	}
	return fmt.Errorf("unsupported type %s", data)
}

// Load reads an IDL document from path.
func Load(path string) (*IDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read idl %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse idl %s: %w", path, err)
	}
	return doc, nil
}

func Parse(data []byte) (*IDL, error) {
	var doc IDL
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
