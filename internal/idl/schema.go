package idl

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// DiscriminatorLen is the length of account and event discriminators.
const DiscriminatorLen = 8

type Discriminator [DiscriminatorLen]byte

// Schema is the decoding table for one program. It is built once and never
// mutated, so it is safe to share between goroutines.
type Schema struct {
	Name      string
	ProgramID []byte
	Address   string

	accounts map[Discriminator]string
	events   map[Discriminator]string
	types    map[string]*TypeDef
}

// NewSchema indexes doc by discriminator. Accounts and events without a
// matching type definition are skipped.
func NewSchema(doc *IDL) (*Schema, error) {
	programID, err := base58.Decode(doc.Address)
	if err != nil {
		return nil, fmt.Errorf("decode program address %q: %w", doc.Address, err)
	}
	if len(programID) != 32 {
		return nil, fmt.Errorf("program address %q: want 32 bytes, got %d", doc.Address, len(programID))
	}
	s := &Schema{
		ProgramID: programID,
		Address:   doc.Address,
		accounts:  make(map[Discriminator]string, len(doc.Accounts)),
		events:    make(map[Discriminator]string, len(doc.Events)),
		types:     make(map[string]*TypeDef, len(doc.Types)),
	}
	if doc.Metadata != nil {
		s.Name = doc.Metadata.Name
	}
	for i := range doc.Types {
		s.types[doc.Types[i].Name] = &doc.Types[i]
	}
	if err := s.index(doc.Accounts, s.accounts); err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	if err := s.index(doc.Events, s.events); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return s, nil
}

func (s *Schema) index(defs []Definition, dst map[Discriminator]string) error {
	for _, def := range defs {
		if len(def.Discriminator) != DiscriminatorLen {
			return fmt.Errorf("%s: discriminator has %d bytes", def.Name, len(def.Discriminator))
		}
		if _, ok := s.types[def.Name]; !ok {
			continue
		}
		var d Discriminator
		copy(d[:], def.Discriminator)
		if prev, dup := dst[d]; dup {
			return fmt.Errorf("%s: discriminator already used by %s", def.Name, prev)
		}
		dst[d] = def.Name
	}
	return nil
}

// LoadSchema reads and indexes the IDL at path.
func LoadSchema(path string) (*Schema, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSchema(doc)
	if err != nil {
		return nil, fmt.Errorf("index idl %s: %w", path, err)
	}
	return s, nil
}

// Account returns the account type registered under d.
func (s *Schema) Account(d Discriminator) (string, bool) {
	name, ok := s.accounts[d]
	return name, ok
}

// Event returns the event registered under d.
func (s *Schema) Event(d Discriminator) (string, bool) {
	name, ok := s.events[d]
	return name, ok
}

// EventNames lists the names of every indexed event.
func (s *Schema) EventNames() []string {
	names := make([]string, 0, len(s.events))
	for _, name := range s.events {
		names = append(names, name)
	}
	return names
}

// Decode decodes data with the layout of the named type.
func (s *Schema) Decode(typeName string, data []byte) (map[string]any, error) {
	def, ok := s.types[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	d := newDecoder(s, data)
	v, err := d.typeDef(def, 0)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeName, err)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return map[string]any{"value": v}, nil
	}
	return fields, nil
}
