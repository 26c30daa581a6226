// Package parser classifies account data and transaction logs against known
// program schemas.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/idl"
	"ledgerRelay/internal/model"
)

// CPIEventTag prefixes the data of a self-invoked instruction that carries an
// event (the little-endian form of sha256("anchor:event")[:8]).
var CPIEventTag = [8]byte{0xe4, 0x45, 0xa5, 0x2e, 0x51, 0xcb, 0x9a, 0x1d}

// DefaultLogPrefixes are the log line prefixes that carry base64 event data.
var DefaultLogPrefixes = []string{"Program data: ", "Program-log: "}

type Option func(*Parser)

// WithLogPrefixes replaces DefaultLogPrefixes.
func WithLogPrefixes(prefixes ...string) Option {
	return func(p *Parser) { p.prefixes = prefixes }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser holds the program schemas configured at startup. It is read-only
// after New and safe for concurrent use.
type Parser struct {
	programs map[string]*idl.Schema
	order    []string
	prefixes []string
	logger   *zap.Logger
}

func New(schemas []*idl.Schema, opts ...Option) *Parser {
	p := &Parser{
		programs: make(map[string]*idl.Schema, len(schemas)),
		prefixes: DefaultLogPrefixes,
		logger:   zap.NewNop(),
	}
	for _, s := range schemas {
		p.programs[string(s.ProgramID)] = s
	}
	for id := range p.programs {
		p.order = append(p.order, id)
	}
	sort.Strings(p.order)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schema returns the schema registered for programID.
func (p *Parser) Schema(programID []byte) (*idl.Schema, bool) {
	s, ok := p.programs[string(programID)]
	return s, ok
}

// Len reports how many programs are configured.
func (p *Parser) Len() int { return len(p.programs) }

// ClassifyAccount decodes acc when its owner is a configured program and its
// data starts with a known account discriminator. ok is false when the
// account is not recognized; err is set only when a recognized account fails
// to decode.
func (p *Parser) ClassifyAccount(acc *model.AccountUpdate) (parsed model.ParsedAccount, ok bool, err error) {
	schema, known := p.programs[string(acc.Owner)]
	if !known || len(acc.Data) < idl.DiscriminatorLen {
		return model.ParsedAccount{}, false, nil
	}
	var disc idl.Discriminator
	copy(disc[:], acc.Data)
	name, known := schema.Account(disc)
	if !known {
		return model.ParsedAccount{}, false, nil
	}
	fields, err := schema.Decode(name, acc.Data[idl.DiscriminatorLen:])
	if err != nil {
		return model.ParsedAccount{}, false, fault.New(fault.Decode, "decode account "+name, err)
	}
	return model.ParsedAccount{
		Program: schema.Address,
		Pubkey:  base58.Encode(acc.Pubkey),
		Name:    name,
		Slot:    acc.Slot,
		Fields:  fields,
	}, true, nil
}

// ParseTransactionEvents extracts every recognized event from tx's log lines
// and self-invoked instructions. Unknown discriminators are ignored; decode
// failures are returned alongside the events that did parse.
func (p *Parser) ParseTransactionEvents(tx *model.TransactionEvent) ([]model.ParsedEvent, []error) {
	if len(p.programs) == 0 {
		return nil, nil
	}
	keys := tx.Message.AllKeys()
	present := p.presentPrograms(keys)
	if len(present) == 0 {
		return nil, nil
	}

	var (
		events  []model.ParsedEvent
		errs    []error
		signers []string
	)
	emit := func(schema *idl.Schema, payload []byte, source string) {
		var disc idl.Discriminator
		copy(disc[:], payload)
		name, ok := schema.Event(disc)
		if !ok {
			return
		}
		fields, err := schema.Decode(name, payload[idl.DiscriminatorLen:])
		if err != nil {
			errs = append(errs, fault.New(fault.Decode, fmt.Sprintf("decode %s event %s", source, name), err))
			return
		}
		if signers == nil {
			signers = Signers(&tx.Message)
		}
		events = append(events, model.ParsedEvent{
			Program:   schema.Address,
			Name:      name,
			Signature: base58.Encode(tx.Signature),
			Signers:   signers,
			Slot:      tx.Slot,
			Fields:    fields,
		})
	}

	for _, line := range tx.Meta.LogMessages {
		payload, ok := p.logPayload(line)
		if !ok || len(payload) < idl.DiscriminatorLen {
			continue
		}
		var disc idl.Discriminator
		copy(disc[:], payload)
		for _, schema := range present {
			if _, known := schema.Event(disc); known {
				emit(schema, payload, "log")
				break
			}
		}
	}

	for _, group := range tx.Meta.InnerInstructions {
		for _, ix := range group.Instructions {
			if int(ix.ProgramIDIndex) >= len(keys) {
				continue
			}
			schema, ok := p.programs[string(keys[ix.ProgramIDIndex])]
			if !ok || len(ix.Data) < len(CPIEventTag)+idl.DiscriminatorLen {
				continue
			}
			if !bytes.Equal(ix.Data[:len(CPIEventTag)], CPIEventTag[:]) {
				continue
			}
			emit(schema, ix.Data[len(CPIEventTag):], "cpi")
		}
	}

	if len(errs) > 0 {
		p.logger.Warn("event decode failures",
			zap.String("signature", base58.Encode(tx.Signature)),
			zap.Errors("errors", errs),
		)
	}
	return events, errs
}

// presentPrograms returns configured schemas whose program id appears in keys,
// in a stable order.
func (p *Parser) presentPrograms(keys [][]byte) []*idl.Schema {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[string(k)] = struct{}{}
	}
	var out []*idl.Schema
	for _, id := range p.order {
		if _, ok := seen[id]; ok {
			out = append(out, p.programs[id])
		}
	}
	return out
}

func (p *Parser) logPayload(line string) ([]byte, bool) {
	for _, prefix := range p.prefixes {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		encoded := strings.TrimSpace(line[len(prefix):])
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			payload, err = base64.RawStdEncoding.DecodeString(encoded)
		}
		if err != nil {
			if ce := p.logger.Check(zap.DebugLevel, "log line is not base64"); ce != nil {
				ce.Write(zap.String("line", line))
			}
			return nil, false
		}
		return payload, true
	}
	return nil, false
}

// Signers returns the base58 keys of every signing account in msg.
func Signers(msg *model.Message) []string {
	signers := make([]string, 0, msg.Header.NumRequiredSignatures)
	for i, key := range msg.AccountKeys {
		if msg.IsSigner(i) {
			signers = append(signers, base58.Encode(key))
		}
	}
	return signers
}
