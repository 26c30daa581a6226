// Package filter decides which producer events a rule set admits and turns a
// rule set into an upstream subscription request.
package filter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// Memcmp matches instruction data starting at Offset against hex Bytes.
type Memcmp struct {
	Offset int    `json:"offset" yaml:"offset" mapstructure:"offset"`
	Bytes  string `json:"bytes" yaml:"bytes" mapstructure:"bytes"`
}

// Rule is the configuration form of one filter. Keys are base58.
type Rule struct {
	Name               string   `json:"name,omitempty" yaml:"name" mapstructure:"name"`
	Programs           []string `json:"programs,omitempty" yaml:"programs" mapstructure:"programs"`
	ProgramsDeny       []string `json:"programs_deny,omitempty" yaml:"programs_deny" mapstructure:"programs_deny"`
	Accounts           []string `json:"accounts,omitempty" yaml:"accounts" mapstructure:"accounts"`
	AccountRequired    []string `json:"account_required,omitempty" yaml:"account_required" mapstructure:"account_required"`
	IncludeVotes       bool     `json:"include_votes,omitempty" yaml:"include_votes" mapstructure:"include_votes"`
	IncludeFailed      bool     `json:"include_failed,omitempty" yaml:"include_failed" mapstructure:"include_failed"`
	Memcmp             []Memcmp `json:"memcmp,omitempty" yaml:"memcmp" mapstructure:"memcmp"`
	PublishAllAccounts bool     `json:"publish_all,omitempty" yaml:"publish_all" mapstructure:"publish_all"`

	AccountStream     string `json:"account_stream,omitempty" yaml:"account_stream" mapstructure:"account_stream"`
	SlotStream        string `json:"slot_stream,omitempty" yaml:"slot_stream" mapstructure:"slot_stream"`
	TransactionStream string `json:"transaction_stream,omitempty" yaml:"transaction_stream" mapstructure:"transaction_stream"`
	WrapMessages      bool   `json:"wrap_messages,omitempty" yaml:"wrap_messages" mapstructure:"wrap_messages"`
}

// RuleSet is the unit the control plane publishes: filter rules plus the
// watched pools.
type RuleSet struct {
	Rules []Rule           `json:"rules" yaml:"rules" mapstructure:"rules"`
	Pools []model.PoolMeta `json:"pools,omitempty" yaml:"pools" mapstructure:"pools"`
}

// ParseRuleSet reads a YAML or JSON rule set.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fault.New(fault.Config, "parse rule set", err)
	}
	return rs, nil
}

// Streams are the destinations used when a rule leaves its own empty.
type Streams struct {
	Accounts     string
	Slots        string
	Transactions string
}

// Filter is a compiled Rule. Keys are stored as raw bytes.
type Filter struct {
	Name string

	programs map[string]struct{}
	deny     map[string]struct{}
	accounts map[string]struct{}
	required [][]byte
	memcmp   []memcmp

	IncludeVotes       bool
	IncludeFailed      bool
	PublishAllAccounts bool

	AccountStream     string
	SlotStream        string
	TransactionStream string
	Wrap              bool
}

type memcmp struct {
	offset int
	prefix []byte
}

// Compile validates r and resolves its keys. Empty stream names fall back to
// defaults.
func (r Rule) Compile(defaults Streams) (*Filter, error) {
	f := &Filter{
		Name:               r.Name,
		IncludeVotes:       r.IncludeVotes,
		IncludeFailed:      r.IncludeFailed,
		PublishAllAccounts: r.PublishAllAccounts,
		AccountStream:      firstNonEmpty(r.AccountStream, defaults.Accounts),
		SlotStream:         firstNonEmpty(r.SlotStream, defaults.Slots),
		TransactionStream:  firstNonEmpty(r.TransactionStream, defaults.Transactions),
		Wrap:               r.WrapMessages,
	}
	var err error
	if f.programs, err = keySet(r.Programs); err != nil {
		return nil, fault.New(fault.Config, "rule "+r.Name+" programs", err)
	}
	if f.deny, err = keySet(r.ProgramsDeny); err != nil {
		return nil, fault.New(fault.Config, "rule "+r.Name+" programs_deny", err)
	}
	if f.accounts, err = keySet(r.Accounts); err != nil {
		return nil, fault.New(fault.Config, "rule "+r.Name+" accounts", err)
	}
	for _, k := range r.AccountRequired {
		b, err := decodeKey(k)
		if err != nil {
			return nil, fault.New(fault.Config, "rule "+r.Name+" account_required", err)
		}
		f.required = append(f.required, b)
	}
	for _, m := range r.Memcmp {
		prefix, err := hex.DecodeString(strings.TrimPrefix(m.Bytes, "0x"))
		if err != nil || len(prefix) == 0 || m.Offset < 0 {
			return nil, fault.Errorf(fault.Config, "rule "+r.Name+" memcmp", "invalid memcmp %+v", m)
		}
		f.memcmp = append(f.memcmp, memcmp{offset: m.Offset, prefix: prefix})
	}
	return f, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func decodeKey(k string) ([]byte, error) {
	b, err := base58.Decode(strings.TrimSpace(k))
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", k, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key %q: want 32 bytes, got %d", k, len(b))
	}
	return b, nil
}

func keySet(keys []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		b, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		set[string(b)] = struct{}{}
	}
	return set, nil
}

// allowed reports whether k is in allow and not a denied program.
func (f *Filter) allowed(allow map[string]struct{}, k []byte) bool {
	if _, ok := allow[string(k)]; !ok {
		return false
	}
	_, denied := f.deny[string(k)]
	return !denied
}

// WantsProgram reports whether accounts owned by owner are admitted. The deny
// list wins over the allow list.
func (f *Filter) WantsProgram(owner []byte) bool {
	return f.allowed(f.programs, owner)
}

// WantsAccount reports whether pubkey is explicitly watched.
func (f *Filter) WantsAccount(pubkey []byte) bool {
	_, ok := f.accounts[string(pubkey)]
	return ok
}

// WantsAccountUpdate admits acc by owner or by pubkey.
func (f *Filter) WantsAccountUpdate(acc *model.AccountUpdate) bool {
	return f.WantsProgram(acc.Owner) || f.WantsAccount(acc.Pubkey)
}

// WantsSnapshot reports whether this rule opens the startup snapshot gate.
func (f *Filter) WantsSnapshot() bool {
	return f.PublishAllAccounts
}

// WantsTransaction applies the vote and failure gates, then requires that tx
// touches an allowed program or account, carries every required account and
// matches at least one memcmp prefix when any are configured.
func (f *Filter) WantsTransaction(tx *model.TransactionEvent) bool {
	if tx.IsVote && !f.IncludeVotes {
		return false
	}
	if tx.Failed() && !f.IncludeFailed {
		return false
	}
	keys := tx.Message.AllKeys()
	touched := false
	for _, k := range keys {
		if f.WantsProgram(k) || f.WantsAccount(k) {
			touched = true
			break
		}
	}
	if !touched {
		return false
	}
	for _, req := range f.required {
		if !containsKey(keys, req) {
			return false
		}
	}
	if len(f.memcmp) > 0 && !f.matchesMemcmp(tx) {
		return false
	}
	return true
}

func (f *Filter) matchesMemcmp(tx *model.TransactionEvent) bool {
	match := func(data []byte) bool {
		for _, m := range f.memcmp {
			end := m.offset + len(m.prefix)
			if end <= len(data) && bytes.Equal(data[m.offset:end], m.prefix) {
				return true
			}
		}
		return false
	}
	for _, ix := range tx.Message.Instructions {
		if match(ix.Data) {
			return true
		}
	}
	for _, group := range tx.Meta.InnerInstructions {
		for _, ix := range group.Instructions {
			if match(ix.Data) {
				return true
			}
		}
	}
	return false
}

func containsKey(keys [][]byte, want []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, want) {
			return true
		}
	}
	return false
}
