package filter

import (
	"strconv"

	"github.com/mr-tron/base58"

	"ledgerRelay/internal/model"
)

// SubscribeRequest is what the ingestion loop asks the upstream for. Filter
// maps are keyed by an arbitrary label; an update matching any entry is sent.
type SubscribeRequest struct {
	Accounts     map[string]AccountFilter     `json:"accounts,omitempty"`
	Transactions map[string]TransactionFilter `json:"transactions,omitempty"`
	Slots        bool                         `json:"slots,omitempty"`
	Commitment   string                       `json:"commitment,omitempty"`
}

type AccountFilter struct {
	Account []string `json:"account,omitempty"`
	Owner   []string `json:"owner,omitempty"`
}

type TransactionFilter struct {
	AccountInclude  []string `json:"account_include,omitempty"`
	AccountExclude  []string `json:"account_exclude,omitempty"`
	AccountRequired []string `json:"account_required,omitempty"`
	Vote            *bool    `json:"vote,omitempty"`
	Failed          *bool    `json:"failed,omitempty"`
	Memcmp          []Memcmp `json:"memcmp,omitempty"`
}

// NewSubscribeRequest returns an empty request at processed commitment.
func NewSubscribeRequest() SubscribeRequest {
	return SubscribeRequest{
		Accounts:     map[string]AccountFilter{},
		Transactions: map[string]TransactionFilter{},
		Commitment:   "processed",
	}
}

// Merge adds other's filters to r. Labels in other win on collision.
func (r *SubscribeRequest) Merge(other SubscribeRequest) {
	if r.Accounts == nil {
		r.Accounts = map[string]AccountFilter{}
	}
	if r.Transactions == nil {
		r.Transactions = map[string]TransactionFilter{}
	}
	for k, v := range other.Accounts {
		r.Accounts[k] = v
	}
	for k, v := range other.Transactions {
		r.Transactions[k] = v
	}
	r.Slots = r.Slots || other.Slots
}

// SubscribeRequest builds the upstream request covering every rule.
func (rs RuleSet) SubscribeRequest() SubscribeRequest {
	req := NewSubscribeRequest()
	for i, r := range rs.Rules {
		label := r.Name
		if label == "" {
			label = "rule-" + strconv.Itoa(i)
		}
		if len(r.Accounts) > 0 || len(r.Programs) > 0 || r.PublishAllAccounts {
			req.Accounts[label] = AccountFilter{Account: r.Accounts, Owner: r.Programs}
		}
		if !r.PublishAllAccounts || len(r.Programs) > 0 {
			include := append(append([]string{}, r.Programs...), r.Accounts...)
			vote, failed := r.IncludeVotes, r.IncludeFailed
			req.Transactions[label] = TransactionFilter{
				AccountInclude:  include,
				AccountExclude:  r.ProgramsDeny,
				AccountRequired: r.AccountRequired,
				Vote:            &vote,
				Failed:          &failed,
				Memcmp:          r.Memcmp,
			}
		}
		req.Slots = true
	}
	return req
}

// MatchesAccount reports whether acc satisfies any account filter. An
// AccountFilter with neither list set matches everything.
func (r *SubscribeRequest) MatchesAccount(acc *model.AccountUpdate) bool {
	pubkey := base58.Encode(acc.Pubkey)
	owner := base58.Encode(acc.Owner)
	for _, f := range r.Accounts {
		if len(f.Account) == 0 && len(f.Owner) == 0 {
			return true
		}
		if contains(f.Account, pubkey) || contains(f.Owner, owner) {
			return true
		}
	}
	return false
}

// MatchesTransaction reports whether tx satisfies any transaction filter.
func (r *SubscribeRequest) MatchesTransaction(tx *model.TransactionEvent) bool {
	if len(r.Transactions) == 0 {
		return false
	}
	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, k := range tx.Message.AllKeys() {
		keys = append(keys, base58.Encode(k))
	}
	for _, f := range r.Transactions {
		if f.matches(tx, keys) {
			return true
		}
	}
	return false
}

func (f TransactionFilter) matches(tx *model.TransactionEvent, keys []string) bool {
	if f.Vote != nil && !*f.Vote && tx.IsVote {
		return false
	}
	if f.Failed != nil && !*f.Failed && tx.Failed() {
		return false
	}
	if len(f.AccountInclude) > 0 && !anyIn(keys, f.AccountInclude) {
		return false
	}
	if anyIn(keys, f.AccountExclude) {
		return false
	}
	for _, req := range f.AccountRequired {
		if !contains(keys, req) {
			return false
		}
	}
	if len(f.Memcmp) > 0 {
		rule := Rule{Memcmp: f.Memcmp}
		compiled, err := rule.Compile(Streams{})
		if err != nil || !compiled.matchesMemcmp(tx) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func anyIn(keys, list []string) bool {
	for _, k := range keys {
		if contains(list, k) {
			return true
		}
	}
	return false
}

