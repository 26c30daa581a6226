package ingest

import (
	"bytes"

	"github.com/mr-tron/base58"

	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/model"
)

// Processor turns upstream updates for one pool variant into pool events.
type Processor interface {
	BuildFilters(pool model.PoolMeta) filter.SubscribeRequest
	HandleUpdate(pool model.PoolMeta, upd Update) ([]model.PoolEvent, error)
}

// Registry maps pool variants to their processors.
type Registry struct {
	procs map[model.PoolVariant]Processor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[model.PoolVariant]Processor)}
}

// DefaultRegistry registers the dbc, amm and damm processors.
func DefaultRegistry() (*Registry, error) {
	dbc, err := NewDBCProcessor()
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	r.Register(model.PoolDBC, dbc)
	r.Register(model.PoolAMM, ActivityProcessor{Variant: model.PoolAMM})
	r.Register(model.PoolDAMM, ActivityProcessor{Variant: model.PoolDAMM})
	return r, nil
}

func (r *Registry) Register(v model.PoolVariant, p Processor) {
	r.procs[v] = p
}

func (r *Registry) Get(v model.PoolVariant) (Processor, bool) {
	p, ok := r.procs[v]
	return p, ok
}

// SubscribeRequest merges the filters of every pool with a known variant.
func (r *Registry) SubscribeRequest(pools []model.PoolMeta) filter.SubscribeRequest {
	req := filter.NewSubscribeRequest()
	for _, pool := range pools {
		if p, ok := r.procs[pool.Variant]; ok {
			req.Merge(p.BuildFilters(pool))
		}
	}
	return req
}

// Match returns the first pool upd belongs to. An account belongs to a pool
// when it is the pool itself or its quote vault; a transaction belongs to a
// pool when the pool is among its keys.
func (r *Registry) Match(pools []model.PoolMeta, upd Update) (model.PoolMeta, bool) {
	switch {
	case upd.Account != nil:
		key := base58.Encode(upd.Account.Pubkey)
		for _, pool := range pools {
			if pool.PoolID == key || (pool.QuoteVault != "" && pool.QuoteVault == key) {
				return pool, true
			}
		}
	case upd.Transaction != nil:
		keys := upd.Transaction.Message.AllKeys()
		for _, pool := range pools {
			id, err := base58.Decode(pool.PoolID)
			if err != nil {
				continue
			}
			for _, k := range keys {
				if bytes.Equal(k, id) {
					return pool, true
				}
			}
		}
	}
	return model.PoolMeta{}, false
}

// poolTxFilter watches transactions that include the pool account.
func poolTxFilter(pool model.PoolMeta) filter.SubscribeRequest {
	req := filter.NewSubscribeRequest()
	req.Transactions[pool.PoolID+"_tx"] = filter.TransactionFilter{
		AccountInclude: []string{pool.PoolID},
	}
	return req
}
