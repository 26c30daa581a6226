package filter

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

func key(seed byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = seed
	}
	return k
}

func b58(seed byte) string { return base58.Encode(key(seed)) }

var defaults = Streams{Accounts: "acc", Slots: "slots", Transactions: "txs"}

func compile(t *testing.T, r Rule) *Filter {
	t.Helper()
	f, err := r.Compile(defaults)
	require.NoError(t, err)
	return f
}

func tx(keys ...[]byte) *model.TransactionEvent {
	return &model.TransactionEvent{
		Signature: make([]byte, 64),
		Message:   model.Message{AccountKeys: keys},
	}
}

func TestDenyBeatsAllow(t *testing.T) {
	f := compile(t, Rule{
		Programs:     []string{b58(1), b58(2)},
		ProgramsDeny: []string{b58(1)},
	})

	assert.False(t, f.WantsProgram(key(1)))
	assert.True(t, f.WantsProgram(key(2)))
	assert.False(t, f.WantsTransaction(tx(key(9), key(1))))
	assert.True(t, f.WantsTransaction(tx(key(9), key(2))))
	assert.False(t, f.WantsAccountUpdate(&model.AccountUpdate{Pubkey: key(1), Owner: key(1)}))
}

func TestProgramDenyListIgnoresAccounts(t *testing.T) {
	f := compile(t, Rule{
		ProgramsDeny: []string{b58(1)},
		Accounts:     []string{b58(1)},
	})

	assert.True(t, f.WantsAccount(key(1)))
	assert.False(t, f.WantsAccount(key(2)))
	assert.False(t, f.WantsProgram(key(1)))
	assert.True(t, f.WantsAccountUpdate(&model.AccountUpdate{Pubkey: key(1), Owner: key(1)}))
	assert.True(t, f.WantsTransaction(tx(key(9), key(1))))
}

func TestAccountAdmission(t *testing.T) {
	f := compile(t, Rule{Programs: []string{b58(1)}, Accounts: []string{b58(5)}})

	assert.True(t, f.WantsAccountUpdate(&model.AccountUpdate{Pubkey: key(9), Owner: key(1)}))
	assert.True(t, f.WantsAccountUpdate(&model.AccountUpdate{Pubkey: key(5), Owner: key(9)}))
	assert.False(t, f.WantsAccountUpdate(&model.AccountUpdate{Pubkey: key(9), Owner: key(9)}))
}

func TestTransactionGates(t *testing.T) {
	base := Rule{Programs: []string{b58(1)}}

	vote := tx(key(1))
	vote.IsVote = true
	failed := tx(key(1))
	failed.Meta.Err = "InsufficientFunds"

	cases := []struct {
		name string
		rule func(Rule) Rule
		tx   *model.TransactionEvent
		want bool
	}{
		{"plain", func(r Rule) Rule { return r }, tx(key(1)), true},
		{"untouched", func(r Rule) Rule { return r }, tx(key(3)), false},
		{"vote rejected", func(r Rule) Rule { return r }, vote, false},
		{"vote included", func(r Rule) Rule { r.IncludeVotes = true; return r }, vote, true},
		{"failed rejected", func(r Rule) Rule { return r }, failed, false},
		{"failed included", func(r Rule) Rule { r.IncludeFailed = true; return r }, failed, true},
		{"required present", func(r Rule) Rule { r.AccountRequired = []string{b58(4)}; return r }, tx(key(1), key(4)), true},
		{"required missing", func(r Rule) Rule { r.AccountRequired = []string{b58(4)}; return r }, tx(key(1)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := compile(t, tc.rule(base))
			assert.Equal(t, tc.want, f.WantsTransaction(tc.tx))
		})
	}
}

func TestLoadedAddressesCountAsTouched(t *testing.T) {
	f := compile(t, Rule{Programs: []string{b58(7)}})
	ev := tx(key(1))
	ev.Message.LoadedReadonly = [][]byte{key(7)}
	assert.True(t, f.WantsTransaction(ev))
}

func TestMemcmp(t *testing.T) {
	f := compile(t, Rule{
		Programs: []string{b58(1)},
		Memcmp:   []Memcmp{{Offset: 1, Bytes: "0xBEEF"}},
	})

	outer := tx(key(1))
	outer.Message.Instructions = []model.CompiledInstruction{{Data: []byte{0x00, 0xbe, 0xef, 0x01}}}
	assert.True(t, f.WantsTransaction(outer))

	inner := tx(key(1))
	inner.Message.Instructions = []model.CompiledInstruction{{Data: []byte{0xbe, 0xef}}}
	inner.Meta.InnerInstructions = []model.InnerInstructions{{Instructions: []model.InnerInstruction{{Data: []byte{9, 0xbe, 0xef}}}}}
	assert.True(t, f.WantsTransaction(inner))

	short := tx(key(1))
	short.Message.Instructions = []model.CompiledInstruction{{Data: []byte{0x00, 0xbe}}}
	assert.False(t, f.WantsTransaction(short))
}

func TestCompileRejectsBadKeys(t *testing.T) {
	_, err := Rule{Programs: []string{"0OIl"}}.Compile(defaults)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Config))

	_, err = Rule{Accounts: []string{base58.Encode([]byte{1, 2, 3})}}.Compile(defaults)
	assert.Error(t, err)

	_, err = Rule{Memcmp: []Memcmp{{Offset: 0, Bytes: "zz"}}}.Compile(defaults)
	assert.Error(t, err)
}

func TestStreamDefaults(t *testing.T) {
	f := compile(t, Rule{AccountStream: "custom"})
	assert.Equal(t, "custom", f.AccountStream)
	assert.Equal(t, "slots", f.SlotStream)
	assert.Equal(t, "txs", f.TransactionStream)
}

func TestSnapshotAdmission(t *testing.T) {
	without, err := Compile(RuleSet{Rules: []Rule{{Programs: []string{b58(1)}}}}, defaults)
	require.NoError(t, err)
	assert.False(t, without.AdmitsSnapshot())

	with, err := Compile(RuleSet{Rules: []Rule{
		{Programs: []string{b58(1)}},
		{PublishAllAccounts: true},
	}}, defaults)
	require.NoError(t, err)
	assert.True(t, with.AdmitsSnapshot())
	assert.False(t, with.Filters()[0].WantsSnapshot())
	assert.True(t, with.Filters()[1].WantsSnapshot())
	assert.Equal(t, "rule-1", with.Filters()[1].Name)
}

func TestParseRuleSet(t *testing.T) {
	yamlDoc := []byte(`
rules:
  - name: amm
    programs: [` + b58(1) + `]
    include_failed: true
    memcmp:
      - offset: 0
        bytes: "f8c69e91e17587c8"
pools:
  - pool_id: ` + b58(2) + `
    variant: dbc
    quote_vault: ` + b58(3) + `
`)
	rs, err := ParseRuleSet(yamlDoc)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "amm", rs.Rules[0].Name)
	assert.True(t, rs.Rules[0].IncludeFailed)
	assert.Equal(t, []Memcmp{{Offset: 0, Bytes: "f8c69e91e17587c8"}}, rs.Rules[0].Memcmp)
	require.Len(t, rs.Pools, 1)
	assert.Equal(t, model.PoolDBC, rs.Pools[0].Variant)
	assert.Equal(t, b58(3), rs.Pools[0].QuoteVault)

	jsonDoc := []byte(`{"rules":[{"accounts":["` + b58(4) + `"],"publish_all":true}]}`)
	rs, err = ParseRuleSet(jsonDoc)
	require.NoError(t, err)
	assert.True(t, rs.Rules[0].PublishAllAccounts)

	_, err = ParseRuleSet([]byte("rules: [unterminated"))
	assert.True(t, fault.Is(err, fault.Config))
}
