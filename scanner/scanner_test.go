package scanner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/client/memchain"
	"github.com/mezonai/balances-maintenance/invariants"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/monitoring"
	"github.com/mezonai/balances-maintenance/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func address(i int) types.Address {
	pub := make([]byte, types.PublicKeySize)
	pub[30], pub[31] = byte(i>>8), byte(i)
	return types.AddressFromPublicKey(pub)
}

// pagedSource serves fixed entries in pages and counts the requests.
type pagedSource struct {
	entries []types.AccountEntry
	failAt  int
	calls   int
}

func (p *pagedSource) IterateAccounts(ctx context.Context, pageSize int) client.AccountIterator {
	return client.NewPagedIterator(ctx, pageSize, func(_ context.Context, _ types.Address, size int) ([]types.AccountEntry, error) {
		p.calls++
		if p.failAt > 0 && p.calls == p.failAt {
			return nil, errors.New("connection closed")
		}
		start := (p.calls - 1) * size
		if start >= len(p.entries) {
			return nil, nil
		}
		end := start + size
		if end > len(p.entries) {
			end = len(p.entries)
		}
		return p.entries[start:end], nil
	})
}

func sourceWithNonces(n int) *pagedSource {
	src := &pagedSource{}
	for i := 0; i < n; i++ {
		src.entries = append(src.entries, types.AccountEntry{
			Address: address(i),
			Info:    types.AccountInfo{Nonce: uint32(i)},
		})
	}
	return src
}

func TestScan_CollectsFailuresAcrossPages(t *testing.T) {
	src := sourceWithNonces(13)
	s := New(src, nil, nil)
	s.PageSize = 3

	res, err := s.Scan(context.Background(), "nonce", func(acc types.AccountInfo) bool {
		return acc.Nonce != 2 && acc.Nonce != 9
	})
	require.NoError(t, err)

	assert.Equal(t, 13, res.Total)
	assert.Equal(t, []types.Address{address(2), address(9)}, types.Addresses(res.Failed))
	assert.Equal(t, 5, src.calls)
}

func TestScan_CollectAllKeepsOrder(t *testing.T) {
	src := sourceWithNonces(7)
	s := New(src, nil, nil)
	s.PageSize = 2

	res, err := s.Scan(context.Background(), "all accounts", invariants.CollectAll)
	require.NoError(t, err)
	assert.Equal(t, types.Addresses(src.entries), types.Addresses(res.Failed))
}

func TestScan_Empty(t *testing.T) {
	res, err := New(&pagedSource{}, nil, nil).Scan(context.Background(), "empty", invariants.CollectAll)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Failed)
}

func TestScan_PropagatesIteratorError(t *testing.T) {
	src := sourceWithNonces(10)
	src.failAt = 2
	s := New(src, nil, nil)
	s.PageSize = 4

	_, err := s.Scan(context.Background(), "broken", invariants.CollectAll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestScan_LogsProgressAndSummary(t *testing.T) {
	var out bytes.Buffer
	src := sourceWithNonces(13)
	s := New(src, logx.NewWriter(&out, logx.LevelDebug), nil)
	s.PageSize = 4
	s.ProgressInterval = 5

	_, err := s.Scan(context.Background(), "odd", func(acc types.AccountInfo) bool { return acc.Nonce != 3 })
	require.NoError(t, err)

	logs := out.String()
	assert.Contains(t, logs, "Checked 5 accounts")
	assert.Contains(t, logs, "Checked 10 accounts")
	assert.NotContains(t, logs, "Checked 0 accounts")
	assert.Contains(t, logs, "Account "+string(address(3))+" does not meet given predicate! Check name: odd!")
	assert.Contains(t, logs, "Total accounts that match given predicate odd is 13")
	assert.Equal(t, 1, strings.Count(logs, "does not meet given predicate"))
}

func TestScan_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(sourceWithNonces(4), nil, monitoring.NewMetrics(reg))

	_, err := s.Scan(context.Background(), "all", invariants.CollectAll)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "balances_maintenance_predicate_failures_total" {
			found = true
			assert.Equal(t, 4.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestScan_SanityOnRandomChain(t *testing.T) {
	ed := uint256.NewInt(500)
	chain := memchain.New(66, ed)
	f := fuzz.NewWithSeed(3).NilChance(0).Funcs(
		func(v *uint256.Int, c fuzz.Continue) { v.SetUint64(uint64(c.Intn(1200))) },
	)

	checker := invariants.CheckerFor(invariants.AtLeastUpgrade, ed)
	want := 0
	for i := 0; i < 2500; i++ {
		var info types.AccountInfo
		f.Fuzz(&info)
		info.Providers, info.Consumers = uint32(i%3), uint32(i%2)
		if !checker.Check(info) {
			want++
		}
		chain.SetAccount(address(i), info)
	}

	res, err := New(chain, nil, nil).Scan(context.Background(), "sanity", invariants.AsPredicate(checker))
	require.NoError(t, err)
	assert.Equal(t, 2500, res.Total)
	assert.Len(t, res.Failed, want)
	for _, e := range res.Failed {
		assert.False(t, checker.Check(e.Info))
	}
	assert.Equal(t, 3, chain.PageCalls())
}
