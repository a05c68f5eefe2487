// Package scanner walks every account on chain and collects those that fail
// a predicate.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/invariants"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/monitoring"
	"github.com/mezonai/balances-maintenance/types"
)

const (
	DefaultPageSize         = 1000
	DefaultProgressInterval = 5000
)

// AccountSource is the part of the chain client the scanner reads from.
type AccountSource interface {
	IterateAccounts(ctx context.Context, pageSize int) client.AccountIterator
}

type Result struct {
	Total  int
	Failed []types.AccountEntry
}

type Scanner struct {
	src     AccountSource
	log     *logx.Logger
	metrics *monitoring.Metrics

	PageSize         int
	ProgressInterval int
}

func New(src AccountSource, log *logx.Logger, metrics *monitoring.Metrics) *Scanner {
	return &Scanner{
		src:              src,
		log:              log,
		metrics:          metrics,
		PageSize:         DefaultPageSize,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Scan visits all accounts in storage order and returns the ones for which
// pred is false, in the order they were seen. name only labels logs and
// metrics. Iterator errors abort the scan.
func (s *Scanner) Scan(ctx context.Context, name string, pred invariants.Predicate) (*Result, error) {
	started := time.Now()
	res := &Result{}

	it := s.src.IterateAccounts(ctx, s.PageSize)
	for i := 0; it.Next(); i++ {
		entry := it.Entry()
		res.Total++

		failed := !pred(entry.Info)
		if failed {
			s.log.Debugf("SCAN", "Account %s does not meet given predicate! Check name: %s!", entry.Address, name)
			res.Failed = append(res.Failed, entry)
		}
		s.metrics.RecordScanned(name, failed)

		if s.ProgressInterval > 0 && i > 0 && i%s.ProgressInterval == 0 {
			s.log.Infof("SCAN", "Checked %d accounts", i)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	s.metrics.RecordScanDuration(name, time.Since(started))
	s.log.Infof("SCAN", "Total accounts that match given predicate %s is %d", name, res.Total)
	return res, nil
}
