package client

import (
	"context"

	"github.com/mezonai/balances-maintenance/types"
)

// PageFetcher returns up to pageSize entries whose keys follow startKey.
// An empty startKey means the beginning of the map.
type PageFetcher func(ctx context.Context, startKey types.Address, pageSize int) ([]types.AccountEntry, error)

type pagedIterator struct {
	ctx      context.Context
	fetch    PageFetcher
	pageSize int

	page    []types.AccountEntry
	pos     int
	lastKey types.Address
	done    bool
	err     error
	current types.AccountEntry
}

// NewPagedIterator turns a page fetcher into an AccountIterator. Pages are
// requested lazily; a short page ends the iteration.
func NewPagedIterator(ctx context.Context, pageSize int, fetch PageFetcher) AccountIterator {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &pagedIterator{ctx: ctx, fetch: fetch, pageSize: pageSize}
}

func (it *pagedIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		page, err := it.fetch(it.ctx, it.lastKey, it.pageSize)
		if err != nil {
			it.err = err
			return false
		}
		if len(page) < it.pageSize {
			it.done = true
		}
		if len(page) == 0 {
			return false
		}
		it.page, it.pos = page, 0
		it.lastKey = page[len(page)-1].Address
	}
	it.current = it.page[it.pos]
	it.pos++
	return true
}

func (it *pagedIterator) Entry() types.AccountEntry {
	return it.current
}

func (it *pagedIterator) Err() error {
	return it.err
}
