package projection

import (
	"sync"

	"MarginCore/internal/fp"
	"MarginCore/internal/ledger"
	"MarginCore/internal/state"
)

// FundingEntry is one settled funding epoch for a market.
type FundingEntry struct {
	Market     state.PerpMarketIndex
	LongDelta  fp.Fixed
	ShortDelta fp.Fixed
	Sequence   int64
	Timestamp  int64
}

// FundingHistory keeps recent funding settlements in memory for the query
// surface, bounded to maxEntries; older epochs live in margin.funding_history.
type FundingHistory struct {
	mu         sync.RWMutex
	entries    []FundingEntry
	maxEntries int
}

func NewFundingHistory(maxEntries int) *FundingHistory {
	return &FundingHistory{maxEntries: maxEntries}
}

// AddFromJournal records a funding_settle journal.
func (h *FundingHistory) AddFromJournal(j ledger.Journal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, FundingEntry{
		Market:     j.Market,
		LongDelta:  j.Amount,
		ShortDelta: j.Secondary,
		Sequence:   j.Sequence,
		Timestamp:  j.Timestamp,
	})
	if len(h.entries) > h.maxEntries {
		h.entries = h.entries[len(h.entries)-h.maxEntries:]
	}
}

// QueryByMarket returns the most recent entries for a market, newest first.
func (h *FundingHistory) QueryByMarket(market state.PerpMarketIndex, limit int) []FundingEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]FundingEntry, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if h.entries[i].Market == market {
			result = append(result, h.entries[i])
		}
	}
	return result
}
