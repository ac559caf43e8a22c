package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"jackpot/internal/models"
)

// entryPool is the weighted candidate list of a round. Each ticket occupies a
// contiguous run of entries, so a uniform pick over [0, total) gives every
// entry the same chance.
type entryPool struct {
	wallets []string
	// ends[i] is one past the last entry index owned by wallets[i].
	ends  []int64
	total int64
}

func newEntryPool(tickets []models.Ticket, unitPrice models.Lamports) *entryPool {
	pool := &entryPool{}
	for _, t := range tickets {
		if !t.Verified {
			continue
		}
		entries := t.Amount.Entries(unitPrice)
		if entries <= 0 {
			continue
		}
		pool.total += entries
		pool.wallets = append(pool.wallets, t.WalletAddress)
		pool.ends = append(pool.ends, pool.total)
	}
	return pool
}

// walletAt returns the owner of entry k, 0 <= k < total.
func (p *entryPool) walletAt(k int64) string {
	i := sort.Search(len(p.ends), func(i int) bool { return p.ends[i] > k })
	return p.wallets[i]
}

// Candidates expands the pool into one wallet per entry.
func (p *entryPool) Candidates() []string {
	out := make([]string, 0, p.total)
	var start int64
	for i, end := range p.ends {
		for ; start < end; start++ {
			out = append(out, p.wallets[i])
		}
	}
	return out
}

// DrawWinner picks a winning wallet among the verified tickets, weighting each
// by its entry count. It reports false when no ticket holds an entry.
func DrawWinner(tickets []models.Ticket, unitPrice models.Lamports, picker Picker) (string, bool) {
	pool := newEntryPool(tickets, unitPrice)
	if pool.total == 0 {
		return "", false
	}
	return pool.walletAt(picker.Int64N(pool.total)), true
}

// Payout is the winner's share of a pool after the house edge, rounded down to
// whole lamports.
func Payout(pool models.Lamports, houseEdge decimal.Decimal) models.Lamports {
	share := decimal.NewFromInt(1).Sub(houseEdge)
	return models.Lamports(decimal.NewFromInt(int64(pool)).Mul(share).Floor().IntPart())
}
