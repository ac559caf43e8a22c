package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"jackpot/internal/models"
)

// For any sequence of payments, some of them replays, the round pool equals
// the sum of the credited payments and its entry count equals the entries of
// the recorded tickets.
func TestPurchaseConservationProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	properties := gopter.NewProperties(params)

	properties.Property("pool and entries match the credited tickets", prop.ForAll(
		func(amounts []int64, replayEvery int) bool {
			ctx := context.Background()
			service, st, _ := newTestService(t, nil)
			price := service.TicketPrice()

			var (
				wantPool    models.Lamports
				wantEntries int64
			)
			for i, raw := range amounts {
				amount := models.Lamports(raw)
				sig := fmt.Sprintf("sig-%d", i)
				if i > 0 && i%replayEvery == 0 {
					sig = fmt.Sprintf("sig-%d", i-1)
				}
				_, err := service.Purchase(ctx, PurchaseRequest{WalletAddress: fmt.Sprintf("w%d", i%3), TransactionSignature: sig, Amount: amount})
				if err == nil {
					wantPool += amount
					wantEntries += amount.Entries(price)
				}
			}

			round, err := st.ActiveRound(ctx)
			if wantEntries == 0 {
				return err != nil
			}
			if err != nil {
				return false
			}
			tickets, err := st.TicketsByRound(ctx, round.ID, true)
			if err != nil {
				return false
			}
			pool := newEntryPool(tickets, price)
			return round.TotalAmount == wantPool &&
				round.TicketsSold == wantEntries &&
				pool.total == wantEntries &&
				int64(len(pool.Candidates())) == wantEntries
		},
		gen.SliceOfN(8, gen.Int64Range(0, int64(sol))),
		gen.IntRange(2, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestEntriesProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("entries are the whole units of the price", prop.ForAll(
		func(amount, price int64) bool {
			n := models.Lamports(amount).Entries(models.Lamports(price))
			return n*price <= amount && amount < (n+1)*price
		},
		gen.Int64Range(0, 1000*int64(sol)),
		gen.Int64Range(1, int64(sol)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
