package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jackpot/internal/models"
	"jackpot/internal/store"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	maxWalletTickets    = 500

	retryBackoff = 20 * time.Millisecond
)

// Settings holds the lottery rules and the pluggable collaborators.
type Settings struct {
	TicketPrice   models.Lamports
	RoundDuration time.Duration
	HouseEdge     decimal.Decimal
	LotteryWallet string
	// MaxRetries bounds how many times an operation that lost a race with a
	// concurrent writer is attempted.
	MaxRetries int

	Picker   Picker
	Verifier PaymentVerifier
	Now      func() time.Time
	// OnRoundCompleted runs after the transaction completing a round commits.
	// Paying the winner out is its job, not the ledger's.
	OnRoundCompleted func(models.Round)
}

// DefaultSettings returns 0.1 SOL tickets, 30 minute rounds and a 5% house edge.
func DefaultSettings() Settings {
	return Settings{
		TicketPrice:   models.LamportsPerSOL / 10,
		RoundDuration: 30 * time.Minute,
		HouseEdge:     decimal.NewFromFloat(0.05),
		MaxRetries:    5,
		Picker:        CryptoPicker{},
		Verifier:      TrustingVerifier{},
		Now:           time.Now,
	}
}

// LotteryService owns the round lifecycle, ticket admission and drawing.
type LotteryService struct {
	store    *store.Store
	settings Settings

	// pickMu guards settings.Picker, which need not be safe for concurrent use.
	pickMu sync.Mutex
}

// NewLotteryService creates a LotteryService. Zero fields of settings take
// their DefaultSettings value.
func NewLotteryService(st *store.Store, settings Settings) *LotteryService {
	defaults := DefaultSettings()
	if settings.TicketPrice <= 0 {
		settings.TicketPrice = defaults.TicketPrice
	}
	if settings.RoundDuration <= 0 {
		settings.RoundDuration = defaults.RoundDuration
	}
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = defaults.MaxRetries
	}
	if settings.Picker == nil {
		settings.Picker = defaults.Picker
	}
	if settings.Verifier == nil {
		settings.Verifier = defaults.Verifier
	}
	if settings.Now == nil {
		settings.Now = defaults.Now
	}
	return &LotteryService{
		store:    st,
		settings: settings,
	}
}

func (s *LotteryService) now() time.Time {
	return s.settings.Now().UTC()
}

// TicketPrice returns the price of one entry.
func (s *LotteryService) TicketPrice() models.Lamports {
	return s.settings.TicketPrice
}

// withRetry runs fn again while it reports store.ErrConflict, backing off a
// little longer after each attempt.
func (s *LotteryService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.settings.MaxRetries; attempt++ {
		if err = fn(); !errors.Is(err, store.ErrConflict) {
			return err
		}
		logger.Warningf("%s: attempt %d lost a race with a concurrent writer: %v", op, attempt, err)
		if attempt == s.settings.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, s.settings.MaxRetries, err)
}

// CurrentRound returns the active round, or nil when there is none. An expired
// round that has not been rolled yet is still returned.
func (s *LotteryService) CurrentRound(ctx context.Context) (*models.Round, error) {
	round, err := s.store.ActiveRound(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return round, nil
}

// GetRound returns any round by id.
func (s *LotteryService) GetRound(ctx context.Context, id string) (*models.Round, error) {
	round, err := s.store.GetRound(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, id)
	}
	return round, err
}

// EnsureActiveRound returns the running round, creating one if none exists.
// When the active round has already expired it requests the drawing and
// returns the expired round as it was read; tickets can no longer attach to it.
func (s *LotteryService) EnsureActiveRound(ctx context.Context) (*models.Round, error) {
	var (
		round   *models.Round
		expired bool
	)
	err := s.withRetry(ctx, "ensure active round", func() error {
		return s.store.InTx(ctx, func(tx *store.Store) error {
			now := s.now()
			current, err := tx.ActiveRound(ctx)
			switch {
			case err == nil:
				round, expired = current, current.Expired(now)
				return nil
			case errors.Is(err, store.ErrNotFound):
				expired = false
				round, err = s.openRound(ctx, tx, now)
				return err
			default:
				return err
			}
		})
	})
	if err != nil {
		return nil, err
	}

	if expired {
		if _, err := s.CloseAndRoll(ctx, round.ID); err != nil {
			logger.Errorf("Drawing expired round #%d failed, leaving it to the sweep: %v", round.RoundNumber, err)
		}
	}
	return round, nil
}

// openRound creates the next active round inside tx.
func (s *LotteryService) openRound(ctx context.Context, tx *store.Store, now time.Time) (*models.Round, error) {
	number, err := tx.NextRoundNumber(ctx)
	if err != nil {
		return nil, err
	}
	round := &models.Round{
		ID:          uuid.NewString(),
		RoundNumber: number,
		StartTime:   now,
		EndTime:     now.Add(s.settings.RoundDuration),
		Status:      models.RoundActive,
	}
	if err := tx.CreateRound(ctx, round); err != nil {
		return nil, err
	}
	logger.Infof("Opened round #%d (%s), closing at %s", round.RoundNumber, round.ID, round.EndTime.Format(time.RFC3339))
	return round, nil
}

// CloseAndRoll draws the round and opens its successor in one transaction. It
// is a no-op reporting false when the round is no longer active, which makes
// it safe to call redundantly and concurrently.
func (s *LotteryService) CloseAndRoll(ctx context.Context, roundID string) (bool, error) {
	var completed *models.Round
	err := s.withRetry(ctx, "close round", func() error {
		return s.store.InTx(ctx, func(tx *store.Store) error {
			var err error
			completed, _, err = s.closeAndRoll(ctx, tx, roundID)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if completed == nil {
		return false, nil
	}
	s.roundCompleted(*completed)
	return true, nil
}

// closeAndRoll returns nil rounds when another caller already claimed the
// drawing.
func (s *LotteryService) closeAndRoll(ctx context.Context, tx *store.Store, roundID string) (completed, next *models.Round, err error) {
	round, err := tx.GetRound(ctx, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	if err != nil {
		return nil, nil, err
	}
	if round.Status != models.RoundActive {
		return nil, nil, nil
	}

	claimed, err := tx.TransitionRound(ctx, roundID, models.RoundActive, models.RoundDrawing)
	if err != nil || !claimed {
		return nil, nil, err
	}

	completed, err = s.draw(ctx, tx, roundID)
	if err != nil {
		return nil, nil, err
	}
	next, err = s.openRound(ctx, tx, s.now())
	if err != nil {
		return nil, nil, err
	}
	return completed, next, nil
}

// draw picks the winner of a round already in status drawing and completes it.
func (s *LotteryService) draw(ctx context.Context, tx *store.Store, roundID string) (*models.Round, error) {
	// Re-read under the drawing claim so the pool includes every credit.
	round, err := tx.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundDrawing {
		return nil, fmt.Errorf("%w: round %s is %s, want %s", ErrInconsistentState, roundID, round.Status, models.RoundDrawing)
	}

	tickets, err := tx.TicketsByRound(ctx, roundID, true)
	if err != nil {
		return nil, err
	}

	var (
		winner *string
		payout *models.Lamports
	)
	if len(tickets) > 0 {
		s.pickMu.Lock()
		wallet, ok := DrawWinner(tickets, s.settings.TicketPrice, s.settings.Picker)
		s.pickMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: round %s has %d tickets but no entries", ErrInconsistentState, roundID, len(tickets))
		}
		amount := Payout(round.TotalAmount, s.settings.HouseEdge)
		winner, payout = &wallet, &amount
	}

	if err := tx.CompleteRound(ctx, roundID, winner, payout); err != nil {
		return nil, err
	}
	round.Status = models.RoundCompleted
	round.Winner = winner
	round.WinningAmount = payout
	round.ActiveSlot = nil
	return round, nil
}

func (s *LotteryService) roundCompleted(round models.Round) {
	if round.Winner == nil {
		logger.Infof("Round #%d completed with no tickets", round.RoundNumber)
	} else {
		logger.Infof("Round #%d completed: winner %s, payout %s SOL of %s SOL pool",
			round.RoundNumber, *round.Winner, round.WinningAmount, round.TotalAmount)
	}
	if s.settings.OnRoundCompleted != nil {
		s.settings.OnRoundCompleted(round)
	}
}

// ListExpiredActiveRounds returns the active rounds whose end time is before now.
func (s *LotteryService) ListExpiredActiveRounds(ctx context.Context, now time.Time) ([]models.Round, error) {
	active, err := s.store.ActiveRounds(ctx)
	if err != nil {
		return nil, err
	}
	expired := make([]models.Round, 0, len(active))
	for _, r := range active {
		if r.EndTime.Before(now) {
			expired = append(expired, r)
		}
	}
	return expired, nil
}

// SweepResult reports which rounds a sweep drew.
type SweepResult struct {
	Processed bool     `json:"processed"`
	RoundIDs  []string `json:"roundIds"`
}

// SweepExpired draws every expired active round. A failure on one round does
// not stop the others; all failures are returned joined.
func (s *LotteryService) SweepExpired(ctx context.Context) (*SweepResult, error) {
	expired, err := s.ListExpiredActiveRounds(ctx, s.now())
	if err != nil {
		return nil, err
	}

	result := &SweepResult{RoundIDs: []string{}}
	var errs []error
	for _, round := range expired {
		rolled, err := s.CloseAndRoll(ctx, round.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("round #%d: %w", round.RoundNumber, err))
			continue
		}
		if rolled {
			result.Processed = true
			result.RoundIDs = append(result.RoundIDs, round.ID)
		}
	}
	return result, errors.Join(errs...)
}

// PurchaseRequest is a settled payment submitted for tickets.
type PurchaseRequest struct {
	WalletAddress        string
	TransactionSignature string
	Amount               models.Lamports
}

// PurchaseResult describes the credited ticket.
type PurchaseResult struct {
	TicketID         string `json:"ticketId"`
	RoundID          string `json:"roundId"`
	RoundNumber      int64  `json:"roundNumber"`
	TicketsPurchased int64  `json:"ticketsPurchased"`
}

// Purchase records a paid ticket against the running round. Each payment
// reference is credited at most once.
func (s *LotteryService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.TransactionSignature = strings.TrimSpace(req.TransactionSignature)
	if req.WalletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrInvalidPurchase)
	}
	if req.TransactionSignature == "" {
		return nil, fmt.Errorf("%w: transaction signature is required", ErrInvalidPurchase)
	}

	if err := s.checkNotCredited(ctx, s.store, req.TransactionSignature); err != nil {
		return nil, err
	}
	price := s.settings.TicketPrice
	if req.Amount < price {
		return nil, fmt.Errorf("%w: minimum ticket price is %s SOL, got %s SOL", ErrBelowMinimum, price, req.Amount)
	}
	if err := s.settings.Verifier.Verify(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnverified, err)
	}
	entries := req.Amount.Entries(price)

	var (
		result    *PurchaseResult
		completed *models.Round
	)
	err := s.withRetry(ctx, "purchase", func() error {
		return s.store.InTx(ctx, func(tx *store.Store) error {
			result, completed = nil, nil

			// The pre-check above ran outside this transaction.
			if err := s.checkNotCredited(ctx, tx, req.TransactionSignature); err != nil {
				return err
			}

			round, rolled, err := s.attachableRound(ctx, tx)
			if err != nil {
				return err
			}
			if round.TotalAmount > math.MaxInt64-req.Amount {
				return fmt.Errorf("%w: round #%d pool of %s SOL cannot take %s SOL more", ErrPoolOverflow, round.RoundNumber, round.TotalAmount, req.Amount)
			}

			credited, err := tx.CreditRound(ctx, round.ID, req.Amount, entries)
			if err != nil {
				return err
			}
			if !credited {
				return store.ErrConflict
			}

			ticket := &models.Ticket{
				ID:                   uuid.NewString(),
				RoundID:              round.ID,
				WalletAddress:        req.WalletAddress,
				TransactionSignature: req.TransactionSignature,
				Amount:               req.Amount,
				PurchaseTime:         s.now(),
				Verified:             true,
			}
			if err := tx.InsertTicket(ctx, ticket); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return fmt.Errorf("%w: %s", ErrDuplicatePayment, req.TransactionSignature)
				}
				return err
			}

			completed = rolled
			result = &PurchaseResult{
				TicketID:         ticket.ID,
				RoundID:          round.ID,
				RoundNumber:      round.RoundNumber,
				TicketsPurchased: entries,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if completed != nil {
		s.roundCompleted(*completed)
	}
	logger.Infof("Credited %d entries to %s in round #%d (%s SOL, tx %s)",
		entries, req.WalletAddress, result.RoundNumber, req.Amount, req.TransactionSignature)
	return result, nil
}

func (s *LotteryService) checkNotCredited(ctx context.Context, st *store.Store, signature string) error {
	_, err := st.TicketByTransaction(ctx, signature)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicatePayment, signature)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// attachableRound resolves the round a ticket may be credited to right now,
// rolling an expired round first. rolled is the round completed on the way.
func (s *LotteryService) attachableRound(ctx context.Context, tx *store.Store) (round, rolled *models.Round, err error) {
	now := s.now()
	current, err := tx.ActiveRound(ctx)
	if errors.Is(err, store.ErrNotFound) {
		round, err = s.openRound(ctx, tx, now)
		return round, nil, err
	}
	if err != nil {
		return nil, nil, err
	}
	if !current.Expired(now) {
		return current, nil, nil
	}

	rolled, next, err := s.closeAndRoll(ctx, tx, current.ID)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, nil, store.ErrConflict
	}
	return next, rolled, nil
}

// Stats summarises the running round and all-time totals.
func (s *LotteryService) Stats(ctx context.Context) (*models.LotteryStats, error) {
	current, err := s.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.LotteryStats{
		TotalRounds:      totals.Rounds,
		TotalTicketsSold: totals.TicketsSold,
		TotalPrizesPaid:  totals.PrizesPaid,
		TicketPrice:      s.settings.TicketPrice,
		LotteryWallet:    s.settings.LotteryWallet,
	}
	if current != nil {
		stats.CurrentJackpot = current.TotalAmount
		stats.CurrentTicketsSold = current.TicketsSold
		stats.TimeToNextDraw = current.TimeRemaining(s.now()).Milliseconds()
	}
	return stats, nil
}

// History returns the most recent completed rounds, newest first.
func (s *LotteryService) History(ctx context.Context, limit int) ([]models.Round, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rounds, err := s.store.CompletedRounds(ctx, limit)
	if err != nil {
		return nil, err
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	return rounds, nil
}

// UserTickets returns the wallet's tickets in the active round.
func (s *LotteryService) UserTickets(ctx context.Context, wallet string) ([]models.Ticket, error) {
	current, err := s.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return []models.Ticket{}, nil
	}
	tickets, err := s.store.TicketsByRoundAndWallet(ctx, current.ID, wallet)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// WalletTickets returns the wallet's tickets across every round, newest first.
func (s *LotteryService) WalletTickets(ctx context.Context, wallet string) ([]models.Ticket, error) {
	tickets, err := s.store.TicketsByWallet(ctx, wallet, maxWalletTickets)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// ResetAll deletes every round and ticket.
func (s *LotteryService) ResetAll(ctx context.Context) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		tickets, rounds, err := tx.Reset(ctx)
		if err != nil {
			return err
		}
		logger.Warningf("Reset ledger: deleted %d tickets and %d rounds", tickets, rounds)
		return nil
	})
}

// Ping reports whether the ledger is reachable.
func (s *LotteryService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
