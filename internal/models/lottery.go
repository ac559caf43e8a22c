package models

import (
	"time"
)

// RoundStatus is the lifecycle state of a lottery round.
type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundDrawing   RoundStatus = "drawing"
	RoundCompleted RoundStatus = "completed"
)

// Round is one timed betting period with a single pooled jackpot and a single
// drawing.
type Round struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RoundNumber   int64       `gorm:"not null;uniqueIndex:idx_rounds_round_number" json:"roundNumber"`
	StartTime     time.Time   `gorm:"not null" json:"startTime"`
	EndTime       time.Time   `gorm:"not null;index:idx_rounds_end_time" json:"endTime"`
	TotalAmount   Lamports    `gorm:"type:bigint;not null;default:0" json:"totalAmount"`
	TicketsSold   int64       `gorm:"not null;default:0" json:"ticketsSold"`
	Status        RoundStatus `gorm:"type:varchar(16);not null;index:idx_rounds_status" json:"status"`
	Winner        *string     `gorm:"type:varchar(64)" json:"winner,omitempty"`
	WinningAmount *Lamports   `gorm:"type:bigint" json:"winningAmount,omitempty"`

	// ActiveSlot is 1 while the round is active and NULL otherwise. The unique
	// index on it lets the database itself reject a second active round.
	ActiveSlot *int `gorm:"uniqueIndex:idx_rounds_active_slot" json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Round) TableName() string {
	return "rounds"
}

// Expired reports whether the round's end time has been reached at now.
func (r *Round) Expired(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// TimeRemaining returns the time left until the round's end, never negative.
func (r *Round) TimeRemaining(now time.Time) time.Duration {
	if left := r.EndTime.Sub(now); left > 0 {
		return left
	}
	return 0
}

// Ticket is one recorded, paid entry into a round.
type Ticket struct {
	ID                   string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RoundID              string    `gorm:"type:varchar(36);not null;index:idx_tickets_round_id" json:"roundId"`
	WalletAddress        string    `gorm:"type:varchar(64);not null;index:idx_tickets_wallet_address" json:"walletAddress"`
	TransactionSignature string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_tickets_transaction_signature" json:"transactionSignature"`
	Amount               Lamports  `gorm:"type:bigint;not null" json:"amount"`
	PurchaseTime         time.Time `gorm:"not null" json:"purchaseTime"`
	Verified             bool      `gorm:"not null" json:"verified"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Totals aggregates every round ever recorded.
type Totals struct {
	Rounds      int64    `json:"totalRounds"`
	TicketsSold int64    `json:"totalTicketsSold"`
	PrizesPaid  Lamports `json:"totalPrizesPaid"`
}

// LotteryStats is the read model shown next to the running round.
type LotteryStats struct {
	CurrentJackpot     Lamports `json:"currentJackpot"`
	CurrentTicketsSold int64    `json:"currentTicketsSold"`
	// TimeToNextDraw is in milliseconds.
	TimeToNextDraw   int64    `json:"timeToNextDraw"`
	TotalRounds      int64    `json:"totalRounds"`
	TotalTicketsSold int64    `json:"totalTicketsSold"`
	TotalPrizesPaid  Lamports `json:"totalPrizesPaid"`
	TicketPrice      Lamports `json:"ticketPrice"`
	LotteryWallet    string   `json:"lotteryWallet"`
}
