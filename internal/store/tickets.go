package store

import (
	"context"

	"jackpot/internal/models"
)

// TicketByTransaction looks a ticket up by its payment reference.
func (s *Store) TicketByTransaction(ctx context.Context, signature string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Take(&ticket, "transaction_signature = ?", signature).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ticket, nil
}

// InsertTicket records a ticket. A reused payment reference yields ErrDuplicate.
func (s *Store) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	return translate(s.db.WithContext(ctx).Create(ticket).Error)
}

// TicketsByRound returns a round's tickets in purchase order.
func (s *Store) TicketsByRound(ctx context.Context, roundID string, verifiedOnly bool) ([]models.Ticket, error) {
	query := s.db.WithContext(ctx).Where("round_id = ?", roundID)
	if verifiedOnly {
		query = query.Where("verified = ?", true)
	}
	var tickets []models.Ticket
	if err := query.Order("purchase_time ASC, id ASC").Find(&tickets).Error; err != nil {
		return nil, translate(err)
	}
	return tickets, nil
}

func (s *Store) TicketsByRoundAndWallet(ctx context.Context, roundID, wallet string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("round_id = ? AND wallet_address = ?", roundID, wallet).
		Order("purchase_time ASC, id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, translate(err)
	}
	return tickets, nil
}

// TicketsByWallet returns a wallet's tickets across all rounds, newest first.
func (s *Store) TicketsByWallet(ctx context.Context, wallet string, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("wallet_address = ?", wallet).
		Order("purchase_time DESC, id DESC").
		Limit(limit).
		Find(&tickets).Error
	if err != nil {
		return nil, translate(err)
	}
	return tickets, nil
}
