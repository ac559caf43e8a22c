package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"jackpot/internal/models"
)

// ActiveRounds returns every round in status active, oldest first. A healthy
// ledger holds at most one.
func (s *Store) ActiveRounds(ctx context.Context) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RoundActive).
		Order("round_number ASC").
		Find(&rounds).Error
	if err != nil {
		return nil, translate(err)
	}
	return rounds, nil
}

// ActiveRound returns the active round or ErrNotFound.
func (s *Store) ActiveRound(ctx context.Context) (*models.Round, error) {
	var round models.Round
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RoundActive).
		Order("round_number ASC").
		Take(&round).Error
	if err != nil {
		return nil, translate(err)
	}
	return &round, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (*models.Round, error) {
	var round models.Round
	if err := s.db.WithContext(ctx).Take(&round, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &round, nil
}

// NextRoundNumber returns one past the highest round number ever used, or 1.
func (s *Store) NextRoundNumber(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Select("COALESCE(MAX(round_number), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, translate(err)
	}
	return last + 1, nil
}

// CreateRound inserts a round. Losing a race on the round number or on the
// active slot is reported as ErrConflict.
func (s *Store) CreateRound(ctx context.Context, round *models.Round) error {
	if round.Status == models.RoundActive {
		slot := 1
		round.ActiveSlot = &slot
	}
	err := translate(s.db.WithContext(ctx).Create(round).Error)
	if errors.Is(err, ErrDuplicate) {
		return ErrConflict
	}
	return err
}

// TransitionRound moves a round from one status to another only if it is still
// in the expected status. It reports whether this caller made the change.
func (s *Store) TransitionRound(ctx context.Context, id string, from, to models.RoundStatus) (bool, error) {
	updates := map[string]any{"status": to}
	if to != models.RoundActive {
		updates["active_slot"] = nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteRound records the drawing outcome of a round in status drawing.
// A round drawn with no tickets has no winner and no payout.
func (s *Store) CompleteRound(ctx context.Context, id string, winner *string, payout *models.Lamports) error {
	updates := map[string]any{
		"status":         models.RoundCompleted,
		"winner":         nil,
		"winning_amount": nil,
		"active_slot":    nil,
	}
	if winner != nil && payout != nil {
		updates["winner"] = *winner
		updates["winning_amount"] = int64(*payout)
	}
	res := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ? AND status = ?", id, models.RoundDrawing).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// CreditRound adds a purchase to an active round's pool and entry count. It
// reports false when the round is no longer active.
func (s *Store) CreditRound(ctx context.Context, id string, amount models.Lamports, entries int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ? AND status = ?", id, models.RoundActive).
		Updates(map[string]any{
			"total_amount": gorm.Expr("total_amount + ?", int64(amount)),
			"tickets_sold": gorm.Expr("tickets_sold + ?", entries),
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompletedRounds returns completed rounds, newest first.
func (s *Store) CompletedRounds(ctx context.Context, limit int) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RoundCompleted).
		Order("round_number DESC").
		Limit(limit).
		Find(&rounds).Error
	if err != nil {
		return nil, translate(err)
	}
	return rounds, nil
}

// Totals aggregates all rounds ever recorded.
func (s *Store) Totals(ctx context.Context) (models.Totals, error) {
	var totals models.Totals
	err := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Select(
			"COUNT(*) AS rounds, "+
				"CAST(COALESCE(SUM(tickets_sold), 0) AS BIGINT) AS tickets_sold, "+
				"CAST(COALESCE(SUM(CASE WHEN status = ? THEN winning_amount ELSE 0 END), 0) AS BIGINT) AS prizes_paid",
			models.RoundCompleted,
		).
		Scan(&totals).Error
	return totals, translate(err)
}

// Reset deletes every ticket and every round.
func (s *Store) Reset(ctx context.Context) (tickets, rounds int64, err error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.Ticket{})
	if res.Error != nil {
		return 0, 0, translate(res.Error)
	}
	tickets = res.RowsAffected

	res = s.db.WithContext(ctx).Where("1 = 1").Delete(&models.Round{})
	if res.Error != nil {
		return 0, 0, translate(res.Error)
	}
	return tickets, res.RowsAffected, nil
}
