package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// ExpirySummary reports one sweep
type ExpirySummary struct {
	Users  int `json:"users"`
	Points int `json:"points"`
	Failed int `json:"failed"`
}

// ExpireDue moves every overdue lot's remainder from available to expired.
// Each user is handled in its own transaction so one failure does not block
// the rest of the sweep.
func (s *Service) ExpireDue(ctx context.Context) (ExpirySummary, error) {
	now := s.now()
	var summary ExpirySummary
	// Users that fail are skipped by later batches. Everyone else has no
	// overdue lots left once expireUser succeeds.
	failed := make([]uuid.UUID, 0)

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		users, err := s.repo.UsersWithExpiredLots(ctx, now, failed, s.batchSize)
		if err != nil {
			return summary, err
		}

		for _, userID := range users {
			profile, points, err := s.expireUser(ctx, userID, now)
			if err != nil {
				failed = append(failed, userID)
				summary.Failed++
				log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to expire loyalty points")
				continue
			}
			if points == 0 {
				continue
			}
			summary.Users++
			summary.Points += points
			s.publishBalance(ctx, profile, "expiry")
		}

		if len(users) < s.batchSize {
			break
		}
	}

	if summary.Points > 0 || summary.Failed > 0 {
		log.Info().
			Int("users", summary.Users).
			Int("points", summary.Points).
			Int("failed", summary.Failed).
			Msg("loyalty points expired")
	}
	return summary, nil
}

func (s *Service) expireUser(ctx context.Context, userID uuid.UUID, now time.Time) (*Profile, int, error) {
	var profile *Profile
	var expired int
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.repo.LockProfileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}

		n, err := s.expireLotsTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		p.AvailablePoints -= n
		p.ExpiredPoints += n
		profile, expired = p, n
		return nil
	})
	return profile, expired, err
}

// expireLotsTx writes one expired entry per overdue lot and zeroes the lots.
// The caller holds the profile lock.
func (s *Service) expireLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	lots, err := s.repo.ExpiredLotsTx(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, lot := range lots {
		entry := &LoyaltyPoint{
			ID:          uuid.New(),
			UserID:      userID,
			Points:      -lot.Remaining,
			Type:        EntryExpired,
			Source:      SourceExpiry,
			Description: fmt.Sprintf("%d points earned on %s expired", lot.Remaining, lot.CreatedAt.Format("2006-01-02")),
			CreatedAt:   now,
		}
		if err := s.repo.InsertEntryTx(ctx, tx, entry); err != nil {
			return 0, err
		}
		if err := s.repo.SetLotRemainingTx(ctx, tx, lot.EntryID, 0); err != nil {
			return 0, err
		}
		total += lot.Remaining
	}

	if total > 0 {
		if err := s.repo.ExpireTx(ctx, tx, userID, total, now); err != nil {
			return 0, err
		}
	}
	return total, nil
}
