package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
)

// PointsRewardID marks redemptions of an arbitrary points amount for a fixed discount
const PointsRewardID = "POINTS"

// PointValue is the most one point can be worth as a discount, in SAR
var PointValue = decimal.RequireFromString("0.10")

// MaxDiscountFor returns the largest fixed discount points can buy
func MaxDiscountFor(points int) decimal.Decimal {
	return PointValue.Mul(decimal.NewFromInt(int64(points)))
}

// RedemptionResult is what a redemption produced. On a replay CartItem is nil
// and the stored Redemption references the line instead.
type RedemptionResult struct {
	Redemption *Redemption
	Reward     Reward
	Discount   *discount.Discount
	CartItem   *cart.Item
	Profile    *Profile
	Replayed   bool
}

// Redeem spends points on a catalog reward. A retry of a committed request
// replays its result even after the reward has been withdrawn.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, rewardID, requestID string) (*RedemptionResult, error) {
	if requestID == "" {
		return nil, ErrRequestIDRequired
	}
	reward, ok := s.catalog.Get(rewardID)
	if !ok {
		return nil, ErrRewardNotFound
	}

	if prior, err := s.replayRedemption(ctx, userID, reward, requestID); err != nil || prior != nil {
		return prior, err
	}
	if !s.catalog.IsAvailable(reward) {
		return nil, ErrRewardUnavailable
	}
	return s.apply(ctx, userID, reward, requestID)
}

// RedeemPoints spends an arbitrary amount of points for a fixed discount
func (s *Service) RedeemPoints(ctx context.Context, userID uuid.UUID, points int, amount decimal.Decimal, requestID string) (*RedemptionResult, error) {
	if requestID == "" {
		return nil, ErrRequestIDRequired
	}
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	if !amount.IsPositive() || amount.GreaterThan(MaxDiscountFor(points)) {
		return nil, ErrInvalidDiscountAmount
	}

	reward := Reward{
		ID:             PointsRewardID,
		Name:           LocalizedText{En: fmt.Sprintf("%s SAR discount", amount.StringFixed(2))},
		PointsRequired: points,
		DiscountType:   DiscountFixed,
		DiscountValue:  amount.Round(2),
		IsActive:       true,
	}
	if prior, err := s.replayRedemption(ctx, userID, reward, requestID); err != nil || prior != nil {
		return prior, err
	}
	return s.apply(ctx, userID, reward, requestID)
}

// apply debits the points and issues the reward in one transaction
func (s *Service) apply(ctx context.Context, userID uuid.UUID, reward Reward, requestID string) (*RedemptionResult, error) {
	var result *RedemptionResult
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()

		profile, err := s.repo.LockProfileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if profile == nil || !profile.IsActive {
			return ErrProfileNotFound
		}

		expired, err := s.expireLotsTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		profile.AvailablePoints -= expired
		profile.ExpiredPoints += expired

		if profile.AvailablePoints < reward.PointsRequired {
			return &InsufficientPointsError{Current: profile.AvailablePoints, Required: reward.PointsRequired}
		}

		if err := s.repo.DebitTx(ctx, tx, userID, reward.PointsRequired, now); err != nil {
			return err
		}
		if err := s.consumeLotsTx(ctx, tx, userID, reward.PointsRequired, now); err != nil {
			return err
		}

		entry := &LoyaltyPoint{
			ID:          uuid.New(),
			UserID:      userID,
			Points:      -reward.PointsRequired,
			Type:        EntryUsed,
			Source:      SourceRedemption,
			Description: fmt.Sprintf("Redeemed reward: %s", reward.Name.En),
			CreatedAt:   now,
		}
		entry.RequestID.String, entry.RequestID.Valid = requestID, true
		if err := s.repo.InsertEntryTx(ctx, tx, entry); err != nil {
			return err
		}

		red := &Redemption{
			ID:        uuid.New(),
			UserID:    userID,
			RewardID:  reward.ID,
			Points:    reward.PointsRequired,
			RequestID: requestID,
			EntryID:   entry.ID,
			CreatedAt: now,
		}
		res := &RedemptionResult{Redemption: red, Reward: reward}

		switch reward.DiscountType {
		case DiscountPercentage, DiscountFixed:
			d := &discount.Discount{
				ID:          uuid.New(),
				UserID:      userID,
				RewardID:    reward.ID,
				Description: reward.Name.En,
				Kind:        discount.Kind(reward.DiscountType),
				Value:       reward.DiscountValue,
				Status:      discount.StatusAvailable,
				CreatedAt:   now,
			}
			if err := s.discounts.CreateTx(ctx, tx, d); err != nil {
				return err
			}
			red.DiscountID = uuid.NullUUID{UUID: d.ID, Valid: true}
			res.Discount = d
		case DiscountFreeItem:
			item, err := s.cart.AddRewardLineTx(ctx, tx, userID, reward.ID, reward.ApplicableProducts[0], now)
			if err != nil {
				if errors.Is(err, cart.ErrRewardProductUnavailable) {
					return fmt.Errorf("%w: %s is not available", ErrRewardUnavailable, reward.ApplicableProducts[0])
				}
				return err
			}
			red.CartItemID = uuid.NullUUID{UUID: item.ID, Valid: true}
			res.CartItem = item
		default:
			return fmt.Errorf("reward %s: unknown discount type %q", reward.ID, reward.DiscountType)
		}

		if err := s.repo.InsertRedemptionTx(ctx, tx, red); err != nil {
			return err
		}

		profile.AvailablePoints -= reward.PointsRequired
		profile.UsedPoints += reward.PointsRequired
		profile.LastActivity = now
		res.Profile = profile
		result = res
		return nil
	})
	if errors.Is(err, ErrDuplicateRequest) {
		// A concurrent call with the same request id committed first.
		prior, rerr := s.replayRedemption(ctx, userID, reward, requestID)
		if rerr != nil {
			return nil, rerr
		}
		if prior == nil {
			return nil, ErrRequestConflict
		}
		return prior, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reward_id", reward.ID).
		Int("points", reward.PointsRequired).
		Int("balance", result.Profile.AvailablePoints).
		Msg("loyalty reward redeemed")
	s.publishBalance(ctx, result.Profile, "redemption")

	return result, nil
}

// RefundRewardLineTx gives back the points spent on a free-item line whose
// product can no longer be ordered. It runs inside the checkout transaction;
// the caller drops the line.
func (s *Service) RefundRewardLineTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, item cart.Item) (int, error) {
	if !item.IsReward() {
		return 0, fmt.Errorf("cart item %s is not a reward line", item.ID)
	}

	red, err := s.repo.FindRedemptionByCartItemTx(ctx, tx, item.ID)
	if err != nil {
		return 0, err
	}
	if red == nil || red.UserID != userID {
		return 0, fmt.Errorf("%w: no redemption behind reward line %s", ErrLedgerInconsistent, item.ID)
	}

	now := s.now()
	if err := s.repo.MarkRedemptionRefundedTx(ctx, tx, red.ID, now); err != nil {
		return 0, err
	}
	if err := s.repo.RefundTx(ctx, tx, userID, red.Points, now); err != nil {
		return 0, err
	}

	// Refunded points start a fresh lot; the lots they came from are not tracked.
	entry := &LoyaltyPoint{
		ID:          uuid.New(),
		UserID:      userID,
		Points:      red.Points,
		Type:        EntryUsed,
		Source:      SourceRedemption,
		Description: fmt.Sprintf("Refund: %s is no longer available", item.ProductName),
		CreatedAt:   now,
		ExpiresAt:   sql.NullTime{Time: ExpiresAtFor(now), Valid: true},
	}
	if err := s.openLotTx(ctx, tx, entry); err != nil {
		return 0, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reward_id", red.RewardID).
		Str("cart_item_id", item.ID.String()).
		Int("points", red.Points).
		Msg("loyalty reward line refunded")
	return red.Points, nil
}

// replayRedemption returns the stored result for requestID, nil if the id is
// unused, or ErrRequestConflict if it was used for something else
func (s *Service) replayRedemption(ctx context.Context, userID uuid.UUID, reward Reward, requestID string) (*RedemptionResult, error) {
	red, err := s.repo.FindRedemption(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if red == nil {
		entry, err := s.repo.FindEntryByRequest(ctx, userID, requestID)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return nil, ErrRequestConflict
		}
		return nil, nil
	}
	if red.RewardID != reward.ID || red.Points != reward.PointsRequired {
		return nil, ErrRequestConflict
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &RedemptionResult{Redemption: red, Reward: reward, Profile: profile, Replayed: true}
	if red.DiscountID.Valid {
		d, err := s.discounts.GetByID(ctx, red.DiscountID.UUID)
		if err != nil {
			return nil, err
		}
		result.Discount = d
	}
	return result, nil
}

// consumeLotsTx takes points from the oldest open lots first
func (s *Service) consumeLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, now time.Time) error {
	lots, err := s.repo.OpenLotsTx(ctx, tx, userID, now)
	if err != nil {
		return err
	}

	remaining := points
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := min(lot.Remaining, remaining)
		if err := s.repo.SetLotRemainingTx(ctx, tx, lot.EntryID, lot.Remaining-take); err != nil {
			return err
		}
		remaining -= take
	}
	if remaining > 0 {
		return fmt.Errorf("%w: %d points not covered by lots for user %s", ErrLedgerInconsistent, remaining, userID)
	}
	return nil
}
