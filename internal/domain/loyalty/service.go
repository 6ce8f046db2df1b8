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

// DiscountStore issues and reads redemption discounts
type DiscountStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, d *discount.Discount) error
	GetByID(ctx context.Context, id uuid.UUID) (*discount.Discount, error)
}

// CartRewards adds free-item reward lines to a cart
type CartRewards interface {
	AddRewardLineTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, rewardID, sku string, at time.Time) (*cart.Item, error)
}

// Options tunes the service
type Options struct {
	BaseRate        decimal.Decimal
	ExpiringWindow  time.Duration
	ExpiryBatchSize int
}

// Service owns every balance change in the loyalty ledger
type Service struct {
	repo      Repository
	catalog   *Catalog
	discounts DiscountStore
	cart      CartRewards
	publisher Publisher

	baseRate       decimal.Decimal
	expiringWindow time.Duration
	batchSize      int
	now            func() time.Time
}

// NewService creates loyalty service
func NewService(repo Repository, catalog *Catalog, discounts DiscountStore, cartRewards CartRewards, opts Options) *Service {
	s := &Service{
		repo:           repo,
		catalog:        catalog,
		discounts:      discounts,
		cart:           cartRewards,
		publisher:      noopPublisher{},
		baseRate:       opts.BaseRate,
		expiringWindow: opts.ExpiringWindow,
		batchSize:      opts.ExpiryBatchSize,
		now:            time.Now,
	}
	if !s.baseRate.IsPositive() {
		s.baseRate = BaseRate
	}
	if s.expiringWindow <= 0 {
		s.expiringWindow = 30 * 24 * time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 200
	}
	return s
}

// SetPublisher sets where balance events are pushed
func (s *Service) SetPublisher(p Publisher) {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
}

// Catalog returns the rewards catalog
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// EnsureProfileTx opens the user's profile inside the caller's transaction
func (s *Service) EnsureProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	return s.repo.CreateProfileTx(ctx, tx, userID, s.now())
}

// DeactivateTx closes the profile; history stays
func (s *Service) DeactivateTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	return s.repo.DeactivateProfileTx(ctx, tx, userID)
}

// GetProfile returns the user's profile
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// Summary is everything the member page shows
type Summary struct {
	Profile        *Profile
	Benefits       TierBenefits
	Progress       TierProgress
	ExpiringPoints int
	NextExpiry     *time.Time
}

// GetSummary returns profile, tier benefits and points expiring soon
func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiring, next, err := s.repo.ExpiringPoints(ctx, userID, now, now.Add(s.expiringWindow))
	if err != nil {
		return nil, err
	}

	return &Summary{
		Profile:        p,
		Benefits:       GetTierBenefits(p.Tier),
		Progress:       GetNextTierProgress(p.TotalSpent),
		ExpiringPoints: expiring,
		NextExpiry:     next,
	}, nil
}

// History returns the user's ledger, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, p Pagination) ([]LoyaltyPoint, int, error) {
	return s.repo.ListEntries(ctx, userID, p)
}

// SearchEntries is the admin ledger search
func (s *Service) SearchEntries(ctx context.Context, f SearchFilters) ([]LoyaltyPoint, error) {
	return s.repo.SearchEntries(ctx, f)
}

// CreditResult is what an order earned
type CreditResult struct {
	PointsEarned int
	Profile      *Profile
	TierChanged  bool
}

// CreditOrderTx awards points for a placed order inside the order's
// transaction. Points use the tier held before this order; the tier is then
// recomputed from the new lifetime spend.
func (s *Service) CreditOrderTx(ctx context.Context, tx *sqlx.Tx, userID, orderID uuid.UUID, total decimal.Decimal) (*CreditResult, error) {
	if total.IsNegative() {
		return nil, fmt.Errorf("credit order %s: negative total", orderID)
	}

	now := s.now()
	profile, err := s.repo.LockProfileTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil || !profile.IsActive {
		return nil, ErrProfileNotFound
	}

	points := pointsEarned(total, s.baseRate, profile.Tier)
	newSpent := profile.TotalSpent.Add(total)
	newTier := CalculateUserTier(newSpent)

	err = s.repo.CreditTx(ctx, tx, Credit{
		UserID: userID,
		Points: points,
		Spent:  total,
		Orders: 1,
		Tier:   newTier,
		At:     now,
	})
	if err != nil {
		return nil, err
	}

	if points > 0 {
		entry := &LoyaltyPoint{
			ID:          uuid.New(),
			UserID:      userID,
			Points:      points,
			Type:        EntryEarned,
			Source:      SourcePurchase,
			Description: fmt.Sprintf("Points earned from order %s", shortID(orderID)),
			OrderID:     uuid.NullUUID{UUID: orderID, Valid: true},
			CreatedAt:   now,
			ExpiresAt:   sql.NullTime{Time: ExpiresAtFor(now), Valid: true},
		}
		if err := s.openLotTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	result := &CreditResult{
		PointsEarned: points,
		TierChanged:  newTier != profile.Tier,
	}
	profile.TotalPoints += points
	profile.AvailablePoints += points
	profile.TotalSpent = newSpent
	profile.TotalOrders++
	profile.Tier = newTier
	profile.LastActivity = now
	result.Profile = profile

	return result, nil
}

// Grant adds bonus points, e.g. a goodwill credit from an admin. A non-empty
// requestID makes the call idempotent.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, points int, reason, requestID string) (*Profile, bool, error) {
	if points <= 0 {
		return nil, false, ErrInvalidPoints
	}
	if reason == "" {
		reason = "Bonus points"
	}

	if requestID != "" {
		replayed, err := s.replayGrant(ctx, userID, points, requestID)
		if err != nil || replayed != nil {
			return replayed, replayed != nil, err
		}
	}

	var profile *Profile
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		p, err := s.repo.LockProfileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if p == nil || !p.IsActive {
			return ErrProfileNotFound
		}

		if err := s.repo.CreditTx(ctx, tx, Credit{UserID: userID, Points: points, Tier: p.Tier, At: now}); err != nil {
			return err
		}

		entry := &LoyaltyPoint{
			ID:          uuid.New(),
			UserID:      userID,
			Points:      points,
			Type:        EntryEarned,
			Source:      SourceBonus,
			Description: reason,
			RequestID:   sql.NullString{String: requestID, Valid: requestID != ""},
			CreatedAt:   now,
			ExpiresAt:   sql.NullTime{Time: ExpiresAtFor(now), Valid: true},
		}
		if err := s.openLotTx(ctx, tx, entry); err != nil {
			return err
		}

		p.TotalPoints += points
		p.AvailablePoints += points
		p.LastActivity = now
		profile = p
		return nil
	})
	if errors.Is(err, ErrDuplicateRequest) {
		replayed, rerr := s.replayGrant(ctx, userID, points, requestID)
		if rerr != nil {
			return nil, false, rerr
		}
		if replayed == nil {
			return nil, false, ErrRequestConflict
		}
		return replayed, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("points", points).
		Int("balance", profile.AvailablePoints).
		Msg("loyalty bonus granted")
	s.publishBalance(ctx, profile, "bonus")

	return profile, false, nil
}

func (s *Service) replayGrant(ctx context.Context, userID uuid.UUID, points int, requestID string) (*Profile, error) {
	entry, err := s.repo.FindEntryByRequest(ctx, userID, requestID)
	if err != nil || entry == nil {
		return nil, err
	}
	if entry.Source != SourceBonus || entry.Points != points {
		return nil, ErrRequestConflict
	}
	return s.GetProfile(ctx, userID)
}

// openLotTx appends an earned entry and the lot that tracks its unspent remainder
func (s *Service) openLotTx(ctx context.Context, tx *sqlx.Tx, entry *LoyaltyPoint) error {
	if err := s.repo.InsertEntryTx(ctx, tx, entry); err != nil {
		return err
	}
	return s.repo.InsertLotTx(ctx, tx, &Lot{
		EntryID:   entry.ID,
		UserID:    entry.UserID,
		Remaining: entry.Points,
		ExpiresAt: entry.ExpiresAt.Time,
		CreatedAt: entry.CreatedAt,
	})
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
