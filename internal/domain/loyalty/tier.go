package loyalty

import (
	"github.com/shopspring/decimal"
)

// Tier is a loyalty level derived from lifetime spend
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// BaseRate is the default number of points per SAR before the tier multiplier
var BaseRate = decimal.NewFromInt(1)

// tierFloors lists each tier with the lifetime spend (SAR) where it starts, ascending.
var tierFloors = []struct {
	tier  Tier
	floor decimal.Decimal
}{
	{TierBronze, decimal.Zero},
	{TierSilver, decimal.NewFromInt(500)},
	{TierGold, decimal.NewFromInt(2000)},
	{TierPlatinum, decimal.NewFromInt(5000)},
}

// TierBenefits are the perks attached to a tier
type TierBenefits struct {
	PointsMultiplier decimal.Decimal `json:"points_multiplier"`
	FreeDelivery     bool            `json:"free_delivery"`
	PrioritySupport  bool            `json:"priority_support"`
	ExclusiveOffers  bool            `json:"exclusive_offers"`
}

var tierBenefits = map[Tier]TierBenefits{
	TierBronze:   {PointsMultiplier: decimal.NewFromInt(1)},
	TierSilver:   {PointsMultiplier: decimal.RequireFromString("1.2"), FreeDelivery: true},
	TierGold:     {PointsMultiplier: decimal.RequireFromString("1.5"), FreeDelivery: true, PrioritySupport: true},
	TierPlatinum: {PointsMultiplier: decimal.NewFromInt(2), FreeDelivery: true, PrioritySupport: true, ExclusiveOffers: true},
}

// TierProgress describes how far a member is from the next tier
type TierProgress struct {
	Current   Tier            `json:"current_tier"`
	Next      Tier            `json:"next_tier,omitempty"`
	Progress  decimal.Decimal `json:"progress"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	_, ok := tierBenefits[t]
	return ok
}

// CalculateUserTier maps lifetime spend to a tier. Negative spend counts as zero.
func CalculateUserTier(totalSpent decimal.Decimal) Tier {
	tier := TierBronze
	for _, f := range tierFloors {
		if totalSpent.GreaterThanOrEqual(f.floor) {
			tier = f.tier
		}
	}
	return tier
}

// GetTierBenefits returns the benefits for tier; unknown tiers get bronze benefits
func GetTierBenefits(tier Tier) TierBenefits {
	if b, ok := tierBenefits[tier]; ok {
		return b
	}
	return tierBenefits[TierBronze]
}

// GetNextTierProgress returns the percentage of the way through the current
// tier band and the SAR left to reach the next one. Platinum has no ceiling
// and always reports 100% with nothing remaining.
func GetNextTierProgress(totalSpent decimal.Decimal) TierProgress {
	if totalSpent.IsNegative() {
		totalSpent = decimal.Zero
	}

	for i, f := range tierFloors {
		if i == len(tierFloors)-1 {
			break
		}
		next := tierFloors[i+1]
		if totalSpent.LessThan(next.floor) {
			band := next.floor.Sub(f.floor)
			return TierProgress{
				Current:   f.tier,
				Next:      next.tier,
				Progress:  totalSpent.Sub(f.floor).Div(band).Mul(decimal.NewFromInt(100)).Round(2),
				Remaining: next.floor.Sub(totalSpent),
			}
		}
	}

	return TierProgress{
		Current:   TierPlatinum,
		Progress:  decimal.NewFromInt(100),
		Remaining: decimal.Zero,
	}
}

// CalculatePointsEarned returns floor(orderTotal * BaseRate * multiplier)
func CalculatePointsEarned(orderTotal decimal.Decimal, tier Tier) int {
	return pointsEarned(orderTotal, BaseRate, tier)
}

func pointsEarned(orderTotal, baseRate decimal.Decimal, tier Tier) int {
	if !orderTotal.IsPositive() {
		return 0
	}
	points := orderTotal.Mul(baseRate).Mul(GetTierBenefits(tier).PointsMultiplier).Floor()
	return int(points.IntPart())
}
