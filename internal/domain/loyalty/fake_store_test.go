package loyalty

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
)

// memStore is an in-memory Repository, DiscountStore and CartRewards. InTx
// restores a snapshot when fn fails, mirroring a rolled back transaction.
type memStore struct {
	profiles    map[uuid.UUID]Profile
	entries     []LoyaltyPoint
	lots        []Lot
	redemptions []Redemption
	discounts   map[uuid.UUID]discount.Discount
	cartItems   []cart.Item
	products    map[string]bool
	txCount     int
}

func newMemStore() *memStore {
	return &memStore{
		profiles:  map[uuid.UUID]Profile{},
		discounts: map[uuid.UUID]discount.Discount{},
		products:  map[string]bool{},
	}
}

func (m *memStore) clone() *memStore {
	c := &memStore{
		profiles:    make(map[uuid.UUID]Profile, len(m.profiles)),
		entries:     append([]LoyaltyPoint(nil), m.entries...),
		lots:        append([]Lot(nil), m.lots...),
		redemptions: append([]Redemption(nil), m.redemptions...),
		discounts:   make(map[uuid.UUID]discount.Discount, len(m.discounts)),
		cartItems:   append([]cart.Item(nil), m.cartItems...),
		products:    m.products,
		txCount:     m.txCount,
	}
	for k, v := range m.profiles {
		c.profiles[k] = v
	}
	for k, v := range m.discounts {
		c.discounts[k] = v
	}
	return c
}

func (m *memStore) InTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	snapshot := m.clone()
	m.txCount++
	if err := fn(nil); err != nil {
		*m = *snapshot
		return err
	}
	return nil
}

func (m *memStore) CreateProfileTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, at time.Time) error {
	if _, ok := m.profiles[userID]; ok {
		return nil
	}
	m.profiles[userID] = Profile{
		UserID:       userID,
		Tier:         TierBronze,
		JoinDate:     at,
		LastActivity: at,
		TotalSpent:   decimal.Zero,
		IsActive:     true,
	}
	return nil
}

func (m *memStore) GetProfile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) LockProfileTx(ctx context.Context, _ *sqlx.Tx, userID uuid.UUID) (*Profile, error) {
	return m.GetProfile(ctx, userID)
}

func (m *memStore) CreditTx(_ context.Context, _ *sqlx.Tx, c Credit) error {
	p, ok := m.profiles[c.UserID]
	if !ok || !p.IsActive {
		return ErrProfileNotFound
	}
	p.TotalPoints += c.Points
	p.AvailablePoints += c.Points
	p.TotalSpent = p.TotalSpent.Add(c.Spent)
	p.TotalOrders += c.Orders
	p.Tier = c.Tier
	p.LastActivity = c.At
	m.profiles[c.UserID] = p
	return nil
}

func (m *memStore) DebitTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error {
	p, ok := m.profiles[userID]
	if !ok || !p.IsActive || p.AvailablePoints < points {
		return ErrInsufficientPoints
	}
	p.AvailablePoints -= points
	p.UsedPoints += points
	p.LastActivity = at
	m.profiles[userID] = p
	return nil
}

func (m *memStore) ExpireTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, points int, _ time.Time) error {
	p, ok := m.profiles[userID]
	if !ok || p.AvailablePoints < points {
		return ErrLedgerInconsistent
	}
	p.AvailablePoints -= points
	p.ExpiredPoints += points
	m.profiles[userID] = p
	return nil
}

func (m *memStore) DeactivateProfileTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID) error {
	p := m.profiles[userID]
	p.IsActive = false
	m.profiles[userID] = p
	return nil
}

func (m *memStore) InsertEntryTx(_ context.Context, _ *sqlx.Tx, e *LoyaltyPoint) error {
	for _, existing := range m.entries {
		if e.RequestID.Valid && existing.UserID == e.UserID && existing.RequestID == e.RequestID {
			return ErrDuplicateRequest
		}
		if e.Source == SourcePurchase && existing.Source == SourcePurchase && e.OrderID.Valid && existing.OrderID == e.OrderID {
			return ErrAlreadyCredited
		}
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) FindEntryByRequest(_ context.Context, userID uuid.UUID, requestID string) (*LoyaltyPoint, error) {
	for _, e := range m.entries {
		if e.UserID == userID && e.RequestID.Valid && e.RequestID.String == requestID {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListEntries(_ context.Context, userID uuid.UUID, p Pagination) ([]LoyaltyPoint, int, error) {
	var out []LoyaltyPoint
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	total := len(out)
	if p.Offset >= len(out) {
		return []LoyaltyPoint{}, total, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

func (m *memStore) SearchEntries(_ context.Context, f SearchFilters) ([]LoyaltyPoint, error) {
	var out []LoyaltyPoint
	for _, e := range m.entries {
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		if f.Source != nil && e.Source != *f.Source {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) InsertLotTx(_ context.Context, _ *sqlx.Tx, lot *Lot) error {
	m.lots = append(m.lots, *lot)
	return nil
}

func (m *memStore) selectLots(userID uuid.UUID, keep func(Lot) bool) []Lot {
	var out []Lot
	for _, l := range m.lots {
		if l.UserID == userID && l.Remaining > 0 && keep(l) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) OpenLotsTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error) {
	return m.selectLots(userID, func(l Lot) bool { return l.ExpiresAt.After(now) }), nil
}

func (m *memStore) ExpiredLotsTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error) {
	return m.selectLots(userID, func(l Lot) bool { return !l.ExpiresAt.After(now) }), nil
}

func (m *memStore) SetLotRemainingTx(_ context.Context, _ *sqlx.Tx, entryID uuid.UUID, remaining int) error {
	for i := range m.lots {
		if m.lots[i].EntryID == entryID {
			if m.lots[i].Remaining < remaining {
				return ErrLedgerInconsistent
			}
			m.lots[i].Remaining = remaining
			return nil
		}
	}
	return ErrLedgerInconsistent
}

func (m *memStore) UsersWithExpiredLots(_ context.Context, now time.Time, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	for _, id := range exclude {
		seen[id] = true
	}
	var out []uuid.UUID
	for _, l := range m.lots {
		if l.Remaining > 0 && !l.ExpiresAt.After(now) && !seen[l.UserID] {
			seen[l.UserID] = true
			out = append(out, l.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ExpiringPoints(_ context.Context, userID uuid.UUID, from, to time.Time) (int, *time.Time, error) {
	total := 0
	var next *time.Time
	for _, l := range m.lots {
		if l.UserID != userID || l.Remaining == 0 || !l.ExpiresAt.After(from) || l.ExpiresAt.After(to) {
			continue
		}
		total += l.Remaining
		if next == nil || l.ExpiresAt.Before(*next) {
			at := l.ExpiresAt
			next = &at
		}
	}
	return total, next, nil
}

func (m *memStore) InsertRedemptionTx(_ context.Context, _ *sqlx.Tx, r *Redemption) error {
	for _, existing := range m.redemptions {
		if existing.UserID == r.UserID && existing.RequestID == r.RequestID {
			return ErrDuplicateRequest
		}
	}
	m.redemptions = append(m.redemptions, *r)
	return nil
}

func (m *memStore) FindRedemption(_ context.Context, userID uuid.UUID, requestID string) (*Redemption, error) {
	for _, r := range m.redemptions {
		if r.UserID == userID && r.RequestID == requestID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindRedemptionByCartItemTx(_ context.Context, _ *sqlx.Tx, cartItemID uuid.UUID) (*Redemption, error) {
	for _, r := range m.redemptions {
		if r.CartItemID.Valid && r.CartItemID.UUID == cartItemID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) MarkRedemptionRefundedTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID, at time.Time) error {
	for i := range m.redemptions {
		if m.redemptions[i].ID == id {
			if m.redemptions[i].RefundedAt.Valid {
				return ErrAlreadyRefunded
			}
			m.redemptions[i].RefundedAt = sql.NullTime{Time: at, Valid: true}
			return nil
		}
	}
	return ErrAlreadyRefunded
}

func (m *memStore) RefundTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error {
	p, ok := m.profiles[userID]
	if !ok || p.UsedPoints < points {
		return ErrLedgerInconsistent
	}
	p.AvailablePoints += points
	p.UsedPoints -= points
	p.LastActivity = at
	m.profiles[userID] = p
	return nil
}

// DiscountStore

func (m *memStore) CreateTx(_ context.Context, _ *sqlx.Tx, d *discount.Discount) error {
	m.discounts[d.ID] = *d
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*discount.Discount, error) {
	d, ok := m.discounts[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// CartRewards

func (m *memStore) AddRewardLineTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, rewardID, sku string, at time.Time) (*cart.Item, error) {
	if !m.products[sku] {
		return nil, cart.ErrRewardProductUnavailable
	}
	item := cart.Item{
		ID:          uuid.New(),
		UserID:      userID,
		ProductID:   uuid.New(),
		ProductName: sku,
		Quantity:    1,
		UnitPrice:   decimal.Zero,
		CreatedAt:   at,
	}
	item.RewardID.String, item.RewardID.Valid = rewardID, true
	m.cartItems = append(m.cartItems, item)
	return &item, nil
}
