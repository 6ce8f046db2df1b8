package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/domain/product"
)

// world holds every store the checkout touches so InTx can roll all of them
// back together.
type world struct {
	orders    map[uuid.UUID]Order
	cartItems map[uuid.UUID][]cart.Item
	products  map[uuid.UUID]*product.Product
	discounts map[uuid.UUID]discount.Discount
	profiles  map[uuid.UUID]loyalty.Profile

	// points spent on each reward line, by cart item id
	rewardCosts map[uuid.UUID]int
	refunded    map[uuid.UUID]bool

	failCredit error
	notified   []string
}

func newWorld() *world {
	return &world{
		orders:    map[uuid.UUID]Order{},
		cartItems: map[uuid.UUID][]cart.Item{},
		products:  map[uuid.UUID]*product.Product{},
		discounts: map[uuid.UUID]discount.Discount{},
		profiles:  map[uuid.UUID]loyalty.Profile{},

		rewardCosts: map[uuid.UUID]int{},
		refunded:    map[uuid.UUID]bool{},
	}
}

func (w *world) snapshot() func() {
	orders := make(map[uuid.UUID]Order, len(w.orders))
	for k, v := range w.orders {
		orders[k] = v
	}
	carts := make(map[uuid.UUID][]cart.Item, len(w.cartItems))
	for k, v := range w.cartItems {
		carts[k] = append([]cart.Item(nil), v...)
	}
	discounts := make(map[uuid.UUID]discount.Discount, len(w.discounts))
	for k, v := range w.discounts {
		discounts[k] = v
	}
	profiles := make(map[uuid.UUID]loyalty.Profile, len(w.profiles))
	for k, v := range w.profiles {
		profiles[k] = v
	}
	refunded := make(map[uuid.UUID]bool, len(w.refunded))
	for k, v := range w.refunded {
		refunded[k] = v
	}
	return func() {
		w.orders, w.cartItems, w.discounts, w.profiles = orders, carts, discounts, profiles
		w.refunded = refunded
	}
}

// Repository

func (w *world) InTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	restore := w.snapshot()
	if err := fn(nil); err != nil {
		restore()
		return err
	}
	return nil
}

func (w *world) CreateTx(_ context.Context, _ *sqlx.Tx, o *Order) error {
	for _, existing := range w.orders {
		if existing.UserID == o.UserID && existing.RequestID == o.RequestID {
			return ErrDuplicateRequest
		}
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	w.orders[o.ID] = cp
	return nil
}

func (w *world) SetPointsEarnedTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID, points int) error {
	o := w.orders[id]
	o.PointsEarned = points
	w.orders[id] = o
	return nil
}

func (w *world) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := w.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (w *world) FindByRequest(_ context.Context, userID uuid.UUID, requestID string) (*Order, error) {
	for _, o := range w.orders {
		if o.UserID == userID && o.RequestID == requestID {
			return &o, nil
		}
	}
	return nil, nil
}

func (w *world) List(_ context.Context, f ListFilter) ([]Order, int, error) {
	var out []Order
	for _, o := range w.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (w *world) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, at time.Time) error {
	o, ok := w.orders[id]
	if !ok || o.Status != from {
		return ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = at
	w.orders[id] = o
	return nil
}

// CartStore

type fakeCart struct{ *world }

func (c fakeCart) ListForCheckoutTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID) ([]cart.Item, error) {
	return append([]cart.Item(nil), c.cartItems[userID]...), nil
}

func (c fakeCart) ClearTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID) error {
	delete(c.cartItems, userID)
	return nil
}

// ProductLookup

type fakeProducts struct{ *world }

func (p fakeProducts) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Product, error) {
	out := map[uuid.UUID]*product.Product{}
	for _, id := range ids {
		if prod, ok := p.products[id]; ok && !prod.DeletedAt.Valid {
			out[id] = prod
		}
	}
	return out, nil
}

// DiscountStore

type fakeDiscounts struct{ *world }

func (d fakeDiscounts) LockAvailableTx(_ context.Context, _ *sqlx.Tx, id, userID uuid.UUID) (*discount.Discount, error) {
	disc, ok := d.discounts[id]
	if !ok || disc.UserID != userID {
		return nil, discount.ErrDiscountNotFound
	}
	if !disc.IsAvailable() {
		return nil, discount.ErrDiscountUsed
	}
	return &disc, nil
}

func (d fakeDiscounts) MarkUsedTx(_ context.Context, _ *sqlx.Tx, id, orderID uuid.UUID, at time.Time) error {
	disc := d.discounts[id]
	if !disc.IsAvailable() {
		return discount.ErrDiscountUsed
	}
	disc.Status = discount.StatusUsed
	disc.OrderID = uuid.NullUUID{UUID: orderID, Valid: true}
	disc.UsedAt = sql.NullTime{Time: at, Valid: true}
	d.discounts[id] = disc
	return nil
}

// Ledger applies the real earn formula to an in-memory profile.

type fakeLedger struct{ *world }

func (l fakeLedger) CreditOrderTx(_ context.Context, _ *sqlx.Tx, userID, _ uuid.UUID, total decimal.Decimal) (*loyalty.CreditResult, error) {
	if l.failCredit != nil {
		return nil, l.failCredit
	}
	p, ok := l.profiles[userID]
	if !ok || !p.IsActive {
		return nil, loyalty.ErrProfileNotFound
	}
	points := loyalty.CalculatePointsEarned(total, p.Tier)
	p.TotalPoints += points
	p.AvailablePoints += points
	p.TotalSpent = p.TotalSpent.Add(total)
	p.TotalOrders++
	p.Tier = loyalty.CalculateUserTier(p.TotalSpent)
	l.profiles[userID] = p
	return &loyalty.CreditResult{PointsEarned: points, Profile: &p}, nil
}

func (l fakeLedger) RefundRewardLineTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, item cart.Item) (int, error) {
	points, ok := l.rewardCosts[item.ID]
	if !ok {
		return 0, loyalty.ErrLedgerInconsistent
	}
	if l.refunded[item.ID] {
		return 0, loyalty.ErrAlreadyRefunded
	}
	p := l.profiles[userID]
	p.AvailablePoints += points
	p.UsedPoints -= points
	l.profiles[userID] = p
	l.refunded[item.ID] = true
	return points, nil
}

func (l fakeLedger) GetProfile(_ context.Context, userID uuid.UUID) (*loyalty.Profile, error) {
	p, ok := l.profiles[userID]
	if !ok {
		return nil, loyalty.ErrProfileNotFound
	}
	return &p, nil
}

func (l fakeLedger) NotifyBalance(_ context.Context, p *loyalty.Profile, reason string) {
	l.notified = append(l.notified, p.UserID.String()+":"+reason)
}

var errCreditDown = errors.New("ledger unavailable")
