package order

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
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/domain/product"
	"github.com/qahwa/cafe-api/internal/pkg/realtime"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// CartStore is the part of the cart checkout reads and clears
type CartStore interface {
	ListForCheckoutTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) ([]cart.Item, error)
	ClearTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error
}

// ProductLookup prices order lines
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Product, error)
}

// DiscountStore applies and consumes a redeemed discount
type DiscountStore interface {
	LockAvailableTx(ctx context.Context, tx *sqlx.Tx, id, userID uuid.UUID) (*discount.Discount, error)
	MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id, orderID uuid.UUID, at time.Time) error
}

// Ledger credits points for an order and refunds reward lines it cannot serve
type Ledger interface {
	CreditOrderTx(ctx context.Context, tx *sqlx.Tx, userID, orderID uuid.UUID, total decimal.Decimal) (*loyalty.CreditResult, error)
	RefundRewardLineTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, item cart.Item) (int, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*loyalty.Profile, error)
	NotifyBalance(ctx context.Context, p *loyalty.Profile, reason string)
}

// Publisher pushes order events to the customer
type Publisher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, event realtime.Event) error
}

// LineInput is one requested product and quantity
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateInput describes an order to place. An empty Items list checks out
// the customer's cart. CashierID marks a point of sale order placed on the
// customer's behalf.
type CreateInput struct {
	UserID     uuid.UUID
	CashierID  *uuid.UUID
	BranchID   *uuid.UUID
	DiscountID *uuid.UUID
	RequestID  string
	Notes      string
	Items      []LineInput
}

// CreateResult is the placed order with what it earned. PointsRefunded is
// what came back for reward lines whose product went off the menu.
type CreateResult struct {
	Order          *Order
	PointsEarned   int
	PointsRefunded int
	Profile        *loyalty.Profile
	Replayed       bool
}

// Service handles checkout and the order lifecycle
type Service struct {
	repo      Repository
	cart      CartStore
	products  ProductLookup
	discounts DiscountStore
	ledger    Ledger
	publisher Publisher
	now       func() time.Time
}

// NewService creates order service
func NewService(repo Repository, cartStore CartStore, products ProductLookup, discounts DiscountStore, ledger Ledger) *Service {
	return &Service{
		repo:      repo,
		cart:      cartStore,
		products:  products,
		discounts: discounts,
		ledger:    ledger,
		now:       time.Now,
	}
}

// SetPublisher enables realtime order events
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Create places an order. The order row, discount consumption, points credit
// and cart clearing commit together or not at all. Reward lines whose product
// can no longer be ordered are refunded and dropped. Repeating a request id
// returns the order it already created.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.RequestID == "" {
		return nil, ErrRequestIDRequired
	}
	if in.CashierID != nil && len(in.Items) == 0 {
		return nil, ErrPOSItemsRequired
	}

	if replay, err := s.replay(ctx, in.UserID, in.RequestID); err != nil || replay != nil {
		return replay, err
	}

	var (
		order    *Order
		credit   *loyalty.CreditResult
		refunded int
	)
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		fromCart := len(in.Items) == 0

		var lines []cart.Item
		if fromCart {
			var err error
			lines, err = s.cart.ListForCheckoutTx(ctx, tx, in.UserID)
			if err != nil {
				return err
			}
		} else {
			lines = make([]cart.Item, 0, len(in.Items))
			for _, it := range in.Items {
				lines = append(lines, cart.Item{ProductID: it.ProductID, Quantity: it.Quantity})
			}
		}
		if len(lines) == 0 {
			return ErrEmptyOrder
		}

		products, err := s.products.GetByIDs(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		if fromCart {
			lines, refunded, err = s.dropUnservableRewards(ctx, tx, in.UserID, lines, products)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				// Nothing left to order; keep the refund and empty the cart.
				return s.cart.ClearTx(ctx, tx, in.UserID)
			}
		}

		o := &Order{
			ID:        uuid.New(),
			UserID:    in.UserID,
			Status:    StatusPending,
			Channel:   ChannelApp,
			RequestID: in.RequestID,
			Notes:     in.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if in.CashierID != nil {
			o.Channel = ChannelPOS
			o.CashierID = uuid.NullUUID{UUID: *in.CashierID, Valid: true}
		}
		if in.BranchID != nil {
			o.BranchID = uuid.NullUUID{UUID: *in.BranchID, Valid: true}
		}

		items, subtotal, err := priceLines(o.ID, lines, products)
		if err != nil {
			return err
		}
		o.Items = items
		o.Subtotal = subtotal
		o.DiscountAmount = decimal.Zero

		var d *discount.Discount
		if in.DiscountID != nil {
			d, err = s.discounts.LockAvailableTx(ctx, tx, *in.DiscountID, in.UserID)
			if err != nil {
				return err
			}
			o.DiscountID = uuid.NullUUID{UUID: d.ID, Valid: true}
			o.DiscountAmount = d.AmountFor(subtotal)
		}
		o.Total = subtotal.Sub(o.DiscountAmount)

		if err := s.repo.CreateTx(ctx, tx, o); err != nil {
			return err
		}
		if d != nil {
			if err := s.discounts.MarkUsedTx(ctx, tx, d.ID, o.ID, now); err != nil {
				return err
			}
		}

		credit, err = s.ledger.CreditOrderTx(ctx, tx, in.UserID, o.ID, o.Total)
		if err != nil {
			return err
		}
		if credit.PointsEarned > 0 {
			if err := s.repo.SetPointsEarnedTx(ctx, tx, o.ID, credit.PointsEarned); err != nil {
				return err
			}
			o.PointsEarned = credit.PointsEarned
		}

		if fromCart {
			if err := s.cart.ClearTx(ctx, tx, in.UserID); err != nil {
				return err
			}
		}

		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			replay, rerr := s.replay(ctx, in.UserID, in.RequestID)
			if rerr != nil {
				return nil, rerr
			}
			if replay != nil {
				return replay, nil
			}
		}
		return nil, err
	}
	if order == nil {
		if profile, err := s.ledger.GetProfile(ctx, in.UserID); err == nil {
			s.ledger.NotifyBalance(ctx, profile, "refund")
		}
		return nil, fmt.Errorf("%w: %d points refunded for unavailable rewards", ErrEmptyOrder, refunded)
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("user_id", order.UserID.String()).
		Str("channel", string(order.Channel)).
		Str("total", order.Total.StringFixed(2)).
		Int("points_earned", credit.PointsEarned).
		Int("points_refunded", refunded).
		Msg("order placed")

	s.ledger.NotifyBalance(ctx, credit.Profile, "order")
	s.publish(ctx, order, EventOrderCreated)

	return &CreateResult{Order: order, PointsEarned: credit.PointsEarned, PointsRefunded: refunded, Profile: credit.Profile}, nil
}

// dropUnservableRewards refunds and removes reward lines whose product can no
// longer be ordered. Paid lines are left for priceLines to reject.
func (s *Service) dropUnservableRewards(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, lines []cart.Item, products map[uuid.UUID]*product.Product) ([]cart.Item, int, error) {
	kept := make([]cart.Item, 0, len(lines))
	refunded := 0
	for _, l := range lines {
		if p, ok := products[l.ProductID]; !l.IsReward() || (ok && p.CanOrder()) {
			kept = append(kept, l)
			continue
		}
		n, err := s.ledger.RefundRewardLineTx(ctx, tx, userID, l)
		if err != nil {
			return nil, 0, err
		}
		refunded += n
	}
	return kept, refunded, nil
}

func productIDs(lines []cart.Item) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// priceLines freezes current menu prices onto the lines. Reward lines stay free.
func priceLines(orderID uuid.UUID, lines []cart.Item, products map[uuid.UUID]*product.Product) ([]Item, decimal.Decimal, error) {
	items := make([]Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, decimal.Zero, ErrProductNotFound
		}
		if !p.CanOrder() {
			return nil, decimal.Zero, ErrProductUnavailable
		}

		price := p.Price
		if l.IsReward() {
			price = decimal.Zero
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		items = append(items, Item{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
			RewardID:    sql.NullString{String: l.RewardID.String, Valid: l.IsReward()},
		})
		subtotal = subtotal.Add(lineTotal)
	}
	return items, subtotal, nil
}

func (s *Service) replay(ctx context.Context, userID uuid.UUID, requestID string) (*CreateResult, error) {
	existing, err := s.repo.FindByRequest(ctx, userID, requestID)
	if err != nil || existing == nil {
		return nil, err
	}
	profile, err := s.ledger.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Order: existing, PointsEarned: existing.PointsEarned, Profile: profile, Replayed: true}, nil
}

// Get returns an order its owner or staff may see; anyone else gets ErrOrderNotFound
func (s *Service) Get(ctx context.Context, id, viewerID uuid.UUID, staff bool) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil || (!staff && o.UserID != viewerID) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// List returns orders matching f, newest first
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateStatus advances an order one step along the kitchen flow
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !o.Status.CanTransition(to) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, o.Status, to, now); err != nil {
		return nil, err
	}
	o.Status = to
	o.UpdatedAt = now

	log.Info().Str("order_id", id.String()).Str("status", string(to)).Msg("order status changed")
	s.publish(ctx, o, EventOrderStatusChanged)
	return o, nil
}

func (s *Service) publish(ctx context.Context, o *Order, eventType string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.SendToUser(ctx, o.UserID, realtime.Event{Type: eventType, Data: o.ToResponse()})
	if err != nil {
		log.Warn().Err(err).Str("order_id", o.ID.String()).Msg("failed to publish order event")
	}
}
