package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/domain/product"
)

var t0 = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *world) {
	t.Helper()
	w := newWorld()
	svc := NewService(w, fakeCart{w}, fakeProducts{w}, fakeDiscounts{w}, fakeLedger{w})
	svc.now = func() time.Time { return t0 }
	return svc, w
}

func (w *world) addProduct(name, price string, available bool) uuid.UUID {
	id := uuid.New()
	w.products[id] = &product.Product{
		ID:          id,
		SKU:         name,
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: available,
	}
	return id
}

func (w *world) addMember(tier loyalty.Tier, spent string) uuid.UUID {
	id := uuid.New()
	w.profiles[id] = loyalty.Profile{UserID: id, Tier: tier, TotalSpent: decimal.RequireFromString(spent), IsActive: true}
	return id
}

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateFromItemsCreditsPoints(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Spanish Latte", "18.50", true)
	userID := w.addMember(loyalty.TierBronze, "0")

	res, err := svc.Create(context.Background(), CreateInput{
		UserID:    userID,
		RequestID: "ord-1",
		Items:     []LineInput{{ProductID: latte, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !res.Order.Total.Equal(mustDec("55.50")) {
		t.Fatalf("total = %s, want 55.50", res.Order.Total)
	}
	if res.PointsEarned != 55 || res.Order.PointsEarned != 55 {
		t.Fatalf("points earned = %d/%d, want 55", res.PointsEarned, res.Order.PointsEarned)
	}
	if res.Profile.AvailablePoints != 55 {
		t.Fatalf("new balance = %d, want 55", res.Profile.AvailablePoints)
	}
	if res.Order.Channel != ChannelApp || res.Order.Status != StatusPending {
		t.Fatalf("unexpected channel/status %s/%s", res.Order.Channel, res.Order.Status)
	}
	if stored := w.orders[res.Order.ID]; stored.PointsEarned != 55 {
		t.Fatalf("stored points_earned = %d", stored.PointsEarned)
	}
	if len(w.notified) != 1 {
		t.Fatalf("expected one balance notification, got %v", w.notified)
	}
}

func TestCreateFromCartAppliesDiscountAndClearsCart(t *testing.T) {
	svc, w := newTestService(t)
	coffee := w.addProduct("Arabic Coffee", "12", true)
	cake := w.addProduct("Date Cake", "25", true)
	userID := w.addMember(loyalty.TierSilver, "600")

	w.cartItems[userID] = []cart.Item{
		{ID: uuid.New(), UserID: userID, ProductID: cake, Quantity: 2, UnitPrice: mustDec("25")},
		{ID: uuid.New(), UserID: userID, ProductID: coffee, Quantity: 1, UnitPrice: decimal.Zero,
			RewardID: sql.NullString{String: "REWARD-001", Valid: true}},
	}
	discID := uuid.New()
	w.discounts[discID] = discount.Discount{ID: discID, UserID: userID, Kind: discount.KindPercentage,
		Value: mustDec("10"), Status: discount.StatusAvailable}

	res, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "cart-1", DiscountID: &discID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 2 x 25 plus a free coffee, 10% off.
	if !res.Order.Subtotal.Equal(mustDec("50")) || !res.Order.DiscountAmount.Equal(mustDec("5")) || !res.Order.Total.Equal(mustDec("45")) {
		t.Fatalf("subtotal/discount/total = %s/%s/%s", res.Order.Subtotal, res.Order.DiscountAmount, res.Order.Total)
	}
	// Silver earns 1.2x: floor(45 * 1.2) = 54.
	if res.PointsEarned != 54 {
		t.Fatalf("points earned = %d, want 54", res.PointsEarned)
	}
	if len(res.Order.Items) != 2 || res.Order.Items[1].RewardID.String != "REWARD-001" || !res.Order.Items[1].UnitPrice.IsZero() {
		t.Fatalf("reward line not carried over free: %+v", res.Order.Items)
	}
	if len(w.cartItems[userID]) != 0 {
		t.Fatal("cart should be cleared")
	}
	if d := w.discounts[discID]; d.Status != discount.StatusUsed || d.OrderID.UUID != res.Order.ID {
		t.Fatalf("discount not consumed: %+v", d)
	}
}

func TestCreateReplaysRequestID(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Latte", "20", true)
	userID := w.addMember(loyalty.TierBronze, "0")
	in := CreateInput{UserID: userID, RequestID: "same", Items: []LineInput{{ProductID: latte, Quantity: 1}}}

	first, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Order.ID, second)
	}
	if len(w.orders) != 1 || w.profiles[userID].AvailablePoints != 20 {
		t.Fatalf("replay must not credit twice: orders=%d balance=%d", len(w.orders), w.profiles[userID].AvailablePoints)
	}
}

func TestCreateRollsBackOnCreditFailure(t *testing.T) {
	svc, w := newTestService(t)
	cake := w.addProduct("Cake", "25", true)
	userID := w.addMember(loyalty.TierBronze, "0")
	w.cartItems[userID] = []cart.Item{{ID: uuid.New(), UserID: userID, ProductID: cake, Quantity: 1}}
	discID := uuid.New()
	w.discounts[discID] = discount.Discount{ID: discID, UserID: userID, Kind: discount.KindFixed,
		Value: mustDec("20"), Status: discount.StatusAvailable}
	w.failCredit = errCreditDown

	_, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "r", DiscountID: &discID})
	if !errors.Is(err, errCreditDown) {
		t.Fatalf("expected credit failure, got %v", err)
	}
	if len(w.orders) != 0 {
		t.Fatal("order must not persist")
	}
	if len(w.cartItems[userID]) != 1 {
		t.Fatal("cart must survive a failed checkout")
	}
	if d := w.discounts[discID]; !d.IsAvailable() {
		t.Fatal("discount must stay available")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, w := newTestService(t)
	soldOut := w.addProduct("Cold Brew", "16", false)
	userID := w.addMember(loyalty.TierBronze, "0")
	cashier := uuid.New()

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"missing request id", CreateInput{UserID: userID}, ErrRequestIDRequired},
		{"empty cart", CreateInput{UserID: userID, RequestID: "a"}, ErrEmptyOrder},
		{"unknown product", CreateInput{UserID: userID, RequestID: "b", Items: []LineInput{{ProductID: uuid.New(), Quantity: 1}}}, ErrProductNotFound},
		{"unavailable product", CreateInput{UserID: userID, RequestID: "c", Items: []LineInput{{ProductID: soldOut, Quantity: 1}}}, ErrProductUnavailable},
		{"pos without items", CreateInput{UserID: userID, CashierID: &cashier, RequestID: "d"}, ErrPOSItemsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateRejectsUsedDiscount(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Latte", "20", true)
	userID := w.addMember(loyalty.TierBronze, "0")
	discID := uuid.New()
	w.discounts[discID] = discount.Discount{ID: discID, UserID: userID, Kind: discount.KindFixed,
		Value: mustDec("5"), Status: discount.StatusAvailable}

	items := []LineInput{{ProductID: latte, Quantity: 1}}
	if _, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "1", DiscountID: &discID, Items: items}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "2", DiscountID: &discID, Items: items})
	if !errors.Is(err, discount.ErrDiscountUsed) {
		t.Fatalf("expected ErrDiscountUsed, got %v", err)
	}
}

func TestPOSOrderCreditsCustomer(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Latte", "30", true)
	customer := w.addMember(loyalty.TierGold, "2500")
	cashier := uuid.New()

	res, err := svc.Create(context.Background(), CreateInput{
		UserID:    customer,
		CashierID: &cashier,
		RequestID: "pos-1",
		Items:     []LineInput{{ProductID: latte, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Order.Channel != ChannelPOS || res.Order.CashierID.UUID != cashier {
		t.Fatalf("expected a POS order by the cashier, got %+v", res.Order)
	}
	// Gold earns 1.5x.
	if res.PointsEarned != 45 || w.profiles[customer].AvailablePoints != 45 {
		t.Fatalf("customer should earn 45, got %d", res.PointsEarned)
	}
}

func TestStatusFlow(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Latte", "20", true)
	userID := w.addMember(loyalty.TierBronze, "0")
	res, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "s", Items: []LineInput{{ProductID: latte, Quantity: 1}}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Order.ID

	if _, err := svc.UpdateStatus(context.Background(), id, StatusReady); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skipping a step must fail, got %v", err)
	}
	for _, next := range []Status{StatusPreparing, StatusReady, StatusCompleted} {
		o, err := svc.UpdateStatus(context.Background(), id, next)
		if err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
		if o.Status != next {
			t.Fatalf("status = %s, want %s", o.Status, next)
		}
	}
	if _, err := svc.UpdateStatus(context.Background(), id, StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed orders are final, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusPreparing); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Latte", "20", true)
	owner := w.addMember(loyalty.TierBronze, "0")
	res, err := svc.Create(context.Background(), CreateInput{UserID: owner, RequestID: "g", Items: []LineInput{{ProductID: latte, Quantity: 1}}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(context.Background(), res.Order.ID, uuid.New(), false); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("stranger should get not found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), res.Order.ID, uuid.New(), true); err != nil {
		t.Fatalf("staff should see any order: %v", err)
	}
	if _, err := svc.Get(context.Background(), res.Order.ID, owner, false); err != nil {
		t.Fatalf("owner should see their order: %v", err)
	}
}

func TestCheckoutRefundsRewardLineForUnavailableProduct(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Spanish Latte", "18.50", true)
	cake := w.addProduct("Date Cake", "25", false)
	userID := w.addMember(loyalty.TierBronze, "0")

	p := w.profiles[userID]
	p.TotalPoints, p.AvailablePoints, p.UsedPoints = 200, 50, 150
	w.profiles[userID] = p

	rewardLine := cart.Item{ID: uuid.New(), UserID: userID, ProductID: cake, ProductName: "Date Cake", Quantity: 1,
		UnitPrice: decimal.Zero, RewardID: sql.NullString{String: "REWARD-004", Valid: true}}
	w.rewardCosts[rewardLine.ID] = 150
	w.cartItems[userID] = []cart.Item{
		{ID: uuid.New(), UserID: userID, ProductID: latte, Quantity: 1, UnitPrice: mustDec("18.50")},
		rewardLine,
	}

	res, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "cart-refund"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(res.Order.Items) != 1 || res.Order.Items[0].ProductID != latte {
		t.Fatalf("only the latte should be ordered, got %+v", res.Order.Items)
	}
	if res.PointsRefunded != 150 || !w.refunded[rewardLine.ID] {
		t.Fatalf("reward line not refunded: %d", res.PointsRefunded)
	}
	// 50 left + 150 refunded + floor(18.50) earned.
	if res.Profile.AvailablePoints != 218 || res.Profile.UsedPoints != 0 {
		t.Fatalf("unexpected balance %+v", res.Profile)
	}
	if len(w.cartItems[userID]) != 0 {
		t.Fatal("cart should be cleared")
	}
}

func TestCheckoutWithOnlyUnservableRewardKeepsRefund(t *testing.T) {
	svc, w := newTestService(t)
	cake := w.addProduct("Date Cake", "25", false)
	userID := w.addMember(loyalty.TierBronze, "0")

	p := w.profiles[userID]
	p.TotalPoints, p.UsedPoints = 150, 150
	w.profiles[userID] = p

	rewardLine := cart.Item{ID: uuid.New(), UserID: userID, ProductID: cake, Quantity: 1,
		UnitPrice: decimal.Zero, RewardID: sql.NullString{String: "REWARD-004", Valid: true}}
	w.rewardCosts[rewardLine.ID] = 150
	w.cartItems[userID] = []cart.Item{rewardLine}

	_, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "cart-only-reward"})
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	if len(w.orders) != 0 {
		t.Fatal("no order may be created")
	}
	if got := w.profiles[userID]; got.AvailablePoints != 150 || got.UsedPoints != 0 {
		t.Fatalf("refund must commit, got %+v", got)
	}
	if len(w.cartItems[userID]) != 0 {
		t.Fatal("the dead reward line should be gone")
	}
	if len(w.notified) != 1 {
		t.Fatalf("expected a balance notification, got %v", w.notified)
	}
}

func TestCheckoutRollsBackRefundWhenOrderFails(t *testing.T) {
	svc, w := newTestService(t)
	latte := w.addProduct("Spanish Latte", "18.50", true)
	cake := w.addProduct("Date Cake", "25", false)
	userID := w.addMember(loyalty.TierBronze, "0")
	w.failCredit = errCreditDown

	rewardLine := cart.Item{ID: uuid.New(), UserID: userID, ProductID: cake, Quantity: 1,
		UnitPrice: decimal.Zero, RewardID: sql.NullString{String: "REWARD-004", Valid: true}}
	w.rewardCosts[rewardLine.ID] = 150
	w.cartItems[userID] = []cart.Item{
		{ID: uuid.New(), UserID: userID, ProductID: latte, Quantity: 1, UnitPrice: mustDec("18.50")},
		rewardLine,
	}

	if _, err := svc.Create(context.Background(), CreateInput{UserID: userID, RequestID: "r"}); !errors.Is(err, errCreditDown) {
		t.Fatalf("expected credit failure, got %v", err)
	}
	if w.refunded[rewardLine.ID] || len(w.cartItems[userID]) != 2 {
		t.Fatal("refund and cart must roll back with the order")
	}
}
