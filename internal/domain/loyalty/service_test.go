package loyalty

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/pkg/realtime"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []realtime.Event
}

func (p *recordingPublisher) SendToUser(_ context.Context, _ uuid.UUID, e realtime.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	store := newMemStore()
	store.products["BEV-ARABIC-COFFEE"] = true
	svc := NewService(store, catalog, store, store, Options{})
	svc.now = func() time.Time { return t0 }
	return svc, store
}

func (s *Service) setClock(at time.Time) {
	s.now = func() time.Time { return at }
	s.catalog = s.catalog.WithClock(s.now)
}

func newMember(t *testing.T, svc *Service, store *memStore) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	if err := store.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return svc.EnsureProfileTx(context.Background(), tx, userID)
	}); err != nil {
		t.Fatal(err)
	}
	return userID
}

func grantAt(t *testing.T, svc *Service, userID uuid.UUID, points int, at time.Time) {
	t.Helper()
	svc.setClock(at)
	if _, _, err := svc.Grant(context.Background(), userID, points, "seed", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}
}

func assertBalanced(t *testing.T, store *memStore, userID uuid.UUID) {
	t.Helper()
	p := store.profiles[userID]
	if !p.Balanced() {
		t.Fatalf("profile not balanced: %+v", p)
	}
	sum := 0
	for _, e := range store.entries {
		if e.UserID == userID {
			sum += e.Points
		}
	}
	if sum != p.AvailablePoints {
		t.Fatalf("ledger sum %d != available %d", sum, p.AvailablePoints)
	}
	open := 0
	for _, l := range store.lots {
		if l.UserID == userID {
			open += l.Remaining
		}
	}
	if open != p.AvailablePoints {
		t.Fatalf("open lots %d != available %d", open, p.AvailablePoints)
	}
}

func TestRedeemFixedDiscount(t *testing.T) {
	svc, store := newTestService(t)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 850, t0)

	svc.setClock(t0.Add(time.Hour))
	result, err := svc.Redeem(context.Background(), userID, "REWARD-002", "redeem-0001")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if result.Profile.AvailablePoints != 650 || result.Profile.UsedPoints != 200 {
		t.Fatalf("unexpected profile after redeem: %+v", result.Profile)
	}
	if result.Discount == nil || result.Discount.Kind != discount.KindFixed || !result.Discount.Value.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected fixed 20 SAR discount, got %+v", result.Discount)
	}
	if result.Discount.Status != discount.StatusAvailable {
		t.Fatalf("new discount must be available, got %s", result.Discount.Status)
	}

	last := store.entries[len(store.entries)-1]
	if last.Points != -200 || last.Type != EntryUsed || last.Source != SourceRedemption {
		t.Fatalf("unexpected ledger entry: %+v", last)
	}
	if last.Description != "Redeemed reward: 20 SAR Off" {
		t.Fatalf("unexpected description %q", last.Description)
	}
	assertBalanced(t, store, userID)

	if len(pub.events) == 0 || pub.events[len(pub.events)-1].Type != EventBalanceUpdated {
		t.Fatalf("expected balance event, got %+v", pub.events)
	}
}

func TestRedeemInsufficientPoints(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 50, t0)
	entriesBefore := len(store.entries)

	_, err := svc.Redeem(context.Background(), userID, "REWARD-001", "redeem-0002")

	var insufficient *InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
	if insufficient.Current != 50 || insufficient.Required != 100 {
		t.Fatalf("unexpected details: %+v", insufficient)
	}
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatal("InsufficientPointsError must match ErrInsufficientPoints")
	}
	if store.profiles[userID].AvailablePoints != 50 || len(store.entries) != entriesBefore {
		t.Fatal("failed redemption must not change the ledger")
	}
}

func TestRedeemReplayAndConflict(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 500, t0)
	ctx := context.Background()

	first, err := svc.Redeem(ctx, userID, "REWARD-002", "redeem-0003")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Redeem(ctx, userID, "REWARD-002", "redeem-0003")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Discount == nil || second.Discount.ID != first.Discount.ID {
		t.Fatalf("expected replay of the first result, got %+v", second)
	}
	if store.profiles[userID].AvailablePoints != 300 {
		t.Fatalf("replay must not debit twice, available = %d", store.profiles[userID].AvailablePoints)
	}
	if len(store.discounts) != 1 {
		t.Fatalf("replay must not issue a second discount, got %d", len(store.discounts))
	}

	if _, err := svc.Redeem(ctx, userID, "REWARD-003", "redeem-0003"); !errors.Is(err, ErrRequestConflict) {
		t.Fatalf("expected ErrRequestConflict, got %v", err)
	}
	assertBalanced(t, store, userID)
}

func TestRedeemFreeItem(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 120, t0)

	result, err := svc.Redeem(context.Background(), userID, "REWARD-001", "redeem-0004")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if result.CartItem == nil || !result.CartItem.IsReward() || !result.CartItem.UnitPrice.IsZero() {
		t.Fatalf("expected a zero-price reward line, got %+v", result.CartItem)
	}
	if !result.Redemption.CartItemID.Valid || result.Redemption.DiscountID.Valid {
		t.Fatalf("redemption should reference the cart line only: %+v", result.Redemption)
	}
	assertBalanced(t, store, userID)
}

func TestRedeemFreeItemRollsBackWhenProductUnavailable(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 400, t0)
	entriesBefore := len(store.entries)

	_, err := svc.Redeem(context.Background(), userID, "REWARD-004", "redeem-0005")
	if !errors.Is(err, ErrRewardUnavailable) {
		t.Fatalf("expected ErrRewardUnavailable, got %v", err)
	}

	p := store.profiles[userID]
	if p.AvailablePoints != 400 || p.UsedPoints != 0 {
		t.Fatalf("balance must be unchanged, got %+v", p)
	}
	if len(store.entries) != entriesBefore || len(store.redemptions) != 0 || len(store.cartItems) != 0 {
		t.Fatal("nothing may be persisted when the reward product is unavailable")
	}
	if store.lots[0].Remaining != 400 {
		t.Fatalf("lot must be restored, remaining = %d", store.lots[0].Remaining)
	}
}

func TestRedeemRejectsUnknownInactiveAndMissingRequestID(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 1000, t0)
	ctx := context.Background()

	if _, err := svc.Redeem(ctx, userID, "REWARD-999", "redeem-0006"); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}
	if _, err := svc.Redeem(ctx, userID, "REWARD-006", "redeem-0007"); !errors.Is(err, ErrRewardUnavailable) {
		t.Fatalf("expected ErrRewardUnavailable for inactive reward, got %v", err)
	}
	if _, err := svc.Redeem(ctx, userID, "REWARD-002", ""); !errors.Is(err, ErrRequestIDRequired) {
		t.Fatalf("expected ErrRequestIDRequired, got %v", err)
	}
	if store.profiles[userID].AvailablePoints != 1000 {
		t.Fatal("rejected redemptions must not change the balance")
	}
}

func TestRedeemPointsCapsDiscountValue(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 300, t0)
	ctx := context.Background()

	if _, err := svc.RedeemPoints(ctx, userID, 200, decimal.NewFromInt(25), "points-0001"); !errors.Is(err, ErrInvalidDiscountAmount) {
		t.Fatalf("expected ErrInvalidDiscountAmount, got %v", err)
	}

	result, err := svc.RedeemPoints(ctx, userID, 200, decimal.NewFromInt(20), "points-0002")
	if err != nil {
		t.Fatalf("RedeemPoints: %v", err)
	}
	if result.Redemption.RewardID != PointsRewardID || !result.Discount.Value.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected result: %+v", result.Redemption)
	}
	if result.Profile.AvailablePoints != 100 {
		t.Fatalf("available = %d, want 100", result.Profile.AvailablePoints)
	}
	assertBalanced(t, store, userID)
}

func TestCreditOrderUsesTierBeforeOrder(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	ctx := context.Background()

	credit := func(total string) *CreditResult {
		t.Helper()
		var res *CreditResult
		err := store.InTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			res, err = svc.CreditOrderTx(ctx, tx, userID, uuid.New(), decimal.RequireFromString(total))
			return err
		})
		if err != nil {
			t.Fatalf("CreditOrderTx(%s): %v", total, err)
		}
		return res
	}

	first := credit("120.50")
	if first.PointsEarned != 120 || first.Profile.Tier != TierBronze {
		t.Fatalf("unexpected first credit: %+v", first)
	}

	second := credit("400")
	if second.PointsEarned != 400 {
		t.Fatalf("order that crosses a tier earns at the old rate, got %d", second.PointsEarned)
	}
	if second.Profile.Tier != TierSilver || !second.TierChanged {
		t.Fatalf("expected promotion to silver, got %+v", second.Profile)
	}

	third := credit("100")
	if third.PointsEarned != 120 {
		t.Fatalf("silver earns 1.2x, got %d", third.PointsEarned)
	}

	p := store.profiles[userID]
	if p.TotalOrders != 3 || !p.TotalSpent.Equal(decimal.RequireFromString("620.50")) || p.AvailablePoints != 640 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	for _, e := range store.entries {
		if !e.ExpiresAt.Valid || !e.ExpiresAt.Time.Equal(t0.AddDate(0, 6, 0)) {
			t.Fatalf("earned entry must expire six months after earning: %+v", e)
		}
	}
	assertBalanced(t, store, userID)
}

func TestCreditOrderTwiceFails(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	ctx := context.Background()
	orderID := uuid.New()

	run := func() error {
		return store.InTx(ctx, func(tx *sqlx.Tx) error {
			_, err := svc.CreditOrderTx(ctx, tx, userID, orderID, decimal.NewFromInt(50))
			return err
		})
	}
	if err := run(); err != nil {
		t.Fatal(err)
	}
	if err := run(); !errors.Is(err, ErrAlreadyCredited) {
		t.Fatalf("expected ErrAlreadyCredited, got %v", err)
	}
	if store.profiles[userID].TotalOrders != 1 {
		t.Fatal("second credit must roll back")
	}
}

func TestExpiryConsumesOldestLotsFirst(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	ctx := context.Background()

	grantAt(t, svc, userID, 100, t0)
	grantAt(t, svc, userID, 100, t0.AddDate(0, 2, 0))

	svc.setClock(t0.AddDate(0, 3, 0))
	if _, err := svc.RedeemPoints(ctx, userID, 60, decimal.NewFromInt(6), "points-0003"); err != nil {
		t.Fatal(err)
	}

	svc.setClock(t0.AddDate(0, 6, 1))
	summary, err := svc.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if summary.Users != 1 || summary.Points != 40 {
		t.Fatalf("expected 40 points expired for one user, got %+v", summary)
	}

	p := store.profiles[userID]
	if p.AvailablePoints != 100 || p.ExpiredPoints != 40 || p.UsedPoints != 60 || p.TotalPoints != 200 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	last := store.entries[len(store.entries)-1]
	if last.Type != EntryExpired || last.Source != SourceExpiry || last.Points != -40 {
		t.Fatalf("unexpected expiry entry: %+v", last)
	}
	assertBalanced(t, store, userID)

	again, err := svc.ExpireDue(ctx)
	if err != nil || again.Points != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v %v", again, err)
	}
}

func TestRedeemSeesOnlyUnexpiredPoints(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 250, t0)

	svc.setClock(t0.AddDate(0, 7, 0))
	_, err := svc.Redeem(context.Background(), userID, "REWARD-002", "redeem-0008")

	var insufficient *InsufficientPointsError
	if !errors.As(err, &insufficient) || insufficient.Current != 0 {
		t.Fatalf("expired points must not be spendable, got %v", err)
	}
}

func TestGrantIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	ctx := context.Background()

	if _, replayed, err := svc.Grant(ctx, userID, 75, "Birthday", "grant-0001"); err != nil || replayed {
		t.Fatalf("first grant: replayed=%v err=%v", replayed, err)
	}
	p, replayed, err := svc.Grant(ctx, userID, 75, "Birthday", "grant-0001")
	if err != nil || !replayed || p.AvailablePoints != 75 {
		t.Fatalf("replay: p=%+v replayed=%v err=%v", p, replayed, err)
	}
	if _, _, err := svc.Grant(ctx, userID, 80, "Birthday", "grant-0001"); !errors.Is(err, ErrRequestConflict) {
		t.Fatalf("expected ErrRequestConflict, got %v", err)
	}
	if _, _, err := svc.Grant(ctx, userID, 0, "", ""); !errors.Is(err, ErrInvalidPoints) {
		t.Fatalf("expected ErrInvalidPoints, got %v", err)
	}
	if _, _, err := svc.Grant(ctx, uuid.New(), 10, "", ""); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	assertBalanced(t, store, userID)
}

func TestSummaryReportsPointsExpiringSoon(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 90, t0)
	grantAt(t, svc, userID, 30, t0.AddDate(0, 4, 0))

	svc.setClock(t0.AddDate(0, 5, 10))
	summary, err := svc.GetSummary(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ExpiringPoints != 90 {
		t.Fatalf("expected 90 points expiring soon, got %d", summary.ExpiringPoints)
	}
	if summary.NextExpiry == nil || !summary.NextExpiry.Equal(t0.AddDate(0, 6, 0)) {
		t.Fatalf("unexpected next expiry %v", summary.NextExpiry)
	}
	if summary.Progress.Current != TierBronze || summary.Progress.Next != TierSilver {
		t.Fatalf("unexpected progress %+v", summary.Progress)
	}
}

func TestRedeemRequiresActiveProfile(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 300, t0)

	if err := store.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return svc.DeactivateTx(context.Background(), tx, userID)
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(context.Background(), userID, "REWARD-002", "redeem-0009"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestGrantThenRedeemAllRestoresBalance(t *testing.T) {
	svc, store := newTestService(t)
	userID := newMember(t, svc, store)
	ctx := context.Background()

	grantAt(t, svc, userID, 40, t0)
	before := store.profiles[userID].AvailablePoints

	grantAt(t, svc, userID, 150, t0.Add(time.Hour))
	svc.setClock(t0.Add(2 * time.Hour))
	result, err := svc.RedeemPoints(ctx, userID, 150, MaxDiscountFor(150), "points-0100")
	if err != nil {
		t.Fatalf("RedeemPoints: %v", err)
	}

	p := store.profiles[userID]
	if result.Profile.AvailablePoints != before || p.AvailablePoints != before {
		t.Fatalf("available = %d/%d, want %d", result.Profile.AvailablePoints, p.AvailablePoints, before)
	}
	if !p.Balanced() || p.TotalPoints != 190 || p.UsedPoints != 150 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	assertBalanced(t, store, userID)
}

func TestRedeemReplaysAfterRewardWithdrawn(t *testing.T) {
	svc, store := newTestService(t)
	catalog, err := LoadCatalog(strings.NewReader(expiringCatalog))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	svc.catalog = catalog
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 80, t0)
	ctx := context.Background()

	svc.setClock(time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC))
	first, err := svc.Redeem(ctx, userID, "EID-001", "eid-0001")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	svc.setClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	second, err := svc.Redeem(ctx, userID, "EID-001", "eid-0001")
	if err != nil {
		t.Fatalf("retry after valid_until: %v", err)
	}
	if !second.Replayed || second.Redemption.ID != first.Redemption.ID {
		t.Fatalf("expected replay of the first redemption, got %+v", second.Redemption)
	}

	if _, err := svc.Redeem(ctx, userID, "EID-001", "eid-0002"); !errors.Is(err, ErrRewardUnavailable) {
		t.Fatalf("expected ErrRewardUnavailable for a new request, got %v", err)
	}
	if store.profiles[userID].AvailablePoints != 30 {
		t.Fatalf("available = %d, want 30", store.profiles[userID].AvailablePoints)
	}
	assertBalanced(t, store, userID)
}

func TestExpiryContinuesPastFailingUsers(t *testing.T) {
	svc, store := newTestService(t)
	svc.batchSize = 1
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 100, t0)

	// No profile behind these lots, and the id sorts ahead of every member.
	orphan := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	store.lots = append(store.lots, Lot{
		EntryID:   uuid.New(),
		UserID:    orphan,
		Remaining: 30,
		ExpiresAt: t0.AddDate(0, 1, 0),
		CreatedAt: t0,
	})

	svc.setClock(t0.AddDate(0, 6, 1))
	summary, err := svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if summary.Failed != 1 || summary.Users != 1 || summary.Points != 100 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if p := store.profiles[userID]; p.AvailablePoints != 0 || p.ExpiredPoints != 100 {
		t.Fatalf("member points not expired: %+v", p)
	}
}

func TestRefundRewardLineRestoresPoints(t *testing.T) {
	svc, store := newTestService(t)
	store.products["DSR-DATE-CAKE"] = true
	userID := newMember(t, svc, store)
	grantAt(t, svc, userID, 200, t0)
	ctx := context.Background()

	svc.setClock(t0.Add(time.Hour))
	result, err := svc.Redeem(ctx, userID, "REWARD-004", "redeem-0100")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	svc.setClock(t0.AddDate(0, 1, 0))
	var refunded int
	err = store.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		refunded, err = svc.RefundRewardLineTx(ctx, tx, userID, *result.CartItem)
		return err
	})
	if err != nil {
		t.Fatalf("RefundRewardLineTx: %v", err)
	}
	if refunded != 150 {
		t.Fatalf("refunded = %d, want 150", refunded)
	}

	p := store.profiles[userID]
	if p.AvailablePoints != 200 || p.UsedPoints != 0 || p.TotalPoints != 200 {
		t.Fatalf("unexpected profile after refund: %+v", p)
	}
	last := store.entries[len(store.entries)-1]
	if last.Type != EntryUsed || last.Source != SourceRedemption || last.Points != 150 {
		t.Fatalf("unexpected refund entry: %+v", last)
	}
	if !store.redemptions[0].RefundedAt.Valid {
		t.Fatal("redemption must be marked refunded")
	}
	assertBalanced(t, store, userID)

	err = store.InTx(ctx, func(tx *sqlx.Tx) error {
		_, err := svc.RefundRewardLineTx(ctx, tx, userID, *result.CartItem)
		return err
	})
	if !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
	}
	if store.profiles[userID].AvailablePoints != 200 {
		t.Fatal("a second refund must not credit again")
	}
}
