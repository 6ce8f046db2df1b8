package loyalty_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("db not available: %v", err)
	}
	return db
}

func cleanupUser(db *sqlx.DB, userID uuid.UUID) {
	db.Exec("DELETE FROM loyalty_redemptions WHERE user_id = $1", userID)
	db.Exec("DELETE FROM discounts WHERE user_id = $1", userID)
	db.Exec("DELETE FROM cart_items WHERE user_id = $1", userID)
	db.Exec("DELETE FROM loyalty_point_lots WHERE user_id = $1", userID)
	db.Exec("DELETE FROM loyalty_points WHERE user_id = $1", userID)
	db.Exec("DELETE FROM loyalty_profiles WHERE user_id = $1", userID)
	db.Exec("DELETE FROM users WHERE id = $1", userID)
}

func createMember(t *testing.T, db *sqlx.DB, svc *loyalty.Service) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, 'hash', 'Test Member', 'customer', NOW(), NOW())
	`, id, fmt.Sprintf("loyalty_%s@test.sa", id.String()[:8]))
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	repo := loyalty.NewRepository(db)
	if err := repo.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return svc.EnsureProfileTx(context.Background(), tx, id)
	}); err != nil {
		t.Fatalf("create profile failed: %v", err)
	}
	t.Cleanup(func() { cleanupUser(db, id) })
	return id
}

func newDBService(t *testing.T, db *sqlx.DB) *loyalty.Service {
	t.Helper()
	catalog, err := loyalty.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	return loyalty.NewService(loyalty.NewRepository(db), catalog, discount.NewRepository(db), cart.NewRepository(db), loyalty.Options{})
}

func TestConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := newDBService(t, db)
	ctx := context.Background()

	userID := createMember(t, db, svc)
	if _, _, err := svc.Grant(ctx, userID, 300, "seed", ""); err != nil {
		t.Fatalf("grant: %v", err)
	}

	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, userID, "REWARD-002", fmt.Sprintf("concurrent-%02d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, loyalty.ErrInsufficientPoints):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one redemption to succeed, got %d", succeeded)
	}

	p, err := svc.GetProfile(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if p.AvailablePoints != 100 || p.UsedPoints != 200 || !p.Balanced() {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestRepeatedRequestIDReplaysAgainstDB(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := newDBService(t, db)
	ctx := context.Background()

	userID := createMember(t, db, svc)
	if _, _, err := svc.Grant(ctx, userID, 500, "seed", "seed-"+userID.String()[:8]); err != nil {
		t.Fatalf("grant: %v", err)
	}

	first, err := svc.Redeem(ctx, userID, "REWARD-002", "db-replay-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Redeem(ctx, userID, "REWARD-002", "db-replay-1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Replayed || second.Redemption.ID != first.Redemption.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Redemption.ID, second.Redemption)
	}

	p, _ := svc.GetProfile(ctx, userID)
	if p.AvailablePoints != 300 {
		t.Fatalf("available = %d, want 300", p.AvailablePoints)
	}
}

func TestExpiringPointsWindow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := newDBService(t, db)
	repo := loyalty.NewRepository(db)
	ctx := context.Background()

	userID := createMember(t, db, svc)
	if _, _, err := svc.Grant(ctx, userID, 40, "seed", ""); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	points, next, err := repo.ExpiringPoints(ctx, userID, now, now.AddDate(0, 7, 0))
	if err != nil {
		t.Fatal(err)
	}
	if points != 40 || next == nil {
		t.Fatalf("expected 40 points with a next expiry, got %d %v", points, next)
	}

	points, next, err = repo.ExpiringPoints(ctx, userID, now, now.AddDate(0, 0, 30))
	if err != nil || points != 0 || next != nil {
		t.Fatalf("nothing should expire within 30 days, got %d %v %v", points, next, err)
	}
}
