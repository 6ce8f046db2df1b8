package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Credit is a positive balance change applied to a profile
type Credit struct {
	UserID uuid.UUID
	Points int
	Spent  decimal.Decimal
	Orders int
	Tier   Tier
	At     time.Time
}

// Repository is the persistence boundary of the ledger. Methods ending in Tx
// run inside the caller's transaction; lookups return nil, nil when missing.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error

	CreateProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, at time.Time) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	LockProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Profile, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, c Credit) error
	DebitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error
	ExpireTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error
	DeactivateProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error

	InsertEntryTx(ctx context.Context, tx *sqlx.Tx, e *LoyaltyPoint) error
	FindEntryByRequest(ctx context.Context, userID uuid.UUID, requestID string) (*LoyaltyPoint, error)
	ListEntries(ctx context.Context, userID uuid.UUID, p Pagination) ([]LoyaltyPoint, int, error)
	SearchEntries(ctx context.Context, f SearchFilters) ([]LoyaltyPoint, error)

	InsertLotTx(ctx context.Context, tx *sqlx.Tx, lot *Lot) error
	OpenLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error)
	ExpiredLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error)
	SetLotRemainingTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, remaining int) error
	UsersWithExpiredLots(ctx context.Context, now time.Time, exclude []uuid.UUID, limit int) ([]uuid.UUID, error)
	ExpiringPoints(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, *time.Time, error)

	InsertRedemptionTx(ctx context.Context, tx *sqlx.Tx, r *Redemption) error
	FindRedemption(ctx context.Context, userID uuid.UUID, requestID string) (*Redemption, error)
	FindRedemptionByCartItemTx(ctx context.Context, tx *sqlx.Tx, cartItemID uuid.UUID) (*Redemption, error)
	MarkRedemptionRefundedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
	RefundTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error
}

const (
	profileColumns = `user_id, total_points, available_points, used_points, expired_points, tier,
		join_date, last_activity, total_spent, total_orders, is_active`
	entryColumns = `id, user_id, points, type, source, description, order_id, request_id, created_at, expires_at`
	lotColumns   = `entry_id, user_id, remaining, expires_at, created_at`

	redemptionColumns = `id, user_id, reward_id, points, request_id, entry_id, discount_id, cart_item_id,
		created_at, refunded_at`
)

// PostgresRepository implements Repository on PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewRepository creates loyalty repository
func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return database.InTx(ctx, r.db, fn)
}

// CreateProfileTx opens an empty bronze profile; existing profiles are left untouched
func (r *PostgresRepository) CreateProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_profiles (user_id, tier, join_date, last_activity)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, TierBronze, at)
	if err != nil {
		return fmt.Errorf("create loyalty profile: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM loyalty_profiles WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get loyalty profile: %w", err)
	}
	return &p, nil
}

// LockProfileTx reads the profile with a row lock held until the transaction ends
func (r *PostgresRepository) LockProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := tx.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM loyalty_profiles WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock loyalty profile: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreditTx(ctx context.Context, tx *sqlx.Tx, c Credit) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_profiles
		SET total_points = total_points + $2,
		    available_points = available_points + $2,
		    total_spent = total_spent + $3,
		    total_orders = total_orders + $4,
		    tier = $5,
		    last_activity = $6
		WHERE user_id = $1 AND is_active
	`, c.UserID, c.Points, c.Spent, c.Orders, c.Tier, c.At)
	if err != nil {
		return fmt.Errorf("credit loyalty profile: %w", err)
	}
	return requireRow(result, ErrProfileNotFound)
}

// DebitTx moves points from available to used only if the balance covers them
func (r *PostgresRepository) DebitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_profiles
		SET available_points = available_points - $2,
		    used_points = used_points + $2,
		    last_activity = $3
		WHERE user_id = $1 AND is_active AND available_points >= $2
	`, userID, points, at)
	if err != nil {
		return fmt.Errorf("debit loyalty profile: %w", err)
	}
	return requireRow(result, ErrInsufficientPoints)
}

// ExpireTx moves points from available to expired
func (r *PostgresRepository) ExpireTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_profiles
		SET available_points = available_points - $2,
		    expired_points = expired_points + $2
		WHERE user_id = $1 AND available_points >= $2
	`, userID, points)
	if err != nil {
		return fmt.Errorf("expire loyalty points: %w", err)
	}
	return requireRow(result, ErrLedgerInconsistent)
}

func (r *PostgresRepository) DeactivateProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE loyalty_profiles SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deactivate loyalty profile: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertEntryTx(ctx context.Context, tx *sqlx.Tx, e *LoyaltyPoint) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO loyalty_points (`+entryColumns+`)
		VALUES (:id, :user_id, :points, :type, :source, :description, :order_id, :request_id, :created_at, :expires_at)
	`, e)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "loyalty_points_user_request_key"):
			return ErrDuplicateRequest
		case database.IsUniqueViolation(err, "loyalty_points_order_earned_key"):
			return ErrAlreadyCredited
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindEntryByRequest(ctx context.Context, userID uuid.UUID, requestID string) (*LoyaltyPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var e LoyaltyPoint
	err := r.db.GetContext(ctx, &e, `
		SELECT `+entryColumns+` FROM loyalty_points WHERE user_id = $1 AND request_id = $2
	`, userID, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) ListEntries(ctx context.Context, userID uuid.UUID, p Pagination) ([]LoyaltyPoint, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM loyalty_points WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	entries := make([]LoyaltyPoint, 0)
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		FROM loyalty_points
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, total, nil
}

func (r *PostgresRepository) SearchEntries(ctx context.Context, f SearchFilters) ([]LoyaltyPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `SELECT ` + entryColumns + ` FROM loyalty_points WHERE 1=1`
	args := make([]interface{}, 0, 8)
	idx := 1

	if f.UserID != nil {
		base += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.Type != nil {
		base += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, *f.Type)
		idx++
	}
	if f.Source != nil {
		base += fmt.Sprintf(" AND source = $%d", idx)
		args = append(args, *f.Source)
		idx++
	}
	if f.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.DateFrom)
		idx++
	}
	if f.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *f.DateTo)
		idx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	entries := make([]LoyaltyPoint, 0)
	if err := r.db.SelectContext(ctx, &entries, base, args...); err != nil {
		return nil, fmt.Errorf("search ledger entries: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) InsertLotTx(ctx context.Context, tx *sqlx.Tx, lot *Lot) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO loyalty_point_lots (`+lotColumns+`)
		VALUES (:entry_id, :user_id, :remaining, :expires_at, :created_at)
	`, lot)
	if err != nil {
		return fmt.Errorf("insert points lot: %w", err)
	}
	return nil
}

// OpenLotsTx returns spendable lots, first earned first
func (r *PostgresRepository) OpenLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error) {
	lots := make([]Lot, 0)
	err := tx.SelectContext(ctx, &lots, `
		SELECT `+lotColumns+`
		FROM loyalty_point_lots
		WHERE user_id = $1 AND remaining > 0 AND expires_at > $2
		ORDER BY created_at, entry_id
		FOR UPDATE
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("select open lots: %w", err)
	}
	return lots, nil
}

// ExpiredLotsTx returns lots past their expiry that still hold points
func (r *PostgresRepository) ExpiredLotsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) ([]Lot, error) {
	lots := make([]Lot, 0)
	err := tx.SelectContext(ctx, &lots, `
		SELECT `+lotColumns+`
		FROM loyalty_point_lots
		WHERE user_id = $1 AND remaining > 0 AND expires_at <= $2
		ORDER BY created_at, entry_id
		FOR UPDATE
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("select expired lots: %w", err)
	}
	return lots, nil
}

func (r *PostgresRepository) SetLotRemainingTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, remaining int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_point_lots SET remaining = $2 WHERE entry_id = $1 AND remaining >= $2
	`, entryID, remaining)
	if err != nil {
		return fmt.Errorf("update points lot: %w", err)
	}
	return requireRow(result, ErrLedgerInconsistent)
}

// UsersWithExpiredLots lists users holding overdue points, skipping exclude
func (r *PostgresRepository) UsersWithExpiredLots(ctx context.Context, now time.Time, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	skip := make([]string, 0, len(exclude))
	for _, id := range exclude {
		skip = append(skip, id.String())
	}

	users := make([]uuid.UUID, 0)
	err := r.db.SelectContext(ctx, &users, `
		SELECT DISTINCT user_id
		FROM loyalty_point_lots
		WHERE remaining > 0 AND expires_at <= $1
		  AND NOT (user_id = ANY($2::uuid[]))
		ORDER BY user_id
		LIMIT $3
	`, now, pq.Array(skip), limit)
	if err != nil {
		return nil, fmt.Errorf("select users with expired lots: %w", err)
	}
	return users, nil
}

// ExpiringPoints sums unconsumed points expiring in [from, to) and returns the earliest expiry
func (r *PostgresRepository) ExpiringPoints(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, *time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row struct {
		Points int          `db:"points"`
		Next   sql.NullTime `db:"next_expiry"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(remaining), 0) AS points, MIN(expires_at) AS next_expiry
		FROM loyalty_point_lots
		WHERE user_id = $1 AND remaining > 0 AND expires_at > $2 AND expires_at <= $3
	`, userID, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("sum expiring points: %w", err)
	}
	if !row.Next.Valid {
		return row.Points, nil, nil
	}
	return row.Points, &row.Next.Time, nil
}

func (r *PostgresRepository) InsertRedemptionTx(ctx context.Context, tx *sqlx.Tx, red *Redemption) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO loyalty_redemptions (id, user_id, reward_id, points, request_id, entry_id, discount_id, cart_item_id, created_at)
		VALUES (:id, :user_id, :reward_id, :points, :request_id, :entry_id, :discount_id, :cart_item_id, :created_at)
	`, red)
	if err != nil {
		if database.IsUniqueViolation(err, "loyalty_redemptions_user_request_key") {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindRedemption(ctx context.Context, userID uuid.UUID, requestID string) (*Redemption, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var red Redemption
	err := r.db.GetContext(ctx, &red, `
		SELECT `+redemptionColumns+`
		FROM loyalty_redemptions
		WHERE user_id = $1 AND request_id = $2
	`, userID, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find redemption: %w", err)
	}
	return &red, nil
}

// FindRedemptionByCartItemTx locks the redemption that put a reward line in a cart
func (r *PostgresRepository) FindRedemptionByCartItemTx(ctx context.Context, tx *sqlx.Tx, cartItemID uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := tx.GetContext(ctx, &red, `
		SELECT `+redemptionColumns+`
		FROM loyalty_redemptions
		WHERE cart_item_id = $1
		FOR UPDATE
	`, cartItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find redemption by cart item: %w", err)
	}
	return &red, nil
}

func (r *PostgresRepository) MarkRedemptionRefundedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_redemptions SET refunded_at = $2 WHERE id = $1 AND refunded_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark redemption refunded: %w", err)
	}
	return requireRow(result, ErrAlreadyRefunded)
}

// RefundTx moves points from used back to available
func (r *PostgresRepository) RefundTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_profiles
		SET available_points = available_points + $2,
		    used_points = used_points - $2,
		    last_activity = $3
		WHERE user_id = $1 AND used_points >= $2
	`, userID, points, at)
	if err != nil {
		return fmt.Errorf("refund points: %w", err)
	}
	return requireRow(result, ErrLedgerInconsistent)
}

func requireRow(result sql.Result, errNone error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return errNone
	}
	return nil
}
