package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/qahwa/cafe-api/internal/domain/user"
	"github.com/qahwa/cafe-api/internal/pkg/jwt"
	"github.com/qahwa/cafe-api/internal/pkg/password"
)

// TxFunc runs fn inside one database transaction
type TxFunc func(ctx context.Context, fn func(tx *sqlx.Tx) error) error

// LoyaltyAccounts opens and closes a member's points account alongside the user
type LoyaltyAccounts interface {
	EnsureProfileTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error
	DeactivateTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error
}

// Service handles authentication business logic
type Service struct {
	userRepo   user.Repository
	inTx       TxFunc
	loyalty    LoyaltyAccounts
	jwtService *jwt.Service
	tokens     RefreshStore
}

// NewService creates auth service
func NewService(userRepo user.Repository, inTx TxFunc, loyalty LoyaltyAccounts, jwtService *jwt.Service, tokens RefreshStore) *Service {
	return &Service{
		userRepo:   userRepo,
		inTx:       inTx,
		loyalty:    loyalty,
		jwtService: jwtService,
		tokens:     tokens,
	}
}

// Register creates a customer account together with its loyalty profile
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)

	// 1. Check if email exists
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, wrapRegisterError("lookup", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyExists
	}

	// 2. Hash password
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, wrapRegisterError("hash", err)
	}

	// 3. Create user and loyalty profile
	now := time.Now()
	u := &user.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         user.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone := normalizePhone(req.Phone); phone != "" {
		u.Phone = sql.NullString{String: phone, Valid: true}
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.userRepo.CreateTx(ctx, tx, u); err != nil {
			return wrapRegisterError("create_user", err)
		}
		if err := s.loyalty.EnsureProfileTx(ctx, tx, u.ID); err != nil {
			return wrapRegisterError("create_loyalty_profile", err)
		}
		return nil
	})
	if err != nil {
		if isEmailAlreadyExistsError(err) {
			return nil, ErrEmailAlreadyExists
		}
		if details := extractDBErrorDetails(err); details != nil {
			log.Error().
				Str("sql_state", details.SQLState).
				Str("constraint", details.Constraint).
				Str("table", details.Table).
				Msg("register failed on database constraint")
		}
		return nil, err
	}

	log.Info().Str("user_id", u.ID.String()).Msg("user registered")

	// 4. Generate tokens
	return s.generateTokens(ctx, u)
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)

	// 1. Find user
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Verify password
	if !password.Verify(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !u.IsActive {
		return nil, ErrUserDeactivated
	}

	// Upgrade hashes made with an older cost
	if password.NeedsRehash(u.PasswordHash) {
		if hash, err := password.Hash(req.Password); err == nil {
			if err := s.userRepo.UpdatePassword(ctx, u.ID, hash); err != nil {
				log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to rehash password")
			}
		}
	}
	if err := s.userRepo.UpdateLastLogin(ctx, u.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to update last login")
	}

	// 3. Generate tokens
	return s.generateTokens(ctx, u)
}

// Refresh rotates a refresh token and issues a new pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	// 1. Signature and type
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	// 2. Must still be on record (we store hash(refresh))
	refreshHash := jwt.HashRefreshToken(refreshToken)
	userID, err := s.tokens.Lookup(ctx, refreshHash)
	if err != nil {
		return nil, err
	}
	if userID != claims.UserID {
		return nil, ErrInvalidRefreshToken
	}

	// 3. Get user
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}

	// 4. Delete old refresh token (token rotation)
	if err := s.tokens.Revoke(ctx, refreshHash); err != nil {
		return nil, err
	}

	// 5. Generate new tokens
	return s.generateTokens(ctx, u)
}

// Logout invalidates refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil // Nothing to logout
	}
	return s.tokens.Revoke(ctx, jwt.HashRefreshToken(refreshToken))
}

// GetCurrentUser returns current user by ID
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	resp := NewUserResponse(u)
	return &resp, nil
}

// Deactivate closes the account and its loyalty profile and signs out every session.
// Ledger rows are kept.
func (s *Service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.userRepo.DeactivateTx(ctx, tx, userID); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return s.loyalty.DeactivateTx(ctx, tx, userID)
	})
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to revoke refresh tokens")
	}
	log.Info().Str("user_id", userID.String()).Msg("user deactivated")
	return nil
}

// generateTokens creates access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, u *user.User) (*AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}

	// Store hash(refresh), never the raw token
	if err := s.tokens.Save(ctx, jwt.HashRefreshToken(refreshToken), u.ID, s.jwtService.GetRefreshTTL()); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User: NewUserResponse(u),
		Tokens: TokensResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken, // return raw refresh to client
			ExpiresIn:    int(s.jwtService.GetAccessTTL().Seconds()),
			TokenType:    "Bearer",
		},
	}, nil
}
