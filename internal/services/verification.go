package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/prodcat/apiserver/config"
	"github.com/prodcat/apiserver/internal/mailer"
	"github.com/prodcat/apiserver/internal/store"
	"github.com/prodcat/apiserver/types"
	"github.com/rs/zerolog"
)

// OTPRepository defines persistence operations for OTP challenges.
type OTPRepository interface {
	Get(ctx context.Context, email string) (types.OTPChallenge, error)
	Upsert(ctx context.Context, challenge types.OTPChallenge) error
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

// TokenRepository defines persistence operations for single-use tokens.
type TokenRepository interface {
	Create(ctx context.Context, token types.VerificationToken) error
	GetByHash(ctx context.Context, hash string, purpose types.TokenPurpose) (types.VerificationToken, error)
	MarkUsed(ctx context.Context, id string) error
	InvalidateForUser(ctx context.Context, userID int, purpose types.TokenPurpose) error
}

// VerificationService owns the email-verification and password-reset
// flows. The server is authoritative for code expiry and resend
// cooldowns; clients only mirror the countdowns.
type VerificationService struct {
	users  UserRepository
	otps   OTPRepository
	tokens TokenRepository
	mail   mailer.Sender
	cfg    config.OTPConfig
	base   string
	logger zerolog.Logger

	now func() time.Time
}

func NewVerificationService(
	users UserRepository,
	otps OTPRepository,
	tokens TokenRepository,
	mail mailer.Sender,
	cfg config.OTPConfig,
	baseURL string,
	logger zerolog.Logger,
) *VerificationService {
	return &VerificationService{
		users:  users,
		otps:   otps,
		tokens: tokens,
		mail:   mail,
		cfg:    cfg,
		base:   baseURL,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates an unverified account and dispatches both an OTP and
// a single-use verification link to the address.
func (s *VerificationService) Register(ctx context.Context, name, email, passwordHash string) (types.User, error) {
	user, err := s.users.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	if err := s.issueOTP(ctx, user.Email); err != nil {
		return types.User{}, err
	}
	if err := s.issueLink(ctx, user, types.TokenPurposeVerifyEmail); err != nil {
		// The OTP already went out; a broken link email should not
		// strand the registration.
		s.logger.Warn().Err(err).Str("email", user.Email).Msg("verification link dispatch failed")
	}

	return user, nil
}

// VerifyOTP checks the 6-digit code for the email and marks the
// account verified on success. Failures never advance state: the
// challenge stays live (minus one attempt) until it expires.
func (s *VerificationService) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPInvalid
		}
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	challenge, err := s.otps.Get(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPInvalid
		}
		return err
	}

	if s.now().After(challenge.ExpiresAt) {
		return ErrOTPExpired
	}
	if challenge.Attempts >= s.cfg.MaxAttempts {
		return ErrTooManyAttempts
	}
	if challenge.Code != code {
		if _, err := s.otps.IncrementAttempts(ctx, email); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return ErrOTPInvalid
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return err
	}
	_ = s.otps.Delete(ctx, email)
	_ = s.tokens.InvalidateForUser(ctx, user.ID, types.TokenPurposeVerifyEmail)

	s.logger.Info().Str("email", email).Msg("account verified via OTP")
	return nil
}

// ResendOTP re-issues the code for an unverified account. The cooldown
// since the last send is enforced here, not in the client.
func (s *VerificationService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOTPInvalid
		}
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	challenge, err := s.otps.Get(ctx, email)
	if err == nil {
		if s.now().Before(challenge.LastSentAt.Add(s.cfg.ResendCooldown)) {
			return ErrResendTooSoon
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return s.issueOTP(ctx, email)
}

// ResendVerificationLink re-issues the single-use link, superseding any
// previous one.
func (s *VerificationService) ResendVerificationLink(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}
	return s.issueLink(ctx, user, types.TokenPurposeVerifyEmail)
}

// VerifyLinkToken consumes a verification link token. The token is
// marked used before the account flips, so a concurrent duplicate
// request cannot consume it twice.
func (s *VerificationService) VerifyLinkToken(ctx context.Context, token string) error {
	record, err := s.lookupToken(ctx, token, types.TokenPurposeVerifyEmail)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	if err := s.tokens.MarkUsed(ctx, record.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenUsed
		}
		return err
	}
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return err
	}
	_ = s.otps.Delete(ctx, user.Email)

	s.logger.Info().Str("email", user.Email).Msg("account verified via link")
	return nil
}

// RequestPasswordReset emails a reset link. It deliberately reports
// success for unknown addresses so the endpoint cannot be used to
// enumerate accounts.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.issueLink(ctx, user, types.TokenPurposeResetPassword)
}

// ResetPassword consumes a reset token and installs the new hash.
func (s *VerificationService) ResetPassword(ctx context.Context, token, newPasswordHash string) error {
	record, err := s.lookupToken(ctx, token, types.TokenPurposeResetPassword)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	if err := s.tokens.MarkUsed(ctx, record.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenUsed
		}
		return err
	}

	user.PasswordHash = newPasswordHash
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info().Str("email", user.Email).Msg("password reset")
	return nil
}

func (s *VerificationService) issueOTP(ctx context.Context, email string) error {
	code, err := generateOTPCode()
	if err != nil {
		return err
	}

	now := s.now()
	challenge := types.OTPChallenge{
		Email:      email,
		Code:       code,
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
		LastSentAt: now,
		Attempts:   0,
	}
	if err := s.otps.Upsert(ctx, challenge); err != nil {
		return err
	}

	return s.mail.SendOTP(email, code, s.cfg.CodeTTL.String())
}

func (s *VerificationService) issueLink(ctx context.Context, user types.User, purpose types.TokenPurpose) error {
	raw, err := generateOpaqueToken()
	if err != nil {
		return err
	}

	if err := s.tokens.InvalidateForUser(ctx, user.ID, purpose); err != nil {
		return err
	}

	now := s.now()
	record := types.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		Purpose:   purpose,
		ExpiresAt: now.Add(s.cfg.LinkTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return err
	}

	switch purpose {
	case types.TokenPurposeResetPassword:
		link := fmt.Sprintf("%s/reset-password/%s", s.base, raw)
		return s.mail.SendPasswordResetLink(user.Email, link)
	default:
		link := fmt.Sprintf("%s/verify-email?token=%s", s.base, raw)
		return s.mail.SendVerificationLink(user.Email, link)
	}
}

func (s *VerificationService) lookupToken(ctx context.Context, token string, purpose types.TokenPurpose) (types.VerificationToken, error) {
	record, err := s.tokens.GetByHash(ctx, hashToken(token), purpose)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.VerificationToken{}, ErrTokenInvalid
		}
		return types.VerificationToken{}, err
	}
	if record.UsedAt != nil {
		return types.VerificationToken{}, ErrTokenUsed
	}
	if s.now().After(record.ExpiresAt) {
		return types.VerificationToken{}, ErrTokenExpired
	}
	return record, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
