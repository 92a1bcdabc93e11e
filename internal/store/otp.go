package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/prodcat/apiserver/types"
)

// OTPRepository handles persistence for one-time-code challenges.
// There is at most one live challenge per email: upserting replaces the
// previous code and resets the attempt counter.
type OTPRepository struct {
	db *sql.DB
}

func NewOTPRepository(db *sql.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

func (r *OTPRepository) Get(ctx context.Context, email string) (types.OTPChallenge, error) {
	const query = `
		SELECT email, code, expires_at, last_sent_at, attempts
		FROM otp_challenges
		WHERE email = $1`
	var challenge types.OTPChallenge
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&challenge.Email,
		&challenge.Code,
		&challenge.ExpiresAt,
		&challenge.LastSentAt,
		&challenge.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.OTPChallenge{}, ErrNotFound
		}
		return types.OTPChallenge{}, err
	}
	return challenge, nil
}

// Upsert stores the challenge, replacing any previous one for the email.
func (r *OTPRepository) Upsert(ctx context.Context, challenge types.OTPChallenge) error {
	const query = `
		INSERT INTO otp_challenges (email, code, expires_at, last_sent_at, attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at,
			last_sent_at = EXCLUDED.last_sent_at,
			attempts = EXCLUDED.attempts`
	_, err := r.db.ExecContext(
		ctx,
		query,
		challenge.Email,
		challenge.Code,
		challenge.ExpiresAt,
		challenge.LastSentAt,
		challenge.Attempts,
	)
	return err
}

// IncrementAttempts bumps the failed-attempt counter and returns the
// new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, email string) (int, error) {
	const query = `
		UPDATE otp_challenges
		SET attempts = attempts + 1
		WHERE email = $1
		RETURNING attempts`
	var attempts int
	err := r.db.QueryRowContext(ctx, query, email).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *OTPRepository) Delete(ctx context.Context, email string) error {
	const query = `DELETE FROM otp_challenges WHERE email = $1`
	_, err := r.db.ExecContext(ctx, query, email)
	return err
}
