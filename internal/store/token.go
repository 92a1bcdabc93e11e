package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prodcat/apiserver/types"
)

// TokenRepository handles persistence for single-use verification and
// password-reset tokens. Only token hashes are stored.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token types.VerificationToken) error {
	const query = `
		INSERT INTO verification_tokens (id, user_id, token_hash, purpose, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Purpose,
		token.ExpiresAt,
		token.UsedAt,
		token.CreatedAt,
	)
	return err
}

func (r *TokenRepository) GetByHash(ctx context.Context, hash string, purpose types.TokenPurpose) (types.VerificationToken, error) {
	const query = `
		SELECT id, user_id, token_hash, purpose, expires_at, used_at, created_at
		FROM verification_tokens
		WHERE token_hash = $1 AND purpose = $2`
	var token types.VerificationToken
	err := r.db.QueryRowContext(ctx, query, hash, purpose).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Purpose,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.VerificationToken{}, ErrNotFound
		}
		return types.VerificationToken{}, err
	}
	return token, nil
}

// MarkUsed consumes the token. It only succeeds for a token that has
// not been consumed yet, so a second near-simultaneous consumer loses.
func (r *TokenRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `
		UPDATE verification_tokens
		SET used_at = $1
		WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InvalidateForUser marks every live token of the given purpose as used,
// so a re-issued link supersedes older ones.
func (r *TokenRepository) InvalidateForUser(ctx context.Context, userID int, purpose types.TokenPurpose) error {
	const query = `
		UPDATE verification_tokens
		SET used_at = $1
		WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID, purpose)
	return err
}
