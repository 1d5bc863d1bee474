package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/munisalud/piscinas-api/internal/models"
)

// TokenRepository persists refresh tokens and the rotation blacklist. A
// revoked row is the blacklist entry: once flipped it stays flipped.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs a TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a refresh token.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at)
		VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// Consume atomically revokes the token and returns it. The UPDATE only
// matches rows that are still live, so of two concurrent calls with the
// same token exactly one sees a row; the loser gets sql.ErrNoRows.
func (r *TokenRepository) Consume(ctx context.Context, token string, revokedAt time.Time) (*models.RefreshToken, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE token = $1 AND revoked = FALSE
		RETURNING id, user_id, token, expires_at, created_at, revoked, revoked_at`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token, revokedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeAllForUser blacklists every live token belonging to the user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, revokedAt); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired prunes rows whose expiry passed before the cutoff. Expired
// rows can never validate again, so removal does not weaken the blacklist.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return result.RowsAffected()
}
