package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// CredentialRepository persists OAuth tokens keyed by service name ("tidal", "spotify").
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Load returns the stored token for service, or (nil, nil) when none has been saved.
func (r *CredentialRepository) Load(ctx context.Context, service string) (*oauth2.Token, error) {
	query := `
		SELECT access_token, refresh_token, token_type, expiry
		FROM credentials
		WHERE service = ?
	`

	var (
		token  oauth2.Token
		expiry sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, service).Scan(&token.AccessToken, &token.RefreshToken, &token.TokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgerErr("load credential", err)
	}

	if expiry.Valid {
		token.Expiry = expiry.Time
	}
	return &token, nil
}

// Save stores token for service, replacing any previous value.
//
// A token without a refresh token keeps the previously stored one, since refresh responses may omit it.
func (r *CredentialRepository) Save(ctx context.Context, service string, token *oauth2.Token) error {
	query := `
		INSERT INTO credentials (service, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE
		SET access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN credentials.refresh_token ELSE excluded.refresh_token END,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`

	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, service, token.AccessToken, token.RefreshToken, token.TokenType, expiry, time.Now().UTC())
	if err != nil {
		return ledgerErr("save credential", err)
	}
	return nil
}

// Delete removes the stored token for service.
func (r *CredentialRepository) Delete(ctx context.Context, service string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE service = ?", service); err != nil {
		return ledgerErr("delete credential", err)
	}
	return nil
}
