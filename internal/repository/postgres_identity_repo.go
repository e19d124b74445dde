package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/livenex/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, user_id, provider, provider_user_id, access_token, refresh_token,
	token_expiry, display_name, avatar_url, email, linked_at`

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var provider string
	var expiry sql.NullTime
	err := row.Scan(
		&identity.ID, &identity.UserID, &provider, &identity.ProviderUserID,
		&identity.AccessToken, &identity.RefreshToken, &expiry,
		&identity.DisplayName, &identity.AvatarURL, &identity.Email, &identity.LinkedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Provider = model.Provider(provider)
	if expiry.Valid {
		t := expiry.Time
		identity.TokenExpiry = &t
	}
	return identity, nil
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+`
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`,
		string(provider), providerUserID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// FindByUserAndProvider はユーザーの指定IdPのidentityを取得する。
func (r *PostgresIdentityRepo) FindByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+`
		 FROM identities
		 WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by user: %w", err)
	}
	return identity, nil
}

// ListByUserID はユーザーの連携済みidentity一覧を返す。
func (r *PostgresIdentityRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+`
		 FROM identities
		 WHERE user_id = $1
		 ORDER BY provider`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return identities, nil
}

// Upsert は (user_id, provider) をキーにidentityを作成または上書きする。
// 同じIdPを別アカウントで再連携した場合もprovider_user_idごと置き換える。
func (r *PostgresIdentityRepo) Upsert(ctx context.Context, identity *model.Identity) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, access_token, refresh_token,
		                         token_expiry, display_name, avatar_url, email, linked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT ON CONSTRAINT `+constraintIdentityUserProvider+` DO UPDATE SET
		     provider_user_id = EXCLUDED.provider_user_id,
		     access_token     = EXCLUDED.access_token,
		     refresh_token    = CASE WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token
		                             ELSE identities.refresh_token END,
		     token_expiry     = EXCLUDED.token_expiry,
		     display_name     = EXCLUDED.display_name,
		     avatar_url       = EXCLUDED.avatar_url,
		     email            = EXCLUDED.email,
		     linked_at        = EXCLUDED.linked_at
		 RETURNING id`,
		identity.ID, identity.UserID, string(identity.Provider), identity.ProviderUserID,
		identity.AccessToken, identity.RefreshToken, identity.TokenExpiry,
		identity.DisplayName, identity.AvatarURL, identity.Email, identity.LinkedAt,
	).Scan(&identity.ID)
	if isUniqueViolation(err, constraintIdentityProviderUser) {
		return ErrIdentityConflict
	}
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

// UpdateTokens は既存identityのトークンとプロフィールを更新する。
func (r *PostgresIdentityRepo) UpdateTokens(ctx context.Context, identity *model.Identity) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET
		     access_token  = $2,
		     refresh_token = CASE WHEN $3::text <> '' THEN $3::text ELSE refresh_token END,
		     token_expiry  = $4,
		     display_name  = $5,
		     avatar_url    = $6,
		     email         = $7
		 WHERE id = $1`,
		identity.ID, identity.AccessToken, identity.RefreshToken, identity.TokenExpiry,
		identity.DisplayName, identity.AvatarURL, identity.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
