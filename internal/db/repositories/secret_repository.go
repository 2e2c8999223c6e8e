// secret_repository.go implements SecretRepository, providing database queries for
// secret CRUD, owner-scoped listing with search and status filters, the atomic
// one-time view flip, and the dashboard stats aggregate.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/secretdrop/secretdrop/internal/db/models"
)

// SecretRepository handles database operations for secrets
type SecretRepository struct {
	db *sqlx.DB
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db *sqlx.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// SecretUpdate describes a partial update of a secret. Nil fields are left
// untouched; the Clear flags remove the password or expiry entirely.
type SecretUpdate struct {
	Content       *string
	PasswordHash  *string
	ClearPassword bool
	OneTimeAccess *bool
	ExpiresAt     *time.Time
	ClearExpiry   bool
}

// CreateSecret inserts a new secret record
func (r *SecretRepository) CreateSecret(ctx context.Context, secret *models.Secret) error {
	secret.ID = uuid.New().String()
	secret.CreatedAt = time.Now()
	secret.UpdatedAt = secret.CreatedAt

	query := `
		INSERT INTO secrets (id, owner_id, content, password_hash, one_time_access,
		                     expires_at, is_viewed, viewed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NULL, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		secret.ID,
		secret.OwnerID,
		secret.Content,
		secret.PasswordHash,
		secret.OneTimeAccess,
		secret.ExpiresAt,
		secret.CreatedAt,
		secret.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	return nil
}

// GetSecretByID retrieves a secret by ID regardless of owner
func (r *SecretRepository) GetSecretByID(ctx context.Context, id string) (*models.Secret, error) {
	query := `
		SELECT id, owner_id, content, password_hash, one_time_access,
		       expires_at, is_viewed, viewed_at, created_at, updated_at
		FROM secrets
		WHERE id = $1
	`

	var secret models.Secret
	err := r.db.GetContext(ctx, &secret, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	return &secret, nil
}

// statusClause returns the WHERE fragment selecting secrets in the given derived
// state. Expiry takes precedence over viewed, matching models.Secret.Status.
func statusClause(status models.SecretStatus) string {
	switch status {
	case models.SecretStatusActive:
		return " AND is_viewed = false AND (expires_at IS NULL OR expires_at > NOW())"
	case models.SecretStatusViewed:
		return " AND is_viewed = true AND (expires_at IS NULL OR expires_at > NOW())"
	case models.SecretStatusExpired:
		return " AND expires_at IS NOT NULL AND expires_at <= NOW()"
	default:
		return ""
	}
}

// ListSecretsByOwner retrieves a page of an owner's secrets plus the total count
// matching the filter. Search is a case-insensitive substring match on content.
func (r *SecretRepository) ListSecretsByOwner(ctx context.Context, ownerID string, filter models.SecretFilter) ([]models.Secret, int64, error) {
	whereClause := " WHERE owner_id = $1"
	args := []interface{}{ownerID}
	argCount := 1

	if filter.Search != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND content ILIKE $%d", argCount)
		args = append(args, "%"+filter.Search+"%")
	}

	if filter.Status != "" {
		whereClause += statusClause(filter.Status)
	}

	countQuery := "SELECT COUNT(*) FROM secrets" + whereClause
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count secrets: %w", err)
	}

	sortBy := "created_at"
	if filter.SortBy == "expires_at" {
		// NULL expiry sorts last either way
		sortBy = "expires_at"
	}
	sortOrder := "DESC"
	if filter.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, password_hash, one_time_access,
		       expires_at, is_viewed, viewed_at, created_at, updated_at
		FROM secrets%s
		ORDER BY %s %s NULLS LAST
		LIMIT $%d OFFSET $%d
	`, whereClause, sortBy, sortOrder, argCount+1, argCount+2)
	args = append(args, filter.Limit, filter.Offset)

	secrets := []models.Secret{}
	if err := r.db.SelectContext(ctx, &secrets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list secrets: %w", err)
	}

	return secrets, total, nil
}

// UpdateSecret applies a partial update to a secret owned by ownerID. The
// is_viewed = false guard keeps the write from landing on a secret a
// concurrent disclosure viewed after the caller last read it. Returns the
// number of rows touched; zero means no matching unviewed secret.
func (r *SecretRepository) UpdateSecret(ctx context.Context, id, ownerID string, update SecretUpdate) (int64, error) {
	setClauses := []string{}
	args := []interface{}{id, ownerID}
	argCount := 2

	if update.Content != nil {
		argCount++
		setClauses = append(setClauses, fmt.Sprintf("content = $%d", argCount))
		args = append(args, *update.Content)
	}
	if update.ClearPassword {
		setClauses = append(setClauses, "password_hash = NULL")
	} else if update.PasswordHash != nil {
		argCount++
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argCount))
		args = append(args, *update.PasswordHash)
	}
	if update.OneTimeAccess != nil {
		argCount++
		setClauses = append(setClauses, fmt.Sprintf("one_time_access = $%d", argCount))
		args = append(args, *update.OneTimeAccess)
	}
	if update.ClearExpiry {
		setClauses = append(setClauses, "expires_at = NULL")
	} else if update.ExpiresAt != nil {
		argCount++
		setClauses = append(setClauses, fmt.Sprintf("expires_at = $%d", argCount))
		args = append(args, *update.ExpiresAt)
	}

	if len(setClauses) == 0 {
		return 0, nil
	}

	query := "UPDATE secrets SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += ", updated_at = NOW() WHERE id = $1 AND owner_id = $2 AND is_viewed = false"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update secret: %w", err)
	}

	return result.RowsAffected()
}

// DeleteSecret deletes a secret owned by ownerID. Returns the number of rows
// deleted; zero means no secret with that id and owner.
func (r *SecretRepository) DeleteSecret(ctx context.Context, id, ownerID string) (int64, error) {
	query := `DELETE FROM secrets WHERE id = $1 AND owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete secret: %w", err)
	}

	return result.RowsAffected()
}

// PurgeDeadSecrets deletes secrets that stopped being disclosable before the
// given cutoffs: expired secrets whose expiry predates expiredBefore, and
// consumed one-time secrets viewed before viewedBefore. Returns the number of
// rows removed.
func (r *SecretRepository) PurgeDeadSecrets(ctx context.Context, expiredBefore, viewedBefore time.Time) (int64, error) {
	query := `
		DELETE FROM secrets
		WHERE (expires_at IS NOT NULL AND expires_at <= $1)
		   OR (one_time_access = true AND is_viewed = true AND viewed_at <= $2)
	`

	result, err := r.db.ExecContext(ctx, query, expiredBefore, viewedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead secrets: %w", err)
	}

	return result.RowsAffected()
}

// MarkSecretViewed flips is_viewed exactly once. The is_viewed = false guard
// makes the flip a compare-and-set: of N concurrent callers only one sees true.
func (r *SecretRepository) MarkSecretViewed(ctx context.Context, id string, viewedAt time.Time) (bool, error) {
	query := `
		UPDATE secrets
		SET is_viewed = true, viewed_at = $2, updated_at = $2
		WHERE id = $1 AND is_viewed = false
	`

	result, err := r.db.ExecContext(ctx, query, id, viewedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark secret viewed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// GetOwnerStats aggregates an owner's secrets in a single round trip. The
// buckets overlap (a viewed one-time secret counts in two of them), so they
// do not sum to total.
func (r *SecretRepository) GetOwnerStats(ctx context.Context, ownerID string) (*models.SecretStats, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE is_viewed = false AND (expires_at IS NULL OR expires_at > NOW())) AS active,
		       COUNT(*) FILTER (WHERE is_viewed = true) AS viewed,
		       COUNT(*) FILTER (WHERE expires_at IS NOT NULL AND expires_at <= NOW()) AS expired,
		       COUNT(*) FILTER (WHERE one_time_access = true) AS one_time_access,
		       COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days') AS recent_secrets
		FROM secrets
		WHERE owner_id = $1
	`

	var stats models.SecretStats
	if err := r.db.GetContext(ctx, &stats, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get secret stats: %w", err)
	}

	return &stats, nil
}

// ListRecentSecrets returns an owner's most recently created secrets for the
// dashboard sidebar.
func (r *SecretRepository) ListRecentSecrets(ctx context.Context, ownerID string, limit int) ([]models.Secret, error) {
	query := `
		SELECT id, owner_id, content, password_hash, one_time_access,
		       expires_at, is_viewed, viewed_at, created_at, updated_at
		FROM secrets
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	secrets := []models.Secret{}
	if err := r.db.SelectContext(ctx, &secrets, query, ownerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent secrets: %w", err)
	}

	return secrets, nil
}
