// lifecycle.go implements the Lifecycle service coordinating secret storage,
// password guarding, and the one-time disclosure flip.
package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/secretdrop/secretdrop/internal/auth"
	"github.com/secretdrop/secretdrop/internal/db/models"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
)

// Store is the persistence surface the lifecycle depends on. It is satisfied
// by repositories.SecretRepository; tests substitute an in-memory version.
type Store interface {
	CreateSecret(ctx context.Context, secret *models.Secret) error
	GetSecretByID(ctx context.Context, id string) (*models.Secret, error)
	ListSecretsByOwner(ctx context.Context, ownerID string, filter models.SecretFilter) ([]models.Secret, int64, error)
	UpdateSecret(ctx context.Context, id, ownerID string, update repositories.SecretUpdate) (int64, error)
	DeleteSecret(ctx context.Context, id, ownerID string) (int64, error)
	MarkSecretViewed(ctx context.Context, id string, viewedAt time.Time) (bool, error)
	GetOwnerStats(ctx context.Context, ownerID string) (*models.SecretStats, error)
	ListRecentSecrets(ctx context.Context, ownerID string, limit int) ([]models.Secret, error)
}

// Guard hashes and verifies view passwords
type Guard interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// BcryptGuard is the production Guard backed by bcrypt
type BcryptGuard struct{}

func (BcryptGuard) Hash(password string) (string, error) {
	return auth.HashPassword(password)
}

func (BcryptGuard) Verify(password, hash string) (bool, error) {
	return auth.VerifyPassword(password, hash)
}

// Sealer encrypts secret content before it reaches the store and decrypts it
// on the way out. It is satisfied by crypto.ContentCipher. A nil Sealer stores
// content in plaintext.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// Options bound input sizes and listing pages
type Options struct {
	MaxContentBytes int
	DefaultPageSize int
	MaxPageSize     int
	RecentLimit     int
	Sealer          Sealer
}

// Lifecycle implements the secret lifecycle operations
type Lifecycle struct {
	store Store
	guard Guard
	opts  Options
	now   func() time.Time
}

// NewLifecycle creates a lifecycle service over the given store and guard
func NewLifecycle(store Store, guard Guard, opts Options) *Lifecycle {
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = 65536
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 5
	}
	return &Lifecycle{
		store: store,
		guard: guard,
		opts:  opts,
		now:   time.Now,
	}
}

// CreateInput describes a new secret
type CreateInput struct {
	Content       string
	Password      *string
	OneTimeAccess bool
	ExpiresAt     *time.Time
}

// Create validates and stores a new secret for ownerID. Passwords are hashed
// before they reach the store; the plaintext is never retained.
func (l *Lifecycle) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Secret, error) {
	if in.Content == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if len(in.Content) > l.opts.MaxContentBytes {
		return nil, &ValidationError{Field: "content", Message: fmt.Sprintf("exceeds %d bytes", l.opts.MaxContentBytes)}
	}

	stored, err := l.seal(in.Content)
	if err != nil {
		return nil, err
	}

	// ExpiresAt is stored as-is. A past timestamp is accepted and simply
	// produces a secret that is already expired.
	secret := &models.Secret{
		OwnerID:       ownerID,
		Content:       stored,
		OneTimeAccess: in.OneTimeAccess,
		ExpiresAt:     in.ExpiresAt,
	}

	if in.Password != nil {
		if *in.Password == "" {
			return nil, &ValidationError{Field: "password", Message: "must not be empty"}
		}
		hash, err := l.guard.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		secret.PasswordHash = &hash
	}

	if err := l.store.CreateSecret(ctx, secret); err != nil {
		return nil, err
	}

	// The caller sees the plaintext it just submitted, not the stored form
	secret.Content = in.Content
	return secret, nil
}

// Meta is the public view of a secret before disclosure: enough for a
// recipient to know what gates apply, never the content.
type Meta struct {
	ID            string              `json:"id"`
	HasPassword   bool                `json:"has_password"`
	OneTimeAccess bool                `json:"one_time_access"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	Status        models.SecretStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// GetMeta returns disclosure metadata for a secret by ID. A dead secret fails
// the same way Disclose would: an expired or consumed secret never offers
// even a password prompt.
func (l *Lifecycle) GetMeta(ctx context.Context, id string) (*Meta, error) {
	secret, err := l.store.GetSecretByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, ErrNotFound
	}
	if secret.IsExpired(l.now()) {
		return nil, ErrExpired
	}
	if secret.OneTimeAccess && secret.IsViewed {
		return nil, ErrAlreadyConsumed
	}

	return &Meta{
		ID:            secret.ID,
		HasPassword:   secret.HasPassword(),
		OneTimeAccess: secret.OneTimeAccess,
		ExpiresAt:     secret.ExpiresAt,
		Status:        secret.Status(l.now()),
		CreatedAt:     secret.CreatedAt,
	}, nil
}

// Disclose reveals a secret's content to a recipient. The gates run in a
// fixed order: existence, expiry, prior consumption, password presence,
// password correctness. For one-time secrets the viewed flip is a
// compare-and-set, so concurrent viewers get the content at most once.
func (l *Lifecycle) Disclose(ctx context.Context, id string, password *string) (*models.Secret, error) {
	secret, err := l.store.GetSecretByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, ErrNotFound
	}

	now := l.now()
	if secret.IsExpired(now) {
		return nil, ErrExpired
	}
	if secret.OneTimeAccess && secret.IsViewed {
		return nil, ErrAlreadyConsumed
	}
	if secret.HasPassword() {
		if password == nil || *password == "" {
			return nil, ErrPasswordRequired
		}
		ok, err := l.guard.Verify(*password, *secret.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		if !ok {
			return nil, ErrInvalidPassword
		}
	}

	won, err := l.store.MarkSecretViewed(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if secret.OneTimeAccess && !won {
		// Lost the flip to a concurrent viewer
		return nil, ErrAlreadyConsumed
	}

	if !secret.IsViewed {
		secret.IsViewed = true
		secret.ViewedAt = &now
	}

	if err := l.open(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// List returns a page of an owner's secrets. Limit is clamped to the
// configured maximum; unknown sort fields fall back to created_at.
func (l *Lifecycle) List(ctx context.Context, ownerID string, filter models.SecretFilter) ([]models.Secret, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = l.opts.DefaultPageSize
	}
	if filter.Limit > l.opts.MaxPageSize {
		filter.Limit = l.opts.MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	list, total, err := l.store.ListSecretsByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range list {
		if err := l.open(&list[i]); err != nil {
			return nil, 0, err
		}
	}
	return list, total, nil
}

// Get returns a single secret owned by ownerID. Secrets belonging to another
// owner report not found, never forbidden.
func (l *Lifecycle) Get(ctx context.Context, id, ownerID string) (*models.Secret, error) {
	secret, err := l.store.GetSecretByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if err := l.open(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// UpdateInput describes a partial update. Nil fields are unchanged. An empty
// Password clears the password gate; ClearExpiry removes the expiry.
type UpdateInput struct {
	Content       *string
	Password      *string
	OneTimeAccess *bool
	ExpiresAt     *time.Time
	ClearExpiry   bool
}

// Update applies a partial update to a secret owned by ownerID and returns the
// updated record. A missing secret and someone else's secret are
// indistinguishable: both report not found. A secret that has been viewed is
// immutable and fails with ErrForbidden for any patch, even an empty one.
func (l *Lifecycle) Update(ctx context.Context, id, ownerID string, in UpdateInput) (*models.Secret, error) {
	current, err := l.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if current.IsViewed {
		return nil, ErrForbidden
	}

	update := repositories.SecretUpdate{
		OneTimeAccess: in.OneTimeAccess,
		ClearExpiry:   in.ClearExpiry,
	}

	if in.Content != nil {
		if *in.Content == "" {
			return nil, &ValidationError{Field: "content", Message: "must not be empty"}
		}
		if len(*in.Content) > l.opts.MaxContentBytes {
			return nil, &ValidationError{Field: "content", Message: fmt.Sprintf("exceeds %d bytes", l.opts.MaxContentBytes)}
		}
		stored, err := l.seal(*in.Content)
		if err != nil {
			return nil, err
		}
		update.Content = &stored
	}

	if in.Password != nil {
		if *in.Password == "" {
			update.ClearPassword = true
		} else {
			hash, err := l.guard.Hash(*in.Password)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password: %w", err)
			}
			update.PasswordHash = &hash
		}
	}

	if !in.ClearExpiry && in.ExpiresAt != nil {
		update.ExpiresAt = in.ExpiresAt
	}

	if update.Content == nil && update.PasswordHash == nil && !update.ClearPassword &&
		update.OneTimeAccess == nil && update.ExpiresAt == nil && !update.ClearExpiry {
		// Nothing to change
		return current, nil
	}

	rows, err := l.store.UpdateSecret(ctx, id, ownerID, update)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// The write is guarded on is_viewed = false, so zero rows means a
		// disclosure or delete raced in after the read above. Re-check to
		// report which.
		recheck, err := l.Get(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		if recheck.IsViewed {
			return nil, ErrForbidden
		}
		return nil, ErrNotFound
	}

	return l.Get(ctx, id, ownerID)
}

// Delete removes a secret owned by ownerID
func (l *Lifecycle) Delete(ctx context.Context, id, ownerID string) error {
	rows, err := l.store.DeleteSecret(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Dashboard bundles the stats buckets with the most recent secrets
type Dashboard struct {
	Stats  models.SecretStats `json:"stats"`
	Recent []models.Secret    `json:"recent_secrets"`
}

// Stats aggregates an owner's secrets for the dashboard
func (l *Lifecycle) Stats(ctx context.Context, ownerID string) (*Dashboard, error) {
	stats, err := l.store.GetOwnerStats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	recent, err := l.store.ListRecentSecrets(ctx, ownerID, l.opts.RecentLimit)
	if err != nil {
		return nil, err
	}
	for i := range recent {
		if err := l.open(&recent[i]); err != nil {
			return nil, err
		}
	}
	return &Dashboard{Stats: *stats, Recent: recent}, nil
}

// seal encrypts content for storage when a Sealer is configured
func (l *Lifecycle) seal(content string) (string, error) {
	if l.opts.Sealer == nil {
		return content, nil
	}
	sealed, err := l.opts.Sealer.Seal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret content: %w", err)
	}
	return sealed, nil
}

// open decrypts a stored secret's content in place when a Sealer is configured
func (l *Lifecycle) open(secret *models.Secret) error {
	if l.opts.Sealer == nil {
		return nil
	}
	plain, err := l.opts.Sealer.Open(secret.Content)
	if err != nil {
		return fmt.Errorf("failed to decrypt secret content: %w", err)
	}
	secret.Content = plain
	return nil
}
