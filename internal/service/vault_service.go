package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/pkg/secretbox"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type credentialStore interface {
	Upsert(ctx context.Context, cred *model.Credential) error
	Get(ctx context.Context, userID, provider string) (*model.Credential, error)
	Delete(ctx context.Context, userID, provider string) error
	ListProviders(ctx context.Context, userID string) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

type userEnsurer interface {
	Ensure(ctx context.Context, userID string) error
}

// VaultService keeps per-user provider keys sealed at rest. Plaintext exists
// only inside a request; list and read endpoints report presence, never the
// key itself. Admin-configured keys always win over vault entries.
type VaultService struct {
	store     credentialStore
	users     userEnsurer
	key       []byte
	adminKeys map[string]string
}

func NewVaultService(store credentialStore, users userEnsurer, key []byte, adminKeys map[string]string) *VaultService {
	return &VaultService{store: store, users: users, key: key, adminKeys: adminKeys}
}

// CheckStartup refuses to run without the vault key while sealed rows exist,
// since every credential would be unreadable.
func (s *VaultService) CheckStartup(ctx context.Context) error {
	if s.key != nil {
		return nil
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count credentials: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%d stored credentials but no vault key configured, set CORPUSD_VAULT_KEY: %w", count, errors.ErrEncryption)
	}
	return nil
}

// Store seals and saves one provider key for the user, replacing any
// previous one.
func (s *VaultService) Store(ctx context.Context, userID, provider, plaintext string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return fmt.Errorf("provider is required: %w", errors.ErrInvalid)
	}
	if plaintext == "" {
		return fmt.Errorf("key is required: %w", errors.ErrInvalid)
	}
	if s.key == nil {
		return fmt.Errorf("vault key not configured: %w", errors.ErrEncryption)
	}
	blob, err := secretbox.Seal(s.key, []byte(plaintext))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	if err := s.users.Ensure(ctx, userID); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if err := s.store.Upsert(ctx, &model.Credential{
		UserID:     userID,
		Provider:   provider,
		Ciphertext: blob,
		Ctime:      now,
		Mtime:      now,
	}); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("credential stored",
		zap.String("user_id", userID), zap.String("provider", provider))
	return nil
}

// Providers lists which providers the user has keys for.
func (s *VaultService) Providers(ctx context.Context, userID string) ([]string, error) {
	return s.store.ListProviders(ctx, userID)
}

func (s *VaultService) Delete(ctx context.Context, userID, provider string) error {
	return s.store.Delete(ctx, userID, strings.ToLower(strings.TrimSpace(provider)))
}

// ResolveKey returns the plaintext key to use for the provider. The admin
// key from deploy config takes precedence; otherwise the user's vault entry
// is opened. ErrNotFound when neither exists.
func (s *VaultService) ResolveKey(ctx context.Context, userID, provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if key, ok := s.adminKeys[provider]; ok && key != "" {
		return key, nil
	}
	cred, err := s.store.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if s.key == nil {
		return "", fmt.Errorf("vault key not configured: %w", errors.ErrEncryption)
	}
	plain, err := secretbox.Open(s.key, cred.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("open credential of %s/%s: %w", userID, provider, err)
	}
	return string(plain), nil
}
