package service

import (
	"context"
	"sort"
	"testing"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/pkg/secretbox"
	"github.com/stretchr/testify/require"
)

type memCredStore struct {
	creds map[string]*model.Credential
}

func newMemCredStore() *memCredStore {
	return &memCredStore{creds: map[string]*model.Credential{}}
}

func credKey(userID, provider string) string { return userID + "/" + provider }

func (m *memCredStore) Upsert(ctx context.Context, cred *model.Credential) error {
	cp := *cred
	m.creds[credKey(cred.UserID, cred.Provider)] = &cp
	return nil
}

func (m *memCredStore) Get(ctx context.Context, userID, provider string) (*model.Credential, error) {
	cred, ok := m.creds[credKey(userID, provider)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (m *memCredStore) Delete(ctx context.Context, userID, provider string) error {
	delete(m.creds, credKey(userID, provider))
	return nil
}

func (m *memCredStore) ListProviders(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for _, cred := range m.creds {
		if cred.UserID == userID {
			out = append(out, cred.Provider)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memCredStore) Count(ctx context.Context) (int64, error) {
	return int64(len(m.creds)), nil
}

type noopEnsurer struct{}

func (noopEnsurer) Ensure(ctx context.Context, userID string) error { return nil }

func testVaultKey(t *testing.T) []byte {
	t.Helper()
	key, err := secretbox.ParseKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	return key
}

func TestVaultStoreAndResolve(t *testing.T) {
	store := newMemCredStore()
	vault := NewVaultService(store, noopEnsurer{}, testVaultKey(t), nil)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "u1", "OpenAI", "sk-secret"))

	got, err := vault.ResolveKey(ctx, "u1", "openai")
	require.NoError(t, err)
	require.Equal(t, "sk-secret", got)

	stored := store.creds["u1/openai"]
	require.NotNil(t, stored)
	require.NotContains(t, string(stored.Ciphertext), "sk-secret")
}

func TestVaultAdminKeyWins(t *testing.T) {
	store := newMemCredStore()
	vault := NewVaultService(store, noopEnsurer{}, testVaultKey(t), map[string]string{"openai": "admin-key"})
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "u1", "openai", "user-key"))

	got, err := vault.ResolveKey(ctx, "u1", "openai")
	require.NoError(t, err)
	require.Equal(t, "admin-key", got)
}

func TestVaultResolveMissingIsNotFound(t *testing.T) {
	vault := NewVaultService(newMemCredStore(), noopEnsurer{}, testVaultKey(t), nil)
	_, err := vault.ResolveKey(context.Background(), "u1", "gemini")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestVaultStoreWithoutKeyFails(t *testing.T) {
	vault := NewVaultService(newMemCredStore(), noopEnsurer{}, nil, nil)
	err := vault.Store(context.Background(), "u1", "openai", "sk-secret")
	require.ErrorIs(t, err, errors.ErrEncryption)
}

func TestVaultCheckStartup(t *testing.T) {
	store := newMemCredStore()
	ctx := context.Background()

	require.NoError(t, NewVaultService(store, noopEnsurer{}, nil, nil).CheckStartup(ctx))

	seeded := NewVaultService(store, noopEnsurer{}, testVaultKey(t), nil)
	require.NoError(t, seeded.Store(ctx, "u1", "openai", "sk-secret"))

	require.NoError(t, seeded.CheckStartup(ctx))
	err := NewVaultService(store, noopEnsurer{}, nil, nil).CheckStartup(ctx)
	require.ErrorIs(t, err, errors.ErrEncryption)
}

func TestVaultDeleteAndProviders(t *testing.T) {
	store := newMemCredStore()
	vault := NewVaultService(store, noopEnsurer{}, testVaultKey(t), nil)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "u1", "openai", "a"))
	require.NoError(t, vault.Store(ctx, "u1", "gemini", "b"))

	providers, err := vault.Providers(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"gemini", "openai"}, providers)

	require.NoError(t, vault.Delete(ctx, "u1", "openai"))
	providers, err = vault.Providers(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"gemini"}, providers)
}

func TestVaultWrongKeyCannotOpen(t *testing.T) {
	store := newMemCredStore()
	ctx := context.Background()
	require.NoError(t, NewVaultService(store, noopEnsurer{}, testVaultKey(t), nil).Store(ctx, "u1", "openai", "sk-secret"))

	otherKey, err := secretbox.ParseKey("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	_, err = NewVaultService(store, noopEnsurer{}, otherKey, nil).ResolveKey(ctx, "u1", "openai")
	require.Error(t, err)
}
