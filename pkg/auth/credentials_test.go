package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	errs "mastoscrape/pkg/errors"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/mastodon"
)

// memoryStore is an in-memory CredentialStore.
type memoryStore struct {
	creds    map[string]Credential
	storeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{creds: make(map[string]Credential)}
}

func (m *memoryStore) Store(cred *Credential) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.creds[cred.Instance] = *cred
	return nil
}

func (m *memoryStore) Retrieve(instance string) (*Credential, error) {
	cred, ok := m.creds[instance]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &cred, nil
}

func (m *memoryStore) List() ([]*Credential, error) {
	out := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		c := cred
		out = append(out, &c)
	}
	return out, nil
}

func (m *memoryStore) Delete(instance string) error {
	if _, ok := m.creds[instance]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, instance)
	return nil
}

func fixedClock(m *Manager, at time.Time) {
	m.now = func() time.Time { return at }
}

func TestManagerStoreRetrieveDelete(t *testing.T) {
	store := newMemoryStore()
	manager := NewManagerWithStores(store)
	savedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(manager, savedAt)

	require.NoError(t, manager.Store(context.Background(), &Credential{Instance: "HTTPS://Example.Social/", AccessToken: " tok_1234567890 "}))
	assert.Len(t, store.creds, 1)

	cred, err := manager.Retrieve("example.social")
	require.NoError(t, err)
	assert.Equal(t, "example.social", cred.Instance)
	assert.Equal(t, "tok_1234567890", cred.AccessToken)
	assert.Equal(t, savedAt, cred.SavedAt)
	assert.Equal(t, "tok_1234567890", manager.Token("example.social"))

	require.NoError(t, manager.Delete("example.social"))
	_, err = manager.Retrieve("example.social")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Empty(t, manager.Token("example.social"))
	assert.ErrorIs(t, manager.Delete("example.social"), ErrCredentialsNotFound)
}

func TestManagerValidation(t *testing.T) {
	manager := NewManagerWithStores(newMemoryStore())
	ctx := context.Background()
	assert.ErrorIs(t, manager.Store(ctx, &Credential{Instance: "", AccessToken: "x"}), ErrInvalidCredentials)
	assert.ErrorIs(t, manager.Store(ctx, &Credential{Instance: "example.social", AccessToken: "  "}), ErrInvalidCredentials)
	assert.ErrorIs(t, manager.Store(ctx, nil), ErrInvalidCredentials)
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemoryStore()
	broken.storeErr = errors.New("keychain locked")
	working := newMemoryStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(context.Background(), &Credential{Instance: "a.example", AccessToken: "token-a"}))
	assert.Empty(t, broken.creds)
	assert.Len(t, working.creds, 1)

	cred, err := manager.Retrieve("a.example")
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.AccessToken)
}

func TestManagerListKeepsNewestPerInstance(t *testing.T) {
	older, newer := newMemoryStore(), newMemoryStore()
	older.creds["a.example"] = Credential{Instance: "a.example", AccessToken: "old", SavedAt: time.Unix(100, 0)}
	newer.creds["a.example"] = Credential{Instance: "a.example", AccessToken: "new", SavedAt: time.Unix(200, 0)}
	older.creds["z.example"] = Credential{Instance: "z.example", AccessToken: "z"}
	manager := NewManagerWithStores(older, newer)

	creds, err := manager.List()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "a.example", creds[0].Instance)
	assert.Equal(t, "new", creds[0].AccessToken)
	assert.Equal(t, "z.example", creds[1].Instance)
}

func TestManagerStoreRecordsVerifiedAccount(t *testing.T) {
	store := newMemoryStore()
	manager := NewManagerWithStores(store)
	var asked []string
	manager.SetVerifier(func(_ context.Context, instance, token string) (*TokenInfo, error) {
		asked = append(asked, instance, token)
		return &TokenInfo{Username: "alice", Scopes: []string{"read", "write:media"}}, nil
	})

	require.NoError(t, manager.Store(context.Background(), &Credential{Instance: "example.social", AccessToken: "tok", Username: "typo"}))

	assert.Equal(t, []string{"example.social", "tok"}, asked)
	cred := store.creds["example.social"]
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, []string{"read", "write:media"}, cred.Scopes)
}

func TestManagerStoreRejectsInvalidToken(t *testing.T) {
	store := newMemoryStore()
	manager := NewManagerWithStores(store)
	manager.SetVerifier(func(context.Context, string, string) (*TokenInfo, error) {
		return nil, errs.New(errs.ErrorTypeAuth, http.StatusUnauthorized, "not authorized")
	})

	err := manager.Store(context.Background(), &Credential{Instance: "example.social", AccessToken: "revoked"})
	assert.ErrorIs(t, err, ErrTokenRejected)
	assert.Empty(t, store.creds)
}

func TestManagerStoreKeepsNothingWhenVerificationFails(t *testing.T) {
	store := newMemoryStore()
	manager := NewManagerWithStores(store)
	manager.SetVerifier(func(context.Context, string, string) (*TokenInfo, error) {
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: connection refused")
	})

	err := manager.Store(context.Background(), &Credential{Instance: "example.social", AccessToken: "tok"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenRejected)
	assert.Contains(t, err.Error(), "failed to verify token")
	assert.Empty(t, store.creds)
}

func TestManagerStoreRequiresReadScopes(t *testing.T) {
	manager := NewManagerWithStores(newMemoryStore())
	manager.SetVerifier(func(context.Context, string, string) (*TokenInfo, error) {
		return &TokenInfo{Username: "alice", Scopes: []string{"read:accounts", "write"}}, nil
	})

	err := manager.Store(context.Background(), &Credential{Instance: "example.social", AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrInsufficientScope)
	assert.Contains(t, err.Error(), "read:statuses")
}

func TestCredentialHasScope(t *testing.T) {
	cred := &Credential{Scopes: []string{"read", "write:statuses"}}
	assert.True(t, cred.HasScope("read:accounts"))
	assert.True(t, cred.HasScope("write:statuses"))
	assert.False(t, cred.HasScope("write:media"))
	assert.Empty(t, cred.MissingScopes(RequiredScopes...))
	assert.Equal(t, []string{"read:statuses"}, (&Credential{Scopes: []string{"read:accounts"}}).MissingScopes(RequiredScopes...))
}

func TestAPIVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"The access token is invalid"}`)
			return
		}
		switch r.URL.Path {
		case "/api/v1/accounts/verify_credentials":
			fmt.Fprint(w, `{"id":"42","username":"alice","acct":"alice"}`)
		case "/api/v1/apps/verify_credentials":
			fmt.Fprint(w, `{"name":"exporter","scopes":["read"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	verify := APIVerifier(mastodon.Options{Timeout: 5 * time.Second, BaseURL: srv.URL}, logger.NewTestLogger())
	manager := NewManagerWithStores(newMemoryStore())
	manager.SetVerifier(verify)

	require.NoError(t, manager.Store(context.Background(), &Credential{Instance: "example.social", AccessToken: "good-token"}))
	cred, err := manager.Retrieve("example.social")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, []string{"read"}, cred.Scopes)

	err = manager.Store(context.Background(), &Credential{Instance: "other.social", AccessToken: "bad-token"})
	assert.ErrorIs(t, err, ErrTokenRejected)
}

func TestAPIVerifierWithoutAppScopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/accounts/verify_credentials" {
			fmt.Fprint(w, `{"id":"42","username":"alice","acct":"alice"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	verify := APIVerifier(mastodon.Options{Timeout: 5 * time.Second, BaseURL: srv.URL}, logger.NewTestLogger())
	info, err := verify(context.Background(), "example.social", "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Empty(t, info.Scopes)
}

func TestSanitizeCredential(t *testing.T) {
	cred := &Credential{Instance: "example.social", AccessToken: "abcdefghijklmnop"}
	masked := SanitizeCredential(cred)
	assert.Equal(t, "abcd...mnop", masked.AccessToken)
	assert.Equal(t, "abcdefghijklmnop", cred.AccessToken)
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeCredential(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "tokens.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store.Retrieve("example.social")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Credential{Instance: "example.social", AccessToken: "secret_token_value", Scopes: []string{"read"}}))
	require.NoError(t, store.Store(&Credential{Instance: "other.social", AccessToken: "second_token_value"}))

	cred, err := store.Retrieve("example.social")
	require.NoError(t, err)
	assert.Equal(t, "secret_token_value", cred.AccessToken)
	assert.Equal(t, []string{"read"}, cred.Scopes)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("secret_token_value")))

	// A store opened with another passphrase cannot read the file.
	t.Setenv(PassphraseEnv, "other")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("example.social")
	assert.Error(t, err)
	_, err = other.List()
	assert.Error(t, err)

	require.NoError(t, store.Delete("example.social"))
	creds, err := store.List()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "other.social", creds[0].Instance)

	require.NoError(t, store.Delete("other.social"))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, store.Delete("other.social"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreBindsRecordsToInstance(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "tokens.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Instance: "a.example", AccessToken: "token-a"}))
	require.NoError(t, store.Store(&Credential{Instance: "b.example", AccessToken: "token-b"}))

	var file tokenFile
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &file))
	assert.Equal(t, tokenFileVersion, file.Version)
	file.Records["a.example"], file.Records["b.example"] = file.Records["b.example"], file.Records["a.example"]
	raw, err = json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, err = store.Retrieve("a.example")
	assert.Error(t, err)
}

func TestEncryptedFileStoreRejectsUnknownVersion(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "tokens.enc")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"salt":"c2FsdA==","encrypted":"eA=="}`), 0600))

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = store.Retrieve("example.social")
	assert.ErrorContains(t, err, "unsupported token file version 1")
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))
	require.NoError(t, store.Store(&Credential{Instance: "example.social", AccessToken: "t"}))

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"))
	require.NoError(t, err)
	creds, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(TokenEnv, "")
	_, err := store.Retrieve("example.social")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(TokenEnv, "env_token")
	t.Setenv(InstanceEnv, "")
	cred, err := store.Retrieve("example.social")
	require.NoError(t, err)
	assert.Equal(t, "env_token", cred.AccessToken)

	t.Setenv(InstanceEnv, "other.social")
	_, err = store.Retrieve("example.social")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	creds, err := store.List()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "other.social", creds[0].Instance)

	assert.ErrorIs(t, store.Store(&Credential{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("other.social"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Credential{Instance: "z.example", AccessToken: "kr_token_z"}))
	require.NoError(t, store.Store(&Credential{Instance: "a.example", AccessToken: "kr_token_a"}))
	require.NoError(t, store.Store(&Credential{Instance: "a.example", AccessToken: "kr_token_a2"}))

	cred, err := store.Retrieve("a.example")
	require.NoError(t, err)
	assert.Equal(t, "kr_token_a2", cred.AccessToken)

	creds, err := store.List()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "a.example", creds[0].Instance)
	assert.Equal(t, "z.example", creds[1].Instance)

	require.NoError(t, store.Delete("a.example"))
	_, err = store.Retrieve("a.example")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Delete("a.example"), ErrCredentialsNotFound)

	creds, err = store.List()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.NoError(t, store.Delete("z.example"))
	_, err = keyring.Get(keyringService, keyringIndex)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestKeyringStoreUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	t.Cleanup(keyring.MockInit)

	_, err := NewKeyringStore()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestShowTokenGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowTokenGuide(&buf, "example.social")
	assert.Contains(t, buf.String(), "https://example.social/settings/applications")
}
