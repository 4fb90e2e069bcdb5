package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	errs "mastoscrape/pkg/errors"
)

// RequiredScopes are the OAuth scopes an export reads with.
var RequiredScopes = []string{"read:accounts", "read:statuses"}

// Credential is the access token saved for one Mastodon instance.
type Credential struct {
	Instance    string    `json:"instance"`
	AccessToken string    `json:"access_token"`
	Username    string    `json:"username,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}

// HasScope reports whether the token grants scope, either directly or
// through its parent scope ("read" grants "read:statuses").
func (c *Credential) HasScope(scope string) bool {
	parent, _, _ := strings.Cut(scope, ":")
	for _, s := range c.Scopes {
		if s == scope || s == parent {
			return true
		}
	}
	return false
}

// MissingScopes returns the scopes of want the token does not grant.
func (c *Credential) MissingScopes(want ...string) []string {
	var missing []string
	for _, scope := range want {
		if !c.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// CredentialStore persists credentials keyed by normalized instance host.
type CredentialStore interface {
	Store(cred *Credential) error
	Retrieve(instance string) (*Credential, error)
	List() ([]*Credential, error)
	Delete(instance string) error
}

// Manager reads and writes credentials across stores in priority order.
type Manager struct {
	stores []CredentialStore
	verify Verifier
	now    func() time.Time
}

// NewManager creates a credential manager backed by the system keychain
// when available, an encrypted file, and the environment as last resort.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileStore, err := NewEncryptedFileStore(filepath.Join(configDir, "tokens.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fileStore, NewEnvironmentStore())

	return NewManagerWithStores(stores...), nil
}

// NewManagerWithStores creates a Manager over the given stores, in priority order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, now: time.Now}
}

// SetVerifier makes Store check every token against its instance first.
func (m *Manager) SetVerifier(v Verifier) {
	m.verify = v
}

// NormalizeInstance lower-cases a host and strips any scheme or path
func NormalizeInstance(instance string) string {
	instance = strings.TrimSpace(strings.ToLower(instance))
	instance = strings.TrimPrefix(instance, "https://")
	instance = strings.TrimPrefix(instance, "http://")
	if i := strings.IndexByte(instance, '/'); i >= 0 {
		instance = instance[:i]
	}
	return instance
}

// Store verifies the token when a Verifier is set, then saves the
// credential in the first store that accepts it. A verified token carries
// the account name and scopes reported by the instance.
func (m *Manager) Store(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return ErrInvalidCredentials
	}
	cred.Instance = NormalizeInstance(cred.Instance)
	cred.AccessToken = strings.TrimSpace(cred.AccessToken)
	if cred.Instance == "" {
		return fmt.Errorf("%w: instance is required", ErrInvalidCredentials)
	}
	if cred.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", ErrInvalidCredentials)
	}

	if m.verify != nil {
		info, err := m.verify(ctx, cred.Instance, cred.AccessToken)
		switch {
		case err == nil:
		case errs.Is(err, errs.ErrorTypeAuth):
			return fmt.Errorf("%w by %s: %w", ErrTokenRejected, cred.Instance, err)
		default:
			return fmt.Errorf("failed to verify token with %s: %w", cred.Instance, err)
		}
		cred.Username = info.Username
		if len(info.Scopes) > 0 {
			cred.Scopes = info.Scopes
		}
	}
	if len(cred.Scopes) > 0 {
		if missing := cred.MissingScopes(RequiredScopes...); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrInsufficientScope, strings.Join(missing, " "))
		}
	}
	cred.SavedAt = m.now().UTC()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the token for an instance from the first store that has it
func (m *Manager) Retrieve(instance string) (*Credential, error) {
	instance = NormalizeInstance(instance)
	for _, store := range m.stores {
		if cred, err := store.Retrieve(instance); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for instance: %s", ErrCredentialsNotFound, instance)
}

// Token returns the access token for an instance, or "" when none is stored.
// Public data can be exported without a token.
func (m *Manager) Token(instance string) string {
	cred, err := m.Retrieve(instance)
	if err != nil {
		return ""
	}
	return cred.AccessToken
}

// List returns one credential per instance, the most recently saved one
// when several stores hold it, sorted by instance.
func (m *Manager) List() ([]*Credential, error) {
	byInstance := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byInstance[cred.Instance]; !ok || cred.SavedAt.After(existing.SavedAt) {
				byInstance[cred.Instance] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byInstance))
	for _, cred := range byInstance {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Instance < result[j].Instance })
	return result, nil
}

// Delete removes the token for an instance from every writable store
func (m *Manager) Delete(instance string) error {
	instance = NormalizeInstance(instance)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(instance)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for instance: %s", ErrCredentialsNotFound, instance)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mastoscrape")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mastoscrape")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mastoscrape")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mastoscrape")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential creates a copy of the credential with the token masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	masked := *cred
	masked.AccessToken = maskString(cred.AccessToken)
	return &masked
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
	ErrTokenRejected       = errors.New("access token rejected")
	ErrInsufficientScope   = errors.New("access token lacks required scopes")
)
