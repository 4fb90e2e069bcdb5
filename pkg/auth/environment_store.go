package auth

import "os"

// Environment variables read by EnvironmentStore.
const (
	TokenEnv    = "MASTOSCRAPE_ACCESS_TOKEN"
	InstanceEnv = "MASTOSCRAPE_INSTANCE"
)

// EnvironmentStore is a read-only CredentialStore backed by
// MASTOSCRAPE_ACCESS_TOKEN. When MASTOSCRAPE_INSTANCE is set the token only
// applies to that instance, otherwise it applies to every instance.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment token if it applies to instance
func (e *EnvironmentStore) Retrieve(instance string) (*Credential, error) {
	token := os.Getenv(TokenEnv)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	scope := NormalizeInstance(os.Getenv(InstanceEnv))
	if scope != "" && instance != "" && scope != instance {
		return nil, ErrCredentialsNotFound
	}
	if instance == "" {
		instance = scope
	}

	return &Credential{Instance: instance, AccessToken: token}, nil
}

// List returns the environment credential when it is scoped to an instance
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil || cred.Instance == "" {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}
