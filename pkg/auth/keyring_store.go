package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mastoscrape"
	keyringPrefix  = "instance:"
	// keyringIndex lists the instances with a keychain entry, since
	// go-keyring cannot enumerate a service.
	keyringIndex = "instances"
)

// KeyringStore keeps one keychain entry per instance plus an index entry.
type KeyringStore struct{}

// NewKeyringStore returns a store when the system keychain answers.
func NewKeyringStore() (*KeyringStore, error) {
	if _, err := keyring.Get(keyringService, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(cred *Credential) error {
	if cred == nil || cred.Instance == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+cred.Instance, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	instances, err := k.index()
	if err != nil {
		return err
	}
	for _, existing := range instances {
		if existing == cred.Instance {
			return nil
		}
	}
	return k.saveIndex(append(instances, cred.Instance))
}

func (k *KeyringStore) Retrieve(instance string) (*Credential, error) {
	data, err := keyring.Get(keyringService, keyringPrefix+instance)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to parse keyring entry for %s: %w", instance, err)
	}
	return &cred, nil
}

// List skips index entries whose keychain item was removed elsewhere.
func (k *KeyringStore) List() ([]*Credential, error) {
	instances, err := k.index()
	if err != nil {
		return nil, err
	}
	creds := make([]*Credential, 0, len(instances))
	for _, instance := range instances {
		cred, err := k.Retrieve(instance)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (k *KeyringStore) Delete(instance string) error {
	err := keyring.Delete(keyringService, keyringPrefix+instance)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	instances, err := k.index()
	if err != nil {
		return err
	}
	kept := instances[:0]
	for _, existing := range instances {
		if existing != instance {
			kept = append(kept, existing)
		}
	}
	return k.saveIndex(kept)
}

func (k *KeyringStore) index() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var instances []string
	if err := json.Unmarshal([]byte(data), &instances); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return instances, nil
}

func (k *KeyringStore) saveIndex(instances []string) error {
	if len(instances) == 0 {
		if err := keyring.Delete(keyringService, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to update keyring index: %w", err)
		}
		return nil
	}
	sort.Strings(instances)
	data, err := json.Marshal(instances)
	if err != nil {
		return fmt.Errorf("failed to marshal keyring index: %w", err)
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
