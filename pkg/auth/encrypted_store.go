package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase of the encrypted store.
const PassphraseEnv = "MASTOSCRAPE_PASSPHRASE"

const (
	tokenFileVersion = 2
	saltSize         = 32
	keySize          = 32
	kdfIterations    = 100000
)

// tokenFile is the on-disk layout: one sealed record per instance, each
// bound to its instance name so records cannot be swapped between keys.
type tokenFile struct {
	Version    int                    `json:"version"`
	Salt       string                 `json:"salt"`
	Iterations int                    `json:"iterations"`
	Records    map[string]sealedToken `json:"records"`
}

type sealedToken struct {
	SavedAt string `json:"saved_at"`
	Sealed  string `json:"sealed"`
}

// EncryptedFileStore keeps credentials in an AES-GCM encrypted file with a
// key derived from a local passphrase.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewEncryptedFileStore opens the token file at path, which need not exist yet.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	passphrase, err := loadPassphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(cred *Credential) error {
	if cred == nil || cred.Instance == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return err
	}
	sealed, err := sealToken(e.key(file), cred)
	if err != nil {
		return err
	}
	file.Records[cred.Instance] = sealedToken{
		SavedAt: cred.SavedAt.Format(time.RFC3339),
		Sealed:  sealed,
	}
	return e.write(file)
}

func (e *EncryptedFileStore) Retrieve(instance string) (*Credential, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return nil, err
	}
	record, ok := file.Records[instance]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return openToken(e.key(file), instance, record.Sealed)
}

// List fails when any record cannot be decrypted, which usually means the
// passphrase changed.
func (e *EncryptedFileStore) List() ([]*Credential, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return nil, err
	}
	key := e.key(file)
	creds := make([]*Credential, 0, len(file.Records))
	for instance, record := range file.Records {
		cred, err := openToken(key, instance, record.Sealed)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Delete removes one record; the file goes away with the last one.
func (e *EncryptedFileStore) Delete(instance string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := file.Records[instance]; !ok {
		return ErrCredentialsNotFound
	}
	delete(file.Records, instance)
	if len(file.Records) == 0 {
		return os.Remove(e.path)
	}
	return e.write(file)
}

// read loads the token file, returning an empty one with a fresh salt when
// none exists.
func (e *EncryptedFileStore) read() (*tokenFile, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		return &tokenFile{
			Version:    tokenFileVersion,
			Salt:       base64.StdEncoding.EncodeToString(salt),
			Iterations: kdfIterations,
			Records:    make(map[string]sealedToken),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var file tokenFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if file.Version != tokenFileVersion {
		return nil, fmt.Errorf("unsupported token file version %d, remove %s and log in again", file.Version, e.path)
	}
	if file.Records == nil {
		file.Records = make(map[string]sealedToken)
	}
	return &file, nil
}

func (e *EncryptedFileStore) write(file *tokenFile) error {
	content, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// key derives the AES key for file. A salt that does not decode yields a
// key no record opens with.
func (e *EncryptedFileStore) key(file *tokenFile) []byte {
	salt, _ := base64.StdEncoding.DecodeString(file.Salt)
	iterations := file.Iterations
	if iterations <= 0 {
		iterations = kdfIterations
	}
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func sealToken(key []byte, cred *Credential) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credential: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(cred.Instance))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func openToken(key []byte, instance, sealed string) (*Credential, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("corrupt token record for %s", instance)
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(instance))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token for %s: %w", instance, err)
	}
	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse token for %s: %w", instance, err)
	}
	return &cred, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// loadPassphrase returns MASTOSCRAPE_PASSPHRASE, or the passphrase kept in
// dir/.passphrase, generating that file on first use.
func loadPassphrase(dir string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
