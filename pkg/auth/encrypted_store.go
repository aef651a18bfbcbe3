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
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion    = 2
	saltSize        = 32
	keySize         = 32
	pbkdf2Rounds    = 100000
	passphraseBytes = 32
)

// PassphraseEnv overrides the generated passphrase of the encrypted file.
const PassphraseEnv = "LEGMIRROR_PASSPHRASE"

// EncryptedFileStore keeps profiles in an AES-GCM sealed JSON file. The key
// is derived with PBKDF2 from a passphrase kept in a 0600 file beside it, or
// from LEGMIRROR_PASSPHRASE.
type EncryptedFileStore struct {
	path       string
	passphrase []byte

	mu sync.RWMutex
}

// vaultFile is the on-disk envelope. []byte fields are base64 in JSON.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// vault is the decrypted content: profile name to keys.
type vault map[string]Account

func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), ".passphrase"))
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if err != nil {
		return err
	}
	v[account.Name] = *account
	return e.seal(v)
}

func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.open()
	if err != nil {
		return nil, err
	}
	account, ok := v[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns every profile in the file, sorted by name.
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.open()
	if err != nil {
		return nil, err
	}
	accounts := make([]*Account, 0, len(v))
	for _, account := range v {
		accounts = append(accounts, &account)
	}
	slices.SortFunc(accounts, func(a, b *Account) int { return strings.Compare(a.Name, b.Name) })
	return accounts, nil
}

// Delete removes a profile. The file itself goes with the last profile.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if err != nil {
		return err
	}
	if _, ok := v[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(v, name)

	if len(v) == 0 {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}
	return e.seal(v)
}

func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

// open reads and decrypts the file. A missing file is an empty vault.
func (e *EncryptedFileStore) open() (vault, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return vault{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	gcm, err := newGCM(e.passphrase, file.Salt)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(file.Sealed) < n {
		return nil, errors.New("credentials file is truncated")
	}
	plain, err := gcm.Open(nil, file.Sealed[:n], file.Sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials, wrong passphrase?: %w", err)
	}

	v := vault{}
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return v, nil
}

// seal encrypts v under a fresh salt and nonce and replaces the file.
func (e *EncryptedFileStore) seal(v vault) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(e.passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  vaultVersion,
		Salt:     salt,
		Sealed:   gcm.Seal(nonce, nonce, plain, nil),
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials file: %w", err)
	}
	return writeFileAtomic(e.path, content)
}

func newGCM(passphrase, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(passphrase, salt, pbkdf2Rounds, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// loadPassphrase returns LEGMIRROR_PASSPHRASE, else the content of path,
// creating path with a random passphrase on first use.
func loadPassphrase(path string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return []byte(pass), nil
	}
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return content, nil
	}

	raw := make([]byte, passphraseBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := []byte(base64.RawURLEncoding.EncodeToString(raw))
	if err := os.WriteFile(path, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync credentials file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}
	return os.Rename(tmp, path)
}
