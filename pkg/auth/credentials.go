// Package auth stores archive.org S3 keys. Keys are looked up in the system
// keychain, then an encrypted file, then the environment.
package auth

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultProfile is the profile name used when none is given.
const DefaultProfile = "default"

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account is one set of archive.org S3 keys, stored under a profile name.
type Account struct {
	Name         string    `json:"name"`
	AccessKey    string    `json:"access_key"`
	SecretKey    string    `json:"secret_key"`
	LastModified time.Time `json:"last_modified"`
}

// Validate reports every missing field at once.
func (a *Account) Validate() error {
	var errs []error
	for field, value := range map[string]string{
		"profile name": a.Name,
		"access key":   a.AccessKey,
		"secret key":   a.SecretKey,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}
	slices.SortFunc(errs, func(x, y error) int { return strings.Compare(x.Error(), y.Error()) })
	return errors.Join(errs...)
}

// CredentialStore is one backend for profiles. Read-only backends return
// ErrStoreUnavailable from Store and Delete.
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(name string) (*Account, error)
	List() ([]*Account, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager chains credential stores. Writes go to the first store that
// accepts them and reads take the first hit.
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the usual chain with the encrypted file under the user
// config directory.
func NewManager() (*Manager, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewManagerIn(dir)
}

// NewManagerIn builds the keychain, encrypted file and environment chain
// with the encrypted file in dir. The keychain is left out when it cannot
// be reached.
func NewManagerIn(dir string) (*Manager, error) {
	file, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}

	m := &Manager{}
	if kr, err := NewKeyringStore(); err == nil {
		m.stores = append(m.stores, kr)
	}
	m.stores = append(m.stores, file, NewEnvironmentStore())
	return m, nil
}

func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	account.LastModified = time.Now()

	var errs []error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", errs[len(errs)-1])
}

func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for profile %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault returns environment keys when set, else the stored
// profile named "default", else the first stored profile by name.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if _, ok := store.(*EnvironmentStore); !ok {
			continue
		}
		if account, err := store.Retrieve(""); err == nil {
			return account, nil
		}
	}
	if account, err := m.Retrieve(DefaultProfile); err == nil {
		return account, nil
	}
	if accounts, _ := m.List(); len(accounts) > 0 {
		return accounts[0], nil
	}
	return nil, ErrCredentialsNotFound
}

// List merges the profiles of every store. When a name is held twice the
// most recently modified copy wins. A failing store is skipped.
func (m *Manager) List() ([]*Account, error) {
	newest := map[string]*Account{}
	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, a := range accounts {
			if prev, ok := newest[a.Name]; !ok || a.LastModified.After(prev.LastModified) {
				newest[a.Name] = a
			}
		}
	}

	out := make([]*Account, 0, len(newest))
	for _, a := range newest {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Account) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete removes name from every writable store. It succeeds when at least
// one store held the profile.
func (m *Manager) Delete(name string) error {
	var deleted bool
	var failure error
	for _, store := range m.stores {
		switch err := store.Delete(name); {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrCredentialsNotFound):
		default:
			failure = err
		}
	}

	switch {
	case deleted:
		return nil
	case failure != nil:
		return fmt.Errorf("failed to delete credentials: %w", failure)
	default:
		return fmt.Errorf("%w for profile %s", ErrCredentialsNotFound, name)
	}
}

// DeleteAll removes every stored profile. Environment keys stay.
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		_ = m.Delete(a.Name)
	}
	return nil
}

// ConfigDir returns the legmirror directory under the user config
// directory, creating it. XDG_CONFIG_HOME is honoured on every platform.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		var err error
		if base, err = os.UserConfigDir(); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(base, "legmirror")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy safe to print.
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	masked.AccessKey = mask(account.AccessKey)
	masked.SecretKey = mask(account.SecretKey)
	return &masked
}

// mask keeps four characters at each end of s.
func mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
