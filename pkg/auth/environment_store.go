package auth

import (
	"os"
	"time"

	"legmirror/pkg/config"
)

// Environment variables holding archive.org keys.
const (
	EnvAccessKey = config.EnvPrefix + "IA_ACCESS_KEY"
	EnvSecretKey = config.EnvPrefix + "IA_SECRET_KEY"
)

const envProfile = "environment"

// EnvironmentStore serves keys from LEGMIRROR_IA_ACCESS_KEY and
// LEGMIRROR_IA_SECRET_KEY. It is read-only; CI jobs and containers use it
// where no keychain exists.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func envKeys() (access, secret string, ok bool) {
	access, secret = os.Getenv(EnvAccessKey), os.Getenv(EnvSecretKey)
	return access, secret, access != "" && secret != ""
}

func (*EnvironmentStore) Store(*Account) error { return ErrStoreUnavailable }

func (*EnvironmentStore) Delete(string) error { return ErrStoreUnavailable }

// Retrieve answers any profile name with the environment keys. An empty
// name is reported as "environment".
func (*EnvironmentStore) Retrieve(name string) (*Account, error) {
	access, secret, ok := envKeys()
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = envProfile
	}
	return &Account{Name: name, AccessKey: access, SecretKey: secret, LastModified: time.Now()}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return nil, nil
	}
	return []*Account{account}, nil
}

func (*EnvironmentStore) Exists(string) bool {
	_, _, ok := envKeys()
	return ok
}
