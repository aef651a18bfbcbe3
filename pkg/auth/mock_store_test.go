package auth

import (
	"maps"
	"sync"
)

// MockStore keeps profiles in memory. The *Error fields are returned by the
// matching method when set.
type MockStore struct {
	mu       sync.Mutex
	profiles map[string]Account

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{profiles: map[string]Account{}}
}

// NewMockManager returns a Manager whose only store is a fresh MockStore.
func NewMockManager() (*Manager, *MockStore) {
	s := NewMockStore()
	return NewManagerWithStores(s), s
}

func (m *MockStore) Store(account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.StoreError != nil:
		return m.StoreError
	case account == nil || account.Name == "":
		return ErrInvalidCredentials
	}
	m.profiles[account.Name] = *account
	return nil
}

func (m *MockStore) Retrieve(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	a, ok := m.profiles[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *MockStore) List() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	var out []*Account
	for a := range maps.Values(m.profiles) {
		out = append(out, &a)
	}
	return out, nil
}

func (m *MockStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, ok := m.profiles[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.profiles, name)
	return nil
}

func (m *MockStore) Exists(name string) bool {
	_, err := m.Retrieve(name)
	return err == nil
}

func (m *MockStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}
