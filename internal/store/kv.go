// Package store provides the storage-port adapter for the wizard engine.
package store

// ScopedStorage adapts a Store's key-value entries to the engine's storage
// port, namespaced per client so each patient's browser maps to its own
// session-id keys, mirroring browser-local storage.
type ScopedStorage struct {
	store  Store
	client string
}

// NewScopedStorage creates a storage port scoped to one client identifier.
func NewScopedStorage(st Store, clientID string) *ScopedStorage {
	return &ScopedStorage{store: st, client: clientID}
}

func (s *ScopedStorage) scoped(key string) string {
	return s.client + "|" + key
}

// Get retrieves the value for a key, or "" if absent.
func (s *ScopedStorage) Get(key string) (string, error) {
	return s.store.GetKV(s.scoped(key))
}

// Set stores the value for a key.
func (s *ScopedStorage) Set(key, value string) error {
	return s.store.SetKV(s.scoped(key), value)
}

// Remove deletes a key.
func (s *ScopedStorage) Remove(key string) error {
	return s.store.DeleteKV(s.scoped(key))
}
