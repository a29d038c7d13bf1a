package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "ptyd"

// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
var ErrKeyringUnavailable = errors.New("keyring not available")

// KeyringStore persists the sudo password of local accounts in the OS
// keyring (Secret Service, Keychain, Credential Manager).
type KeyringStore struct {
	mu      sync.RWMutex
	enabled bool
}

// NewKeyringStore probes the keyring with a throwaway entry and disables
// itself when that fails.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{enabled: true}

	const probe = "__ptyd_probe__"
	if err := keyring.Set(KeyringService, probe, "ok"); err != nil {
		slog.Debug("keyring not available", slog.String("error", err.Error()))
		ks.enabled = false
		return ks
	}
	_ = keyring.Delete(KeyringService, probe)
	return ks
}

// IsEnabled returns true if the keyring is available and enabled.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	ks.enabled = enabled
	ks.mu.Unlock()
}

func sudoKey(account string) string {
	return "sudo:" + account
}

// StoreSudoPassword saves password for account.
func (ks *KeyringStore) StoreSudoPassword(account string, password []byte) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}
	encoded := base64.StdEncoding.EncodeToString(password)
	if err := keyring.Set(KeyringService, sudoKey(account), encoded); err != nil {
		return fmt.Errorf("store sudo password: %w", err)
	}
	slog.Debug("stored sudo password in keyring", slog.String("account", account))
	return nil
}

// SudoPassword loads the password for account. A missing entry returns
// (nil, nil).
func (ks *KeyringStore) SudoPassword(account string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, ErrKeyringUnavailable
	}
	encoded, err := keyring.Get(KeyringService, sudoKey(account))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sudo password: %w", err)
	}
	pw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode sudo password: %w", err)
	}
	return pw, nil
}

// DeleteSudoPassword removes the entry for account; a missing entry is fine.
func (ks *KeyringStore) DeleteSudoPassword(account string) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}
	err := keyring.Delete(KeyringService, sudoKey(account))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete sudo password: %w", err)
	}
	return nil
}
