// Package secrets remembers wallet seeds between CLI invocations.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/xrpracing/racegarage/log"
)

// SeedStore keeps seeds in the OS keyring. If no keyring backend is
// available the seeds go to a file readable only by the user.
type SeedStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
	l            *log.Logger
}

const seedPart = "seed"

var ErrNotFound = keyring.ErrNotFound

func NewSeedStore(service, fallbackPath string) *SeedStore {
	if strings.TrimSpace(service) == "" {
		service = "racegarage"
	}
	return &SeedStore{
		service:      service,
		fallbackPath: fallbackPath,
		l:            log.Default().Named("secrets"),
	}
}

func (k *SeedStore) key(address string) string {
	return fmt.Sprintf("%s/%s", address, seedPart)
}

func (k *SeedStore) Save(address, seed string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("secrets: address is required")
	}
	err := keyring.Set(k.service, k.key(address), seed)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring set: %w", err)
	}
	if strings.TrimSpace(k.fallbackPath) == "" {
		return errors.New("secrets: keyring unavailable and no fallback path configured")
	}
	k.l.Debug("keyring unavailable, using fallback file", log.ErrorField(err))
	return k.updateFallback(func(data map[string]string) {
		data[address] = seed
	})
}

func (k *SeedStore) Load(address string) (string, error) {
	address = strings.TrimSpace(address)
	val, err := keyring.Get(k.service, k.key(address))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get: %w", err)
	}
	data, ferr := k.readFallback()
	if ferr != nil {
		return "", ferr
	}
	if seed, ok := data[address]; ok {
		return seed, nil
	}
	return "", ErrNotFound
}

func (k *SeedStore) Delete(address string) error {
	err := keyring.Delete(k.service, k.key(address))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring delete: %w", err)
	}
	return k.updateFallback(func(data map[string]string) {
		delete(data, address)
	})
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (k *SeedStore) updateFallback(fn func(map[string]string)) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	fn(data)
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("secrets: encode fallback: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback: %w", err)
	}
	return nil
}

func (k *SeedStore) readFallback() (map[string]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.readFallbackUnlocked()
}

func (k *SeedStore) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(k.fallbackPath) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback: %w", err)
	}
	return out, nil
}
