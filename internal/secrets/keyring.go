// Package secrets holds the token signing keys and swaps them atomically on reload.
package secrets

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MinKeyLen is the shortest HS256 key accepted.
const MinKeyLen = 32

// Keys is one generation of signing material. Previous stays valid for
// verification so that tokens minted before a rotation keep working.
type Keys struct {
	Current  string
	Previous string
}

func (k Keys) validate() error {
	if len(k.Current) < MinKeyLen {
		return fmt.Errorf("current signing key must be at least %d bytes", MinKeyLen)
	}
	if k.Previous != "" && len(k.Previous) < MinKeyLen {
		return fmt.Errorf("previous signing key must be at least %d bytes", MinKeyLen)
	}
	return nil
}

// Loader retrieves signing keys from a source (env vars, file, remote vault, etc.).
type Loader func() (Keys, error)

// Keyring serves the active signing keys to concurrent readers.
type Keyring struct {
	keys   atomic.Pointer[Keys]
	loader Loader
}

// NewKeyring creates a Keyring, calling the loader once to populate initial keys.
func NewKeyring(loader Loader) (*Keyring, error) {
	if loader == nil {
		return nil, errors.New("nil loader")
	}
	keys, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial key load: %w", err)
	}
	if err := keys.validate(); err != nil {
		return nil, err
	}
	k := &Keyring{loader: loader}
	k.keys.Store(&keys)
	return k, nil
}

// Static returns a Keyring fixed to secret. Reload is a no-op.
func Static(secret string) *Keyring {
	k := &Keyring{}
	k.keys.Store(&Keys{Current: secret})
	return k
}

// Current returns the key new tokens are signed with.
func (k *Keyring) Current() []byte {
	return []byte(k.keys.Load().Current)
}

// Accepted returns every key a token may be verified against, current first.
func (k *Keyring) Accepted() [][]byte {
	keys := k.keys.Load()
	out := [][]byte{[]byte(keys.Current)}
	if keys.Previous != "" && keys.Previous != keys.Current {
		out = append(out, []byte(keys.Previous))
	}
	return out
}

// Reload calls the loader and swaps in the new keys.
// If the loader fails or returns unusable keys, the existing keys are kept.
func (k *Keyring) Reload() error {
	if k.loader == nil {
		return nil
	}
	keys, err := k.loader()
	if err != nil {
		return fmt.Errorf("reload keys: %w", err)
	}
	if err := keys.validate(); err != nil {
		return fmt.Errorf("reload keys: %w", err)
	}
	k.keys.Store(&keys)
	return nil
}
