// Package keyvault issues opaque per-run request keys and holds the only
// mapping back to the identifying (portcode, ticker) pair. The vault lives
// for one run and is never persisted; outbound payloads never carry the key
// or the portcode.
package keyvault

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Key is an opaque request identifier. It is a random 128-bit token, so it
// cannot be linked back to the security pair without the vault.
type Key string

// ErrUnknownKey is returned by Resolve for a key this vault never issued.
// Hitting it means a wiring bug, not an environmental failure; callers treat
// it as fatal for the run.
var ErrUnknownKey = eris.New("keyvault: unknown request key")

// Identity is the pair a key stands in for.
type Identity struct {
	Portcode string
	Ticker   string
}

// Vault is a run-scoped key table. Safe for concurrent use.
type Vault struct {
	mu   sync.RWMutex
	keys map[Key]Identity
}

// New creates an empty vault for one run.
func New() *Vault {
	return &Vault{keys: make(map[Key]Identity)}
}

// Issue mints a fresh key for the pair. Every call returns a distinct key,
// even for the same pair.
func (v *Vault) Issue(portcode, ticker string) Key {
	k := Key(uuid.NewString())
	v.mu.Lock()
	v.keys[k] = Identity{Portcode: portcode, Ticker: ticker}
	v.mu.Unlock()
	return k
}

// Resolve returns the pair a key was issued for, or ErrUnknownKey.
func (v *Vault) Resolve(k Key) (Identity, error) {
	v.mu.RLock()
	id, ok := v.keys[k]
	v.mu.RUnlock()
	if !ok {
		return Identity{}, eris.Wrapf(ErrUnknownKey, "resolve %q", string(k))
	}
	return id, nil
}

// Len reports how many keys this vault has issued.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
