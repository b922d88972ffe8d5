package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

// InMemoryProvider is an identity provider for development and tests.
type InMemoryProvider struct {
	mu         sync.RWMutex
	identities map[id.IdentityRef]*Identity
	cost       int
}

func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		identities: make(map[id.IdentityRef]*Identity),
		cost:       bcrypt.DefaultCost,
	}
}

// WithBcryptCost lowers the hashing cost, mainly so tests stay fast.
func (p *InMemoryProvider) WithBcryptCost(cost int) *InMemoryProvider {
	p.cost = cost
	return p
}

func (p *InMemoryProvider) Resolve(_ context.Context, ref id.IdentityRef) (*Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ident, ok := p.identities[ref]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", ref, sentinel.ErrNotFound)
	}
	cp := *ident
	cp.PasswordHash = slices.Clone(ident.PasswordHash)
	cp.Devices = slices.Clone(ident.Devices)
	return &cp, nil
}

// Register creates the identity if it does not exist.
func (p *InMemoryProvider) Register(ref id.IdentityRef, handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getOrCreate(ref).Handle = handle
}

func (p *InMemoryProvider) SetPassword(ref id.IdentityRef, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getOrCreate(ref).PasswordHash = hash
	return nil
}

func (p *InMemoryProvider) RegisterDevice(ref id.IdentityRef, device Device) error {
	if len(device.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("device %s: public key must be %d bytes", device.ID, ed25519.PublicKeySize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ident := p.getOrCreate(ref)
	ident.Devices = slices.DeleteFunc(ident.Devices, func(d Device) bool { return d.ID == device.ID })
	ident.Devices = append(ident.Devices, device)
	return nil
}

func (p *InMemoryProvider) RevokeDevice(ref id.IdentityRef, deviceID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ident, ok := p.identities[ref]
	if !ok {
		return sentinel.ErrNotFound
	}
	for i := range ident.Devices {
		if ident.Devices[i].ID == deviceID {
			ident.Devices[i].RevokedAt = &at
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (p *InMemoryProvider) getOrCreate(ref id.IdentityRef) *Identity {
	ident, ok := p.identities[ref]
	if !ok {
		ident = &Identity{Ref: ref}
		p.identities[ref] = ident
	}
	return ident
}
