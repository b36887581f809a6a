package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/session/domain"
)

// MemoryRepository is an in-process credential store with the same semantics as PostgresRepository.
// The mutex plays the role of the row lock. Used by tests and single-process tooling.
type MemoryRepository struct {
	mu     sync.Mutex
	rows   map[string]*domain.RefreshCredential
	hasher *security.RefreshHasher
	now    func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository. now defaults to time.Now.
func NewMemoryRepository(hasher *security.RefreshHasher, now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{rows: make(map[string]*domain.RefreshCredential), hasher: hasher, now: now}
}

// Get returns a copy of the stored credential, or nil.
func (m *MemoryRepository) Get(id string) *domain.RefreshCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// Len returns the number of stored credentials.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemoryRepository) Create(_ context.Context, ownerID, familyID string, expiresAt time.Time) (*domain.Issued, error) {
	issued, err := newCredential(m.hasher, ownerID, familyID, m.now(), expiresAt)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *issued.Credential
	m.rows[cp.ID] = &cp
	return issued, nil
}

// lookup returns the stored row for presented. Caller holds mu.
func (m *MemoryRepository) lookup(presented string) (*domain.RefreshCredential, error) {
	id, secret, err := security.ParseRefreshToken(presented)
	if err != nil {
		return nil, err
	}
	c, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	if !m.hasher.Equal(secret, c.SecretHash) {
		return nil, domain.ErrSecretMismatch
	}
	return c, nil
}

func (m *MemoryRepository) Verify(_ context.Context, presented string) (*domain.RefreshCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookup(presented)
	if err != nil {
		return nil, err
	}
	cp := *c
	if err := domain.Reject(&cp, m.now()); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MemoryRepository) Rotate(_ context.Context, presented string, expiresAt time.Time) (*domain.Rotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookup(presented)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if rejectErr := domain.Reject(c, now); rejectErr != nil {
		if c.RevokedAt == nil && errors.Is(rejectErr, domain.ErrCredentialExpired) {
			c.RevokedAt, c.Reason = &now, domain.RevokeExpired
		}
		return nil, rejectErr
	}
	next, err := newCredential(m.hasher, c.OwnerID, c.FamilyID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	n := *next.Credential
	m.rows[n.ID] = &n
	c.RevokedAt, c.Reason, c.ReplacedBy = &now, domain.RevokeRotated, n.ID
	prev := *c
	return &domain.Rotation{Previous: &prev, Next: next}, nil
}

func (m *MemoryRepository) Revoke(_ context.Context, id string, reason domain.RevokeReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id]; ok && c.RevokedAt == nil {
		now := m.now().UTC()
		c.RevokedAt, c.Reason = &now, reason
	}
	return nil
}

func (m *MemoryRepository) revokeWhere(match func(*domain.RefreshCredential) bool, reason domain.RevokeReason) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	var n int64
	for _, c := range m.rows {
		if c.RevokedAt == nil && match(c) {
			at := now
			c.RevokedAt, c.Reason = &at, reason
			n++
		}
	}
	return n
}

func (m *MemoryRepository) RevokeFamily(_ context.Context, familyID string, reason domain.RevokeReason) (int64, error) {
	return m.revokeWhere(func(c *domain.RefreshCredential) bool { return c.FamilyID == familyID }, reason), nil
}

func (m *MemoryRepository) RevokeAllForOwner(_ context.Context, ownerID string, reason domain.RevokeReason) (int64, error) {
	return m.revokeWhere(func(c *domain.RefreshCredential) bool { return c.OwnerID == ownerID }, reason), nil
}

func (m *MemoryRepository) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now := m.now(); before.After(now) {
		before = now
	}
	var n int64
	for id, c := range m.rows {
		if c.ExpiresAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}
