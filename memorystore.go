package grantkit

import (
	"context"
	"sync"

	"github.com/dpup/grantkit/errors"
)

// NewMemoryStore returns the default in-memory Store. All state is owned
// by the returned value; nothing is shared between stores. A single mutex
// guards every operation, which satisfies the atomicity contract.
func NewMemoryStore() Store {
	return &memoryStore{
		codes:   make(map[string]AuthCode),
		access:  make(map[string]AccessTokenRecord),
		refresh: make(map[string]RefreshTokenRecord),
	}
}

type memoryStore struct {
	mu      sync.Mutex
	codes   map[string]AuthCode
	access  map[string]AccessTokenRecord
	refresh map[string]RefreshTokenRecord
}

func (s *memoryStore) PutAuthCode(ctx context.Context, code *AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return errors.Mark(ErrInvalidGrant, 0)
	}
	rec := *code
	rec.Scopes = code.Scopes.Clone()
	s.codes[code.Code] = rec
	return nil
}

func (s *memoryStore) TakeAuthCode(ctx context.Context, code string) (*AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	out := rec
	out.Scopes = rec.Scopes.Clone()
	return &out, nil
}

func (s *memoryStore) ClaimAuthCode(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok || rec.Redeemed {
		return false, nil
	}
	rec.Redeemed = true
	s.codes[code] = rec
	return true, nil
}

func (s *memoryStore) MarkAuthCodeRedeemed(ctx context.Context, code, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil
	}
	rec.Redeemed = true
	rec.RedeemedAccessToken = accessToken
	s.codes[code] = rec
	return nil
}

func (s *memoryStore) DeleteAuthCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, code)
	return nil
}

func (s *memoryStore) PutAccessToken(ctx context.Context, access *AccessTokenRecord, refresh *RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *access
	a.Scopes = access.Scopes.Clone()
	s.access[access.Token] = a

	if refresh == nil {
		return nil
	}

	// At most one active refresh token per (client, user).
	for token, rec := range s.refresh {
		if rec.ClientID == refresh.ClientID && rec.UserID == refresh.UserID && token != refresh.Token {
			delete(s.refresh, token)
		}
	}

	r := *refresh
	r.Scopes = refresh.Scopes.Clone()
	s.refresh[refresh.Token] = r
	return nil
}

func (s *memoryStore) GetAccessToken(ctx context.Context, token string) (*AccessTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.access[token]
	if !ok {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	out := rec
	out.Scopes = rec.Scopes.Clone()
	return &out, nil
}

func (s *memoryStore) GetRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[token]
	if !ok {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	out := rec
	out.Scopes = rec.Scopes.Clone()
	return &out, nil
}

func (s *memoryStore) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.access, token)
	return nil
}

func (s *memoryStore) DeleteRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, token)
	return nil
}
