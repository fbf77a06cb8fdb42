package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/session"
	"github.com/Strob0t/NovaLink/internal/port/database"
)

// SessionService exchanges external identity claims for opaque capability
// tokens and validates them on every authenticated request.
type SessionService struct {
	store      database.Store
	ttl        time.Duration
	bcryptCost int
}

func NewSessionService(store database.Store, ttl time.Duration, bcryptCost int) *SessionService {
	return &SessionService{store: store, ttl: ttl, bcryptCost: bcryptCost}
}

// Exchange mints a new session for the given claims and returns the bearer
// token. Only the bcrypt hash of the secret half is stored.
func (s *SessionService) Exchange(ctx context.Context, claims session.Claims) (string, error) {
	id := uuid.NewString()
	secret := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash session secret: %w", err)
	}

	now := time.Now().UTC()
	err = s.store.CreateSession(ctx, session.Session{
		ID:         id,
		SecretHash: hash,
		Claims:     claims,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id + "." + secret, nil
}

// Validate checks a bearer token and returns its claims. All failure modes
// collapse to domain.ErrUnauthorized so callers cannot distinguish a missing
// session from a bad secret or an expired one.
func (s *SessionService) Validate(ctx context.Context, token string) (*session.Claims, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return nil, domain.ErrUnauthorized
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, domain.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword(sess.SecretHash, []byte(secret)) != nil {
		return nil, domain.ErrUnauthorized
	}
	claims := sess.Claims
	return &claims, nil
}

// StartCleanup deletes expired sessions on the given interval until the
// context is cancelled.
func (s *SessionService) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.DeleteExpiredSessions(ctx)
				if err != nil {
					slog.Warn("session cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Debug("expired sessions removed", "count", n)
				}
			}
		}
	}()
}
