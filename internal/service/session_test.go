package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/NovaLink/internal/adapter/memory"
	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/session"
	"github.com/Strob0t/NovaLink/internal/service"
)

// bcrypt cost 4 keeps these tests fast.
const testBcryptCost = 4

func TestSession_ExchangeValidateRoundtrip(t *testing.T) {
	ctx := context.Background()
	svc := service.NewSessionService(memory.NewStore(), time.Hour, testBcryptCost)

	token, err := svc.Exchange(ctx, session.Claims{Subject: "user-1", Email: "u@example.com", Name: "U"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	claims, err := svc.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "u@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSession_ValidateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	svc := service.NewSessionService(memory.NewStore(), time.Hour, testBcryptCost)

	token, err := svc.Exchange(ctx, session.Claims{Subject: "user-1"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	bad := []string{
		"",
		"no-separator",
		".",
		token + "x",              // wrong secret
		"unknown-id.some-secret", // unknown session
	}
	for _, tok := range bad {
		if _, err := svc.Validate(ctx, tok); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Validate(%q) = %v, want ErrUnauthorized", tok, err)
		}
	}
}

func TestSession_ValidateRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc := service.NewSessionService(memory.NewStore(), -time.Minute, testBcryptCost)

	token, err := svc.Exchange(ctx, session.Claims{Subject: "user-1"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if _, err := svc.Validate(ctx, token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expired session error = %v, want ErrUnauthorized", err)
	}
}

func TestSession_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	svc := service.NewSessionService(memory.NewStore(), time.Hour, testBcryptCost)

	a, err := svc.Exchange(ctx, session.Claims{Subject: "user-1"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	b, err := svc.Exchange(ctx, session.Claims{Subject: "user-1"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if a == b {
		t.Error("two exchanges yielded the same token")
	}
}
