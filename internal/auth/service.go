package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsledger/opsledger/internal/shared"
)

// Service wraps authentication business rules. Tokens are opaque UUIDs held
// in redis with a TTL; the value maps to the caller identity.
type Service struct {
	repo   Repository
	tokens *redis.Client
	ttl    time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *redis.Client, ttl time.Duration) *Service {
	return &Service{repo: repo, tokens: tokens, ttl: ttl}
}

func tokenKey(token string) string {
	return fmt.Sprintf("auth:token:%s", token)
}

// Login validates credentials and mints a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, *shared.Identity, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}

	identity := &shared.Identity{
		UserID:     user.ID,
		Email:      user.Email,
		Internal:   user.Internal,
		Finance:    user.Finance,
		SuperAdmin: user.SuperAdmin,
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return nil, nil, err
	}

	token := &Token{Value: uuid.NewString(), ExpiresAt: time.Now().Add(s.ttl)}
	if err := s.tokens.Set(ctx, tokenKey(token.Value), payload, s.ttl).Err(); err != nil {
		return nil, nil, fmt.Errorf("auth: store token: %w", err)
	}
	return token, identity, nil
}

// Resolve maps a bearer token back to its identity.
func (s *Service) Resolve(ctx context.Context, token string) (*shared.Identity, error) {
	if token == "" {
		return nil, shared.ErrInvalidCredentials
	}
	payload, err := s.tokens.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: resolve token: %w", err)
	}
	var identity shared.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return nil, fmt.Errorf("auth: decode identity: %w", err)
	}
	return &identity, nil
}

// Revoke invalidates a bearer token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.tokens.Del(ctx, tokenKey(token)).Err()
}
