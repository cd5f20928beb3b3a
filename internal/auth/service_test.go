package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsledger/opsledger/internal/auth"
	"github.com/opsledger/opsledger/internal/shared"
	_ "github.com/opsledger/opsledger/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newTestService(t *testing.T, repo auth.Repository) *auth.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return auth.NewService(repo, client, time.Hour)
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID: 1, Email: "dev@corp.test", Name: "Dev",
		PasswordHash: string(hashed), IsActive: true,
		Internal: true,
	}
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc := newTestService(t, &stubRepo{user: activeUser(t, "correctpass")})
	ctx := context.Background()

	token, identity, err := svc.Login(ctx, "dev@corp.test", "correctpass")
	require.NoError(t, err)
	require.NotEmpty(t, token.Value)
	require.True(t, token.ExpiresAt.After(time.Now()))
	require.True(t, identity.CanTrackTime())
	require.False(t, identity.CanManageFinance())

	resolved, err := svc.Resolve(ctx, token.Value)
	require.NoError(t, err)
	require.Equal(t, identity, resolved)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, &stubRepo{user: activeUser(t, "correctpass")})
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "dev@corp.test", "wrongpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@corp.test", "correctpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.IsActive = false
	svc := newTestService(t, &stubRepo{user: user})

	_, _, err := svc.Login(context.Background(), "dev@corp.test", "correctpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRevokeInvalidatesToken(t *testing.T) {
	svc := newTestService(t, &stubRepo{user: activeUser(t, "correctpass")})
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "dev@corp.test", "correctpass")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token.Value))

	_, err = svc.Resolve(ctx, token.Value)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestResolveUnknownToken(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	_, err := svc.Resolve(context.Background(), "not-a-token")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Resolve(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestMiddlewareAuthenticate(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.Finance = true
	svc := newTestService(t, &stubRepo{user: user})
	mw := auth.NewMiddleware(svc)
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "dev@corp.test", "correctpass")
	require.NoError(t, err)

	var seen *shared.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	res := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.NotNil(t, seen)
	require.Equal(t, "dev@corp.test", seen.Email)

	// Missing and malformed tokens are rejected before the handler runs.
	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer bogus"} {
		req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		mw.Authenticate(next).ServeHTTP(res, req)
		require.Equal(t, http.StatusUnauthorized, res.Code)
	}
}

func TestMiddlewareRoleGates(t *testing.T) {
	svc := newTestService(t, &stubRepo{})
	mw := auth.NewMiddleware(svc)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(h http.Handler, identity *shared.Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), identity))
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		return res.Code
	}

	internal := &shared.Identity{Email: "dev@corp.test", Internal: true}
	finance := &shared.Identity{Email: "fin@corp.test", Finance: true}
	admin := &shared.Identity{Email: "root@corp.test", SuperAdmin: true}

	require.Equal(t, http.StatusOK, serve(mw.RequireInternal(next), internal))
	require.Equal(t, http.StatusForbidden, serve(mw.RequireInternal(next), finance))
	require.Equal(t, http.StatusOK, serve(mw.RequireInternal(next), admin))

	require.Equal(t, http.StatusOK, serve(mw.RequireFinance(next), finance))
	require.Equal(t, http.StatusForbidden, serve(mw.RequireFinance(next), internal))
	require.Equal(t, http.StatusOK, serve(mw.RequireFinance(next), admin))

	require.Equal(t, http.StatusForbidden, serve(mw.RequireInternal(next), nil))
}
