package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/auth"
	"github.com/noah-isme/backend-storefront/internal/common"
)

const testSecret = "storefront-test-secret"

func signToken(t *testing.T, subject string, builderFns ...func(*jwt.Builder)) string {
	t.Helper()
	builder := jwt.NewBuilder().
		Subject(subject).
		Issuer("storefront").
		Audience([]string{"storefront-web"}).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	for _, fn := range builderFns {
		fn(builder)
	}
	token, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func testService(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.ServiceConfig{
		Secret:   testSecret,
		Issuer:   "storefront",
		Audience: "storefront-web",
	})
	require.NoError(t, err)
	return svc
}

func TestParseAccessToken(t *testing.T) {
	svc := testService(t)

	subject, err := svc.ParseAccessToken(signToken(t, "user-123"))
	require.NoError(t, err)
	require.Equal(t, "user-123", subject)
}

func TestParseAccessTokenRejectsBadInput(t *testing.T) {
	svc := testService(t)

	_, err := svc.ParseAccessToken("")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.ParseAccessToken("not-a-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := signToken(t, "user-123", func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})
	_, err = svc.ParseAccessToken(expired)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	wrongIssuer := signToken(t, "user-123", func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})
	_, err = svc.ParseAccessToken(wrongIssuer)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticateMiddleware(t *testing.T) {
	svc := testService(t)
	mw := auth.Middleware{Service: svc}

	var gotUser string
	var hadUser bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, hadUser = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/xyz", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-123"))
	rec := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, hadUser)
	require.Equal(t, "user-123", gotUser)

	// Anonymous requests pass through without identity.
	hadUser = false
	req = httptest.NewRequest(http.MethodGet, "/api/v1/carts/xyz", nil)
	rec = httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, hadUser)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	svc := testService(t)
	mw := auth.Middleware{Service: svc}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/xyz", nil)
	rec := httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
