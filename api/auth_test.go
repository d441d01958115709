package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func testAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	return NewAuth(nil, "test-audience", "test-issuer")
}

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthTestModeAcceptsValidToken(t *testing.T) {
	a := testAuth(t)
	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-42",
		"aud": "test-audience",
		"iss": "test-issuer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	sub, err := a.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("expected token to verify: %v", err)
	}
	if sub != "user-42" {
		t.Fatalf("expected sub user-42, got %q", sub)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	a := testAuth(t)
	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-42",
		"aud": "test-audience",
		"iss": "test-issuer",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestAuthRejectsWrongAudience(t *testing.T) {
	a := testAuth(t)
	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-42",
		"aud": "someone-else",
		"iss": "test-issuer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestAuthRejectsMissingSub(t *testing.T) {
	a := testAuth(t)
	token := signTestToken(t, jwt.MapClaims{
		"aud": "test-audience",
		"iss": "test-issuer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected token without sub to fail")
	}
}

func TestAuthRejectsBadSignature(t *testing.T) {
	a := testAuth(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected forged signature to fail")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "empty", header: "", wantErr: errMissingAuthorization},
		{name: "blank", header: "   ", wantErr: errMissingAuthorization},
		{name: "no scheme", header: "a.b.c", wantErr: errBadAuthorization},
		{name: "wrong scheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "empty token", header: "Bearer ", wantErr: errBadAuthorization},
		{name: "not a jwt", header: "Bearer opaque", wantErr: errBadAuthorization},
		{name: "valid", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "valid with padding", header: "  Bearer a.b.c  ", want: "a.b.c"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerToken(tc.header)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
