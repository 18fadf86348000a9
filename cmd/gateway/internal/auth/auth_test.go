package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "lightspeed-test-secret"

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"missing scheme", "abc.def.ghi", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"empty token", "Bearer ", "", false},
		{"empty header", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Fatalf("BearerToken(%q) = %q, %v", tt.header, got, err)
				}
				return
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("BearerToken(%q) err = %v, want ErrUnauthorized", tt.header, err)
			}
		})
	}
}

func TestJWTVerifier_Authenticate(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signedToken(t, testSecret, jwt.MapClaims{
		"sub": "client-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	principal, err := v.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.Subject != "client-42" {
		t.Fatalf("subject = %q", principal.Subject)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	cases := map[string]string{
		"wrong secret": signedToken(t, "other-secret", jwt.MapClaims{
			"sub": "client-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		}),
		"expired": signedToken(t, testSecret, jwt.MapClaims{
			"sub": "client-42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}),
		"no subject": signedToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}),
		"garbage": "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Authenticate(token); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestJWTVerifier_RejectsUnsignedAlg(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "client-42",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Authenticate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("alg=none accepted: %v", err)
	}
}
