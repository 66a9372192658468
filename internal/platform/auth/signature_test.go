package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func hmacSHA256(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func hmacSHA1(secret string, body []byte) []byte {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func TestVerifyOrderSource(t *testing.T) {
	secret := "shh"
	body := []byte("{}")
	digest := base64.StdEncoding.EncodeToString(hmacSHA256(secret, body))

	t.Run("accepts correct digest", func(t *testing.T) {
		if err := VerifyOrderSource(body, digest, secret); err != nil {
			t.Fatalf("expected verification to pass, got %v", err)
		}
	})

	t.Run("rejects flipped body byte", func(t *testing.T) {
		mutated := append([]byte(nil), body...)
		mutated[0] ^= 0x01
		err := VerifyOrderSource(mutated, digest, secret)
		if err == nil {
			t.Fatalf("expected verification to fail for mutated body")
		}
		var ve *VerificationError
		if !errors.As(err, &ve) || ve.Reason != "signature_mismatch" {
			t.Fatalf("expected signature_mismatch, got %v", err)
		}
	})

	t.Run("fails closed on missing header", func(t *testing.T) {
		var ve *VerificationError
		if err := VerifyOrderSource(body, "", secret); !errors.As(err, &ve) || ve.Reason != "signature_missing" {
			t.Fatalf("expected signature_missing, got %v", err)
		}
	})

	t.Run("fails closed on missing secret", func(t *testing.T) {
		var ve *VerificationError
		if err := VerifyOrderSource(body, digest, ""); !errors.As(err, &ve) || ve.Reason != "secret_missing" {
			t.Fatalf("expected secret_missing, got %v", err)
		}
	})
}

func TestVerifyProvider(t *testing.T) {
	secret := "provider-secret"
	body := []byte(`{"event":"package_shipped"}`)

	hex256 := hex.EncodeToString(hmacSHA256(secret, body))
	b64256 := base64.StdEncoding.EncodeToString(hmacSHA256(secret, body))
	hex1 := hex.EncodeToString(hmacSHA1(secret, body))

	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{"plain hex sha256", hex256, true},
		{"plain base64 sha256", b64256, true},
		{"plain hex sha1", hex1, true},
		{"prefixed sha256", "sha256=" + hex256, true},
		{"prefixed sha1", "sha1=" + hex1, true},
		{"v1 prefix", "v1=" + hex256, true},
		{"quoted token", `"` + hex256 + `"`, true},
		{"uppercase hex", strings.ToUpper(hex256), true},
		{"multi token one matches", "sha1=" + strings.Repeat("0", 40) + ",sha256=" + hex256, true},
		{"multi token space separated", strings.Repeat("0", 40) + " " + hex1, true},
		{"no matching token", "sha256=" + strings.Repeat("0", 64), false},
		{"empty header", "", false},
		{"garbage", "not-a-signature", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyProvider(body, tc.header, secret)
			if tc.ok && err != nil {
				t.Fatalf("expected header %q to verify, got %v", tc.header, err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected header %q to fail", tc.header)
			}
		})
	}

	t.Run("missing secret fails closed", func(t *testing.T) {
		if err := VerifyProvider(body, hex256, ""); err == nil {
			t.Fatalf("expected failure for empty secret")
		}
	})
}

func TestMatchesBypass(t *testing.T) {
	if MatchesBypass("token", "") {
		t.Fatalf("empty configured token must disable the bypass")
	}
	if MatchesBypass("wrong", "token") {
		t.Fatalf("mismatched token must not bypass")
	}
	if !MatchesBypass(" token ", "token") {
		t.Fatalf("expected trimmed token to match")
	}
}

func TestRequireSignatureMiddleware(t *testing.T) {
	secret := "shh"
	provider := SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		if name != "order-source" {
			return "", errors.New("unknown secret")
		}
		return secret, nil
	})

	verifier := NewVerifier(provider, WithBypassToken("peek"))
	var sawBody string
	handler := verifier.RequireSignature(SchemeOrderSource, "order-source")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		sawBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid signature reaches handler with restored body", func(t *testing.T) {
		body := `{"id":1}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", strings.NewReader(body))
		req.Header.Set(DefaultOrderSourceHeader, base64.StdEncoding.EncodeToString(hmacSHA256(secret, []byte(body))))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if sawBody != body {
			t.Fatalf("expected handler to see restored body %q, got %q", body, sawBody)
		}
	})

	t.Run("invalid signature rejected before handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", strings.NewReader(`{"id":1}`))
		req.Header.Set(DefaultOrderSourceHeader, "bogus")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("bypass only applies to provider scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", strings.NewReader(`{}`))
		req.Header.Set(BypassHeader, "peek")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected order-source scheme to ignore bypass, got %d", rec.Code)
		}
	})

	t.Run("provider scheme honours bypass", func(t *testing.T) {
		providerHandler := verifier.RequireSignature(SchemeProvider, "order-source")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shipments", strings.NewReader(`{}`))
		req.Header.Set(BypassHeader, "peek")

		rec := httptest.NewRecorder()
		providerHandler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected bypass to pass provider scheme, got %d", rec.Code)
		}
	})
}
