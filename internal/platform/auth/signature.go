package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/printforge/bridge/internal/platform/httpx"
	"github.com/printforge/bridge/internal/platform/requestctx"
)

const (
	// DefaultOrderSourceHeader carries the order source's base64 SHA-256 digest.
	DefaultOrderSourceHeader = "X-Shopify-Hmac-Sha256"
	// DefaultProviderHeader carries the fulfillment provider's signature tokens.
	DefaultProviderHeader = "X-PF-Signature"
	// FallbackProviderHeader is consulted when the primary provider header is absent.
	FallbackProviderHeader = "X-Printful-Signature"
	// BypassHeader carries the operator diagnostic bypass token.
	BypassHeader = "X-Bridge-Bypass"
)

// SecretProvider resolves shared secrets used for signature validation.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to the SecretProvider interface.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// VerificationError reports why a signature failed to verify.
type VerificationError struct {
	Reason string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return "auth: signature verification failed: " + e.Reason
}

func failed(reason string) error {
	return &VerificationError{Reason: reason}
}

// VerifyOrderSource validates an order-source webhook body against a single
// base64-encoded HMAC-SHA256 digest. Missing header or secret fails closed.
func VerifyOrderSource(body []byte, header, secret string) error {
	header = strings.TrimSpace(header)
	if secret == "" {
		return failed("secret_missing")
	}
	if header == "" {
		return failed("signature_missing")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(header), []byte(expected)) {
		return failed("signature_mismatch")
	}
	return nil
}

// VerifyProvider validates a fulfillment-provider webhook body against a
// signature header that may carry several tokens in several encodings. The
// provider's format is not stable across event types, so each supplied token
// is checked against hex HMAC-SHA256, base64 HMAC-SHA256, and hex HMAC-SHA1.
func VerifyProvider(body []byte, header, secret string) error {
	if secret == "" {
		return failed("secret_missing")
	}

	tokens := splitSignatureTokens(header)
	if len(tokens) == 0 {
		return failed("signature_missing")
	}

	candidates := providerCandidates(body, secret)
	for _, token := range tokens {
		for _, candidate := range candidates {
			if hmac.Equal([]byte(token), []byte(candidate)) {
				return nil
			}
			// Hex digests are matched case-insensitively.
			if isLikelyHex(candidate) && hmac.Equal([]byte(strings.ToLower(token)), []byte(candidate)) {
				return nil
			}
		}
	}
	return failed("signature_mismatch")
}

// MatchesBypass reports whether the supplied header value equals the
// configured diagnostic bypass token. An empty configured token disables the
// bypass entirely.
func MatchesBypass(value, configured string) bool {
	if configured == "" {
		return false
	}
	return strings.TrimSpace(value) == configured
}

func splitSignatureTokens(header string) []string {
	fields := strings.FieldsFunc(header, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimSpace(field)
		for _, prefix := range []string{"sha256=", "sha1=", "v1="} {
			if strings.HasPrefix(strings.ToLower(token), prefix) {
				token = token[len(prefix):]
				break
			}
		}
		token = strings.Trim(token, `"'`)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func providerCandidates(body []byte, secret string) []string {
	sum256 := computeHMAC(sha256.New, secret, body)
	sum1 := computeHMAC(sha1.New, secret, body)
	return []string{
		hex.EncodeToString(sum256),
		base64.StdEncoding.EncodeToString(sum256),
		hex.EncodeToString(sum1),
	}
}

func computeHMAC(h func() hash.Hash, secret string, body []byte) []byte {
	mac := hmac.New(h, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

func isLikelyHex(value string) bool {
	_, err := hex.DecodeString(value)
	return err == nil
}

// Scheme selects which verification procedure the middleware applies.
type Scheme int

const (
	// SchemeOrderSource verifies the single base64 SHA-256 digest header.
	SchemeOrderSource Scheme = iota
	// SchemeProvider verifies the tolerant multi-token provider header.
	SchemeProvider
)

// Verifier enforces webhook signatures as chi middleware.
type Verifier struct {
	provider SecretProvider

	orderSourceHeader string
	providerHeader    string
	fallbackHeader    string
	bypassToken       string

	secretCache sync.Map
}

// VerifierOption customises the verifier.
type VerifierOption func(*Verifier)

// NewVerifier builds a verifier using the given secret provider.
func NewVerifier(provider SecretProvider, opts ...VerifierOption) *Verifier {
	verifier := &Verifier{
		provider:          provider,
		orderSourceHeader: DefaultOrderSourceHeader,
		providerHeader:    DefaultProviderHeader,
		fallbackHeader:    FallbackProviderHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// WithOrderSourceHeader overrides the order-source signature header name.
func WithOrderSourceHeader(name string) VerifierOption {
	return func(v *Verifier) {
		if name != "" {
			v.orderSourceHeader = name
		}
	}
}

// WithProviderHeaders overrides the provider signature header names.
func WithProviderHeaders(primary, fallback string) VerifierOption {
	return func(v *Verifier) {
		if primary != "" {
			v.providerHeader = primary
		}
		if fallback != "" {
			v.fallbackHeader = fallback
		}
	}
}

// WithBypassToken enables the diagnostic bypass for provider webhooks. The
// token must only be shared with operators out of band.
func WithBypassToken(token string) VerifierOption {
	return func(v *Verifier) {
		v.bypassToken = strings.TrimSpace(token)
	}
}

// RequireSignature rejects requests whose body does not verify under the
// selected scheme before any handler parses the body as trusted data.
func (v *Verifier) RequireSignature(scheme Scheme, secretName string) func(http.Handler) http.Handler {
	secretName = strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			if scheme == SchemeProvider && MatchesBypass(r.Header.Get(BypassHeader), v.bypassToken) {
				logger.Warn("signature verification bypassed by operator token")
				next.ServeHTTP(w, r)
				return
			}

			secret, err := v.loadSecret(ctx, secretName)
			if err != nil {
				logger.Error("webhook secret unavailable", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("verification_unavailable", "webhook secret unavailable", http.StatusServiceUnavailable))
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read body for signature verification", http.StatusBadRequest))
				return
			}

			var verifyErr error
			switch scheme {
			case SchemeOrderSource:
				verifyErr = VerifyOrderSource(body, r.Header.Get(v.orderSourceHeader), secret)
			case SchemeProvider:
				header := r.Header.Get(v.providerHeader)
				if strings.TrimSpace(header) == "" {
					header = r.Header.Get(v.fallbackHeader)
				}
				verifyErr = VerifyProvider(body, header, secret)
			default:
				verifyErr = failed("unknown_scheme")
			}

			if verifyErr != nil {
				reason := "signature_invalid"
				var ve *VerificationError
				if errors.As(verifyErr, &ve) {
					reason = ve.Reason
				}
				logger.Warn("webhook signature rejected", zap.String("reason", reason))
				httpx.WriteError(ctx, w, httpx.NewError(reason, "signature verification failed", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (v *Verifier) loadSecret(ctx context.Context, name string) (string, error) {
	if v == nil || v.provider == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	if name == "" {
		return "", errors.New("auth: secret name is required")
	}

	if cached, ok := v.secretCache.Load(name); ok {
		if secret, ok := cached.(string); ok && secret != "" {
			return secret, nil
		}
	}

	secret, err := v.provider.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.New("auth: secret is empty")
	}

	v.secretCache.Store(name, secret)
	return secret, nil
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}
