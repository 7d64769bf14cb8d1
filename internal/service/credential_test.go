package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testSecret = "test-secret-with-enough-entropy"

type stubResolver struct {
	communities map[string]*model.Community
	delay       time.Duration
	err         error
}

func (s *stubResolver) Resolve(ctx context.Context, id string) (*model.Community, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.communities[id]
	if !ok {
		return nil, ErrCommunityNotFound
	}
	return c, nil
}

func newResolver() *stubResolver {
	return &stubResolver{communities: map[string]*model.Community{
		"c1": {ID: "c1", SubscriptionStatus: model.SubscriptionActive, SubscriptionTier: "pro", ExternalGuildID: "g-1"},
		"gone": {ID: "gone", SubscriptionStatus: model.SubscriptionActive,
			DeletedAt: gorm.DeletedAt{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Valid: true}},
		"lapsed": {ID: "lapsed", SubscriptionStatus: model.SubscriptionPastDue, SubscriptionTier: "free"},
	}}
}

func hsToken(t *testing.T, claims *TokenClaims) string {
	t.Helper()
	token, err := SignToken(jwt.SigningMethodHS256, []byte(testSecret), claims)
	require.NoError(t, err)
	return token
}

func validClaims(communityID, userID, role string) *TokenClaims {
	now := time.Now()
	return &TokenClaims{
		CommunityID: communityID,
		UserID:      userID,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func newValidator(t *testing.T, cfg config.AuthConfig, r CommunityResolver) *CredentialValidator {
	t.Helper()
	v, err := NewCredentialValidator(cfg, r)
	require.NoError(t, err)
	return v
}

func requireCode(t *testing.T, err error, code apperrors.ErrorType) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Type)
	return appErr
}

func TestValidateAcceptsHS256(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())

	claims, community, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "ADMIN")))
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.CommunityID)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, "g-1", community.ExternalGuildID)
}

func TestValidateNormalizesUnknownRole(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())
	claims, _, err := v.Validate(context.Background(), "bearer "+hsToken(t, validClaims("c1", "u1", "superuser")))
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, claims.Role)
}

func TestValidateHeaderErrors(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())

	tests := []struct {
		header string
		code   apperrors.ErrorType
	}{
		{"", apperrors.ErrAuthMissing},
		{"   ", apperrors.ErrAuthMissing},
		{"Token abc", apperrors.ErrAuthFormatInvalid},
		{"Bearer", apperrors.ErrAuthFormatInvalid},
		{"Bearer a b", apperrors.ErrAuthFormatInvalid},
		{"Bearer not-a-jwt", apperrors.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			_, _, err := v.Validate(context.Background(), tt.header)
			appErr := requireCode(t, err, tt.code)
			assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestValidateWithoutSecretIsConfigError(t *testing.T) {
	v := newValidator(t, config.AuthConfig{}, newResolver())
	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrAuthConfig)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.Equal(t, "authentication is not configured", appErr.PublicMessage())
}

func TestValidateRejectsWrongSignature(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: "another-secret"}, newResolver())
	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	requireCode(t, err, apperrors.ErrTokenInvalid)
}

func TestValidateRejectsDisallowedAlgorithm(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret, AllowedAlgorithms: []string{"HS512"}}, newResolver())
	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	requireCode(t, err, apperrors.ErrTokenInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("c1", "u1", "")).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = v.Validate(context.Background(), "Bearer "+none)
	requireCode(t, err, apperrors.ErrTokenInvalid)
}

func TestValidateRejectsAlgorithmWithoutKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetForTest(zap.New(core))
	t.Cleanup(func() { logger.SetForTest(zap.NewNop()) })

	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())
	assert.Equal(t, []string{"HS256", "HS384", "HS512"}, v.methods)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token, err := SignToken(jwt.SigningMethodRS256, key, validClaims("c1", "u1", ""))
	require.NoError(t, err)

	_, _, err = v.Validate(context.Background(), "Bearer "+token)
	appErr := requireCode(t, err, apperrors.ErrTokenInvalid)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
	assert.Equal(t, "signing method is not accepted", appErr.Details["details"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestValidateExpiredToken(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())
	claims := validClaims("c1", "u1", "")
	exp := time.Now().Add(-time.Minute).Truncate(time.Second)
	claims.IssuedAt = jwt.NewNumericDate(exp.Add(-time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(exp)

	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, claims))
	appErr := requireCode(t, err, apperrors.ErrTokenExpired)
	assert.Equal(t, exp.UTC().Format(time.RFC3339), appErr.Details["expiredAt"])
}

func TestValidateMaxTokenAge(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret, MaxTokenAgeMinutes: 60}, newResolver())

	old := validClaims("c1", "u1", "")
	old.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, old))
	requireCode(t, err, apperrors.ErrTokenExpired)

	noIat := validClaims("c1", "u1", "")
	noIat.IssuedAt = nil
	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, noIat))
	requireCode(t, err, apperrors.ErrTokenInvalid)

	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	assert.NoError(t, err)
}

func TestValidateClockOverride(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())
	token := hsToken(t, validClaims("c1", "u1", ""))

	v.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, _, err := v.Validate(context.Background(), "Bearer "+token)
	requireCode(t, err, apperrors.ErrTokenExpired)
}

func TestValidateMissingClaims(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())

	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrTenantClaimMissing)
	assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus)

	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "", "")))
	requireCode(t, err, apperrors.ErrUserClaimMissing)
}

func TestValidateCommunityState(t *testing.T) {
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, newResolver())

	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("missing", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrTenantNotFound)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("gone", "u1", "")))
	appErr = requireCode(t, err, apperrors.ErrTenantDeleted)
	assert.Equal(t, "2026-01-02T03:04:05Z", appErr.Details["deletedAt"])

	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("lapsed", "u1", "")))
	appErr = requireCode(t, err, apperrors.ErrSubscriptionInactive)
	assert.Equal(t, "past_due", appErr.Details["subscriptionStatus"])
	assert.Equal(t, "free", appErr.Details["tier"])
}

func TestValidateLookupTimeout(t *testing.T) {
	r := newResolver()
	r.delay = time.Second
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret, LookupTimeoutMs: 20}, r)

	start := time.Now()
	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrTenantLookup)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestValidateLookupFailure(t *testing.T) {
	r := newResolver()
	r.err = errors.New("connection refused")
	v := newValidator(t, config.AuthConfig{JWTSecret: testSecret}, r)

	_, _, err := v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrTenantLookup)
	assert.NotContains(t, appErr.PublicMessage(), "connection refused")
}

func pemPublicKey(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestValidateRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := newValidator(t, config.AuthConfig{JWTPublicKeyPEM: pemPublicKey(t, &key.PublicKey)}, newResolver())

	token, err := SignToken(jwt.SigningMethodRS256, key, validClaims("c1", "u1", "owner"))
	require.NoError(t, err)
	claims, _, err := v.Validate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, claims.Role)

	// no HMAC secret configured for an HS256 token
	_, _, err = v.Validate(context.Background(), "Bearer "+hsToken(t, validClaims("c1", "u1", "")))
	appErr := requireCode(t, err, apperrors.ErrTokenInvalid)
	assert.Equal(t, "signing method is not accepted", appErr.Details["details"])
}

func TestValidateES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	v := newValidator(t, config.AuthConfig{JWTPublicKeyPEM: pemPublicKey(t, &key.PublicKey)}, newResolver())

	token, err := SignToken(jwt.SigningMethodES256, key, validClaims("c1", "u1", ""))
	require.NoError(t, err)
	_, _, err = v.Validate(context.Background(), "Bearer "+token)
	assert.NoError(t, err)
}

func TestNewCredentialValidatorRejectsBadPEM(t *testing.T) {
	_, err := NewCredentialValidator(config.AuthConfig{JWTPublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nnope\n-----END PUBLIC KEY-----"}, newResolver())
	assert.Error(t, err)
}
