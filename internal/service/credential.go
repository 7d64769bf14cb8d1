package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var DefaultAlgorithms = []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256"}

var errNoSigningKey = errors.New("no verification key configured for signing method")

// TokenClaims JWT 声明
type TokenClaims struct {
	CommunityID string `json:"communityId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type CommunityResolver interface {
	Resolve(ctx context.Context, id string) (*model.Community, error)
}

// CredentialValidator verifies bearer tokens and the community they claim.
type CredentialValidator struct {
	secret        []byte
	rsaKey        *rsa.PublicKey
	ecKey         *ecdsa.PublicKey
	methods       []string
	maxAge        time.Duration
	lookupTimeout time.Duration
	communities   CommunityResolver
	now           func() time.Time
	tracer        trace.Tracer
}

// NewCredentialValidator fails only on a malformed public key. A missing
// secret is reported per request as AUTH_CONFIG_ERROR.
func NewCredentialValidator(cfg config.AuthConfig, communities CommunityResolver) (*CredentialValidator, error) {
	v := &CredentialValidator{
		secret:        []byte(cfg.JWTSecret),
		methods:       cfg.AllowedAlgorithms,
		maxAge:        time.Duration(cfg.MaxTokenAgeMinutes) * time.Minute,
		lookupTimeout: time.Duration(cfg.LookupTimeoutMs) * time.Millisecond,
		communities:   communities,
		now:           time.Now,
		tracer:        otel.Tracer("guildgate/internal/service/credential"),
	}
	if len(v.methods) == 0 {
		v.methods = DefaultAlgorithms
	}
	if v.lookupTimeout <= 0 {
		v.lookupTimeout = 2 * time.Second
	}

	if pemKey := strings.TrimSpace(cfg.JWTPublicKeyPEM); pemKey != "" {
		if key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey)); err == nil {
			v.rsaKey = key
		} else if key, ecErr := jwt.ParseECPublicKeyFromPEM([]byte(pemKey)); ecErr == nil {
			v.ecKey = key
		} else {
			return nil, fmt.Errorf("auth.jwt_public_key_pem is neither an RSA nor an ECDSA public key: %w", err)
		}
	}
	if v.configured() {
		v.methods = v.keyedMethods(v.methods)
		if len(v.methods) == 0 {
			logger.Warn("No allowed JWT algorithm has a configured key, every token will be rejected",
				"allowed", strings.Join(cfg.AllowedAlgorithms, ","))
		}
	}
	return v, nil
}

// keyedMethods keeps the algorithms this validator holds a key for. A token
// signed with any other algorithm is a client error, not a misconfiguration.
func (v *CredentialValidator) keyedMethods(methods []string) []string {
	keyed := make([]string, 0, len(methods))
	for _, name := range methods {
		switch jwt.GetSigningMethod(name).(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.secret) > 0 {
				keyed = append(keyed, name)
			}
		case *jwt.SigningMethodRSA:
			if v.rsaKey != nil {
				keyed = append(keyed, name)
			}
		case *jwt.SigningMethodECDSA:
			if v.ecKey != nil {
				keyed = append(keyed, name)
			}
		}
	}
	return keyed
}

// WithClock overrides the time source, for tests.
func (v *CredentialValidator) WithClock(now func() time.Time) *CredentialValidator {
	v.now = now
	return v
}

func (v *CredentialValidator) configured() bool {
	return len(v.secret) > 0 || v.rsaKey != nil || v.ecKey != nil
}

// Validate checks the Authorization header and resolves the claimed
// community. Every failure is an *apperrors.AppError with its stable code.
func (v *CredentialValidator) Validate(ctx context.Context, header string) (tenancy.Claims, *model.Community, error) {
	ctx, span := v.tracer.Start(ctx, "CredentialValidator.Validate")
	defer span.End()

	claims, community, appErr := v.validate(ctx, header)
	if appErr != nil {
		metrics.AuthFailures.WithLabelValues(string(appErr.Type)).Inc()
		span.SetStatus(codes.Error, string(appErr.Type))
		return tenancy.Claims{}, nil, appErr
	}
	return claims, community, nil
}

func (v *CredentialValidator) validate(ctx context.Context, header string) (tenancy.Claims, *model.Community, *apperrors.AppError) {
	raw, appErr := ExtractBearerToken(header)
	if appErr != nil {
		return tenancy.Claims{}, nil, appErr
	}
	if !v.configured() {
		logger.Error("JWT verification key is not configured, rejecting all credentials")
		return tenancy.Claims{}, nil, apperrors.New(apperrors.ErrAuthConfig, "jwt signing secret is not configured", nil)
	}

	tc, appErr := v.ParseToken(raw)
	if appErr != nil {
		return tenancy.Claims{}, nil, appErr
	}
	if tc.CommunityID == "" {
		return tenancy.Claims{}, nil, apperrors.New(apperrors.ErrTenantClaimMissing, "token has no communityId claim", nil)
	}
	if tc.UserID == "" {
		return tenancy.Claims{}, nil, apperrors.New(apperrors.ErrUserClaimMissing, "token has no userId claim", nil)
	}

	community, appErr := v.lookup(ctx, tc.CommunityID)
	if appErr != nil {
		return tenancy.Claims{}, nil, appErr
	}

	return tenancy.Claims{
		CommunityID: tc.CommunityID,
		UserID:      tc.UserID,
		Role:        normalizeRole(tc.Role),
	}, community, nil
}

// ParseToken verifies signature, algorithm, expiry and maximum age.
func (v *CredentialValidator) ParseToken(raw string) (*TokenClaims, *apperrors.AppError) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.methods),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	claims := &TokenClaims{}
	token, err := parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, errNoSigningKey) || v.rejectsMethod(token):
			return nil, apperrors.NewTokenInvalid("signing method is not accepted", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			expiredAt := v.now()
			if claims.ExpiresAt != nil {
				expiredAt = claims.ExpiresAt.Time
			}
			return nil, apperrors.NewTokenExpired(expiredAt)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperrors.NewTokenInvalid("malformed token", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, apperrors.NewTokenInvalid("signature is invalid", err)
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, apperrors.NewTokenInvalid("signing method is not allowed", err)
		default:
			return nil, apperrors.NewTokenInvalid(err.Error(), err)
		}
	}

	if v.maxAge > 0 {
		if claims.IssuedAt == nil {
			return nil, apperrors.NewTokenInvalid("token has no iat claim", nil)
		}
		if limit := claims.IssuedAt.Add(v.maxAge); v.now().After(limit) {
			return nil, apperrors.NewTokenExpired(limit)
		}
	}
	return claims, nil
}

// rejectsMethod reports whether t names an algorithm outside the accepted set.
func (v *CredentialValidator) rejectsMethod(t *jwt.Token) bool {
	if t == nil {
		return false
	}
	alg, _ := t.Header["alg"].(string)
	return alg != "" && !slices.Contains(v.methods, alg)
}

func (v *CredentialValidator) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errNoSigningKey
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.rsaKey == nil {
			return nil, errNoSigningKey
		}
		return v.rsaKey, nil
	case *jwt.SigningMethodECDSA:
		if v.ecKey == nil {
			return nil, errNoSigningKey
		}
		return v.ecKey, nil
	}
	return nil, fmt.Errorf("unsupported signing method %v", t.Header["alg"])
}

func (v *CredentialValidator) lookup(ctx context.Context, id string) (*model.Community, *apperrors.AppError) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.ErrTenantLookup, "request cancelled before community lookup", err)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	community, err := v.communities.Resolve(lookupCtx, id)
	if err != nil {
		if errors.Is(err, ErrCommunityNotFound) {
			return nil, apperrors.New(apperrors.ErrTenantNotFound, "community not found", nil)
		}
		logger.LogError(ctx, err, "Community lookup failed", "community_id", id)
		return nil, apperrors.New(apperrors.ErrTenantLookup, "community lookup failed", err)
	}
	if community.DeletedAt.Valid {
		return nil, apperrors.NewTenantDeleted(community.DeletedAt.Time)
	}
	if !community.SubscriptionStatus.IsActive() {
		return nil, apperrors.NewSubscriptionInactive(string(community.SubscriptionStatus), community.SubscriptionTier)
	}
	return community, nil
}

// ExtractBearerToken splits "Bearer <token>".
func ExtractBearerToken(header string) (string, *apperrors.AppError) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.New(apperrors.ErrAuthMissing, "authorization header is required", nil)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.New(apperrors.ErrAuthFormatInvalid, "authorization header must be 'Bearer <token>'", nil)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" || strings.Contains(token, " ") {
		return "", apperrors.New(apperrors.ErrAuthFormatInvalid, "authorization header must be 'Bearer <token>'", nil)
	}
	return token, nil
}

// SignToken issues a token, used by the inspector CLI and tests.
func SignToken(method jwt.SigningMethod, key any, claims *TokenClaims) (string, error) {
	return jwt.NewWithClaims(method, claims).SignedString(key)
}

func normalizeRole(raw string) model.Role {
	switch model.Role(strings.ToLower(strings.TrimSpace(raw))) {
	case model.RoleOwner:
		return model.RoleOwner
	case model.RoleAdmin:
		return model.RoleAdmin
	case model.RoleModerator:
		return model.RoleModerator
	default:
		return model.RoleMember
	}
}
