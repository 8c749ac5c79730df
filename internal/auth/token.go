package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/reeltap/internal/domain"
	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

// Verification failures. All of them are terminal for the request that hit them.
var (
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
)

const defaultLeeway = 5 * time.Second

// TokenConfig is the immutable input of a TokenManager.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// Option customizes a TokenManager.
type Option func(*TokenManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager builds a new manager. A missing secret is a configuration error.
func NewTokenManager(cfg TokenConfig, opts ...Option) (*TokenManager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, apperrors.NewConfigError("AUTH_JWT_SECRET", "signing secret must be set")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	tm := &TokenManager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   leeway,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Claims describes JWT payload.
type Claims struct {
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject the token was issued to.
func (c *Claims) SubjectID() string {
	return c.Subject
}

// TokenID returns the jti.
func (c *Claims) TokenID() string {
	return c.ID
}

// Expiry returns the expiration time or the zero time.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// AcceptedUntil is the first instant at which Verify rejects the claims as expired.
// Anything that must outlive a token, such as its revocation entry, lives until then.
func (tm *TokenManager) AcceptedUntil(c *Claims) time.Time {
	return c.Expiry().Add(tm.leeway)
}

// Issue builds and signs a token of the given type valid for ttl.
func (tm *TokenManager) Issue(subjectID string, typ domain.TokenType, ttl time.Duration) (string, *Claims, error) {
	return tm.IssueUntil(subjectID, typ, tm.now().Add(ttl))
}

// IssueUntil builds and signs a token that expires at a fixed instant.
func (tm *TokenManager) IssueUntil(subjectID string, typ domain.TokenType, expiresAt time.Time) (string, *Claims, error) {
	if subjectID == "" {
		return "", nil, errors.New("subject id is required")
	}
	if !typ.Valid() {
		return "", nil, errors.New("unknown token type")
	}

	now := tm.now()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", nil, err
	}
	return tokenString, claims, nil
}

// Verify checks signature, expiry, issuer and audience and returns the claims.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, true)
}

// Inspect is Verify without the expiry check. Logout uses it to find the jtis of
// credentials it is about to revoke.
func (tm *TokenManager) Inspect(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, false)
}

func (tm *TokenManager) parse(tokenStr string, checkExpiry bool) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithLeeway(tm.leeway),
	}
	if checkExpiry {
		opts = append(opts,
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(tm.issuer),
			jwt.WithAudience(tm.audience),
		)
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" || claims.ID == "" || !claims.Type.Valid() {
		return nil, ErrTokenMalformed
	}
	if !checkExpiry && (claims.Issuer != tm.issuer || !audienceContains(claims.Audience, tm.audience)) {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, ErrInvalidSignature):
		return ErrInvalidSignature
	default:
		return ErrTokenMalformed
	}
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
