package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/auth"
	"github.com/spec-kit/reeltap/internal/domain"
	"github.com/spec-kit/reeltap/internal/events"
	"github.com/spec-kit/reeltap/internal/observability"
	"github.com/spec-kit/reeltap/internal/repository"
	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

// SessionConfig tunes token lifetimes and revocation behavior.
type SessionConfig struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	BcryptCost        int
	RotateRefresh     bool
	RevocationTimeout time.Duration
}

// Session is the credential pair handed to the browser. RefreshToken is empty when a
// refresh did not rotate it.
type Session struct {
	User             *domain.User
	AccessToken      string
	AccessTokenID    string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Users       repository.UserRepository
	Revocations repository.RevocationStore
	Tokens      *auth.TokenManager
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// AuthService creates, renews and invalidates sessions. It is the only writer of the
// revocation store.
type AuthService struct {
	users       repository.UserRepository
	revocations repository.RevocationStore
	tokens      *auth.TokenManager
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	validate    *validator.Validate
	cfg         SessionConfig
	dummyHash   string
	now         func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg SessionConfig, deps AuthDependencies) (*AuthService, error) {
	if cfg.RevocationTimeout <= 0 {
		cfg.RevocationTimeout = 2 * time.Second
	}
	dummy, err := auth.DummyHash(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.Users,
		revocations: deps.Revocations,
		tokens:      deps.Tokens,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		validate:    newValidator(),
		cfg:         cfg,
		dummyHash:   dummy,
		now:         time.Now,
	}, nil
}

// Register creates an account and starts a session for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	in := registration{
		Name:     strings.TrimSpace(name),
		Email:    normalizeEmail(email),
		Password: password,
	}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, emailTaken()
		}
		return nil, apperrors.NewInternalError(err)
	}

	session, err := s.startSession(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewEvent(events.EventUserRegistered, user.ID, nil))
	s.publishSession(ctx, events.EventSessionStarted, session, "")
	return session, nil
}

// Login verifies a credential and starts a session. Unknown email and wrong password
// cost the same bcrypt comparison and produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	in := credentials{Email: normalizeEmail(email), Password: password}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		_ = auth.ComparePassword(s.dummyHash, in.Password)
		return nil, apperrors.NewInvalidCredentials()
	case err != nil:
		return nil, apperrors.NewInternalError(err)
	}

	if err := auth.ComparePassword(user.PasswordHash, in.Password); err != nil {
		return nil, apperrors.NewInvalidCredentials()
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewInvalidCredentials()
	}

	session, err := s.startSession(user)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, events.EventSessionStarted, session, "")
	return session, nil
}

// Refresh issues a new access token for a valid, unrevoked refresh token. With rotation
// enabled the presented refresh token is revoked and replaced by one that keeps the
// original expiry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperrors.NewUnauthorized("missing refresh token")
	}
	claims, err := s.verify(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, claims.SubjectID())
	if err != nil {
		return nil, err
	}

	session := &Session{User: user}
	if s.cfg.RotateRefresh {
		if err := s.revoke(ctx, claims); err != nil {
			return nil, err
		}
		token, issued, err := s.tokens.IssueUntil(user.ID, domain.TokenTypeRefresh, claims.Expiry())
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		session.RefreshToken = token
		session.RefreshTokenID = issued.TokenID()
		session.RefreshExpiresAt = issued.Expiry()
	}

	access, issued, err := s.tokens.Issue(user.ID, domain.TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	session.AccessToken = access
	session.AccessTokenID = issued.TokenID()
	session.AccessExpiresAt = issued.Expiry()

	rotatedFrom := ""
	if s.cfg.RotateRefresh {
		rotatedFrom = claims.TokenID()
	}
	s.publishSession(ctx, events.EventSessionRefreshed, session, rotatedFrom)
	return session, nil
}

// Authenticate validates an access token: signature, expiry, type and revocation.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	if accessToken == "" {
		return nil, apperrors.NewUnauthorized("missing access token")
	}
	return s.verify(ctx, accessToken, domain.TokenTypeAccess)
}

// CurrentUser loads the subject of an authenticated request. A subject that no longer
// exists is not authenticated.
func (s *AuthService) CurrentUser(ctx context.Context, subjectID string) (*domain.User, error) {
	return s.activeUser(ctx, subjectID)
}

// Me resolves the user behind an access token.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, claims.SubjectID())
}

// Logout revokes the jtis of whichever presented tokens still carry our signature and
// would still pass Verify. Unknown, forged or already revoked tokens are skipped, so a
// repeated logout succeeds the same way.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var (
		revoked   []string
		subjectID string
	)
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		claims, err := s.tokens.Inspect(token)
		if err != nil {
			continue
		}
		if !s.now().Before(s.tokens.AcceptedUntil(claims)) {
			continue
		}
		if err := s.revoke(ctx, claims); err != nil {
			return err
		}
		revoked = append(revoked, claims.TokenID())
		subjectID = claims.SubjectID()
	}

	if len(revoked) > 0 {
		s.publish(ctx, events.NewEvent(events.EventSessionRevoked, subjectID, events.RevokedPayload{TokenIDs: revoked}))
	}
	return nil
}

func (s *AuthService) startSession(user *domain.User) (*Session, error) {
	access, accessClaims, err := s.tokens.Issue(user.ID, domain.TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refresh, refreshClaims, err := s.tokens.Issue(user.ID, domain.TokenTypeRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{
		User:             user,
		AccessToken:      access,
		AccessTokenID:    accessClaims.TokenID(),
		AccessExpiresAt:  accessClaims.Expiry(),
		RefreshToken:     refresh,
		RefreshTokenID:   refreshClaims.TokenID(),
		RefreshExpiresAt: refreshClaims.Expiry(),
	}, nil
}

// verify runs the codec, checks the token type and then the revocation store.
func (s *AuthService) verify(ctx context.Context, token string, want domain.TokenType) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid or expired token", err)
	}
	if claims.Type != want {
		return nil, apperrors.NewUnauthorized("invalid or expired token")
	}
	if err := s.ensureNotRevoked(ctx, claims.TokenID()); err != nil {
		return nil, err
	}
	return claims, nil
}

// ensureNotRevoked is the single revocation check. A store that cannot answer within
// the timeout denies the request with 503, never 401 and never a pass.
func (s *AuthService) ensureNotRevoked(ctx context.Context, jti string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.RevocationTimeout)
	defer cancel()

	revoked, err := s.revocations.IsRevoked(lookupCtx, jti)
	if err != nil {
		s.metrics.RecordRevocationError("lookup")
		s.logger.Error("revocation lookup failed", zap.String("jti", jti), zap.Error(err))
		return revocationUnavailable(err)
	}
	if revoked {
		return apperrors.NewUnauthorized("token revoked")
	}
	return nil
}

// revoke writes on a context detached from the caller so a disconnect never leaves a
// logout half applied.
func (s *AuthService) revoke(ctx context.Context, claims *auth.Claims) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RevocationTimeout)
	defer cancel()

	entry := domain.RevocationEntry{
		JTI:       claims.TokenID(),
		SubjectID: claims.SubjectID(),
		ExpiresAt: s.tokens.AcceptedUntil(claims),
		CreatedAt: s.now().UTC(),
	}
	if err := s.revocations.Revoke(writeCtx, entry); err != nil {
		s.metrics.RecordRevocationError("revoke")
		s.logger.Error("revocation write failed", zap.String("jti", entry.JTI), zap.Error(err))
		return revocationUnavailable(err)
	}
	return nil
}

func (s *AuthService) activeUser(ctx context.Context, subjectID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnauthorized("unknown subject")
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	return user, nil
}

func (s *AuthService) publishSession(ctx context.Context, eventType events.EventType, session *Session, rotatedFrom string) {
	payload := events.SessionPayload{
		AccessTokenID:  session.AccessTokenID,
		RefreshTokenID: session.RefreshTokenID,
		RotatedFrom:    rotatedFrom,
	}
	s.publish(ctx, events.NewEvent(eventType, session.User.ID, payload))
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func emailTaken() error {
	return apperrors.NewConflict("email already registered", map[string]any{"email": "already registered"})
}

func revocationUnavailable(err error) error {
	return apperrors.NewServiceUnavailable(apperrors.CodeRevocationUnavailable, "session store unavailable", err)
}
