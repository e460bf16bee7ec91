package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mymessenger/backend/internal/audit"
	auditdomain "mymessenger/backend/internal/audit/domain"
	identitydomain "mymessenger/backend/internal/identity/domain"
	identityrepo "mymessenger/backend/internal/identity/repository"
	policyengine "mymessenger/backend/internal/policy/engine"
	"mymessenger/backend/internal/security"
	sessiondomain "mymessenger/backend/internal/session/domain"
	telemetrydomain "mymessenger/backend/internal/telemetry/domain"
)

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
	SetTOTPSecret(ctx context.Context, id, secret string, at time.Time) (bool, error)
	EnableTOTP(ctx context.Context, id, secret string, at time.Time) (bool, error)
	DisableTOTP(ctx context.Context, id string, at time.Time) (bool, error)
}

// SessionStore is the subset of session.Store used by the auth service.
type SessionStore interface {
	Create(ctx context.Context, identityID, refreshSecret, deviceInfo, ip string, now time.Time) (*sessiondomain.Session, error)
	FindLive(ctx context.Context, refreshSecret string, now time.Time) (*sessiondomain.Session, error)
	Rotate(ctx context.Context, oldSecret, newSecret, deviceInfo, ip string, now time.Time) (*sessiondomain.Session, error)
	Delete(ctx context.Context, refreshSecret string) (bool, error)
	DeleteByID(ctx context.Context, identityID, sessionID string) (bool, error)
	DeleteAll(ctx context.Context, identityID string) (int64, error)
	ListLive(ctx context.Context, identityID string, now time.Time) ([]*sessiondomain.Session, error)
}

// PasswordHasher derives and checks password credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, credential string) bool
}

// TokenCodec issues and verifies access tokens.
type TokenCodec interface {
	Issue(identityID string, now time.Time) (string, time.Time, error)
	Verify(token string, now time.Time) (string, error)
}

// TOTPEngine generates and checks time-based one-time codes.
type TOTPEngine interface {
	GenerateSecret() (string, error)
	ProvisioningURI(secret, accountLabel string) (string, error)
	EnrollmentQR(uri string) (string, error)
	Verify(secret, code string, now time.Time) bool
}

// AuditTrail reads back recorded audit events.
type AuditTrail interface {
	Recent(ctx context.Context, identityID string, limit int32) ([]*auditdomain.AuditLog, error)
}

// LoginInput carries the credentials and client context of a login attempt.
// TOTPCode is only consulted when the login policy requires a second factor.
type LoginInput struct {
	Email      string
	Password   string
	TOTPCode   string
	DeviceInfo string
	IP         string
}

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	Identity *identitydomain.Identity
	TokenPair
}

// TokenPair is an access token together with the refresh secret of its session.
// RefreshToken is the raw secret; it is returned once and never stored.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// Options holds optional collaborators of AuthService.
type Options struct {
	// Policy decides whether a login needs a second factor. Nil falls back to
	// requiring one whenever the identity has 2FA enabled and RequireTOTP is set.
	Policy      policyengine.Evaluator
	RequireTOTP bool
	Audit       audit.AuditLogger
	AuditTrail  AuditTrail
	Logger      *zap.Logger
	Now         func() time.Time
}

// AuthService implements registration, login, refresh-token rotation, logout and 2FA.
type AuthService struct {
	identities IdentityRepo
	sessions   SessionStore
	hasher     PasswordHasher
	tokens     TokenCodec
	totp       TOTPEngine

	policy      policyengine.Evaluator
	requireTOTP bool
	audit       audit.AuditLogger
	auditTrail  AuditTrail
	log         *zap.Logger
	now         func() time.Time
	metrics     instruments

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	identities IdentityRepo,
	sessions SessionStore,
	hasher PasswordHasher,
	tokens TokenCodec,
	totp TOTPEngine,
	opts Options,
) *AuthService {
	s := &AuthService{
		identities:  identities,
		sessions:    sessions,
		hasher:      hasher,
		tokens:      tokens,
		totp:        totp,
		policy:      opts.Policy,
		requireTOTP: opts.RequireTOTP,
		audit:       opts.Audit,
		auditTrail:  opts.AuditTrail,
		log:         opts.Logger,
		now:         opts.Now,
		metrics:     newInstruments(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates an active identity with a hashed credential. It does not
// create a session; callers log in afterwards.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (_ *identitydomain.Identity, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ident := &identitydomain.Identity{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Name:         name,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ident.Validate(); err != nil {
		return nil, invalidInput(err.Error())
	}
	// The unique constraint is authoritative; a pre-check would race.
	if err := s.identities.Create(ctx, ident); err != nil {
		if errors.Is(err, identityrepo.ErrEmailTaken) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	s.record(ctx, audit.Event{IdentityID: ident.ID, Action: telemetrydomain.EventRegister})
	return ident, nil
}

// Login authenticates email and password, applies the second-factor policy,
// and opens a new session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() {
		s.metrics.logins.Add(ctx, 1, outcome(err))
		endSpan(span, err)
	}()

	email := strings.TrimSpace(in.Email)
	fail := func(identityID string, e *Error) (*LoginResult, error) {
		s.record(ctx, audit.Event{
			IdentityID: identityID,
			Action:     telemetrydomain.EventLoginFailure,
			IP:         in.IP,
			DeviceInfo: in.DeviceInfo,
			Metadata:   map[string]string{"reason": string(e.Code)},
		})
		return nil, e
	}
	if email == "" || in.Password == "" {
		return fail("", ErrInvalidCredentials)
	}
	ident, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		// Spend the same hashing work as a real check so timing does not reveal unknown emails.
		s.hasher.Verify(in.Password, s.dummyCredential())
		return fail("", ErrInvalidCredentials)
	}
	if !s.hasher.Verify(in.Password, ident.PasswordHash) {
		return fail(ident.ID, ErrInvalidCredentials)
	}
	if !ident.Active {
		return fail(ident.ID, ErrAccountInactive)
	}
	now := s.now()
	if e := s.checkSecondFactor(ctx, ident, in, now); e != nil {
		return fail(ident.ID, e)
	}

	pair, err := s.openSession(ctx, ident.ID, in.DeviceInfo, in.IP, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.id", ident.ID))
	s.record(ctx, audit.Event{
		IdentityID: ident.ID,
		SessionID:  pair.SessionID,
		Action:     telemetrydomain.EventLoginSuccess,
		IP:         in.IP,
		DeviceInfo: in.DeviceInfo,
	})
	return &LoginResult{Identity: ident, TokenPair: *pair}, nil
}

func (s *AuthService) checkSecondFactor(ctx context.Context, ident *identitydomain.Identity, in LoginInput, now time.Time) *Error {
	required := ident.TOTPEnabled && s.requireTOTP
	if s.policy != nil {
		var err error
		required, err = s.policy.SecondFactorRequired(ctx, policyengine.LoginInput{
			IdentityID:  ident.ID,
			TOTPEnabled: ident.TOTPEnabled,
			RequireTOTP: s.requireTOTP,
			DeviceInfo:  in.DeviceInfo,
			IPAddress:   in.IP,
		})
		if err != nil {
			s.log.Warn("login policy evaluation failed; requiring second factor",
				zap.String("identity_id", ident.ID), zap.Error(err))
			required = true
		}
	}
	if !required {
		return nil
	}
	code := strings.TrimSpace(in.TOTPCode)
	if code == "" {
		return ErrTwoFactorRequired
	}
	if ident.TOTPSecret == nil || !ident.TOTPEnabled {
		// Policy demanded a factor the identity cannot supply.
		return ErrTwoFactorRequired
	}
	if !s.totp.Verify(*ident.TOTPSecret, code, now) {
		return ErrWrongCode
	}
	return nil
}

func (s *AuthService) openSession(ctx context.Context, identityID, deviceInfo, ip string, now time.Time) (*TokenPair, error) {
	secret, err := security.GenerateRefreshSecret()
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.Issue(identityID, now)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, identityID, secret, deviceInfo, ip, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: sess.ExpiresAt,
		SessionID:        sess.ID,
	}, nil
}

// Refresh rotates the session bound to refreshSecret and issues a new access
// token. The old secret stops working; of concurrent refreshes with the same
// secret exactly one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshSecret, deviceInfo, ip string) (_ *TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() {
		s.metrics.refreshes.Add(ctx, 1, outcome(err))
		endSpan(span, err)
	}()

	if refreshSecret == "" {
		return nil, ErrInvalidToken
	}
	newSecret, err := security.GenerateRefreshSecret()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess, err := s.sessions.Rotate(ctx, refreshSecret, newSecret, deviceInfo, ip, now)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		s.record(ctx, audit.Event{
			Action:     telemetrydomain.EventRefreshFailure,
			IP:         ip,
			DeviceInfo: deviceInfo,
		})
		return nil, ErrInvalidToken
	}
	ident, err := s.identities.GetByID(ctx, sess.IdentityID)
	if err != nil {
		return nil, err
	}
	if ident == nil || !ident.Active {
		if _, err := s.sessions.DeleteByID(ctx, sess.IdentityID, sess.ID); err != nil {
			s.log.Warn("refresh: failed to drop session of unusable identity",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	access, accessExp, err := s.tokens.Issue(sess.IdentityID, now)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{
		IdentityID: sess.IdentityID,
		SessionID:  sess.ID,
		Action:     telemetrydomain.EventRefresh,
		IP:         ip,
		DeviceInfo: deviceInfo,
	})
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newSecret,
		RefreshExpiresAt: sess.ExpiresAt,
		SessionID:        sess.ID,
	}, nil
}

// Logout deletes the session bound to refreshSecret. Unknown or already
// revoked secrets are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshSecret string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	if refreshSecret == "" {
		return nil
	}
	sess, err := s.sessions.FindLive(ctx, refreshSecret, s.now())
	if err != nil {
		return err
	}
	removed, err := s.sessions.Delete(ctx, refreshSecret)
	if err != nil {
		return err
	}
	if removed && sess != nil {
		s.record(ctx, audit.Event{IdentityID: sess.IdentityID, SessionID: sess.ID, Action: telemetrydomain.EventLogout})
	}
	return nil
}

// LogoutAll deletes every session of identityID and returns how many were removed.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.LogoutAll")
	defer func() { endSpan(span, err) }()

	n, err := s.sessions.DeleteAll(ctx, identityID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, audit.Event{
		IdentityID: identityID,
		Action:     telemetrydomain.EventLogoutAll,
		Metadata:   map[string]string{"count": strconv.FormatInt(n, 10)},
	})
	return n, nil
}

// VerifyAccessToken returns the identity id carried by a valid access token.
// It never touches storage.
func (s *AuthService) VerifyAccessToken(token string) (string, error) {
	id, err := s.tokens.Verify(token, s.now())
	if err != nil {
		return "", ErrInvalidToken
	}
	return id, nil
}

// GetIdentity returns the identity with id, or ErrNotFound.
func (s *AuthService) GetIdentity(ctx context.Context, id string) (*identitydomain.Identity, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	ident, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrNotFound
	}
	return ident, nil
}

// ListSessions returns the live sessions of identityID, most recently used first.
func (s *AuthService) ListSessions(ctx context.Context, identityID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListLive(ctx, identityID, s.now())
}

// RevokeSession deletes one session of identityID. Sessions of other identities
// and ids that are not UUIDs are reported as ErrNotFound.
func (s *AuthService) RevokeSession(ctx context.Context, identityID, sessionID string) error {
	if !isUUID(sessionID) {
		return ErrNotFound
	}
	removed, err := s.sessions.DeleteByID(ctx, identityID, sessionID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.record(ctx, audit.Event{IdentityID: identityID, SessionID: sessionID, Action: telemetrydomain.EventSessionRevoked})
	return nil
}

// RecentActivity returns the newest audit entries of identityID.
func (s *AuthService) RecentActivity(ctx context.Context, identityID string, limit int32) ([]*auditdomain.AuditLog, error) {
	if s.auditTrail == nil {
		return nil, nil
	}
	return s.auditTrail.Recent(ctx, identityID, limit)
}

func (s *AuthService) record(ctx context.Context, e audit.Event) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, e)
	}
}

func (s *AuthService) dummyCredential() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.log.Warn("dummy credential hash failed", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
