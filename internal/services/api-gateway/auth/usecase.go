package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/outbox"
	"github.com/NordCoder/Taskly/internal/domain/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrEmailNotVerified   = errors.New("email is not verified")
	ErrEmailExists        = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidName        = errors.New("name is required")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	DefaultVerifyTTL = 24 * time.Hour
	DefaultResetTTL  = time.Hour

	oneShotTokenBytes = 32
	dummyPassword     = "timing-equaliser"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	Codec   *authtoken.Codec
	Lockout user.LockoutPolicy

	VerifyTTL time.Duration
	ResetTTL  time.Duration
	// BaseURL prefixes the links sent by email.
	BaseURL string
	// SkipEmailVerification lets unverified accounts sign in.
	SkipEmailVerification bool
	// DevMode echoes one-shot links in responses.
	DevMode bool

	Logger *zap.Logger
	Now    func() time.Time
}

type Usecase struct {
	users  user.Repo
	outbox outbox.Repository
	tx     Transactor
	hasher Hasher
	cfg    Config
	log    *zap.Logger

	dummyHash string
}

func NewUseCase(users user.Repo, ob outbox.Repository, tx Transactor, hasher Hasher, cfg Config) (*Usecase, error) {
	if cfg.Codec == nil {
		return nil, errors.New("auth usecase: codec is required")
	}
	if cfg.Lockout.Threshold == 0 && len(cfg.Lockout.Steps) == 0 {
		cfg.Lockout = user.DefaultLockoutPolicy()
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = DefaultVerifyTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Usecase{
		users:     users,
		outbox:    ob,
		tx:        tx,
		hasher:    hasher,
		cfg:       cfg,
		log:       log.With(zap.String("component", "auth.usecase")),
		dummyHash: dummy,
	}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type SignInResult struct {
	User  *user.User
	Token string
}

// SignIn checks credentials against the stored user and its lockout state
// and issues a session token on success.
func (u *Usecase) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = normalizeEmail(email)
	now := u.cfg.Now()

	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if rec == nil || rec.PasswordHash == "" {
		u.hasher.Compare(u.dummyHash, password)
		u.emit(ctx, outbox.AuthEventPayload{Type: outbox.EventSignInFailed, Email: email, At: now, Detail: "unknown_account"})
		return nil, ErrInvalidCredentials
	}

	if rec.LockedAt(now) {
		u.emit(ctx, outbox.AuthEventPayload{Type: outbox.EventSignInFailed, UserID: rec.ID, Email: rec.Email, At: now, Detail: "locked"})
		return nil, ErrAccountLocked
	}

	if !u.hasher.Compare(rec.PasswordHash, password) {
		err := u.tx.WithTx(ctx, func(ctx context.Context) error {
			st, err := u.users.RecordLoginFailure(ctx, rec.ID, u.cfg.Lockout, now)
			if err != nil {
				return err
			}
			if err := u.enqueueEvent(ctx, outbox.AuthEventPayload{
				Type: outbox.EventSignInFailed, UserID: rec.ID, Email: rec.Email, At: now,
				Detail: fmt.Sprintf("bad_password attempts=%d", st.FailedLoginAttempts),
			}); err != nil {
				return err
			}
			if st.LockedUntil != nil && st.LockedUntil.After(now) {
				u.log.Warn("account locked",
					zap.String("user_id", rec.ID),
					zap.Int("attempts", st.FailedLoginAttempts),
					zap.Time("locked_until", *st.LockedUntil))
				return u.enqueueEvent(ctx, outbox.AuthEventPayload{
					Type: outbox.EventAccountLocked, UserID: rec.ID, Email: rec.Email, At: now,
					Detail: "until=" + st.LockedUntil.UTC().Format(time.RFC3339),
				})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("record login failure: %w", err)
		}
		return nil, ErrInvalidCredentials
	}

	if !rec.EmailVerified && !u.cfg.SkipEmailVerification {
		return nil, ErrEmailNotVerified
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.RecordLoginSuccess(ctx, rec.ID, now); err != nil {
			return err
		}
		return u.enqueueEvent(ctx, outbox.AuthEventPayload{Type: outbox.EventSignIn, UserID: rec.ID, Email: rec.Email, At: now})
	})
	if err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}
	rec.FailedLoginAttempts = 0
	rec.LockedUntil = nil
	rec.LastLoginAt = &now

	token, err := u.cfg.Codec.Issue(rec.Subject())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &SignInResult{User: rec, Token: token}, nil
}

type SignUpInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

type SignUpResult struct {
	User *user.User
	// VerificationURL is only set in dev mode.
	VerificationURL string
}

func (u *Usecase) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := u.cfg.Now()
	newUser := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         authtoken.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var link string
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Create(ctx, newUser); err != nil {
			return err
		}
		l, err := u.issueVerification(ctx, newUser, now)
		if err != nil {
			return err
		}
		link = l
		return u.enqueueEvent(ctx, outbox.AuthEventPayload{Type: outbox.EventSignUp, UserID: newUser.ID, Email: email, At: now})
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return &SignUpResult{User: newUser, VerificationURL: u.devLink(link)}, nil
}

// SendVerification stores a fresh verification token and queues the email.
// Unknown addresses succeed silently. The returned link is only set in dev mode.
func (u *Usecase) SendVerification(ctx context.Context, email string, resend bool) (string, error) {
	email = normalizeEmail(email)
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}
	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if rec.EmailVerified && !resend {
		return "", ErrAlreadyVerified
	}

	var link string
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := u.issueVerification(ctx, rec, u.cfg.Now())
		link = l
		return err
	})
	if err != nil {
		return "", fmt.Errorf("send verification: %w", err)
	}
	return u.devLink(link), nil
}

func (u *Usecase) VerifyEmail(ctx context.Context, rawToken string) (*user.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	now := u.cfg.Now()

	var verified *user.User
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := u.users.ConsumeEmailVerifyToken(ctx, authtoken.HashToken(rawToken), now)
		if err != nil {
			return err
		}
		verified = rec
		return u.enqueueEvent(ctx, outbox.AuthEventPayload{Type: outbox.EventEmailVerified, UserID: rec.ID, Email: rec.Email, At: now})
	})
	if err != nil {
		if errors.Is(err, user.ErrTokenInvalid) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("verify email: %w", err)
	}
	return verified, nil
}

// RequestPasswordReset queues a reset link for a known address. Unknown
// addresses succeed silently. The returned link is only set in dev mode.
func (u *Usecase) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}
	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	raw, err := authtoken.GenerateRawToken(oneShotTokenBytes)
	if err != nil {
		return "", fmt.Errorf("gen reset token: %w", err)
	}
	now := u.cfg.Now()
	link := u.link("/auth/reset-password", raw)

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.SetPasswordResetToken(ctx, rec.ID, authtoken.HashToken(raw), now.Add(u.cfg.ResetTTL)); err != nil {
			return err
		}
		return u.enqueueJSON(ctx, outbox.KindPasswordResetEmail, outbox.EmailPayload{
			UserID: rec.ID, To: rec.Email, Name: rec.Name, URL: link,
		})
	})
	if err != nil {
		return "", fmt.Errorf("request password reset: %w", err)
	}
	return u.devLink(link), nil
}

func (u *Usecase) ResetPassword(ctx context.Context, rawToken, newPassword, confirm string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidToken
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := u.cfg.Now()

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := u.users.ConsumePasswordResetToken(ctx, authtoken.HashToken(rawToken), hash, now)
		if err != nil {
			return err
		}
		return u.enqueueEvent(ctx, outbox.AuthEventPayload{Type: outbox.EventPasswordReset, UserID: rec.ID, Email: rec.Email, At: now})
	})
	if err != nil {
		if errors.Is(err, user.ErrTokenInvalid) {
			return ErrInvalidToken
		}
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (u *Usecase) Me(ctx context.Context, userID string) (*user.User, error) {
	return u.users.GetByID(ctx, userID)
}

func (u *Usecase) issueVerification(ctx context.Context, rec *user.User, now time.Time) (string, error) {
	raw, err := authtoken.GenerateRawToken(oneShotTokenBytes)
	if err != nil {
		return "", fmt.Errorf("gen verify token: %w", err)
	}
	if err := u.users.SetEmailVerifyToken(ctx, rec.ID, authtoken.HashToken(raw), now.Add(u.cfg.VerifyTTL)); err != nil {
		return "", err
	}
	link := u.link("/auth/verify-email", raw)
	if err := u.enqueueJSON(ctx, outbox.KindVerificationEmail, outbox.EmailPayload{
		UserID: rec.ID, To: rec.Email, Name: rec.Name, URL: link,
	}); err != nil {
		return "", err
	}
	return link, nil
}

func (u *Usecase) link(path, raw string) string {
	return u.cfg.BaseURL + path + "?token=" + url.QueryEscape(raw)
}

func (u *Usecase) devLink(link string) string {
	if u.cfg.DevMode {
		return link
	}
	return ""
}

func (u *Usecase) enqueueEvent(ctx context.Context, e outbox.AuthEventPayload) error {
	return u.enqueueJSON(ctx, outbox.KindAuthEvent, e)
}

// emit queues an audit event outside of any write. Failures are logged
// and never change the sign-in outcome.
func (u *Usecase) emit(ctx context.Context, e outbox.AuthEventPayload) {
	if err := u.enqueueEvent(ctx, e); err != nil {
		u.log.Error("enqueue auth event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func (u *Usecase) enqueueJSON(ctx context.Context, kind outbox.Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	return u.outbox.Enqueue(ctx, uuid.NewString(), kind, data)
}
