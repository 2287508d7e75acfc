package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	authtoken "github.com/NordCoder/Taskly/internal/auth"
	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

type Server struct {
	log         *zap.Logger
	uc          *Usecase
	authn       *authtoken.Authenticator
	cookies     *authtoken.CookieTransport
	limiter     ratelimit.Limiter
	signInLimit ratelimit.MiddlewareConfig
}

type Opts struct {
	Logger        *zap.Logger
	Authenticator *authtoken.Authenticator
	Cookies       *authtoken.CookieTransport
	// Limiter guards sign-in; nil disables rate limiting.
	Limiter     ratelimit.Limiter
	SignInLimit ratelimit.MiddlewareConfig
}

func NewServer(uc *Usecase, o Opts) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if o.SignInLimit.Name == "" {
		o.SignInLimit.Name = "signin"
	}
	return &Server{
		log:         log.With(zap.String("component", "auth.http")),
		uc:          uc,
		authn:       o.Authenticator,
		cookies:     o.Cookies,
		limiter:     o.Limiter,
		signInLimit: o.SignInLimit,
	}
}

// Register mounts the auth routes under /v1/auth.
func (s *Server) Register(r *mux.Router) {
	sr := r.PathPrefix("/v1/auth").Subrouter()

	var signIn http.Handler = http.HandlerFunc(s.SignIn)
	if s.limiter != nil && s.signInLimit.Limit > 0 {
		signIn = ratelimit.Middleware(s.limiter, s.signInLimit, s.log)(signIn)
	}
	sr.Handle("/sign-in", signIn).Methods(http.MethodPost)
	sr.HandleFunc("/sign-up", s.SignUp).Methods(http.MethodPost)
	sr.HandleFunc("/sign-out", s.SignOut).Methods(http.MethodPost)
	sr.HandleFunc("/send-verification", s.SendVerification).Methods(http.MethodPost)
	sr.HandleFunc("/verify-email", s.VerifyEmail).Methods(http.MethodGet)
	sr.HandleFunc("/request-password-reset", s.RequestPasswordReset).Methods(http.MethodPost)
	sr.HandleFunc("/reset-password", s.ResetPassword).Methods(http.MethodPost)
	sr.Handle("/me", RequireAuth(s.authn)(http.HandlerFunc(s.Me))).Methods(http.MethodGet)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.log.Debug("auth.signin", zap.String("email", normalizeEmail(req.Email)))

	res, err := s.uc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.mapErr(w, "auth.signin", err)
		return
	}
	s.log.Info("auth.signin", zap.String("user_id", res.User.ID))

	s.cookies.Attach(w, res.Token)
	WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Sign in successful",
		User:    res.User,
		Token:   res.Token,
	})
}

type signUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		WriteError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	s.log.Debug("auth.signup", zap.String("email", normalizeEmail(req.Email)))

	res, err := s.uc.SignUp(r.Context(), SignUpInput(req))
	if err != nil {
		s.mapErr(w, "auth.signup", err)
		return
	}
	s.log.Info("auth.signup", zap.String("user_id", res.User.ID))
	WriteJSON(w, http.StatusCreated, Response{
		Success:         true,
		Message:         "Account created. Please verify your email.",
		User:            res.User,
		VerificationURL: res.VerificationURL,
	})
}

func (s *Server) SignOut(w http.ResponseWriter, _ *http.Request) {
	s.cookies.Clear(w)
	s.log.Info("auth.signout")
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Sign out successful"})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := authtoken.ClaimsFromContext(r.Context())
	u, err := s.uc.Me(r.Context(), claims.UserID)
	if err != nil {
		s.mapErr(w, "auth.me", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, User: u})
}

type sendVerificationRequest struct {
	Email  string `json:"email"`
	Resend bool   `json:"resend"`
}

func (s *Server) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req sendVerificationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}
	link, err := s.uc.SendVerification(r.Context(), req.Email, req.Resend)
	if err != nil {
		s.mapErr(w, "auth.send_verification", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{
		Success:         true,
		Message:         "If an account with this email exists, a verification email has been sent.",
		VerificationURL: link,
	})
}

func (s *Server) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		WriteError(w, http.StatusBadRequest, "Verification token is required")
		return
	}
	u, err := s.uc.VerifyEmail(r.Context(), token)
	if err != nil {
		s.mapErr(w, "auth.verify_email", err)
		return
	}
	s.log.Info("auth.verify_email", zap.String("user_id", u.ID))
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Email verified successfully", User: u})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}
	link, err := s.uc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		s.mapErr(w, "auth.request_password_reset", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{
		Success:  true,
		Message:  "If an account with this email exists, a password reset link has been sent.",
		ResetURL: link,
	})
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Token == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		WriteError(w, http.StatusBadRequest, "Token, new password, and password confirmation are required")
		return
	}
	if err := s.uc.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		s.mapErr(w, "auth.reset_password", err)
		return
	}
	s.log.Info("auth.reset_password")
	WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Password reset successfully! You can now login with your new password.",
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) mapErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, ErrAccountLocked):
		WriteError(w, http.StatusLocked, "Account is temporarily locked. Please try again later.")
	case errors.Is(err, ErrEmailNotVerified):
		WriteError(w, http.StatusForbidden, "Please verify your email before signing in")
	case errors.Is(err, ErrEmailExists):
		WriteError(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrAlreadyVerified):
		WriteError(w, http.StatusBadRequest, Capitalize(err.Error()))
	case errors.Is(err, ErrInvalidToken):
		WriteError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, user.ErrNotFound):
		WriteError(w, http.StatusNotFound, "User not found")
	default:
		s.log.Error(op, zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Capitalize upper-cases the first ASCII letter of an error message for display.
func Capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
