// Package auth implements username/password accounts: registration, login
// (issuing JWTs) and the default admin account created at startup.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	pkgauth "github.com/matiasleandrokruk/chatroute/pkg/auth"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password alike, so callers cannot probe which usernames exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUsernameTaken is returned by Register when the username already exists.
var ErrUsernameTaken = errors.New("username already registered")

// ErrInvalidInput is returned for usernames or passwords that fail validation.
var ErrInvalidInput = errors.New("invalid username or password")

// AdminUsername is the account seeded on startup.
const AdminUsername = "admin"

const maxUsernameLen = 64

// RegisterInput holds the data needed to create an account.
type RegisterInput struct {
	Username string
	Password string
}

// LoginInput holds the credentials for authentication.
type LoginInput struct {
	Username string
	Password string
}

// AuthResult is returned after a successful Register or Login.
//
//nolint:revive // stable domain name used across packages
type AuthResult struct {
	Token    string
	Username string
}

// AuthService defines the account operations.
//
//nolint:revive // stable public interface of the auth module
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Exists(ctx context.Context, username string) (bool, error)
	EnsureUser(ctx context.Context, username, password string) (bool, error)
}

// authService is the SQLite-backed implementation.
type authService struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuthService creates an AuthService backed by db. A nil logger disables
// auth event logging.
func NewAuthService(db *sql.DB, logger *zap.Logger) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{db: db, logger: logger.Named("auth")}
}

// Register creates an account and returns a token for it. The password is
// stored as a bcrypt hash only.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	username, err := validate(input.Username, input.Password)
	if err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.insertUser(ctx, username, hash); err != nil {
		return nil, err
	}

	token, err := pkgauth.GenerateJWT(username)
	if err != nil {
		s.logAuthFailure(username, "register", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	s.logAuthSuccess(username, "register")
	return &AuthResult{Token: token, Username: username}, nil
}

func (s *authService) insertUser(ctx context.Context, username, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_account (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`, username, hash, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Login verifies credentials and returns a token.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash FROM user_account WHERE username = ? LIMIT 1
	`, input.Username).Scan(&hash)
	if err != nil {
		reason := "user_not_found"
		if !errors.Is(err, sql.ErrNoRows) {
			reason = "query_error"
		}
		s.logAuthFailure(input.Username, "login", reason)
		return nil, ErrInvalidCredentials
	}

	if !pkgauth.VerifyPassword(hash, input.Password) {
		s.logAuthFailure(input.Username, "login", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	token, err := pkgauth.GenerateJWT(input.Username)
	if err != nil {
		s.logAuthFailure(input.Username, "login", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	s.logAuthSuccess(input.Username, "login")
	return &AuthResult{Token: token, Username: input.Username}, nil
}

// Exists reports whether username has an account.
func (s *authService) Exists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_account WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("auth: exists %q: %w", username, err)
	}
	return n > 0, nil
}

// EnsureUser creates username with password unless it already exists. It
// reports whether an account was created; an existing password is left alone.
func (s *authService) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	ok, err := s.Exists(ctx, username)
	if err != nil || ok {
		return false, err
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.insertUser(ctx, username, hash); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("seeded account", zap.String("username", username))
	return true, nil
}

// validate trims and checks a username/password pair. Usernames appear in
// URL paths, so '/' and whitespace are rejected.
func validate(username, password string) (string, error) {
	u := strings.TrimSpace(username)
	switch {
	case u == "", len(u) > maxUsernameLen:
		return "", fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
	case strings.ContainsAny(u, "/ \t\n?#"):
		return "", fmt.Errorf("%w: username contains reserved characters", ErrInvalidInput)
	case password == "":
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return u, nil
}

// isUniqueViolation checks for SQLite's "UNIQUE constraint failed" (or a
// primary key clash, which SQLite reports the same way).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *authService) logAuthSuccess(username, action string) {
	s.logger.Info("auth succeeded", zap.String("action", action), zap.String("username", username))
}

func (s *authService) logAuthFailure(username, action, reason string) {
	s.logger.Warn("auth failed",
		zap.String("action", action),
		zap.String("username", username),
		zap.String("reason", reason))
}
