// Package auth issues and verifies per-business bearer tokens. Every token
// carries the owning business id, which downstream layers use to scope data.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type AccountStore interface {
	CreateAccount(ctx context.Context, business domain.Business, user domain.UserAccount, settings domain.Settings) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}

// Notifier is told about password reset requests so an operator can follow
// up out of band. The flow never emails the requester directly.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, username string, userID string)
}

type LogNotifier struct{}

func (LogNotifier) PasswordResetRequested(_ context.Context, username string, userID string) {
	log.Printf("[auth] password reset requested for user %s (%s), notify an administrator", username, userID)
}

type Manager struct {
	accounts AccountStore
	notifier Notifier
	secret   []byte
	tokenTTL time.Duration
}

type businessClaims struct {
	jwtlib.RegisteredClaims
	UserID     string `json:"user_id"`
	BusinessID string `json:"business_id"`
}

// NewManager requires a non-empty signing secret. A zero tokenTTL falls
// back to 30 days; a negative TTL is honored as given, which mints tokens
// that are already expired.
func NewManager(secret string, tokenTTL time.Duration, accounts AccountStore, notifier Notifier) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if tokenTTL == 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}

	return &Manager{
		accounts: accounts,
		notifier: notifier,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}, nil
}

// Signup provisions a business, its first user, and empty settings in one
// step. It never returns a token; the caller signs in afterwards.
func (m *Manager) Signup(ctx context.Context, req domain.SignupRequest) (domain.SignupResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	businessName := strings.TrimSpace(req.BusinessName)
	if username == "" || len(username) < 3 {
		return domain.SignupResponse{}, fmt.Errorf("username must be at least 3 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.SignupResponse{}, fmt.Errorf("username must not contain spaces")
	}
	if len(req.Password) < 6 {
		return domain.SignupResponse{}, fmt.Errorf("password must be at least 6 characters")
	}
	if businessName == "" {
		return domain.SignupResponse{}, fmt.Errorf("business name is required")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.SignupResponse{}, fmt.Errorf("failed to hash password")
	}

	now := time.Now().UTC()
	business := domain.Business{
		ID:        xid.New("biz"),
		Name:      businessName,
		CreatedAt: now,
	}
	user := domain.UserAccount{
		ID:           xid.New("user"),
		Username:     username,
		PasswordHash: passwordHash,
		BusinessID:   business.ID,
		CreatedAt:    now,
	}
	settings := domain.Settings{
		ID:             xid.New("settings"),
		BusinessID:     business.ID,
		SetupCompleted: false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.accounts.CreateAccount(ctx, business, user, settings); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.SignupResponse{}, fmt.Errorf("%w: username already exists", store.ErrConflict)
		}
		return domain.SignupResponse{}, err
	}

	return domain.SignupResponse{
		Message:    "Account created successfully. Please sign in.",
		UserID:     user.ID,
		BusinessID: business.ID,
	}, nil
}

func (m *Manager) Signin(ctx context.Context, req domain.SigninRequest) (domain.SigninResponse, error) {
	user, err := m.accounts.GetUserByUsername(ctx, req.Username)
	if err != nil {
		// Same message as a wrong password so usernames cannot be probed.
		return domain.SigninResponse{}, errors.New("invalid credentials")
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.SigninResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(user, expiresAt)
	if err != nil {
		return domain.SigninResponse{}, err
	}

	return domain.SigninResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      user.ID,
		BusinessID:  user.BusinessID,
		Username:    user.Username,
	}, nil
}

// ForgotPassword responds identically whether or not the username exists.
func (m *Manager) ForgotPassword(ctx context.Context, username string) domain.ForgotPasswordResponse {
	user, err := m.accounts.GetUserByUsername(ctx, username)
	if err == nil {
		m.notifier.PasswordResetRequested(ctx, user.Username, user.ID)
	}
	return domain.ForgotPasswordResponse{
		Message: "If the account exists, an administrator has been notified to assist with the reset.",
	}
}

func (m *Manager) ParseToken(tokenStr string) (domain.Identity, error) {
	claims := &businessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Identity{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, errors.New("invalid token subject")
	}
	if claims.BusinessID == "" || claims.UserID == "" {
		return domain.Identity{}, errors.New("token missing business scope")
	}
	return domain.Identity{
		UserID:     claims.UserID,
		BusinessID: claims.BusinessID,
		Username:   sub,
	}, nil
}

func (m *Manager) sign(user *domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := businessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "shopledger",
		},
		UserID:     user.ID,
		BusinessID: user.BusinessID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
