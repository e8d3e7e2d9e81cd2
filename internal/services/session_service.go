package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// SessionRepository defines the interface for session database operations
type SessionRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	IssueSession(ctx context.Context, id, token string, expiresAt time.Time) error
	ClearSession(ctx context.Context, id string) error
	TouchActivity(ctx context.Context, id string) error
	CleanupExpiredSessions(ctx context.Context, olderThan time.Time) (int64, error)
}

// SessionConfig holds the session policy
type SessionConfig struct {
	Expiry         time.Duration
	MaxAge         time.Duration // Ceiling for the expired-session sweep
	TakeoverSecret string
	TakeoverExpiry time.Duration
}

// SessionStatus reports whether an account currently holds a live session
type SessionStatus struct {
	Active       bool
	AccountID    string
	LastActivity *time.Time
}

// SessionGrant is an issued session token with its expiry
type SessionGrant struct {
	Token     string
	ExpiresAt time.Time
}

// takeoverClaims is the payload of the short-lived token exchanged for a
// forced session replacement
type takeoverClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// SessionService enforces the single-active-session policy. An account has
// zero or one valid token at any instant; issuing a new token overwrites the
// prior one, which is itself the revocation mechanism.
type SessionService struct {
	repo   SessionRepository
	config SessionConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, config SessionConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		repo:   repo,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// HasActiveSession reports whether the account identified by email holds a
// live session token.
func (s *SessionService) HasActiveSession(ctx context.Context, email string) (*SessionStatus, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account for session check", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !account.HasActiveSession(time.Now()) {
		return &SessionStatus{AccountID: account.ID}, nil
	}

	return &SessionStatus{
		Active:       true,
		AccountID:    account.ID,
		LastActivity: account.LastActivity,
	}, nil
}

// IssueSession writes a fresh token into the single session slot. Any prior
// token stops validating the moment the write commits; if the write fails
// the prior token remains authoritative.
func (s *SessionService) IssueSession(ctx context.Context, accountID string) (*SessionGrant, error) {
	token, err := pkgauth.GenerateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	expiresAt := time.Now().Add(s.config.Expiry)

	if err := s.repo.IssueSession(ctx, accountID, token, expiresAt); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to persist session",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogSessionEvent("session_issued", accountID, nil)

	return &SessionGrant{Token: token, ExpiresAt: expiresAt}, nil
}

// Validate checks token equality and the logged-in flag. Expiry is enforced
// by HasActiveSession / the cleanup sweep, not retroactively here.
func (s *SessionService) Validate(ctx context.Context, accountID, token string) (bool, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, models.ErrInternalServer
	}

	if !account.IsLoggedIn || account.SessionToken == nil {
		return false, nil
	}
	if *account.SessionToken != token {
		return false, nil
	}
	if account.SessionExpiresAt != nil && time.Now().After(*account.SessionExpiresAt) {
		return false, nil
	}

	if err := s.repo.TouchActivity(ctx, accountID); err != nil {
		s.logger.Error("failed to touch session activity",
			slog.String("account_id", accountID),
			slog.Any("error", err))
	}

	return true, nil
}

// TerminateAll clears the session slot. With a single slot this is one
// write, not an enumeration of tokens.
func (s *SessionService) TerminateAll(ctx context.Context, accountID string) error {
	if err := s.repo.ClearSession(ctx, accountID); err != nil {
		s.logger.Error("failed to clear session",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogSessionEvent("sessions_terminated", accountID, nil)
	return nil
}

// CleanupExpiredSessions force-clears sessions whose last login is older
// than the configured ceiling. Idempotent: a second sweep with no new
// expirable sessions reports zero.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.MaxAge)

	cleaned, err := s.repo.CleanupExpiredSessions(ctx, cutoff)
	if err != nil {
		s.logger.Error("session cleanup failed", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if cleaned > 0 {
		s.audit.LogSessionEvent("session_cleanup", "", map[string]string{
			"cleaned_sessions": fmt.Sprintf("%d", cleaned),
		})
	}

	return cleaned, nil
}

// CreateTakeoverToken returns a short-lived token the client presents to
// confirm replacing an active session on another device. The two-phase flow
// avoids a race where two tabs both observe "no active session" and silently
// kick each other out.
func (s *SessionService) CreateTakeoverToken(accountID string) (string, error) {
	now := time.Now()
	claims := takeoverClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TakeoverExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.TakeoverSecret))
	if err != nil {
		s.logger.Error("failed to sign takeover token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	return signed, nil
}

// ConfirmTakeover exchanges a valid takeover token for a terminate-and-issue
// on the account it names.
func (s *SessionService) ConfirmTakeover(ctx context.Context, tokenString string) (*SessionGrant, error) {
	claims := &takeoverClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.TakeoverSecret), nil
	})
	if err != nil || !token.Valid || claims.AccountID == "" {
		s.logger.Info("takeover token rejected", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if err := s.TerminateAll(ctx, claims.AccountID); err != nil {
		return nil, err
	}

	grant, err := s.IssueSession(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}

	s.audit.LogSessionEvent("session_takeover", claims.AccountID, nil)
	return grant, nil
}
