package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
)

// AuthRepository defines the account operations login orchestration needs
type AuthRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetBySessionToken(ctx context.Context, token string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	ClearSession(ctx context.Context, id string) error
}

// AccountResponse represents an account in HTTP responses
type AccountResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	CollegeID *string `json:"collegeId,omitempty"`
}

// LoginResult is the outcome of a completed login
type LoginResult struct {
	// OtpRequired is set after the credential phase: the caller must verify
	// the emailed code before a session is issued
	OtpRequired bool

	// TakeoverRequired is set when another session is active; TakeoverToken
	// must be exchanged via ConfirmTakeover after explicit confirmation
	TakeoverRequired bool
	TakeoverToken    string

	SessionToken     string
	SessionExpiresAt time.Time
	Account          *AccountResponse

	// LockStatus accompanies ErrAccountLocked
	LockStatus *LockStatus

	// OtpStatus accompanies ErrInvalidOtp and ErrOtpVerifyLocked so responses
	// can carry remaining attempts or remaining lock time
	OtpStatus *OtpResult
}

// AuthService orchestrates the login control flow: lockout check, credential
// check, OTP step-up, then single-slot session issuance.
type AuthService struct {
	repo     AuthRepository
	lockout  *LockoutService
	otp      *OtpService
	sessions *SessionService
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo AuthRepository, lockout *LockoutService, otp *OtpService, sessions *SessionService, logger *slog.Logger, audit *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		repo:     repo,
		lockout:  lockout,
		otp:      otp,
		sessions: sessions,
		logger:   logger,
		audit:    audit,
	}
}

// Login runs the credential phase. On success an OTP is issued and the
// caller proceeds to CompleteLogin; no session exists yet.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	// Lockout gate before anything touches credentials
	status, err := s.lockout.CheckLockStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	if status.IsLocked {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "account_locked",
			Success:       false,
		})
		return &LoginResult{LockStatus: status}, models.ErrAccountLocked
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Same response as a wrong password: no existence oracle
			s.logger.Info("login failed: invalid credentials")
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     ipAddress,
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		failStatus, recordErr := s.lockout.RecordFailedAttempt(ctx, account)
		if recordErr != nil {
			return nil, recordErr
		}

		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			AccountID:     account.ID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "invalid_credentials",
			Success:       false,
		})

		if failStatus.IsLocked {
			return &LoginResult{LockStatus: failStatus}, models.ErrAccountLocked
		}
		return nil, models.ErrUnauthorized
	}

	if err := s.lockout.RecordSuccess(ctx, account.ID); err != nil {
		return nil, err
	}

	// Second factor before any session exists
	if _, err := s.otp.Issue(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("login credential phase passed", slog.String("account_id", account.ID))

	return &LoginResult{
		OtpRequired: true,
		Account:     accountToResponse(account),
	}, nil
}

// CompleteLogin verifies the step-up OTP and issues the session. When
// another session is live, a takeover token is returned instead and the
// client must confirm before the old session is terminated.
func (s *AuthService) CompleteLogin(ctx context.Context, email, otp, ipAddress, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account for login completion", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	otpResult, err := s.otp.Verify(ctx, account, otp, VerifyOptions{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		if errors.Is(err, models.ErrOtpVerifyLocked) || errors.Is(err, models.ErrInvalidOtp) {
			return &LoginResult{OtpStatus: otpResult}, err
		}
		return nil, err
	}

	// Concurrent-login conflict: surface the confirmation step instead of
	// silently kicking out a session on an unrelated device
	if account.HasActiveSession(time.Now()) {
		takeoverToken, err := s.sessions.CreateTakeoverToken(account.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			TakeoverRequired: true,
			TakeoverToken:    takeoverToken,
			Account:          accountToResponse(account),
		}, nil
	}

	grant, err := s.sessions.IssueSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: account.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return &LoginResult{
		SessionToken:     grant.Token,
		SessionExpiresAt: grant.ExpiresAt,
		Account:          accountToResponse(account),
	}, nil
}

// Logout clears the session slot when the presented token matches it.
func (s *AuthService) Logout(ctx context.Context, email, token string) error {
	account, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return models.ErrInternalServer
	}

	if account.SessionToken == nil || *account.SessionToken != token {
		return models.ErrUnauthorized
	}

	if err := s.repo.ClearSession(ctx, account.ID); err != nil {
		s.logger.Error("failed to clear session on logout",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogSessionEvent("logout", account.ID, nil)
	return nil
}

// Register creates an account, enforcing the same password policy the reset
// flow uses.
func (s *AuthService) Register(ctx context.Context, email, password, name, role string, collegeID *string) (*AccountResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password during registration", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account, err := s.repo.Create(ctx, &models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		CollegeID:    collegeID,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "account_registered",
		AccountID: account.ID,
		Success:   true,
	})

	return accountToResponse(account), nil
}

// AuthorizeAdmin checks that the presented session token belongs to a live
// admin session. Used to gate account registration.
func (s *AuthService) AuthorizeAdmin(ctx context.Context, token string) error {
	if token == "" {
		return models.ErrUnauthorized
	}

	account, err := s.repo.GetBySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to resolve session token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !account.HasActiveSession(time.Now()) {
		return models.ErrUnauthorized
	}

	if account.Role != "admin" {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "admin_action_denied",
			AccountID:     account.ID,
			FailureReason: "insufficient_role",
			Success:       false,
		})
		return models.ErrUnauthorized
	}

	return nil
}

func accountToResponse(account *models.Account) *AccountResponse {
	return &AccountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		CollegeID: account.CollegeID,
	}
}
