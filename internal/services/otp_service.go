package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
)

const otpDigits = 6

// OtpRepository defines the interface for OTP database operations
type OtpRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetOtp(ctx context.Context, id, code string, expiresAt time.Time) error
	IncrementOtpVerifyAttempts(ctx context.Context, id string) (int, error)
	LockOtpVerify(ctx context.Context, id string, until time.Time) error
	FinalizeVerification(ctx context.Context, accountID string, clearOtp bool, ipAddress, userAgent string) error
}

// OtpSender delivers issued codes to the account holder
type OtpSender interface {
	SendOtpEmail(ctx context.Context, email, code string, expiresAt time.Time) error
}

// OtpConfig holds the OTP verification policy
type OtpConfig struct {
	Expiry            time.Duration
	MaxVerifyAttempts int
	VerifyLockoutDur  time.Duration
}

// VerifyOptions controls verification behavior per flow
type VerifyOptions struct {
	// RetainOnSuccess keeps the stored code valid after a successful check.
	// Reset flows use this so the code can be re-validated at the
	// password-set step; everything else consumes the code (single-use).
	RetainOnSuccess bool
	IPAddress       string
	UserAgent       string
}

// OtpResult reports the outcome of a verification attempt
type OtpResult struct {
	Verified          bool
	RemainingAttempts int
	// RemainingLockSeconds is set when verification is locked
	RemainingLockSeconds int
}

// OtpService issues and validates one-time codes with a bounded retry budget
// that is independent of the login lockout counters.
type OtpService struct {
	repo   OtpRepository
	sender OtpSender
	config OtpConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewOtpService creates a new OtpService
func NewOtpService(repo OtpRepository, sender OtpSender, config OtpConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *OtpService {
	return &OtpService{
		repo:   repo,
		sender: sender,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// Issue generates a fresh 6-digit code bound to the configured expiry,
// persists it on the account row and emails it to the holder.
func (s *OtpService) Issue(ctx context.Context, account *models.Account) (string, error) {
	code, err := generateOtpCode()
	if err != nil {
		s.logger.Error("failed to generate otp", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	expiresAt := time.Now().Add(s.config.Expiry)

	if err := s.repo.SetOtp(ctx, account.ID, code, expiresAt); err != nil {
		s.logger.Error("failed to store otp",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.sender.SendOtpEmail(ctx, account.Email, code, expiresAt); err != nil {
		s.logger.Error("failed to send otp email",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("otp issued",
		slog.String("account_id", account.ID),
		slog.Time("expires_at", expiresAt))

	return code, nil
}

// Verify checks a submitted code against the stored challenge.
//
// The verification lockout is independent of the login lockout: exceeding
// the attempt cap locks OTP entry for a fixed cool-down, never the account.
func (s *OtpService) Verify(ctx context.Context, account *models.Account, submitted string, opts VerifyOptions) (*OtpResult, error) {
	now := time.Now()

	// 1. Verification cool-down takes precedence over everything else
	if account.OtpVerifyLockedUntil != nil && now.Before(*account.OtpVerifyLockedUntil) {
		return &OtpResult{
			RemainingLockSeconds: int(time.Until(*account.OtpVerifyLockedUntil).Seconds()),
		}, models.ErrOtpVerifyLocked
	}

	// 2. Expired or missing code: guide the client to request a new one
	if account.Otp == nil || account.OtpExpiresAt == nil || now.After(*account.OtpExpiresAt) {
		return &OtpResult{
			RemainingAttempts: s.config.MaxVerifyAttempts - account.OtpVerifyAttempts,
		}, models.ErrInvalidOtp
	}

	// 3. Exact match of the trimmed digit string
	if strings.TrimSpace(submitted) != *account.Otp {
		return s.recordMismatch(ctx, account)
	}

	// 4. Match: finalize atomically (counters, history, single-use clear)
	if err := s.repo.FinalizeVerification(ctx, account.ID, !opts.RetainOnSuccess, opts.IPAddress, opts.UserAgent); err != nil {
		s.logger.Error("failed to finalize otp verification",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "otp_verified",
		AccountID: account.ID,
		IPAddress: opts.IPAddress,
		UserAgent: opts.UserAgent,
		Success:   true,
	})

	return &OtpResult{Verified: true}, nil
}

// VerifyByEmail resolves the account then verifies. Unknown emails surface
// models.ErrNotFound; the generic verification endpoint reports those as 404
// per its contract.
func (s *OtpService) VerifyByEmail(ctx context.Context, email, submitted string, opts VerifyOptions) (*OtpResult, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account for otp verify", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.Verify(ctx, account, submitted, opts)
}

func (s *OtpService) recordMismatch(ctx context.Context, account *models.Account) (*OtpResult, error) {
	attempts, err := s.repo.IncrementOtpVerifyAttempts(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to record otp mismatch",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "otp_verify_failed",
		AccountID:     account.ID,
		FailureReason: "code_mismatch",
		Success:       false,
	})

	if attempts >= s.config.MaxVerifyAttempts {
		until := time.Now().Add(s.config.VerifyLockoutDur)
		if err := s.repo.LockOtpVerify(ctx, account.ID, until); err != nil {
			s.logger.Error("failed to lock otp verification",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.logger.Warn("otp verification locked",
			slog.String("account_id", account.ID),
			slog.Time("locked_until", until))

		return &OtpResult{
			RemainingLockSeconds: int(time.Until(until).Seconds()),
		}, models.ErrOtpVerifyLocked
	}

	return &OtpResult{
		RemainingAttempts: s.config.MaxVerifyAttempts - attempts,
	}, models.ErrInvalidOtp
}

// generateOtpCode returns a zero-padded random 6-digit string
func generateOtpCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
