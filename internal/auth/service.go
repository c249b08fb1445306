package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = apperr.NewNotFound("User not found")
	ErrUserExists         = apperr.NewConflict("User with email or username already exists")
	ErrInvalidCredentials = apperr.NewUnauthenticated("Invalid credentials")
	ErrInvalidRefresh     = apperr.NewUnauthenticated("Refresh token is expired or used")
	ErrInvalidLinkToken   = apperr.NewInvalidArgument("Token is invalid or expired")
	ErrWrongPassword      = apperr.NewInvalidArgument("Invalid old password")
	ErrAlreadyVerified    = apperr.NewConflict("Email is already verified")
)

// Notifier delivers account emails. Implementations are expected to be
// asynchronous; a returned error only means the message was not queued.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, user *models.User, verifyURL string) error
	SendPasswordResetEmail(ctx context.Context, user *models.User, resetURL string) error
}

// Links holds the URLs mailed to users.
type Links struct {
	ServerURL        string
	ResetPasswordURL string
}

func (l Links) verifyURL(token string) string {
	return l.ServerURL + "/api/v1/auth/verify-email/" + token
}

func (l Links) resetURL(token string) string {
	return l.ResetPasswordURL + "/" + token
}

type Service struct {
	db       *gorm.DB
	jwt      *JWTService
	notifier Notifier
	links    Links
	logger   *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, notifier Notifier, links Links, logger *slog.Logger) *Service {
	return &Service{db: db, jwt: jwt, notifier: notifier, links: links, logger: logger}
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
	FullName string
}

type LoginInput struct {
	Email    string
	Password string
}

// Session is the result of a successful login or refresh.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hashing password", err)
	}

	raw, hashed, expiresAt, err := newTemporaryToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "creating verification token", err)
	}

	user := models.User{
		Email:                   email,
		Username:                username,
		FullName:                strings.TrimSpace(input.FullName),
		PasswordHash:            hash,
		EmailVerificationToken:  hashed,
		EmailVerificationExpiry: &expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, apperr.FromDB(err, "")
	}

	s.notify(ctx, "verification", user.ID, func() error {
		return s.notifier.SendVerificationEmail(ctx, &user, s.links.verifyURL(raw))
	})

	return &user, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.FromDB(err, "")
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, &user)
}

// Logout invalidates the stored refresh token. Access tokens stay valid until
// they expire.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return apperr.FromDB(s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("refresh_token_hash", "").Error, "")
}

// Refresh exchanges a refresh token for a new session. The presented token is
// single-use: the stored digest is rotated on success.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, "Invalid refresh token", err)
	}

	user, err := s.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if !crypto.MatchesDigest(refreshToken, user.RefreshTokenHash) {
		return nil, ErrInvalidRefresh
	}

	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*Session, error) {
	access, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "signing access token", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "signing refresh token", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("refresh_token_hash", crypto.Digest(refresh)).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	user.RefreshTokenHash = crypto.Digest(refresh)

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.NewInvalidArgument("Email verification token is missing")
	}

	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email_verification_token = ? AND email_verification_expiry > ?", crypto.Digest(token), time.Now()).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidLinkToken
		}
		return nil, apperr.FromDB(err, "")
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"is_email_verified":         true,
			"email_verification_token":  "",
			"email_verification_expiry": nil,
		}).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}

	user.IsEmailVerified = true
	user.EmailVerificationToken = ""
	user.EmailVerificationExpiry = nil
	return &user, nil
}

func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	raw, hashed, expiresAt, err := newTemporaryToken()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "creating verification token", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"email_verification_token":  hashed,
			"email_verification_expiry": expiresAt,
		}).Error; err != nil {
		return apperr.FromDB(err, "")
	}

	s.notify(ctx, "verification", user.ID, func() error {
		return s.notifier.SendVerificationEmail(ctx, user, s.links.verifyURL(raw))
	})
	return nil
}

// ForgotPassword mails a reset link. Unknown addresses succeed silently so the
// endpoint cannot be used to probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.FromDB(err, "")
	}

	raw, hashed, expiresAt, err := newTemporaryToken()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "creating reset token", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"forgot_password_token":  hashed,
			"forgot_password_expiry": expiresAt,
		}).Error; err != nil {
		return apperr.FromDB(err, "")
	}

	s.notify(ctx, "password_reset", user.ID, func() error {
		return s.notifier.SendPasswordResetEmail(ctx, &user, s.links.resetURL(raw))
	})
	return nil
}

// ResetPassword sets a new password using a mailed token and signs the user
// out of existing refresh sessions.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("forgot_password_token = ? AND forgot_password_expiry > ?", crypto.Digest(token), time.Now()).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidLinkToken
		}
		return apperr.FromDB(err, "")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "hashing password", err)
	}

	return apperr.FromDB(s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"password_hash":          hash,
			"forgot_password_token":  "",
			"forgot_password_expiry": nil,
			"refresh_token_hash":     "",
		}).Error, "")
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrWrongPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "hashing password", err)
	}

	return apperr.FromDB(s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("password_hash", hash).Error, "")
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.FromDB(err, "")
	}
	return &user, nil
}

// notify runs a best-effort side effect. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, kind string, userID uuid.UUID, send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.logger.WarnContext(ctx, "failed to queue account email", "kind", kind, "user_id", userID, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
