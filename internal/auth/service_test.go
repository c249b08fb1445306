package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/testutil"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*auth.Service, *testutil.TestSetup, *testutil.RecordingNotifier) {
	t.Helper()
	setup := testutil.NewTestContext(t)
	t.Cleanup(setup.Cleanup)

	notifier := &testutil.RecordingNotifier{}
	svc := auth.NewService(setup.DB, setup.JWTService, notifier, auth.Links{
		ServerURL:        "http://api.test",
		ResetPasswordURL: "http://app.test/reset-password",
	}, util.DiscardLogger())
	return svc, setup, notifier
}

func tokenFromLink(link string) string {
	return link[strings.LastIndex(link, "/")+1:]
}

func TestService_Register(t *testing.T) {
	svc, setup, notifier := newAuthService(t)
	ctx := testutil.TestContext(t)

	user, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "  New@Example.com ",
		Username: "newuser",
		Password: "password123",
		FullName: "New User",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)

	sent := notifier.Last()
	assert.Equal(t, "verification", sent.Kind)
	assert.True(t, strings.HasPrefix(sent.Link, "http://api.test/api/v1/auth/verify-email/"))

	var stored models.User
	require.NoError(t, setup.DB.Where("id = ?", user.ID).First(&stored).Error)
	assert.NotEqual(t, tokenFromLink(sent.Link), stored.EmailVerificationToken, "token is stored hashed")
	assert.NotEqual(t, "password123", stored.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, auth.RegisterInput{Email: "new@example.com", Username: "other", Password: "x"})
		assert.True(t, apperr.Is(err, apperr.Conflict))
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, auth.RegisterInput{Email: "other@example.com", Username: "newuser", Password: "x"})
		assert.True(t, apperr.Is(err, apperr.Conflict))
	})
}

func TestService_Register_NotifierFailureIsNotFatal(t *testing.T) {
	svc, _, notifier := newAuthService(t)
	notifier.Err = errors.New("queue down")

	_, err := svc.Register(testutil.TestContext(t), auth.RegisterInput{
		Email: "a@example.com", Username: "aaa", Password: "password123",
	})
	assert.NoError(t, err)
}

func TestService_VerifyEmail(t *testing.T) {
	svc, _, notifier := newAuthService(t)
	ctx := testutil.TestContext(t)

	_, err := svc.Register(ctx, auth.RegisterInput{Email: "v@example.com", Username: "verify", Password: "password123"})
	require.NoError(t, err)
	token := tokenFromLink(notifier.Last().Link)

	user, err := svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, user.IsEmailVerified)

	_, err = svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidLinkToken, "tokens are single use")

	_, err = svc.VerifyEmail(ctx, "")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestService_VerifyEmail_Expired(t *testing.T) {
	svc, setup, notifier := newAuthService(t)
	ctx := testutil.TestContext(t)

	user, err := svc.Register(ctx, auth.RegisterInput{Email: "e@example.com", Username: "expired", Password: "password123"})
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, setup.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("email_verification_expiry", past).Error)

	_, err = svc.VerifyEmail(ctx, tokenFromLink(notifier.Last().Link))
	assert.ErrorIs(t, err, auth.ErrInvalidLinkToken)
}

func TestService_ResendVerification(t *testing.T) {
	svc, setup, notifier := newAuthService(t)
	ctx := testutil.TestContext(t)

	err := svc.ResendVerification(ctx, setup.User.ID)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)

	user, err := svc.Register(ctx, auth.RegisterInput{Email: "r@example.com", Username: "resend", Password: "password123"})
	require.NoError(t, err)
	firstToken := tokenFromLink(notifier.Last().Link)

	require.NoError(t, svc.ResendVerification(ctx, user.ID))
	secondToken := tokenFromLink(notifier.Last().Link)
	assert.NotEqual(t, firstToken, secondToken)

	_, err = svc.VerifyEmail(ctx, firstToken)
	assert.Error(t, err, "resending replaces the previous token")
	_, err = svc.VerifyEmail(ctx, secondToken)
	assert.NoError(t, err)
}

func TestService_LoginRefreshLogout(t *testing.T) {
	svc, setup, _ := newAuthService(t)
	ctx := testutil.TestContext(t)

	_, err := svc.Login(ctx, auth.LoginInput{Email: setup.User.Email, Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, auth.LoginInput{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	session, err := svc.Login(ctx, auth.LoginInput{Email: strings.ToUpper(setup.User.Email), Password: testutil.TestPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	claims, err := setup.JWTService.ValidateAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, setup.User.ID, claims.UserID)

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh, "a refresh token can be used once")

	require.NoError(t, svc.Logout(ctx, setup.User.ID))
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh)

	_, err = svc.Refresh(ctx, "garbage")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
}

func TestService_ForgotAndResetPassword(t *testing.T) {
	svc, setup, notifier := newAuthService(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, svc.ForgotPassword(ctx, "unknown@example.com"))
	assert.Empty(t, notifier.Sent, "unknown addresses are not mailed")

	require.NoError(t, svc.ForgotPassword(ctx, setup.User.Email))
	sent := notifier.Last()
	assert.Equal(t, "password_reset", sent.Kind)
	assert.True(t, strings.HasPrefix(sent.Link, "http://app.test/reset-password/"))

	assert.ErrorIs(t, svc.ResetPassword(ctx, "bogus", "newpassword1"), auth.ErrInvalidLinkToken)

	token := tokenFromLink(sent.Link)
	require.NoError(t, svc.ResetPassword(ctx, token, "newpassword1"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "again"), auth.ErrInvalidLinkToken)

	_, err := svc.Login(ctx, auth.LoginInput{Email: setup.User.Email, Password: "newpassword1"})
	assert.NoError(t, err)
}

func TestService_ChangePassword(t *testing.T) {
	svc, setup, _ := newAuthService(t)
	ctx := testutil.TestContext(t)

	err := svc.ChangePassword(ctx, setup.User.ID, "wrong", "newpassword1")
	assert.ErrorIs(t, err, auth.ErrWrongPassword)

	require.NoError(t, svc.ChangePassword(ctx, setup.User.ID, testutil.TestPassword, "newpassword1"))

	_, err = svc.Login(ctx, auth.LoginInput{Email: setup.User.Email, Password: testutil.TestPassword})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Login(ctx, auth.LoginInput{Email: setup.User.Email, Password: "newpassword1"})
	assert.NoError(t, err)
}

func TestService_GetUserByID(t *testing.T) {
	svc, setup, _ := newAuthService(t)
	ctx := testutil.TestContext(t)

	user, err := svc.GetUserByID(ctx, setup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, setup.User.Email, user.Email)

	_, err = svc.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
