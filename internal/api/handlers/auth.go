package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/auth"
)

const refreshTokenCookie = "refreshToken"

type AuthHandler struct {
	authService   auth.Authenticator
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	secureCookies bool
}

func NewAuthHandler(authService auth.Authenticator, accessExpiry, refreshExpiry time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		secureCookies: secureCookies,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, dto.NewUserDTO(user),
		"User registered successfully and verification email has been sent on your email")
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	session, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}

	h.setSessionCookies(w, session)
	response.JSON(w, http.StatusOK, dto.AuthResponse{
		User:         dto.NewUserDTO(session.User),
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}, "User logged in successfully")
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		response.Error(w, r, err)
		return
	}

	h.clearSessionCookies(w)
	response.JSON(w, http.StatusOK, struct{}{}, "User logged out")
}

// CurrentUser handles GET and POST /api/v1/auth/current-user
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewUserDTO(user), "Current user fetched successfully")
}

// RefreshToken handles POST /api/v1/auth/refresh-token. The token is read
// from the refresh cookie, falling back to the request body.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req dto.RefreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, r, err)
			return
		}
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		response.Error(w, r, apperr.NewUnauthenticated("Unauthorized access"))
		return
	}

	session, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	h.setSessionCookies(w, session)
	response.JSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}, "Access token refreshed")
}

// VerifyEmail handles GET /api/v1/auth/verify-email/{verificationToken}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authService.VerifyEmail(r.Context(), chi.URLParam(r, "verificationToken")); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"isEmailVerified": true}, "Email is verified")
}

// ResendVerification handles POST /api/v1/auth/resend-email-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.ResendVerification(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, struct{}{}, "Mail has been sent to your email ID")
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. The response is
// the same whether or not the email belongs to a user.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, struct{}{}, "Password reset mail has been sent on your mail id")
}

// ResetPassword handles POST /api/v1/auth/reset-password/{resetToken}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "resetToken"), req.NewPassword); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, struct{}{}, "Password reset successfully")
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, session.AccessToken, h.accessExpiry))
	http.SetCookie(w, h.cookie(refreshTokenCookie, session.RefreshToken, h.refreshExpiry))
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, "", -1))
	http.SetCookie(w, h.cookie(refreshTokenCookie, "", -1))
}

func (h *AuthHandler) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	}
	if maxAge < 0 {
		c.MaxAge = -1
	}
	return c
}
