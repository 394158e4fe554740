package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cosmic-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de registro y sesion.
type AuthHandler struct {
	logger       *zap.Logger
	regServ      *service.RegistrationService
	jwtServ      *service.JWTService
	limiter      service.RegisterRateLimiter
	exposeErrors bool
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(
	logger *zap.Logger,
	regServ *service.RegistrationService,
	jwtServ *service.JWTService,
	limiter service.RegisterRateLimiter,
	exposeErrors bool,
) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		regServ:      regServ,
		jwtServ:      jwtServ,
		limiter:      limiter,
		exposeErrors: exposeErrors,
	}
}

// Register maneja POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		respondError(c, http.StatusTooManyRequests, "too many registration attempts", nil, false)
		return
	}

	var req struct {
		Username      string `json:"username" binding:"required,username"`
		DisplayName   string `json:"display_name" binding:"required,min=3"`
		PersonalEmail string `json:"personal_email" binding:"required,email"`
		Password      string `json:"password" binding:"required,min=8"`
		SecondaryID   string `json:"secondary_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid request", err, h.exposeErrors)
		return
	}

	user, err := h.regServ.Register(c.Request.Context(), service.RegisterInput{
		Username:      req.Username,
		DisplayName:   req.DisplayName,
		PersonalEmail: req.PersonalEmail,
		Password:      req.Password,
		SecondaryID:   req.SecondaryID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateField):
			respondError(c, http.StatusBadRequest, "Username, display name, or email already in use", nil, false)
		case errors.Is(err, service.ErrInvalidUsername),
			errors.Is(err, service.ErrInvalidDisplayName),
			errors.Is(err, service.ErrInvalidSecondaryID):
			respondError(c, http.StatusBadRequest, err.Error(), nil, false)
		default:
			h.logger.Error("registration failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Registration failed. Please try again later.", err, h.exposeErrors)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Registration successful. Please check your email for verification.",
		"data":    user.Public(),
	})
}

// Login maneja POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid request", err, h.exposeErrors)
		return
	}

	user, err := h.regServ.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "Invalid credentials", nil, false)
		case errors.Is(err, service.ErrEmailNotVerified):
			respondError(c, http.StatusForbidden, "Please verify your email before logging in", nil, false)
		default:
			h.logger.Error("login failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Login failed", err, h.exposeErrors)
		}
		return
	}

	tokens, err := h.jwtServ.GeneratePair(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "could not issue tokens", err, h.exposeErrors)
		return
	}

	respondData(c, http.StatusOK, gin.H{"user": user.Public(), "tokens": tokens})
}

// VerifyEmail maneja POST /verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify request", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid request", err, h.exposeErrors)
		return
	}

	user, err := h.regServ.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "User not found", nil, false)
		case errors.Is(err, service.ErrInvalidToken),
			errors.Is(err, service.ErrTokenMismatchOrExpired):
			respondError(c, http.StatusBadRequest, "Invalid or expired verification token", nil, false)
		default:
			h.logger.Error("email verification failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Email verification failed", err, h.exposeErrors)
		}
		return
	}

	respondData(c, http.StatusOK, gin.H{
		"user":    user.Public(),
		"message": "Email verified successfully",
	})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err, h.exposeErrors)
		return
	}
	tokens, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "invalid token", nil, false)
		return
	}
	respondData(c, http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err, h.exposeErrors)
		return
	}
	_ = h.jwtServ.RevokeRefresh(req.RefreshToken)
	respondMessage(c, http.StatusOK, "Logged out successfully")
}
