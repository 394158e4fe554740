package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cosmic-auth/internal/service"
)

// StatusHandler expone las vistas derivadas del estado de registro.
type StatusHandler struct {
	logger       *zap.Logger
	regServ      *service.RegistrationService
	statusServ   *service.StatusService
	exposeErrors bool
}

func NewStatusHandler(logger *zap.Logger, regServ *service.RegistrationService, statusServ *service.StatusService, exposeErrors bool) *StatusHandler {
	return &StatusHandler{
		logger:       logger,
		regServ:      regServ,
		statusServ:   statusServ,
		exposeErrors: exposeErrors,
	}
}

// CheckUsername maneja GET /check-username/:username.
func (h *StatusHandler) CheckUsername(c *gin.Context) {
	username := c.Param("username")

	available, err := h.regServ.CheckUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, service.ErrInvalidUsername) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":   false,
				"available": false,
				"message":   "Invalid username format",
			})
			return
		}
		h.logger.Error("check username failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Error checking username availability", err, h.exposeErrors)
		return
	}

	message := "Username is available"
	if !available {
		message = "Username is taken"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"available": available,
		"message":   message,
	})
}

// RegistrationStatus maneja GET /registration/:username.
func (h *StatusHandler) RegistrationStatus(c *gin.Context) {
	user, err := h.regServ.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found", nil, false)
			return
		}
		h.logger.Error("registration status lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Error retrieving registration status", err, h.exposeErrors)
		return
	}

	respondData(c, http.StatusOK, gin.H{
		"status":      user.RegistrationStatus,
		"progress":    h.statusServ.Progress(user.RegistrationStatus),
		"message":     h.statusServ.Message(user.RegistrationStatus),
		"details":     user.StatusDetails,
		"can_proceed": h.statusServ.CanProceed(user.RegistrationStatus),
	})
}

// Me maneja GET /me (autenticado).
func (h *StatusHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing token", nil, false)
		return
	}

	user, err := h.regServ.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found", nil, false)
			return
		}
		h.logger.Error("profile lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Error retrieving user status", err, h.exposeErrors)
		return
	}

	respondData(c, http.StatusOK, gin.H{
		"username":            user.Username,
		"display_name":        user.DisplayName,
		"system_email":        user.SystemEmail,
		"registration_status": user.RegistrationStatus,
		"is_verified":         user.IsVerified,
		"created_at":          user.CreatedAt,
		"verified_at":         user.VerifiedAt,
		"last_login_at":       user.LastLoginAt,
	})
}
