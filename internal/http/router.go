package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cosmic-auth/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	statusH *StatusHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	registerValidations()

	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "auth",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.POST("/register", authH.Register)
	r.POST("/login", authH.Login)
	r.POST("/verify-email", authH.VerifyEmail)

	auth := r.Group("/auth")
	auth.POST("/refresh", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)

	r.GET("/check-username/:username", statusH.CheckUsername)
	r.GET("/registration/:username", statusH.RegistrationStatus)
	r.GET("/me", JWTAuthMiddleware(jwtSvc), statusH.Me)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
