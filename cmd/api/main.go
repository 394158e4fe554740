package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"cosmic-auth/internal/config"
	"cosmic-auth/internal/db"
	"cosmic-auth/internal/email"
	apihttp "cosmic-auth/internal/http"
	"cosmic-auth/internal/repository"
	"cosmic-auth/internal/service"
	"cosmic-auth/internal/sysapi"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := db.RunMigrations(ctx, cfg); err != nil {
		logger.Fatal("db migrations", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.FrontendURL, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		registerLimiter service.RegisterRateLimiter
		tokenStore      service.RefreshTokenStore
		redisClient     *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			registerLimiter = service.NewRedisRegisterRateLimiter(redisClient, 10*time.Minute, 5)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if registerLimiter == nil {
		registerLimiter = service.NewRegisterRateLimiter(10*time.Minute, 5)
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)

	statusSvc := service.NewStatusService(logger, userRepo, cfg.MailConfiguredStep)
	provClient := sysapi.NewHTTPClient(cfg.SystemAPIURL, time.Duration(cfg.SystemAPITimeoutSeconds)*time.Second, logger)
	regSvc := service.NewRegistrationService(logger, userRepo, statusSvc, jwtSvc, provClient, emailSender, service.RegistrationConfig{
		MailDomain:         cfg.MailDomain,
		MailConfiguredStep: cfg.MailConfiguredStep,
		SecondaryIDKind:    cfg.SecondaryIDKind,
	})

	exposeErrors := !cfg.IsProduction()
	authHandler := apihttp.NewAuthHandler(logger, regSvc, jwtSvc, registerLimiter, exposeErrors)
	statusHandler := apihttp.NewStatusHandler(logger, regSvc, statusSvc, exposeErrors)
	router := apihttp.NewRouter(logger, authHandler, statusHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
