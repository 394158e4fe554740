package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cosmic-auth/internal/domain"
	"cosmic-auth/internal/email"
	"cosmic-auth/internal/repository"
	"cosmic-auth/internal/sysapi"
)

var (
	ErrDuplicateField           = errors.New("identity field already in use")
	ErrSystemProvisioningFailed = errors.New("system user creation failed")
	ErrNotificationFailed       = errors.New("verification email sending failed")
	ErrInvalidToken             = errors.New("invalid verification token")
	ErrTokenMismatchOrExpired   = errors.New("verification token mismatch or expired")
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrInvalidUsername          = errors.New("invalid username format")
	ErrInvalidDisplayName       = errors.New("invalid display name")
	ErrInvalidSecondaryID       = errors.New("invalid secondary identifier")
)

var (
	usernameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{2,15}$`)
	phoneRe    = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	simRe      = regexp.MustCompile(`^CSMC\d{3}$`)
)

// ValidUsername valida el formato de nombre de usuario.
func ValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

// RegistrationConfig agrupa las opciones de despliegue del flujo de alta.
type RegistrationConfig struct {
	MailDomain         string
	MailConfiguredStep bool
	// SecondaryIDKind selecciona el identificador secundario unico:
	// "phone" (E.164) o "sim" (codigo de frecuencia CSMC).
	SecondaryIDKind string
}

// RegistrationService orquesta un intento de alta: registro en la base,
// cuenta de sistema via provisioner y correo de verificacion, con
// compensacion secuencial de mejor esfuerzo ante fallas parciales.
type RegistrationService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	statuses *StatusService
	jwt      *JWTService
	prov     sysapi.Provisioner
	sender   email.Sender
	cfg      RegistrationConfig
}

func NewRegistrationService(
	logger *zap.Logger,
	users repository.UserRepository,
	statuses *StatusService,
	jwtSvc *JWTService,
	prov sysapi.Provisioner,
	sender email.Sender,
	cfg RegistrationConfig,
) *RegistrationService {
	if cfg.MailDomain == "" {
		cfg.MailDomain = "ld-csmlmail.test"
	}
	if cfg.SecondaryIDKind == "" {
		cfg.SecondaryIDKind = "phone"
	}
	return &RegistrationService{
		logger:   logger,
		users:    users,
		statuses: statuses,
		jwt:      jwtSvc,
		prov:     prov,
		sender:   sender,
		cfg:      cfg,
	}
}

type RegisterInput struct {
	Username      string
	DisplayName   string
	PersonalEmail string
	Password      string
	SecondaryID   string
}

// Register ejecuta un intento de alta completo. Cada paso depende del efecto
// del anterior, por lo que la secuencia es estrictamente serial.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	displayName := strings.TrimSpace(input.DisplayName)
	personalEmail := strings.ToLower(strings.TrimSpace(input.PersonalEmail))
	secondaryID := strings.TrimSpace(input.SecondaryID)

	if !ValidUsername(username) {
		return domain.User{}, ErrInvalidUsername
	}
	if len(displayName) < 3 {
		return domain.User{}, ErrInvalidDisplayName
	}
	if err := s.validateSecondaryID(secondaryID); err != nil {
		return domain.User{}, err
	}

	systemEmail := username + "@" + s.cfg.MailDomain

	s.logger.Info("starting registration", zap.String("username", username))

	// La unicidad se verifica antes de cualquier efecto; el constraint de la
	// base cubre la carrera entre el chequeo y el insert.
	exists, err := s.users.ExistsIdentity(ctx, username, displayName, personalEmail, systemEmail, secondaryID)
	if err != nil {
		return domain.User{}, err
	}
	if exists {
		return domain.User{}, ErrDuplicateField
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:                 uuid.NewString(),
		Username:           username,
		DisplayName:        displayName,
		SystemEmail:        systemEmail,
		PersonalEmail:      personalEmail,
		PasswordHash:       string(hashBytes),
		SecondaryID:        secondaryID,
		RegistrationStatus: domain.StatusInitiated,
		StatusDetails:      domain.StatusDetails{LastUpdated: &now},
		CreatedAt:          now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrDuplicateField
		}
		return domain.User{}, err
	}

	if user, err = s.advance(ctx, user, domain.StatusUsernameValidated); err != nil {
		return domain.User{}, err
	}
	if user, err = s.advance(ctx, user, domain.StatusUserCreated); err != nil {
		return domain.User{}, err
	}

	provToken, err := s.jwt.GenerateProvisionToken(user)
	if err != nil {
		s.fail(ctx, user, err)
		return domain.User{}, err
	}

	if _, err := s.prov.CreateSystemUser(ctx, username, systemEmail, provToken); err != nil {
		cause := fmt.Errorf("%w: %v", ErrSystemProvisioningFailed, err)
		s.fail(ctx, user, cause)
		return domain.User{}, cause
	}
	if user, err = s.advance(ctx, user, domain.StatusSystemUserCreated); err != nil {
		return domain.User{}, err
	}

	if s.cfg.MailConfiguredStep {
		status, err := s.prov.CheckSystemUser(ctx, username, provToken)
		if err != nil || !status.Maildir {
			cause := fmt.Errorf("%w: maildir not configured", ErrSystemProvisioningFailed)
			if err != nil {
				cause = fmt.Errorf("%w: %v", ErrSystemProvisioningFailed, err)
			}
			s.fail(ctx, user, cause)
			return domain.User{}, cause
		}
		if user, err = s.advance(ctx, user, domain.StatusMailConfigured); err != nil {
			return domain.User{}, err
		}
	}

	verifyToken, verifyExpires, err := s.jwt.GenerateVerificationToken(user)
	if err != nil {
		s.fail(ctx, user, err)
		return domain.User{}, err
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, verifyToken, verifyExpires); err != nil {
		s.fail(ctx, user, err)
		return domain.User{}, err
	}
	user.VerificationToken = verifyToken
	user.VerificationExpires = &verifyExpires

	if err := s.sender.SendVerification(ctx, email.VerificationEmail{
		To:          personalEmail,
		Token:       verifyToken,
		Username:    username,
		DisplayName: displayName,
		SystemEmail: systemEmail,
	}); err != nil {
		cause := fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		s.fail(ctx, user, cause)
		return domain.User{}, cause
	}
	if user, err = s.advance(ctx, user, domain.StatusVerificationSent); err != nil {
		return domain.User{}, err
	}

	s.logger.Info("registration completed, verification pending", zap.String("username", username))
	return user, nil
}

// VerifyEmail valida el token de verificacion y marca el registro verificado.
func (s *RegistrationService) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.jwt.ParseVerificationToken(token)
	if err != nil {
		return domain.User{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	// Doble chequeo contra el token persistido: un token con firma valida
	// pudo haber sido reemplazado por uno mas reciente.
	now := time.Now().UTC()
	if user.VerificationToken != token || user.VerificationExpires == nil || user.VerificationExpires.Before(now) {
		return domain.User{}, ErrTokenMismatchOrExpired
	}

	if err := s.users.MarkVerified(ctx, user.ID, now); err != nil {
		return domain.User{}, err
	}
	user.IsVerified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil
	user.VerifiedAt = &now

	user, err = s.statuses.UpdateStatus(ctx, user, domain.StatusVerified, domain.StatusDetails{})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.Info("email verified", zap.String("username", user.Username))
	return user, nil
}

// Login autentica por username y password. Usuario inexistente y password
// incorrecto devuelven el mismo error para no permitir enumeracion.
func (s *RegistrationService) Login(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return domain.User{}, ErrEmailNotVerified
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("last login update failed", zap.String("username", username), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	return user, nil
}

// CheckUsername informa disponibilidad del nombre de usuario.
func (s *RegistrationService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !ValidUsername(username) {
		return false, ErrInvalidUsername
	}
	_, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// GetByUsername expone la consulta del registro para las vistas de estado.
func (s *RegistrationService) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetByID expone la consulta por id para el perfil autenticado.
func (s *RegistrationService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// advance aplica la transicion al siguiente estado; ante una falla de
// persistencia deja el registro en FAILED y propaga el error.
func (s *RegistrationService) advance(ctx context.Context, user domain.User, next domain.Status) (domain.User, error) {
	updated, err := s.statuses.UpdateStatus(ctx, user, next, domain.StatusDetails{})
	if err != nil {
		s.fail(ctx, user, err)
		return domain.User{}, err
	}
	return updated, nil
}

// fail deja el registro en FAILED con la causa y, solo si la cuenta de
// sistema ya habia sido creada, intenta removerla. Ninguna falla de la
// compensacion se propaga al llamador.
func (s *RegistrationService) fail(ctx context.Context, user domain.User, cause error) {
	reached := s.statuses.Reached(user.RegistrationStatus, domain.StatusSystemUserCreated)

	if _, err := s.statuses.UpdateStatus(ctx, user, domain.StatusFailed, domain.StatusDetails{
		LastStep: user.RegistrationStatus,
		Error:    cause.Error(),
	}); err != nil {
		s.logger.Error("failed status write",
			zap.String("username", user.Username),
			zap.Error(err),
		)
	}

	if !reached {
		return
	}

	token, err := s.jwt.GenerateProvisionToken(user)
	if err != nil {
		s.logger.Error("compensation token mint failed", zap.String("username", user.Username), zap.Error(err))
		return
	}
	if err := s.prov.RemoveSystemUser(ctx, user.Username, token); err != nil {
		s.logger.Error("system user removal failed",
			zap.String("username", user.Username),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("system user removed after failed registration", zap.String("username", user.Username))
}

func (s *RegistrationService) validateSecondaryID(id string) error {
	switch s.cfg.SecondaryIDKind {
	case "sim":
		if !simRe.MatchString(id) {
			return ErrInvalidSecondaryID
		}
	default:
		if !phoneRe.MatchString(id) {
			return ErrInvalidSecondaryID
		}
	}
	return nil
}
