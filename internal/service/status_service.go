package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"cosmic-auth/internal/domain"
	"cosmic-auth/internal/repository"
)

// ErrInvalidTransition indica un salto de estado fuera del flujo permitido.
var ErrInvalidTransition = errors.New("invalid status transition")

// StatusService valida y persiste las transiciones del flujo de registro.
// El flujo es configurable: una variante inserta MAIL_CONFIGURED entre
// SYSTEM_USER_CREATED y VERIFICATION_SENT.
type StatusService struct {
	logger *zap.Logger
	users  repository.UserRepository
	flow   []domain.Status
}

func NewStatusService(logger *zap.Logger, users repository.UserRepository, mailConfiguredStep bool) *StatusService {
	flow := []domain.Status{
		domain.StatusInitiated,
		domain.StatusUsernameValidated,
		domain.StatusUserCreated,
		domain.StatusSystemUserCreated,
	}
	if mailConfiguredStep {
		flow = append(flow, domain.StatusMailConfigured)
	}
	flow = append(flow, domain.StatusVerificationSent, domain.StatusVerified)
	return &StatusService{
		logger: logger,
		users:  users,
		flow:   flow,
	}
}

// Flow devuelve una copia del flujo ordenado de estados.
func (s *StatusService) Flow() []domain.Status {
	out := make([]domain.Status, len(s.flow))
	copy(out, s.flow)
	return out
}

// IsValidTransition acepta solo FAILED o el sucesor inmediato en el flujo.
func (s *StatusService) IsValidTransition(current, next domain.Status) bool {
	if next == domain.StatusFailed {
		return true
	}
	currentIdx := s.indexOf(current)
	return currentIdx >= 0 && s.indexOf(next) == currentIdx+1
}

// UpdateStatus persiste la transicion al nuevo estado. Si la transicion es
// invalida y el destino no era FAILED, fuerza el registro a FAILED con el
// error capturado en los detalles; el registro queda siempre en un estado
// terminal inspeccionable.
func (s *StatusService) UpdateStatus(ctx context.Context, user domain.User, next domain.Status, details domain.StatusDetails) (domain.User, error) {
	if !s.IsValidTransition(user.RegistrationStatus, next) {
		transErr := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, user.RegistrationStatus, next)
		if next == domain.StatusFailed {
			return domain.User{}, transErr
		}
		s.logger.Error("status transition rejected",
			zap.String("username", user.Username),
			zap.String("from", string(user.RegistrationStatus)),
			zap.String("to", string(next)),
		)
		failed, persistErr := s.persist(ctx, user, domain.StatusFailed, domain.StatusDetails{
			LastStep: user.RegistrationStatus,
			Error:    transErr.Error(),
		})
		if persistErr != nil {
			return domain.User{}, persistErr
		}
		return failed, transErr
	}

	if details.LastStep == "" {
		details.LastStep = user.RegistrationStatus
	}
	s.logger.Info("status transition",
		zap.String("username", user.Username),
		zap.String("from", string(user.RegistrationStatus)),
		zap.String("to", string(next)),
	)
	return s.persist(ctx, user, next, details)
}

// Progress devuelve la posicion lineal del estado en el flujo, 0..100.
func (s *StatusService) Progress(status domain.Status) int {
	idx := s.indexOf(status)
	if idx < 0 {
		return 0
	}
	return int(math.Round(float64(idx) / float64(len(s.flow)-1) * 100))
}

// Message devuelve el mensaje legible asociado al estado.
func (s *StatusService) Message(status domain.Status) string {
	messages := map[domain.Status]string{
		domain.StatusInitiated:         "Registration started",
		domain.StatusUsernameValidated: "Username is available",
		domain.StatusUserCreated:       "User account created",
		domain.StatusSystemUserCreated: "System account setup complete",
		domain.StatusMailConfigured:    "Mailbox configured",
		domain.StatusVerificationSent:  "Verification email sent",
		domain.StatusVerified:          "Registration complete",
		domain.StatusFailed:            "Registration failed",
	}
	if msg, ok := messages[status]; ok {
		return msg
	}
	return "Unknown status"
}

// CanProceed indica si el registro puede continuar desde el estado dado.
func (s *StatusService) CanProceed(status domain.Status) bool {
	return status != domain.StatusFailed && status != domain.StatusInitiated
}

// Reached indica si el estado ya alcanzo (o paso) el hito dado en el flujo.
func (s *StatusService) Reached(status, milestone domain.Status) bool {
	si, mi := s.indexOf(status), s.indexOf(milestone)
	return si >= 0 && mi >= 0 && si >= mi
}

func (s *StatusService) indexOf(status domain.Status) int {
	for i, st := range s.flow {
		if st == status {
			return i
		}
	}
	return -1
}

func (s *StatusService) persist(ctx context.Context, user domain.User, status domain.Status, details domain.StatusDetails) (domain.User, error) {
	now := time.Now().UTC()
	details.LastUpdated = &now
	if err := s.users.UpdateStatus(ctx, user.ID, status, details); err != nil {
		return domain.User{}, err
	}
	user.RegistrationStatus = status
	user.StatusDetails = details
	return user, nil
}
