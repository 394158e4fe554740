package domain

import "time"

// Status representa el estado del registro dentro del flujo de alta.
type Status string

const (
	StatusInitiated         Status = "INITIATED"
	StatusUsernameValidated Status = "USERNAME_VALIDATED"
	StatusUserCreated       Status = "USER_CREATED"
	StatusSystemUserCreated Status = "SYSTEM_USER_CREATED"
	StatusMailConfigured    Status = "MAIL_CONFIGURED"
	StatusVerificationSent  Status = "VERIFICATION_SENT"
	StatusVerified          Status = "VERIFIED"
	StatusFailed            Status = "FAILED"
)

// StatusDetails guarda el ultimo paso y el error asociado a una transicion.
type StatusDetails struct {
	LastStep    Status     `json:"last_step,omitempty"`
	Error       string     `json:"error,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}
