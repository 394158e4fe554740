package email

import (
	"context"
	"errors"
)

// VerificationEmail agrupa los datos del mensaje de verificacion.
type VerificationEmail struct {
	To          string
	Token       string
	Username    string
	DisplayName string
	SystemEmail string
}

// Sender define la interfaz para envio del correo de verificacion.
type Sender interface {
	SendVerification(ctx context.Context, msg VerificationEmail) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerification(_ context.Context, _ VerificationEmail) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
