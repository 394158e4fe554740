package domain

import "time"

// User es el registro de alta de una cuenta y su estado de ciclo de vida.
type User struct {
	ID                  string        `json:"id"`
	Username            string        `json:"username"`
	DisplayName         string        `json:"display_name"`
	SystemEmail         string        `json:"system_email"`
	PersonalEmail       string        `json:"personal_email"`
	PasswordHash        string        `json:"-"`
	SecondaryID         string        `json:"secondary_id,omitempty"`
	RegistrationStatus  Status        `json:"registration_status"`
	StatusDetails       StatusDetails `json:"status_details"`
	IsVerified          bool          `json:"is_verified"`
	VerificationToken   string        `json:"-"`
	VerificationExpires *time.Time    `json:"-"`
	CreatedAt           time.Time     `json:"created_at"`
	VerifiedAt          *time.Time    `json:"verified_at,omitempty"`
	LastLoginAt         *time.Time    `json:"last_login_at,omitempty"`
}

// PublicProfile es la proyeccion del registro que se expone a clientes.
type PublicProfile struct {
	Username           string `json:"username"`
	DisplayName        string `json:"display_name"`
	SystemEmail        string `json:"system_email"`
	RegistrationStatus Status `json:"registration_status"`
}

// Public devuelve la proyeccion publica del registro.
func (u User) Public() PublicProfile {
	return PublicProfile{
		Username:           u.Username,
		DisplayName:        u.DisplayName,
		SystemEmail:        u.SystemEmail,
		RegistrationStatus: u.RegistrationStatus,
	}
}
