package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cosmic-auth/internal/domain"
)

// ErrDuplicate indica una violacion de unicidad en algun campo de identidad.
var ErrDuplicate = errors.New("duplicate identity field")

// UserRepository define el contrato de persistencia para registros de alta.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	ExistsIdentity(ctx context.Context, username, displayName, personalEmail, systemEmail, secondaryID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status, details domain.StatusDetails) error
	SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error
	MarkVerified(ctx context.Context, id string, verifiedAt time.Time) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, username, display_name, system_email, personal_email, password_hash,
	secondary_id, registration_status, status_last_step, status_error,
	status_last_updated, is_verified, verification_token, verification_expires,
	created_at, verified_at, last_login_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (
			id, username, display_name, system_email, personal_email,
			password_hash, secondary_id, registration_status, status_last_updated,
			is_verified, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.SystemEmail,
		user.PersonalEmail,
		user.PasswordHash,
		user.SecondaryID,
		user.RegistrationStatus,
		user.StatusDetails.LastUpdated,
		user.IsVerified,
		user.CreatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(ctx, query, username)
}

func (r *PgUserRepository) ExistsIdentity(ctx context.Context, username, displayName, personalEmail, systemEmail, secondaryID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE username = $1
			   OR display_name = $2
			   OR personal_email = $3
			   OR system_email = $4
			   OR ($5 <> '' AND secondary_id = $5)
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, username, displayName, personalEmail, systemEmail, secondaryID).Scan(&exists)
	return exists, err
}

func (r *PgUserRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, details domain.StatusDetails) error {
	const query = `
		UPDATE users
		SET registration_status = $2,
		    status_last_step = NULLIF($3, ''),
		    status_error = NULLIF($4, ''),
		    status_last_updated = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, string(details.LastStep), details.Error, details.LastUpdated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	const query = `
		UPDATE users
		SET verification_token = $2, verification_expires = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, token, expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) MarkVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	const query = `
		UPDATE users
		SET is_verified = TRUE,
		    verification_token = NULL,
		    verification_expires = NULL,
		    verified_at = $2
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, verifiedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u           domain.User
		secondaryID *string
		lastStep    *string
		statusErr   *string
		token       *string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.SystemEmail,
		&u.PersonalEmail,
		&u.PasswordHash,
		&secondaryID,
		&u.RegistrationStatus,
		&lastStep,
		&statusErr,
		&u.StatusDetails.LastUpdated,
		&u.IsVerified,
		&token,
		&u.VerificationExpires,
		&u.CreatedAt,
		&u.VerifiedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if secondaryID != nil {
		u.SecondaryID = *secondaryID
	}
	if lastStep != nil {
		u.StatusDetails.LastStep = domain.Status(*lastStep)
	}
	if statusErr != nil {
		u.StatusDetails.Error = *statusErr
	}
	if token != nil {
		u.VerificationToken = *token
	}
	return u, nil
}

// mapUniqueViolation traduce SQLSTATE 23505 a ErrDuplicate.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
