package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is the credential record shared by every role. The role column decides
// which profile table carries the rest of the identity.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	IsActive            bool       `json:"is_active"`
	Status              string     `json:"status"`
	ResetToken          *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type Patient struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Gender        *string    `json:"gender,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Address       *string    `json:"address,omitempty"`
	NextOfKinName *string    `json:"next_of_kin_name,omitempty"`
	NextOfKinPhone *string   `json:"next_of_kin_phone,omitempty"`
}

type Doctor struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	HospitalID     *uuid.UUID `json:"hospital_id,omitempty"`
	LicenseNumber  *string    `json:"license_number,omitempty"`
	Specialization *string    `json:"specialization,omitempty"`
	IsVerified     bool       `json:"is_verified"`
	IsActive       bool       `json:"is_active"`
}

type Pharmacy struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	HospitalID    *uuid.UUID `json:"hospital_id,omitempty"`
	Name          string     `json:"name"`
	Location      *string    `json:"location,omitempty"`
	LicenseNumber *string    `json:"license_number,omitempty"`
	IsVerified    bool       `json:"is_verified"`
}

type Technician struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}
