package hospital

import (
	"time"

	"github.com/google/uuid"
)

// Hospital is the organization record behind a hospital_admin account.
// Staff profiles reference it through hospital_id.
type Hospital struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Name            string    `json:"name"`
	Location        *string   `json:"location,omitempty"`
	LicenseNumber   *string   `json:"license_number,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	AgreementSigned bool      `json:"agreement_signed"`
	CreatedAt       time.Time `json:"created_at"`
}
