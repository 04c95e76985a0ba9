package invite

import (
	"time"

	"github.com/google/uuid"
)

// PendingUser is a staff invitation. The token is single use: once
// accepted the row stays for bookkeeping but can never activate again.
type PendingUser struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	HospitalID  *uuid.UUID `json:"hospital_id,omitempty"`
	InviteToken string     `json:"-"`
	IsAccepted  bool       `json:"is_accepted"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}
