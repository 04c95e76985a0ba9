package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Role names. These match the role column on users and the role claim in
// tokens.
const (
	RolePatient       = "patient"
	RoleDoctor        = "doctor"
	RoleHospitalAdmin = "hospital_admin"
	RolePharmacy      = "pharmacy"
	RoleLabTech       = "lab_tech"
	RoleSuperAdmin    = "super_admin"
)

var knownRoles = map[string]bool{
	RolePatient:       true,
	RoleDoctor:        true,
	RoleHospitalAdmin: true,
	RolePharmacy:      true,
	RoleLabTech:       true,
	RoleSuperAdmin:    true,
}

// ValidRole reports whether name is a recognized role.
func ValidRole(name string) bool {
	return knownRoles[name]
}

// RequireRole returns middleware that admits a caller whose role is in the
// permitted set. A super admin passes every gate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleSuperAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// IsAdmin reports whether the role bypasses ownership checks.
func IsAdmin(role string) bool {
	return role == RoleSuperAdmin
}
