package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Staff roles. The enum is closed: tokens carrying anything else are rejected
// at the door.
const (
	RoleSuperAdmin    = "super_admin"
	RoleAdmin         = "admin"
	RoleReceptionist  = "receptionist"
	RoleNurse         = "nurse"
	RoleDoctor        = "doctor"
	RoleLabTechnician = "lab_technician"
	RoleRadiologist   = "radiologist"
	RolePharmacist    = "pharmacist"
	RoleCashier       = "cashier"
)

var knownRoles = map[string]bool{
	RoleSuperAdmin:    true,
	RoleAdmin:         true,
	RoleReceptionist:  true,
	RoleNurse:         true,
	RoleDoctor:        true,
	RoleLabTechnician: true,
	RoleRadiologist:   true,
	RolePharmacist:    true,
	RoleCashier:       true,
}

// ValidRole reports whether role is one of the closed staff role enum values.
func ValidRole(role string) bool {
	return knownRoles[role]
}

// RequireRole returns middleware that checks if the actor holds one of the
// specified roles. super_admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if actor.Role == RoleSuperAdmin {
				return next(c)
			}
			for _, required := range roles {
				if actor.Role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
