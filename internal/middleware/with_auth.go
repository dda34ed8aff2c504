package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleStaff   = "staff"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role string
	// RequireUser is implied for every role other than AuthRoleAny.
	RequireUser bool
	// AllowAnonymous lets AuthRoleAny routes through without a user.
	AllowAnonymous bool
}

var roleMatchers = map[string]func(string) bool{
	AuthRoleStudent: func(role string) bool { return role == "student" },
	AuthRoleStaff:   func(role string) bool { return role == "admin" || role == "teacher" },
}

// WithAuth wraps a handler with authentication and role guards. A missing
// user yields 401, a role mismatch 403.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser || role != AuthRoleAny || !opts.AllowAnonymous

	matches, known := roleMatchers[role]
	if !known {
		matches = func(current string) bool { return role == AuthRoleAny || current == role }
	}

	return func(c *fiber.Ctx) error {
		if requireUser && c.Locals("user_id") == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if !matches(normalizeRoleValue(c.Locals("user_role"))) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}

		return handler(c)
	}
}
