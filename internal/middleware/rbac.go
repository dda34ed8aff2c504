package middleware

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// RequireRole guards a route group so only the listed roles reach it.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		normalized := normalizeRoleValue(role)
		if normalized == "" {
			continue
		}
		if _, seen := allowed[normalized]; !seen {
			allowed[normalized] = struct{}{}
			names = append(names, normalized)
		}
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[normalizeRoleValue(c.Locals("user_role"))]; ok {
			return c.Next()
		}
		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"allowed_roles": names})
	}
}

func normalizeRoleValue(value interface{}) string {
	var raw string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		raw = v
	case fmt.Stringer:
		raw = v.String()
	default:
		raw = fmt.Sprint(v)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
