package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
)

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"correlation header", map[string]string{"X-Correlation-ID": "abc-123"}, "abc-123"},
		{"request id fallback", map[string]string{"X-Request-ID": "req-9"}, "req-9"},
		{"oversized header replaced", map[string]string{"X-Correlation-ID": strings.Repeat("x", 200)}, ""},
		{"generated", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)

			echoed := resp.Header.Get("X-Correlation-ID")
			require.NotEmpty(t, echoed)
			require.LessOrEqual(t, len(echoed), 128)
			if tc.want != "" {
				require.Equal(t, tc.want, echoed)
			}
		})
	}
}
