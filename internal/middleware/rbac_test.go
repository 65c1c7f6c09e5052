package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRequireRole(t *testing.T) {
	newApp := func(role interface{}) *fiber.App {
		app := fiber.New()
		app.Use(func(c *fiber.Ctx) error {
			if role != nil {
				c.Locals("user_role", role)
			}
			return c.Next()
		})
		app.Get("/guarded", RequireRole("hr", "admin"), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		return app
	}

	cases := []struct {
		name       string
		role       interface{}
		wantStatus int
	}{
		{"allowed role", "hr", fiber.StatusOK},
		{"second allowed role", "admin", fiber.StatusOK},
		{"role casing normalized", "  HR ", fiber.StatusOK},
		{"disallowed role", "tutor", fiber.StatusForbidden},
		{"missing role", nil, fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp(tc.role)
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil))
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}
}
