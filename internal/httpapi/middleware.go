package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kz-go/kz-api/internal/auth"
	"github.com/kz-go/kz-api/internal/perms"
)

const (
	sessionCookieName = "kz-auth"
	playerCookieName  = "kz-player"
)

// identityKey is the fiber.Locals key an authenticated request's Identity
// is stored under.
const identityKey = "identity"

// SessionAuth resolves the kz-auth cookie into an Identity and stores it
// in locals. Missing or expired sessions produce a 401 problem response.
func SessionAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(sessionCookieName)
		if sessionID == "" {
			return writeProblemStatus(c, ProblemUnauthorized, 401, "authentication required", "missing kz-auth cookie", nil)
		}

		identity, err := authSvc.Authenticate(c.Context(), sessionID)
		if err != nil {
			return classifyError(c, err)
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// authHeaderBearer splits an Authorization header into its scheme and
// credential, reporting whether the scheme was exactly "Bearer".
func authHeaderBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

// BearerAuth resolves an Authorization: Bearer <jwt> header issued to a
// game server into an Identity.
func BearerAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return writeProblem(c, ProblemMissingHeader, "missing Authorization header", "expected Authorization: Bearer <token>")
		}
		token, ok := authHeaderBearer(header)
		if !ok {
			return writeProblem(c, ProblemInvalidHeader, "malformed Authorization header", "expected Authorization: Bearer <token>")
		}

		identity, err := authSvc.AuthenticateServerToken(c.Context(), token)
		if err != nil {
			return classifyError(c, err)
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// APIKeyAuth resolves an Authorization: Bearer <api-key> header into a
// scheme-C service identity, used by CI-style publishers.
func APIKeyAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return writeProblem(c, ProblemMissingHeader, "missing Authorization header", "expected Authorization: Bearer <api-key>")
		}
		key, ok := authHeaderBearer(header)
		if !ok {
			return writeProblem(c, ProblemInvalidHeader, "malformed Authorization header", "expected Authorization: Bearer <api-key>")
		}

		identity, err := authSvc.AuthenticateAPIKey(c.Context(), key)
		if err != nil {
			return classifyError(c, err)
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// RequireServiceName returns middleware enforcing that the request's
// Identity (attached by APIKeyAuth) is the named service.
func RequireServiceName(want string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := c.Locals(identityKey).(auth.Identity)
		if err := auth.RequireService(identity, want); err != nil {
			return classifyError(c, err)
		}
		return c.Next()
	}
}

// RequirePermission returns middleware enforcing that the request's
// Identity (attached by SessionAuth or BearerAuth) carries want.
func RequirePermission(want perms.Flags) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := c.Locals(identityKey).(auth.Identity)
		if err := auth.Require(identity, want); err != nil {
			return classifyError(c, err)
		}
		return c.Next()
	}
}

// identityFromCtx fetches the Identity attached by an auth middleware.
func identityFromCtx(c *fiber.Ctx) auth.Identity {
	identity, _ := c.Locals(identityKey).(auth.Identity)
	return identity
}

// Recover converts a panicking handler into an internal problem-details
// response instead of crashing the connection.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = writeProblem(c, ProblemInternal, "internal server error", "")
			}
		}()
		return c.Next()
	}
}
