package httpapi

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kz-go/kz-api/internal/steamgw"
	"github.com/kz-go/kz-api/internal/steamid"
)

// requireJSONBody rejects requests with no (or the wrong) Content-Type,
// whether or not they carry a body, per the API's requirement that JSON
// bodies always declare application/json.
func requireJSONBody(c *fiber.Ctx) error {
	ct := c.Get("Content-Type")
	if ct == "" {
		return writeProblem(c, ProblemNoContent, "missing Content-Type", "expected Content-Type: application/json")
	}
	if !strings.HasPrefix(ct, "application/json") {
		return writeProblem(c, ProblemInvalidHeader, "unsupported Content-Type", "expected Content-Type: application/json")
	}
	return nil
}

func toURLValues(query map[string]string) url.Values {
	values := make(url.Values, len(query))
	for k, v := range query {
		values.Set(k, v)
	}
	return values
}

func steamIDFromUint64(raw uint64) (steamid.ID, error) {
	return steamid.New(raw)
}

const (
	cookieSameSiteStrict = "Strict"
	cookieSameSiteLax    = "Lax"
)

func setSessionCookies(c *fiber.Ctx, cfg CookieConfig, sessionID string, profile steamgw.PlayerSummary) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Domain:   cfg.Domain,
		Path:     "/",
		MaxAge:   cfg.MaxAgeAuth,
		HTTPOnly: true,
		Secure:   cfg.Secure,
		SameSite: cookieSameSiteStrict,
	})

	playerJSON, _ := json.Marshal(profile)
	c.Cookie(&fiber.Cookie{
		Name:     playerCookieName,
		Value:    string(playerJSON),
		Domain:   cfg.Domain,
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HTTPOnly: false,
		Secure:   cfg.Secure,
		SameSite: cookieSameSiteLax,
	})
}

func clearSessionCookies(c *fiber.Ctx, cfg CookieConfig) {
	expired := time.Now().Add(-time.Hour)
	c.Cookie(&fiber.Cookie{Name: sessionCookieName, Value: "", Domain: cfg.Domain, Path: "/", Expires: expired, HTTPOnly: true})
	c.Cookie(&fiber.Cookie{Name: playerCookieName, Value: "", Domain: cfg.Domain, Path: "/", Expires: expired})
}
