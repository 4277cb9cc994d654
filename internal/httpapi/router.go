package httpapi

import (
	"encoding/base64"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/kz-go/kz-api/internal/auth"
	"github.com/kz-go/kz-api/internal/bansvc"
	"github.com/kz-go/kz-api/internal/mapsvc"
	"github.com/kz-go/kz-api/internal/perms"
	"github.com/kz-go/kz-api/internal/recordsvc"
	"github.com/kz-go/kz-api/internal/serversvc"
	"github.com/kz-go/kz-api/internal/steamgw"
)

// Services bundles every service the HTTP surface dispatches to.
type Services struct {
	Auth                *auth.Service
	Steam               *steamgw.Gateway
	Maps                *mapsvc.Service
	Servers             *serversvc.Service
	Records             *recordsvc.Service
	Bans                *bansvc.Service
	CookieCfg           CookieConfig
	PluginReleaseService string // ServiceName allowed to publish plugin versions
}

// CookieConfig controls the session/player cookie policy.
type CookieConfig struct {
	Domain     string
	Secure     bool
	MaxAgeAuth int // seconds
	MaxAge     int // seconds
}

// NewApp builds the Fiber application with every route group registered.
func NewApp(svc Services, allowedOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024,
	})

	app.Use(Recover())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	registerAuthRoutes(app, svc)
	registerMapRoutes(app, svc)
	registerServerRoutes(app, svc)
	registerPluginRoutes(app, svc)
	registerRecordRoutes(app, svc)
	registerBanRoutes(app, svc)

	return app
}

func registerAuthRoutes(app *fiber.App, svc Services) {
	g := app.Group("/auth")

	g.Get("/login", func(c *fiber.Ctx) error {
		state := c.Query("redirect_to")
		return c.Redirect(svc.Steam.LoginURL(state))
	})

	g.Get("/callback", func(c *fiber.Ctx) error {
		id, err := svc.Steam.VerifyCallback(c.Context(), toURLValues(c.Queries()))
		if err != nil {
			return writeProblem(c, ProblemInvalidOpenIDPayload, "invalid openid payload", err.Error())
		}

		profile, err := svc.Steam.PlayerSummary(c.Context(), id)
		if err != nil {
			return writeProblem(c, ProblemExternalService, "failed to fetch steam profile", err.Error())
		}

		session, err := svc.Auth.CreateSession(c.Context(), id, profile.PersonaName)
		if err != nil {
			return classifyError(c, err)
		}

		setSessionCookies(c, svc.CookieCfg, session.ID, profile)
		return c.Redirect(c.Query("state", "/"))
	})

	g.Post("/logout", SessionAuth(svc.Auth), func(c *fiber.Ctx) error {
		var body struct {
			InvalidateAll bool `json:"invalidate_all"`
		}
		_ = c.BodyParser(&body) // absent body is a valid single-session logout

		identity := identityFromCtx(c)
		sessionID := c.Cookies(sessionCookieName)

		var err error
		if body.InvalidateAll {
			err = svc.Auth.LogoutAllSessions(c.Context(), identity.SteamID)
		} else {
			err = svc.Auth.Logout(c.Context(), sessionID)
		}
		if err != nil {
			return classifyError(c, err)
		}

		clearSessionCookies(c, svc.CookieCfg)
		return c.SendStatus(fiber.StatusNoContent)
	})

	g.Post("/refresh-token", func(c *fiber.Ctx) error {
		if err := requireJSONBody(c); err != nil {
			return err
		}

		var body struct {
			APIKey          string `json:"api_key"`
			PluginVersionID uint64 `json:"plugin_version_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		server, err := svc.Servers.RefreshToken(c.Context(), body.APIKey, body.PluginVersionID)
		if err != nil {
			return classifyError(c, err)
		}

		token, err := svc.Auth.IssueServerToken(server.ID, body.PluginVersionID)
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(fiber.Map{"token": token})
	})
}

func registerMapRoutes(app *fiber.App, svc Services) {
	g := app.Group("/maps", SessionAuth(svc.Auth))

	g.Post("/", RequirePermission(perms.Maps), func(c *fiber.Ctx) error {
		if err := requireJSONBody(c); err != nil {
			return err
		}

		var in mapsvc.CreateMapInput
		if err := c.BodyParser(&in); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		m, err := svc.Maps.CreateMap(c.Context(), in)
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	g.Put("/:id", RequirePermission(perms.Maps), func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid map id", err.Error())
		}

		if err := requireJSONBody(c); err != nil {
			return err
		}

		var in mapsvc.UpdateMapInput
		if err := c.BodyParser(&in); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}
		in.MapID = uint64(id)

		if err := svc.Maps.UpdateMap(c.Context(), in); err != nil {
			return classifyError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	g.Get("/courses/:id/filters", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid course id", err.Error())
		}

		filters, err := svc.Maps.CourseFilters(c.Context(), uint64(id))
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(filters)
	})
}

func registerServerRoutes(app *fiber.App, svc Services) {
	g := app.Group("/servers", SessionAuth(svc.Auth))

	g.Post("/", RequirePermission(perms.Servers), func(c *fiber.Ctx) error {
		if err := requireJSONBody(c); err != nil {
			return err
		}

		var body struct {
			Name  string `json:"name"`
			Host  string `json:"host"`
			Port  uint16 `json:"port"`
			Owner uint64 `json:"owner_steam_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		owner, err := steamIDFromUint64(body.Owner)
		if err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "invalid owner steam id", err.Error())
		}

		server, err := svc.Servers.Approve(c.Context(), body.Name, body.Host, body.Port, owner)
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(server)
	})

	g.Post("/:id/regenerate-key", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid server id", err.Error())
		}

		identity := identityFromCtx(c)
		if err := auth.RequireServerOwner(identity, uint64(id), perms.Servers); err != nil {
			return classifyError(c, err)
		}

		key, err := svc.Servers.RegenerateKey(c.Context(), uint64(id))
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(fiber.Map{"api_key": key})
	})
}

// registerPluginRoutes exposes plugin-version publication to whichever
// scheme-C service identity is configured as the release publisher.
func registerPluginRoutes(app *fiber.App, svc Services) {
	g := app.Group("/plugin", APIKeyAuth(svc.Auth), RequireServiceName(svc.PluginReleaseService))

	g.Post("/versions", func(c *fiber.Ctx) error {
		if err := requireJSONBody(c); err != nil {
			return err
		}

		var body struct {
			Semver      string `json:"semver"`
			GitRevision string `json:"git_revision"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		version, err := svc.Servers.PublishPluginVersion(c.Context(), body.Semver, body.GitRevision)
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(version)
	})
}

func registerRecordRoutes(app *fiber.App, svc Services) {
	g := app.Group("/records", BearerAuth(svc.Auth))

	g.Post("/", func(c *fiber.Ctx) error {
		var body struct {
			PlayerID       uint64  `json:"player_id"`
			FilterID       uint64  `json:"filter_id"`
			StyleFlags     uint32  `json:"style_flags"`
			TeleportsUsed  uint32  `json:"teleports_used"`
			TimeSeconds    float64 `json:"time_seconds"`
			BhopPerfs      uint32  `json:"bhop_perfs"`
			BhopTotalJumps uint32  `json:"bhop_total_jumps"`
			Replay         string  `json:"replay,omitempty"` // base64, optional
		}
		if err := requireJSONBody(c); err != nil {
			return err
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		playerID, err := steamIDFromUint64(body.PlayerID)
		if err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "invalid player id", err.Error())
		}

		identity := identityFromCtx(c)
		if identity.ServerID == nil {
			return writeProblemStatus(c, ProblemUnauthorized, 401, "authentication required", "no server identity on token", nil)
		}

		var replay []byte
		if body.Replay != "" {
			replay, err = base64.StdEncoding.DecodeString(body.Replay)
			if err != nil {
				return writeProblem(c, ProblemInvalidRequestBody, "malformed replay payload", err.Error())
			}
		}

		record, err := svc.Records.Submit(c.Context(), recordsvc.SubmitInput{
			PlayerID:        playerID,
			FilterID:        body.FilterID,
			ServerID:        *identity.ServerID,
			PluginVersionID: identity.PluginVersionID,
			StyleFlags:      body.StyleFlags,
			TeleportsUsed:   body.TeleportsUsed,
			TimeSeconds:     body.TimeSeconds,
			BhopPerfs:       body.BhopPerfs,
			BhopTotalJumps:  body.BhopTotalJumps,
			Replay:          replay,
		})
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(record)
	})

	g.Get("/:id/replay", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid record id", err.Error())
		}

		url, err := svc.Records.ReplayURL(c.Context(), uint64(id))
		if err != nil {
			return classifyError(c, err)
		}
		return c.Redirect(url, fiber.StatusFound)
	})

	g.Get("/filters/:id/scores", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid filter id", err.Error())
		}

		filter, err := svc.Maps.GetFilter(c.Context(), uint64(id))
		if err != nil {
			return classifyError(c, err)
		}

		scored, err := svc.Records.ScoreFilter(c.Context(), uint64(id), filter.Tier, !filter.Teleports)
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(scored)
	})
}

func registerBanRoutes(app *fiber.App, svc Services) {
	g := app.Group("/bans", SessionAuth(svc.Auth), RequirePermission(perms.Bans))

	g.Get("/", func(c *fiber.Ctx) error {
		bans, err := svc.Bans.ListActiveBans(c.Context())
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(bans)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid ban id", err.Error())
		}

		ban, err := svc.Bans.GetBan(c.Context(), uint64(id))
		if err != nil {
			return classifyError(c, err)
		}
		return c.JSON(ban)
	})

	g.Post("/", func(c *fiber.Ctx) error {
		if err := requireJSONBody(c); err != nil {
			return err
		}

		var body struct {
			PlayerID uint64 `json:"player_id"`
			Reason   string `json:"reason"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		playerID, err := steamIDFromUint64(body.PlayerID)
		if err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "invalid player id", err.Error())
		}

		identity := identityFromCtx(c)
		bannedBy := identity.SteamID
		ban, err := svc.Bans.Issue(c.Context(), bansvc.IssueInput{
			PlayerID: playerID,
			Reason:   body.Reason,
			BannedBy: &bannedBy,
		})
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(ban)
	})

	g.Post("/:id/revert", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return writeProblem(c, ProblemInvalidPathParameters, "invalid ban id", err.Error())
		}

		if err := requireJSONBody(c); err != nil {
			return err
		}

		var body struct {
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeProblem(c, ProblemInvalidRequestBody, "malformed request body", err.Error())
		}

		identity := identityFromCtx(c)
		unbannedBy := identity.SteamID
		unban, err := svc.Bans.Revert(c.Context(), uint64(id), body.Reason, &unbannedBy)
		if err != nil {
			return classifyError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(unban)
	})
}
