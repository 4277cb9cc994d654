// Package auth implements the three authentication schemes the API
// accepts — Steam OpenID browser sessions, JWT bearer tokens issued to
// approved game servers, and static API keys for service accounts — plus
// the permission-based authorization check shared by all three.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/perms"
	"github.com/kz-go/kz-api/internal/steamid"
)

var (
	// ErrUnauthenticated is returned when no credential, or an invalid
	// one, was presented.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden is returned when a credential is valid but lacks the
	// permission the operation requires.
	ErrForbidden = errors.New("auth: forbidden")
)

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	SteamID         steamid.ID
	Permissions     perms.Flags
	ServerID        *uint64 // set only for a game-server JWT identity
	PluginVersionID uint64  // set only for a game-server JWT identity
	ServiceName     string  // set only for a scheme-C API key identity
}

// HasPermission reports whether the identity carries every bit in want.
func (id Identity) HasPermission(want perms.Flags) bool {
	return id.Permissions.Contains(want)
}

// Service issues and validates sessions, server JWTs, and API keys.
type Service struct {
	db        *database.DB
	jwtSecret []byte
	jwtTTL    time.Duration
	sessionTTL time.Duration
}

// New builds a Service.
func New(db *database.DB, jwtSecret []byte, jwtTTL, sessionTTL time.Duration) *Service {
	return &Service{db: db, jwtSecret: jwtSecret, jwtTTL: jwtTTL, sessionTTL: sessionTTL}
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSession opens a new browser session for an authenticated Steam
// login, creating the user row on first login.
func (s *Service) CreateSession(ctx context.Context, id steamid.ID, username string) (models.Session, error) {
	var session models.Session
	username = norm.NFC.String(username)

	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		user := models.User{SteamID: id, Username: username}
		if err := tx.Where(models.User{SteamID: id}).
			Assign(models.User{Username: username}).
			FirstOrCreate(&user).Error; err != nil {
			return err
		}

		now := time.Now()
		user.LastLoginAt = &now
		if err := tx.Model(&models.User{}).Where("steam_id = ?", id).
			Update("last_login_at", now).Error; err != nil {
			return err
		}

		sessionID, err := randomHex(16)
		if err != nil {
			return err
		}

		session = models.Session{
			ID:        sessionID,
			UserID:    id,
			ExpiresAt: now.Add(s.sessionTTL),
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		return models.Session{}, database.Classify(err)
	}
	return session, nil
}

// Authenticate resolves a session id (from the kz-auth cookie) to an
// Identity, rejecting expired sessions.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (Identity, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, database.Classify(err))
	}
	if !session.Live(time.Now()) {
		return Identity{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "steam_id = ?", session.UserID).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, database.Classify(err))
	}

	return Identity{SteamID: user.SteamID, Permissions: user.Permissions}, nil
}

// serverClaims is the payload embedded in a game server's JWT.
type serverClaims struct {
	jwt.RegisteredClaims
	ServerID        uint64 `json:"server_id"`
	PluginVersionID uint64 `json:"plugin_version_id"`
}

// IssueServerToken mints a bearer token a game server presents on every
// subsequent request, scoped to ttl and carrying the plugin version that
// requested it so handlers can gate behavior on the calling plugin build.
func (s *Service) IssueServerToken(serverID, pluginVersionID uint64) (string, error) {
	now := time.Now()
	claims := serverClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
			Subject:   fmt.Sprintf("server:%d", serverID),
		},
		ServerID:        serverID,
		PluginVersionID: pluginVersionID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// AuthenticateServerToken validates a game server's bearer token and
// resolves it to an Identity scoped to that server and the owning user's
// permissions.
func (s *Service) AuthenticateServerToken(ctx context.Context, raw string) (Identity, error) {
	var claims serverClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var server models.Server
	if err := s.db.WithContext(ctx).First(&server, "id = ?", claims.ServerID).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, database.Classify(err))
	}

	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "steam_id = ?", server.OwnerSteamID).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, database.Classify(err))
	}

	serverID := server.ID
	return Identity{
		SteamID:         owner.SteamID,
		Permissions:     owner.Permissions,
		ServerID:        &serverID,
		PluginVersionID: claims.PluginVersionID,
	}, nil
}

// AuthenticateAPIKey resolves a static API key (used by CI-style
// publishers) to an Identity. API-key identities carry no SteamID or
// permission bitmask — the service name itself is the thing a handler
// authorizes against (e.g. matching it against the configured plugin
// release publisher).
func (s *Service) AuthenticateAPIKey(ctx context.Context, key string) (Identity, error) {
	var apiKey models.ApiKey
	if err := s.db.WithContext(ctx).First(&apiKey, "key = ?", key).Error; err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, database.Classify(err))
	}
	if !apiKey.Live(time.Now()) {
		return Identity{}, fmt.Errorf("%w: api key expired", ErrUnauthenticated)
	}
	return Identity{ServiceName: apiKey.ServiceName}, nil
}

// Logout invalidates a single session by setting its ExpiresAt to now.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("expires_at", time.Now()).Error
	return database.Classify(err)
}

// LogoutAllSessions invalidates every session owned by userID, used when a
// browser session's "invalidate_all" flag is set on logout.
func (s *Service) LogoutAllSessions(ctx context.Context, userID steamid.ID) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ?", userID).
		Update("expires_at", time.Now()).Error
	return database.Classify(err)
}

// Require checks id against want, returning ErrForbidden if it falls short.
func Require(id Identity, want perms.Flags) error {
	if !id.HasPermission(want) {
		return fmt.Errorf("%w: requires %s", ErrForbidden, want)
	}
	return nil
}

// RequireService checks that id is a scheme-C identity whose ServiceName
// matches want, used to gate CI-publisher-only endpoints such as plugin
// version publication.
func RequireService(id Identity, want string) error {
	if id.ServiceName == "" || id.ServiceName != want {
		return fmt.Errorf("%w: requires service %q", ErrForbidden, want)
	}
	return nil
}

// RequireServerOwner additionally checks that id is the server identified
// by serverID (either the game server's own token, or an admin with the
// Servers permission).
func RequireServerOwner(id Identity, serverID uint64, adminOverride perms.Flags) error {
	if id.ServerID != nil && *id.ServerID == serverID {
		return nil
	}
	if id.HasPermission(adminOverride) {
		return nil
	}
	return fmt.Errorf("%w: not server %d", ErrForbidden, serverID)
}
