// Package config loads the hierarchical configuration document described by
// the deployment's --config file, CLI flags, and environment variables,
// following the flag->viper binding pattern used elsewhere in the corpus.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Environment selects the CORS policy and cookie Secure flag.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
)

// Server holds the HTTP listener settings.
type Server struct {
	IP   string
	Port int
}

// Database holds the Postgres connection settings.
type Database struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// SteamAuth holds the OpenID + Steam Web API settings.
type SteamAuth struct {
	WebAPIKey  string
	PublicURL  string
	ReturnPath string
}

// Cookies holds the kz-auth/kz-player cookie policy.
type Cookies struct {
	Domain    string
	MaxAge    time.Duration
	MaxAgeAuth time.Duration
}

// DepotDownloader holds the workshop-download subprocess settings.
type DepotDownloader struct {
	BinaryPath string
	OutputDir  string
	CacheTTL   time.Duration
}

// Runtime holds scheduler/pool tuning knobs.
type Runtime struct {
	MaxConnections      int
	LivenessInterval     time.Duration
	PointsQueueCapacity  int
	StatsBinaryPath      string
	JWTSecret            string
	JWTTTL               time.Duration
}

// Tracing holds logging verbosity settings; a full tracing/metrics
// collector is out of scope, but the level logging is configured at
// isn't.
type Tracing struct {
	Level string
}

// AccessKeys holds named bearer tokens for CI-style publishers (scheme C).
type AccessKeys struct {
	PluginReleaseKey string
}

// Replay holds the R2/S3-compatible bucket settings replay blobs are
// stored in.
type Replay struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Config is the fully-resolved, hierarchical configuration document.
type Config struct {
	Environment     Environment
	Server          Server
	Database        Database
	SteamAuth       SteamAuth
	Cookies         Cookies
	DepotDownloader DepotDownloader
	Runtime         Runtime
	Tracing         Tracing
	AccessKeys      AccessKeys
	Replay          Replay
}

// Load resolves Config from whatever viper has been populated with by the
// caller (file, flags, env — see cmd/kz-api/main.go for the binding order).
func Load(v *viper.Viper) (Config, error) {
	env := Environment(v.GetString("environment"))
	switch env {
	case EnvLocal, EnvStaging, EnvProduction:
	case "":
		env = EnvLocal
	default:
		return Config{}, fmt.Errorf("config: unknown environment %q", env)
	}

	cfg := Config{
		Environment: env,
		Server: Server{
			IP:   v.GetString("server.ip"),
			Port: v.GetInt("server.port"),
		},
		Database: Database{
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max-open-conns"),
			MaxIdleConns: v.GetInt("database.max-idle-conns"),
		},
		SteamAuth: SteamAuth{
			WebAPIKey:  v.GetString("steam-auth.web-api-key"),
			PublicURL:  v.GetString("steam-auth.public-url"),
			ReturnPath: v.GetString("steam-auth.return-path"),
		},
		Cookies: Cookies{
			Domain:     v.GetString("cookies.domain"),
			MaxAge:     v.GetDuration("cookies.max-age"),
			MaxAgeAuth: v.GetDuration("cookies.max-age-auth"),
		},
		DepotDownloader: DepotDownloader{
			BinaryPath: v.GetString("depot-downloader.binary-path"),
			OutputDir:  v.GetString("depot-downloader.output-dir"),
			CacheTTL:   v.GetDuration("depot-downloader.cache-ttl"),
		},
		Runtime: Runtime{
			MaxConnections:     v.GetInt("runtime.max-connections"),
			LivenessInterval:   v.GetDuration("runtime.liveness-interval"),
			PointsQueueCapacity: v.GetInt("runtime.points-queue-capacity"),
			StatsBinaryPath:    v.GetString("runtime.stats-binary-path"),
			JWTSecret:          v.GetString("runtime.jwt-secret"),
			JWTTTL:             v.GetDuration("runtime.jwt-ttl"),
		},
		Tracing: Tracing{
			Level: v.GetString("tracing.level"),
		},
		AccessKeys: AccessKeys{
			PluginReleaseKey: v.GetString("access-keys.plugin-release-key"),
		},
		Replay: Replay{
			AccountID:       v.GetString("replay.account-id"),
			AccessKeyID:     v.GetString("replay.access-key-id"),
			AccessKeySecret: v.GetString("replay.access-key-secret"),
			Bucket:          v.GetString("replay.bucket"),
		},
	}

	if cfg.Runtime.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: runtime.jwt-secret is required")
	}

	return cfg, nil
}

// SetDefaults registers default values on v for the keys that have one.
// Keys without a default (such as runtime.jwt-secret, which Load requires)
// must still come from the config file, flags, or environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(EnvLocal))
	v.SetDefault("server.ip", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.max-open-conns", 0) // 0 => runtime.NumCPU()*2
	v.SetDefault("database.max-idle-conns", 0)
	v.SetDefault("steam-auth.return-path", "/auth/callback")
	v.SetDefault("cookies.domain", "")
	v.SetDefault("cookies.max-age", 3*30*24*time.Hour)
	v.SetDefault("cookies.max-age-auth", 7*24*time.Hour)
	v.SetDefault("depot-downloader.binary-path", "DepotDownloaderMod")
	v.SetDefault("depot-downloader.output-dir", "/tmp/kz-workshop")
	v.SetDefault("depot-downloader.cache-ttl", time.Hour)
	v.SetDefault("runtime.liveness-interval", time.Minute)
	v.SetDefault("runtime.points-queue-capacity", 16)
	v.SetDefault("runtime.stats-binary-path", "kz-stats-fit")
	v.SetDefault("runtime.jwt-ttl", 30*time.Minute)
	v.SetDefault("tracing.level", "info")
	v.SetDefault("access-keys.plugin-release-key", "github:kz-metamod:release")
	v.SetDefault("replay.bucket", "kz-replays")
}
