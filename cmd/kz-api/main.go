package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kz-go/kz-api/internal/auth"
	"github.com/kz-go/kz-api/internal/bansvc"
	kzconfig "github.com/kz-go/kz-api/internal/config"
	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/httpapi"
	"github.com/kz-go/kz-api/internal/mapsvc"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/recordsvc"
	"github.com/kz-go/kz-api/internal/replaystore"
	"github.com/kz-go/kz-api/internal/serversvc"
	"github.com/kz-go/kz-api/internal/steamgw"
	"github.com/kz-go/kz-api/internal/steamid"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	v := viper.New()
	kzconfig.SetDefaults(v)

	rootCmd := &cobra.Command{
		Use:   "kz-api",
		Short: "KZ record and map service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	f := rootCmd.Flags()
	f.String("ip", "0.0.0.0", "listen address")
	f.Int("port", 8080, "listen port")
	f.String("config", "", "path to config file")

	_ = v.BindPFlag("server.ip", f.Lookup("ip"))
	_ = v.BindPFlag("server.port", f.Lookup("port"))

	v.SetEnvPrefix("kz_api")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		if path, _ := f.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				log.Fatalf("read config file: %v", err)
			}
		}
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := kzconfig.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Open(database.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.ApiKey{},
		&models.PluginVersion{},
		&models.Server{},
		&models.Map{},
		&models.Mapper{},
		&models.Course{},
		&models.CourseMapper{},
		&models.CourseFilter{},
		&models.Record{},
		&models.Ban{},
		&models.Unban{},
		&models.ReplayRef{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	steamGateway := steamgw.New(steamgw.Config{
		WebAPIKey:       cfg.SteamAuth.WebAPIKey,
		PublicURL:       cfg.SteamAuth.PublicURL,
		ReturnPath:      cfg.SteamAuth.ReturnPath,
		DepotBinaryPath: cfg.DepotDownloader.BinaryPath,
		DepotOutputDir:  cfg.DepotDownloader.OutputDir,
		CacheTTL:        cfg.DepotDownloader.CacheTTL,
	})
	steamGateway.StartCacheEvictor(ctx, cfg.DepotDownloader.CacheTTL)

	authSvc := auth.New(db, []byte(cfg.Runtime.JWTSecret), cfg.Runtime.JWTTTL, cfg.Cookies.MaxAgeAuth)
	mapSvc := mapsvc.New(db, steamGateway)

	serverSvc := serversvc.New(db, func(owner steamid.ID, server models.Server) {
		log.Printf("server %s (%s:%d) is very_dead, owner %s", server.Name, server.Host, server.Port, owner)
	})
	serverSvc.StartLivenessMonitor(ctx, cfg.Runtime.LivenessInterval)

	banSvc := bansvc.New(db)

	replayStore, err := replaystore.New(ctx, replaystore.Config{
		AccountID:       cfg.Replay.AccountID,
		AccessKeyID:     cfg.Replay.AccessKeyID,
		AccessKeySecret: cfg.Replay.AccessKeySecret,
		Bucket:          cfg.Replay.Bucket,
	})
	if err != nil {
		return fmt.Errorf("open replay store: %w", err)
	}

	recordSvc := recordsvc.New(db, recordsvc.NewStatsClient(cfg.Runtime.StatsBinaryPath), banSvc, replayStore)

	app := httpapi.NewApp(httpapi.Services{
		Auth:                 authSvc,
		Steam:                steamGateway,
		Maps:                 mapSvc,
		Servers:              serverSvc,
		Records:              recordSvc,
		Bans:                 banSvc,
		PluginReleaseService: cfg.AccessKeys.PluginReleaseKey,
		CookieCfg: httpapi.CookieConfig{
			Domain:     cfg.Cookies.Domain,
			Secure:     cfg.Environment == kzconfig.EnvProduction,
			MaxAgeAuth: int(cfg.Cookies.MaxAgeAuth.Seconds()),
			MaxAge:     int(cfg.Cookies.MaxAge.Seconds()),
		},
	}, corsOriginsForEnv(cfg.Environment))

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port)
		if err := app.Listen(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	log.Printf("kz-api listening on %s:%d (%s)", cfg.Server.IP, cfg.Server.Port, cfg.Environment)

	<-shutdownCtx.Done()
	log.Println("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return app.ShutdownWithContext(stopCtx)
}

func corsOriginsForEnv(env kzconfig.Environment) string {
	switch env {
	case kzconfig.EnvProduction:
		return "https://kz.example.com"
	case kzconfig.EnvStaging:
		return "https://staging.kz.example.com"
	default:
		return "http://localhost:3000"
	}
}
