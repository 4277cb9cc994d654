// Package serversvc implements game-server approval, API-key rotation, and
// the background liveness state machine that tracks whether a server is
// still sending heartbeats.
package serversvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/steamid"
)

var (
	ErrNameTaken     = errors.New("serversvc: server name already taken")
	ErrHostPortTaken = errors.New("serversvc: server host/port already taken")
	ErrOwnerMissing  = errors.New("serversvc: owner does not exist")
	ErrOutdatedVersion = errors.New("serversvc: submitted plugin version is not the latest")
)

const (
	aliveToDeadThreshold    = 15 * time.Minute
	deadToVeryDeadThreshold = 6 * time.Hour
)

// Service implements approval, key rotation, and liveness tracking.
type Service struct {
	db             *database.DB
	monitorStarted sync.Once
	scheduler      gocron.Scheduler
	notify         func(owner steamid.ID, server models.Server)
}

// New builds a Service. notify is invoked when a server transitions into
// very_dead; pass nil to disable notification.
func New(db *database.DB, notify func(owner steamid.ID, server models.Server)) *Service {
	if notify == nil {
		notify = func(steamid.ID, models.Server) {}
	}
	return &Service{db: db, notify: notify}
}

// randomAPIKey generates a fresh 128-bit API key in UUID form, matching
// the api_key column's char(36) width.
func randomAPIKey() (string, error) {
	return uuid.New().String(), nil
}

// Approve registers a new server and returns it with a freshly generated
// API key.
func (s *Service) Approve(ctx context.Context, name, host string, port uint16, owner steamid.ID) (models.Server, error) {
	var server models.Server

	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var userCount int64
		if err := tx.Model(&models.User{}).Where("steam_id = ?", owner).Count(&userCount).Error; err != nil {
			return err
		}
		if userCount == 0 {
			return ErrOwnerMissing
		}

		apiKey, err := randomAPIKey()
		if err != nil {
			return err
		}

		server = models.Server{
			Name:         name,
			Host:         host,
			Port:         port,
			OwnerSteamID: owner,
			ApiKey:       apiKey,
			LastSeenAt:   time.Now(),
			Status:       models.ServerAlive,
		}
		return tx.Create(&server).Error
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "idx_servers_name":
				return models.Server{}, ErrNameTaken
			case "idx_servers_host_port":
				return models.Server{}, ErrHostPortTaken
			}
		}
		return models.Server{}, database.Classify(err)
	}
	return server, nil
}

// RegenerateKey atomically replaces a server's API key.
func (s *Service) RegenerateKey(ctx context.Context, serverID uint64) (string, error) {
	newKey, err := randomAPIKey()
	if err != nil {
		return "", err
	}

	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		return tx.Model(&models.Server{}).Where("id = ?", serverID).Update("api_key", newKey).Error
	})
	if err != nil {
		return "", database.Classify(err)
	}
	return newKey, nil
}

// RefreshToken validates apiKey and pluginVersion against the current
// registered maximum, returning the server row on success.
func (s *Service) RefreshToken(ctx context.Context, apiKey string, pluginVersionID uint64) (models.Server, error) {
	var server models.Server
	if err := s.db.WithContext(ctx).First(&server, "api_key = ?", apiKey).Error; err != nil {
		return models.Server{}, database.Classify(err)
	}

	var latest models.PluginVersion
	if err := s.db.WithContext(ctx).Order("id DESC").First(&latest).Error; err != nil {
		return models.Server{}, database.Classify(err)
	}
	if pluginVersionID != latest.ID {
		return models.Server{}, ErrOutdatedVersion
	}

	server.CurrentPluginVersionID = &pluginVersionID
	if err := s.db.WithContext(ctx).Model(&server).Update("current_plugin_version_id", pluginVersionID).Error; err != nil {
		return models.Server{}, database.Classify(err)
	}
	return server, nil
}

// PublishPluginVersion registers a newly released plugin build. semverStr
// must parse as a valid semantic version and must be strictly greater than
// every version already on record; gitRevision identifies the exact commit
// the build was cut from.
func (s *Service) PublishPluginVersion(ctx context.Context, semverStr, gitRevision string) (models.PluginVersion, error) {
	next, err := semver.NewVersion(semverStr)
	if err != nil {
		return models.PluginVersion{}, fmt.Errorf("serversvc: parse semver %q: %w", semverStr, err)
	}

	var version models.PluginVersion
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var existing []models.PluginVersion
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}

		for _, v := range existing {
			current, err := semver.NewVersion(v.Semver)
			if err != nil {
				continue
			}
			if !next.GreaterThan(current) {
				return ErrOutdatedVersion
			}
		}

		version = models.PluginVersion{Semver: semverStr, GitRevision: gitRevision}
		return tx.Create(&version).Error
	})
	if err != nil {
		if errors.Is(err, ErrOutdatedVersion) {
			return models.PluginVersion{}, err
		}
		return models.PluginVersion{}, database.Classify(err)
	}
	return version, nil
}

// Heartbeat records a liveness ping from server serverID, reviving it to
// alive regardless of its prior state.
func (s *Service) Heartbeat(ctx context.Context, serverID uint64) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.Server{}).Where("id = ?", serverID).
		Updates(map[string]interface{}{"last_seen_at": now, "status": models.ServerAlive}).Error
	return database.Classify(err)
}

// StartLivenessMonitor launches the background sweeper on interval using a
// gocron scheduler. Calling it more than once on the same Service is a
// no-op; only one monitor runs process-wide.
func (s *Service) StartLivenessMonitor(ctx context.Context, interval time.Duration) {
	s.monitorStarted.Do(func() {
		sched, err := gocron.NewScheduler()
		if err != nil {
			log.Printf("serversvc: failed to start liveness scheduler: %v", err)
			return
		}
		s.scheduler = sched

		_, err = sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				if err := s.sweep(ctx); err != nil {
					log.Printf("serversvc: liveness sweep failed: %v", err)
				}
			}),
		)
		if err != nil {
			log.Printf("serversvc: failed to register liveness job: %v", err)
			return
		}

		sched.Start()

		go func() {
			<-ctx.Done()
			_ = sched.Shutdown()
		}()
	})
}

func (s *Service) sweep(ctx context.Context) error {
	var servers []models.Server
	if err := s.db.WithContext(ctx).Find(&servers).Error; err != nil {
		return database.Classify(err)
	}

	now := time.Now()
	for _, server := range servers {
		delta := now.Sub(server.LastSeenAt)
		next := nextStatus(server.Status, delta)
		if next == server.Status {
			continue
		}

		if err := s.db.WithContext(ctx).Model(&models.Server{}).Where("id = ?", server.ID).
			Update("status", next).Error; err != nil {
			return database.Classify(err)
		}

		if next == models.ServerVeryDead {
			server.Status = next
			s.notify(server.OwnerSteamID, server)
		}
	}
	return nil
}

// nextStatus implements the liveness state machine transitions. A fresh
// heartbeat is handled separately by Heartbeat; this only ages existing
// state forward, so alive never jumps straight to very_dead even if delta
// already exceeds the dead threshold on first observation.
func nextStatus(current models.ServerStatus, delta time.Duration) models.ServerStatus {
	switch current {
	case models.ServerAlive:
		if delta >= aliveToDeadThreshold {
			return models.ServerDead
		}
		return models.ServerAlive
	case models.ServerDead:
		if delta >= deadToVeryDeadThreshold {
			return models.ServerVeryDead
		}
		return models.ServerDead
	default:
		return current
	}
}
