// Package bansvc implements ban/unban issuance, enforcing that a player
// cannot receive a new ban while an active one is still outstanding.
package bansvc

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/steamid"
)

var (
	// ErrAlreadyBanned is returned when a player with an active ban is
	// banned again.
	ErrAlreadyBanned = errors.New("bansvc: player already has an active ban")
	// ErrAlreadyReverted is returned when Revert is called on a ban that
	// already has an Unban row attached.
	ErrAlreadyReverted = errors.New("bansvc: ban already reverted")
)

// Service implements ban issuance and reversal.
type Service struct {
	db *database.DB
}

// New builds a Service.
func New(db *database.DB) *Service {
	return &Service{db: db}
}

// IssueInput is the input to Issue.
type IssueInput struct {
	PlayerID  steamid.ID
	ServerID  *uint64
	Reason    string
	ExpiresAt *time.Time
	BannedBy  *steamid.ID
}

// activeCondition is the SQL fragment selecting a player's unreverted,
// unexpired bans.
const activeCondition = `player_id = ? AND (expires_at IS NULL OR expires_at > ?) AND id NOT IN (SELECT ban_id FROM unbans)`

// Issue creates a new ban for in.PlayerID, rejecting if one is already
// active.
func (s *Service) Issue(ctx context.Context, in IssueInput) (models.Ban, error) {
	var ban models.Ban

	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Ban{}).
			Where(activeCondition, in.PlayerID, time.Now()).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrAlreadyBanned
		}

		ban = models.Ban{
			PlayerID:  in.PlayerID,
			ServerID:  in.ServerID,
			Reason:    in.Reason,
			ExpiresAt: in.ExpiresAt,
			BannedBy:  in.BannedBy,
		}
		return tx.Create(&ban).Error
	})
	if err != nil {
		return models.Ban{}, database.Classify(err)
	}
	return ban, nil
}

// Revert creates an Unban row for banID, marking it reverted. Rejects with
// ErrAlreadyReverted if banID already has an Unban row attached.
func (s *Service) Revert(ctx context.Context, banID uint64, reason string, unbannedBy *steamid.ID) (models.Unban, error) {
	var unban models.Unban

	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Unban{}).Where("ban_id = ?", banID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyReverted
		}

		unban = models.Unban{
			BanID:      banID,
			Reason:     reason,
			UnbannedBy: unbannedBy,
		}
		return tx.Create(&unban).Error
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReverted) {
			return models.Unban{}, err
		}
		return models.Unban{}, database.Classify(err)
	}
	return unban, nil
}

// ActiveBan returns the currently active ban for playerID, if any.
func (s *Service) ActiveBan(ctx context.Context, playerID steamid.ID) (*models.Ban, error) {
	var ban models.Ban
	err := s.db.WithContext(ctx).
		Where(activeCondition, playerID, time.Now()).
		Order("created_at DESC").
		First(&ban).Error
	if errors.Is(database.Classify(err), database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &ban, nil
}

// ListActiveBans returns every ban currently active, across all players.
func (s *Service) ListActiveBans(ctx context.Context) ([]models.Ban, error) {
	var bans []models.Ban
	err := s.db.WithContext(ctx).
		Where(`(expires_at IS NULL OR expires_at > ?) AND id NOT IN (SELECT ban_id FROM unbans)`, time.Now()).
		Order("created_at DESC").
		Find(&bans).Error
	if err != nil {
		return nil, database.Classify(err)
	}
	return bans, nil
}

// GetBan fetches a single ban by id, regardless of its active/reverted
// state.
func (s *Service) GetBan(ctx context.Context, id uint64) (models.Ban, error) {
	var ban models.Ban
	if err := s.db.WithContext(ctx).First(&ban, "id = ?", id).Error; err != nil {
		return models.Ban{}, database.Classify(err)
	}
	return ban, nil
}
