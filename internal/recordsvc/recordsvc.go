// Package recordsvc accepts submitted runs, maintains the canonical
// per-filter ordering, and computes point values for personal bests.
package recordsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kz-go/kz-api/internal/bansvc"
	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/replaystore"
	"github.com/kz-go/kz-api/internal/steamid"
)

// nigFitThreshold is the personal-best count at or above which distribution
// fitting replaces the closed-form low-completion curve.
const nigFitThreshold = 50

// replayURLTTL bounds how long a presigned replay download link stays
// valid.
const replayURLTTL = 15 * time.Minute

// ErrPlayerBanned is returned when a submission's player carries an active
// ban.
var ErrPlayerBanned = errors.New("recordsvc: player is banned")

// SubmitInput is the input to Submit. ServerID and PluginVersionID come
// from the caller's authenticated JWT, never from the request body. Replay
// is optional; when present it is uploaded to object storage and linked to
// the inserted record.
type SubmitInput struct {
	PlayerID        steamid.ID
	FilterID        uint64
	ServerID        uint64
	PluginVersionID uint64
	StyleFlags      uint32
	TeleportsUsed   uint32
	TimeSeconds     float64
	BhopPerfs       uint32
	BhopTotalJumps  uint32
	Replay          []byte
}

// Service implements record ingestion and points computation.
type Service struct {
	db      *database.DB
	stats   *StatsClient
	bans    *bansvc.Service
	replays *replaystore.Store
}

// New builds a Service. replays may be nil, in which case submissions
// carrying replay bytes are rejected.
func New(db *database.DB, stats *StatsClient, bans *bansvc.Service, replays *replaystore.Store) *Service {
	return &Service{db: db, stats: stats, bans: bans, replays: replays}
}

// Submit inserts a record unconditionally once the submitting player is
// confirmed not to be under an active ban; records are immutable,
// append-only history. Points are computed lazily on read.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (models.Record, error) {
	active, err := s.bans.ActiveBan(ctx, in.PlayerID)
	if err != nil {
		return models.Record{}, err
	}
	if active != nil {
		return models.Record{}, ErrPlayerBanned
	}

	record := models.Record{
		PlayerID:        in.PlayerID,
		FilterID:        in.FilterID,
		ServerID:        in.ServerID,
		PluginVersionID: in.PluginVersionID,
		TeleportsUsed:   in.TeleportsUsed,
		TimeSeconds:     in.TimeSeconds,
		BhopPerfs:       in.BhopPerfs,
		BhopTotalJumps:  in.BhopTotalJumps,
		StyleFlags:      in.StyleFlags,
	}

	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if len(in.Replay) == 0 {
			return nil
		}
		if s.replays == nil {
			return fmt.Errorf("recordsvc: replay storage not configured")
		}

		key, err := s.replays.Put(ctx, record.ID, in.Replay)
		if err != nil {
			return err
		}
		ref := models.ReplayRef{
			RecordID:  record.ID,
			ObjectKey: key,
			SizeBytes: int64(len(in.Replay)),
		}
		return tx.Create(&ref).Error
	})
	if err != nil {
		return models.Record{}, database.Classify(err)
	}
	return record, nil
}

// ReplayURL returns a time-limited download link for recordID's replay, if
// one was attached at submission time.
func (s *Service) ReplayURL(ctx context.Context, recordID uint64) (string, error) {
	if s.replays == nil {
		return "", fmt.Errorf("recordsvc: replay storage not configured")
	}

	var ref models.ReplayRef
	if err := s.db.WithContext(ctx).First(&ref, "record_id = ?", recordID).Error; err != nil {
		return "", database.Classify(err)
	}
	return s.replays.PresignGet(ctx, ref.ObjectKey, replayURLTTL)
}

// PersonalBests returns, for filterID, the minimum-time record per player
// in canonical order: ascending time, created_at ascending as a tie-break.
func (s *Service) PersonalBests(ctx context.Context, filterID uint64) ([]models.Record, error) {
	var all []models.Record
	err := s.db.WithContext(ctx).
		Where("filter_id = ?", filterID).
		Order("time_seconds ASC, created_at ASC").
		Find(&all).Error
	if err != nil {
		return nil, database.Classify(err)
	}

	seen := make(map[steamid.ID]bool, len(all))
	pbs := make([]models.Record, 0, len(all))
	for _, r := range all {
		if seen[r.PlayerID] {
			continue
		}
		seen[r.PlayerID] = true
		pbs = append(pbs, r)
	}
	return pbs, nil
}

// ScoredRecord pairs a personal best with its computed point value.
type ScoredRecord struct {
	Record models.Record
	Points int
}

// ScoreFilter computes points for every personal best on filterID: the
// closed-form low-completion curve below nigFitThreshold PBs, distribution
// fitting at or above it.
func (s *Service) ScoreFilter(ctx context.Context, filterID uint64, tier int, teleportsZeroFilter bool) ([]ScoredRecord, error) {
	pbs, err := s.PersonalBests(ctx, filterID)
	if err != nil {
		return nil, err
	}
	if len(pbs) == 0 {
		return nil, nil
	}

	n := len(pbs)
	tBest := pbs[0].TimeSeconds

	var share shareFunc
	if n < nigFitThreshold {
		share = lowCompShare(tier)
	} else {
		times := make([]float64, n)
		for i, r := range pbs {
			times[i] = r.TimeSeconds
		}
		fit, err := s.stats.Fit(ctx, times)
		if err != nil {
			return nil, fmt.Errorf("recordsvc: fit distribution for filter %d: %w", filterID, err)
		}
		share = distShare(fit.Params, fit.SFAtTBest)
	}

	scored := make([]ScoredRecord, n)
	for rank, r := range pbs {
		points := Compute(rank, n, r.TimeSeconds, tBest, tier, share, teleportsZeroFilter)
		scored[rank] = ScoredRecord{Record: r, Points: points}
	}
	return scored, nil
}
