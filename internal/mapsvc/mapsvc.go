// Package mapsvc implements transactional create/update of maps, courses,
// and filters, enforcing the structural invariants that every map has at
// least one mapper and one course and every course has at least one mapper
// and exactly four filters.
package mapsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/steamgw"
	"github.com/kz-go/kz-api/internal/steamid"
)

var (
	ErrMapMustHaveMappers    = errors.New("mapsvc: map must have at least one mapper")
	ErrMapMustHaveCourses    = errors.New("mapsvc: map must have at least one course")
	ErrCourseMustHaveMappers = errors.New("mapsvc: course must have at least one mapper")
	ErrInvalidCourseIndex    = errors.New("mapsvc: course filters must cover each mode/teleport combination exactly once")
	ErrMapperDoesNotExist    = errors.New("mapsvc: referenced mapper does not exist")
	ErrMismatchingCourseID   = errors.New("mapsvc: course does not belong to map")
	ErrMismatchingFilterID   = errors.New("mapsvc: filter does not belong to course")
)

// MismatchingCourseError reports the course id a caller referenced that does
// not belong to the map it was updating.
type MismatchingCourseError struct {
	CourseID uint64
}

func (e *MismatchingCourseError) Error() string {
	return fmt.Sprintf("mapsvc: course %d does not belong to map", e.CourseID)
}

func (e *MismatchingCourseError) Unwrap() error { return ErrMismatchingCourseID }

// MismatchingFilterError reports the filter id a caller referenced that does
// not belong to the course it was updating.
type MismatchingFilterError struct {
	FilterID uint64
}

func (e *MismatchingFilterError) Error() string {
	return fmt.Sprintf("mapsvc: filter %d does not belong to course", e.FilterID)
}

func (e *MismatchingFilterError) Unwrap() error { return ErrMismatchingFilterID }

// requiredFilterShapes is the set of (mode, teleports) pairs every course
// must carry exactly one filter for.
var requiredFilterShapes = []struct {
	Mode      models.Mode
	Teleports bool
}{
	{models.ModeVanilla, false},
	{models.ModeVanilla, true},
	{models.ModeClassic, false},
	{models.ModeClassic, true},
}

// CourseInput describes one course of a newly submitted map.
type CourseInput struct {
	Name        string
	Description string
	Mappers     []steamid.ID
	Filters     [4]FilterInput
}

// FilterInput describes one of a course's four required filters.
type FilterInput struct {
	Mode         models.Mode
	Teleports    bool
	Tier         int
	RankedStatus models.RankedStatus
	Notes        string
}

// CreateMapInput is the input to CreateMap.
type CreateMapInput struct {
	WorkshopID   uint64
	GlobalStatus models.GlobalStatus
	Description  string
	Mappers      []steamid.ID
	Courses      []CourseInput
}

func validateFilters(filters [4]FilterInput) error {
	seen := make(map[models.Mode]map[bool]bool, 2)
	for _, f := range filters {
		if seen[f.Mode] == nil {
			seen[f.Mode] = make(map[bool]bool, 2)
		}
		seen[f.Mode][f.Teleports] = true
	}
	for _, shape := range requiredFilterShapes {
		if !seen[shape.Mode][shape.Teleports] {
			return fmt.Errorf("%w: missing mode=%s teleports=%t", ErrInvalidCourseIndex, shape.Mode, shape.Teleports)
		}
	}
	return nil
}

// Service implements map/course/filter CRUD.
type Service struct {
	db      *database.DB
	steamgw *steamgw.Gateway
}

// New builds a Service.
func New(db *database.DB, gw *steamgw.Gateway) *Service {
	return &Service{db: db, steamgw: gw}
}

func mapperExistsCheck(tx *gorm.DB, ids []steamid.ID) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&models.User{}).Where("steam_id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(uniqueSteamIDs(ids)) {
		return ErrMapperDoesNotExist
	}
	return nil
}

func uniqueSteamIDs(ids []steamid.ID) []steamid.ID {
	seen := make(map[steamid.ID]bool, len(ids))
	out := make([]steamid.ID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// CreateMap downloads and checksums the workshop file, then inserts the map
// and every course/mapper/filter inside a single transaction.
func (s *Service) CreateMap(ctx context.Context, in CreateMapInput) (models.Map, error) {
	if len(in.Mappers) == 0 {
		return models.Map{}, ErrMapMustHaveMappers
	}
	if len(in.Courses) == 0 {
		return models.Map{}, ErrMapMustHaveCourses
	}
	for _, c := range in.Courses {
		if len(c.Mappers) == 0 {
			return models.Map{}, ErrCourseMustHaveMappers
		}
		if err := validateFilters(c.Filters); err != nil {
			return models.Map{}, err
		}
	}

	title, err := s.steamgw.WorkshopItemTitle(ctx, in.WorkshopID)
	if err != nil {
		return models.Map{}, fmt.Errorf("mapsvc: fetch workshop title: %w", err)
	}

	asset, err := s.steamgw.DownloadWorkshopItem(ctx, in.WorkshopID)
	if err != nil {
		return models.Map{}, fmt.Errorf("mapsvc: download workshop item: %w", err)
	}

	name := slug.Make(title)

	var mapRow models.Map
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := mapperExistsCheck(tx, in.Mappers); err != nil {
			return err
		}

		mapRow = models.Map{
			Name:         name,
			Description:  in.Description,
			GlobalStatus: in.GlobalStatus,
			WorkshopID:   in.WorkshopID,
			Checksum:     asset.Checksum,
		}
		if err := tx.Create(&mapRow).Error; err != nil {
			return err
		}

		mappers := make([]models.Mapper, 0, len(in.Mappers))
		for _, id := range uniqueSteamIDs(in.Mappers) {
			mappers = append(mappers, models.Mapper{MapID: mapRow.ID, UserID: id})
		}
		if err := tx.Create(&mappers).Error; err != nil {
			return err
		}

		for _, c := range in.Courses {
			if err := mapperExistsCheck(tx, c.Mappers); err != nil {
				return err
			}

			course := models.Course{MapID: mapRow.ID, Name: c.Name, Description: c.Description}
			if err := tx.Create(&course).Error; err != nil {
				return err
			}

			courseMappers := make([]models.CourseMapper, 0, len(c.Mappers))
			for _, id := range uniqueSteamIDs(c.Mappers) {
				courseMappers = append(courseMappers, models.CourseMapper{CourseID: course.ID, UserID: id})
			}
			if err := tx.Create(&courseMappers).Error; err != nil {
				return err
			}

			filters := make([]models.CourseFilter, 0, 4)
			for _, f := range c.Filters {
				filters = append(filters, models.CourseFilter{
					CourseID:     course.ID,
					Mode:         f.Mode,
					Teleports:    f.Teleports,
					Tier:         f.Tier,
					RankedStatus: f.RankedStatus,
					Notes:        f.Notes,
				})
			}
			if err := tx.Create(&filters).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return models.Map{}, database.Classify(err)
	}
	return mapRow, nil
}

// CourseUpdate describes a delta to one existing course.
type CourseUpdate struct {
	CourseID      uint64
	Name          *string
	Description   *string
	AddMappers    []steamid.ID
	RemoveMappers []steamid.ID
	FilterUpdates []FilterUpdate
}

// FilterUpdate describes a delta to one existing filter.
type FilterUpdate struct {
	FilterID     uint64
	Tier         *int
	RankedStatus *models.RankedStatus
	Notes        *string
}

// UpdateMapInput is the input to UpdateMap.
type UpdateMapInput struct {
	MapID       uint64
	Name        *string
	Description *string
	GlobalStatus *models.GlobalStatus
	Courses     []CourseUpdate
}

// UpdateMap applies a scalar map delta plus any number of course/filter
// deltas inside a single transaction, enforcing the mapper-count invariants
// after every mutation.
func (s *Service) UpdateMap(ctx context.Context, in UpdateMapInput) error {
	return database.Classify(database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if in.Name != nil {
			updates["name"] = *in.Name
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.GlobalStatus != nil {
			updates["global_status"] = *in.GlobalStatus
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Map{}).Where("id = ?", in.MapID).Updates(updates).Error; err != nil {
				return err
			}
		}

		for _, cu := range in.Courses {
			var course models.Course
			if err := tx.First(&course, "id = ?", cu.CourseID).Error; err != nil {
				return err
			}
			if course.MapID != in.MapID {
				return &MismatchingCourseError{CourseID: cu.CourseID}
			}

			courseUpdates := map[string]interface{}{}
			if cu.Name != nil {
				courseUpdates["name"] = *cu.Name
			}
			if cu.Description != nil {
				courseUpdates["description"] = *cu.Description
			}
			if len(courseUpdates) > 0 {
				if err := tx.Model(&models.Course{}).Where("id = ?", cu.CourseID).Updates(courseUpdates).Error; err != nil {
					return err
				}
			}

			if len(cu.AddMappers) > 0 {
				if err := mapperExistsCheck(tx, cu.AddMappers); err != nil {
					return err
				}
				added := make([]models.CourseMapper, 0, len(cu.AddMappers))
				for _, id := range uniqueSteamIDs(cu.AddMappers) {
					added = append(added, models.CourseMapper{CourseID: cu.CourseID, UserID: id})
				}
				if err := tx.Create(&added).Error; err != nil {
					return err
				}
			}
			if len(cu.RemoveMappers) > 0 {
				if err := tx.Where("course_id = ? AND user_id IN ?", cu.CourseID, cu.RemoveMappers).
					Delete(&models.CourseMapper{}).Error; err != nil {
					return err
				}
			}

			var mapperCount int64
			if err := tx.Model(&models.CourseMapper{}).Where("course_id = ?", cu.CourseID).Count(&mapperCount).Error; err != nil {
				return err
			}
			if mapperCount == 0 {
				return fmt.Errorf("%w: course %d", ErrCourseMustHaveMappers, cu.CourseID)
			}

			for _, fu := range cu.FilterUpdates {
				var filter models.CourseFilter
				if err := tx.First(&filter, "id = ?", fu.FilterID).Error; err != nil {
					return err
				}
				if filter.CourseID != cu.CourseID {
					return &MismatchingFilterError{FilterID: fu.FilterID}
				}

				filterUpdates := map[string]interface{}{}
				if fu.Tier != nil {
					filterUpdates["tier"] = *fu.Tier
				}
				if fu.RankedStatus != nil {
					filterUpdates["ranked_status"] = *fu.RankedStatus
				}
				if fu.Notes != nil {
					filterUpdates["notes"] = *fu.Notes
				}
				if len(filterUpdates) > 0 {
					if err := tx.Model(&models.CourseFilter{}).Where("id = ?", fu.FilterID).Updates(filterUpdates).Error; err != nil {
						return err
					}
				}
			}
		}

		var mapMapperCount int64
		if err := tx.Model(&models.Mapper{}).Where("map_id = ?", in.MapID).Count(&mapMapperCount).Error; err != nil {
			return err
		}
		if mapMapperCount == 0 {
			return fmt.Errorf("%w: map %d", ErrMapMustHaveMappers, in.MapID)
		}

		return nil
	}))
}

// GetFilter fetches a single course filter by id, used by read paths that
// need a filter's tier/ranked status without requiring the caller to
// already know them.
func (s *Service) GetFilter(ctx context.Context, filterID uint64) (models.CourseFilter, error) {
	var filter models.CourseFilter
	if err := s.db.WithContext(ctx).First(&filter, "id = ?", filterID).Error; err != nil {
		return models.CourseFilter{}, database.Classify(err)
	}
	return filter, nil
}

// CourseFilters returns a course's four filters ordered per the canonical
// tie-break: vanilla before classic, no-teleports before teleports.
func (s *Service) CourseFilters(ctx context.Context, courseID uint64) ([]models.CourseFilter, error) {
	var filters []models.CourseFilter
	err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("CASE mode WHEN 'vanilla' THEN 0 ELSE 1 END ASC, teleports ASC").
		Find(&filters).Error
	if err != nil {
		return nil, database.Classify(err)
	}
	return filters, nil
}
