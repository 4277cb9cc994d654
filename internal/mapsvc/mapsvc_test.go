package mapsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-go/kz-api/internal/models"
	"github.com/kz-go/kz-api/internal/steamid"
)

func validFilterSet() [4]FilterInput {
	return [4]FilterInput{
		{Mode: models.ModeVanilla, Teleports: false, Tier: 3},
		{Mode: models.ModeVanilla, Teleports: true, Tier: 2},
		{Mode: models.ModeClassic, Teleports: false, Tier: 4},
		{Mode: models.ModeClassic, Teleports: true, Tier: 3},
	}
}

func TestValidateFiltersAcceptsAllFourShapes(t *testing.T) {
	require.NoError(t, validateFilters(validFilterSet()))
}

func TestValidateFiltersRejectsDuplicateShape(t *testing.T) {
	filters := validFilterSet()
	filters[3] = filters[2] // classic/false duplicated, classic/true missing

	err := validateFilters(filters)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCourseIndex)
}

func TestValidateFiltersRejectsMissingMode(t *testing.T) {
	filters := validFilterSet()
	filters[2] = filters[0] // classic entries both overwritten by vanilla
	filters[3] = filters[1]

	err := validateFilters(filters)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCourseIndex)
}

func TestUniqueSteamIDsDeduplicates(t *testing.T) {
	a, err := steamid.New(76561197960265729)
	require.NoError(t, err)
	b, err := steamid.New(76561197960265731)
	require.NoError(t, err)

	out := uniqueSteamIDs([]steamid.ID{a, a, b, a})
	assert.ElementsMatch(t, []steamid.ID{a, b}, out)
}
