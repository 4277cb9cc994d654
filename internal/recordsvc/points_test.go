package recordsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBoundedRange(t *testing.T) {
	share := lowCompShare(3)
	points := Compute(0, 10, 30, 30, 3, share, false)
	assert.GreaterOrEqual(t, points, 0)
	assert.LessOrEqual(t, points, 10000)
}

func TestComputeUnrankedTier(t *testing.T) {
	share := lowCompShare(9)
	points := Compute(0, 10, 30, 30, 9, share, false)
	assert.Equal(t, 0, points)
}

func TestComputeBestRankScoresHighest(t *testing.T) {
	share := lowCompShare(5)
	first := Compute(0, 20, 30, 30, 5, share, false)
	last := Compute(19, 20, 60, 30, 5, share, false)
	assert.Greater(t, first, last)
}

func TestComputeProSubsetAddsBonus(t *testing.T) {
	share := lowCompShare(4)
	withTP := Compute(5, 20, 35, 30, 4, share, false)
	proSubset := Compute(5, 20, 35, 30, 4, share, true)
	assert.Greater(t, proSubset, withTP)
}

func TestRankShareTopFiveBonus(t *testing.T) {
	top := rankShare(0, 100)
	mid := rankShare(50, 100)
	assert.Greater(t, top, mid)
}
