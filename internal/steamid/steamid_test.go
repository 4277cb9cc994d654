package steamid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-go/kz-api/internal/steamid"
)

func TestParseSteam2(t *testing.T) {
	id, err := steamid.Parse("STEAM_1:1:161178172")
	require.NoError(t, err)
	assert.Equal(t, uint64(76561198282622073), id.Uint64())
	assert.Equal(t, uint32(322356345), id.AccountID32())
	assert.Equal(t, "STEAM_1:1:161178172", id.Steam2())
}

func TestParseSteam3(t *testing.T) {
	id, err := steamid.Parse("[U:1:322356345]")
	require.NoError(t, err)
	assert.Equal(t, uint64(76561198282622073), id.Uint64())

	id2, err := steamid.Parse("U:1:322356345")
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestParseSteam64(t *testing.T) {
	id, err := steamid.Parse("76561198282622073")
	require.NoError(t, err)
	assert.Equal(t, "STEAM_1:1:161178172", id.Steam2())
	assert.Equal(t, "[U:1:322356345]", id.Steam3())
}

func TestRoundTripAllEncodings(t *testing.T) {
	original, err := steamid.New(steamid.Min + 2*1000000 + 1)
	require.NoError(t, err)

	viaSteam2, err := steamid.Parse(original.Steam2())
	require.NoError(t, err)
	viaSteam3, err := steamid.Parse(original.Steam3())
	require.NoError(t, err)
	viaSteam64, err := steamid.Parse(original.String())
	require.NoError(t, err)

	assert.Equal(t, original, viaSteam2)
	assert.Equal(t, original, viaSteam3)
	assert.Equal(t, original, viaSteam64)

	assert.Equal(t, original.Steam2(), viaSteam2.Steam2())
}

func TestOutOfRange(t *testing.T) {
	_, err := steamid.New(steamid.Min - 1)
	require.ErrorIs(t, err, steamid.ErrOutOfRange)

	_, err = steamid.New(steamid.Max + 1)
	require.ErrorIs(t, err, steamid.ErrOutOfRange)
}

func TestMalformed(t *testing.T) {
	for _, s := range []string{"", "not-a-steamid", "STEAM_2:1:5", "[G:1:5]"} {
		_, err := steamid.Parse(s)
		assert.Error(t, err, s)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original, err := steamid.New(76561198282622073)
	require.NoError(t, err)

	data, err := original.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"76561198282622073"`, string(data))

	var decoded steamid.ID
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, original, decoded)
}

func TestFromAccountNumber(t *testing.T) {
	id, err := steamid.FromAccountNumber(161178172, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(76561198282622073), id.Uint64())
}
