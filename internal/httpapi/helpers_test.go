package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToURLValuesCarriesEveryKey(t *testing.T) {
	values := toURLValues(map[string]string{
		"openid.mode":       "id_res",
		"openid.claimed_id": "https://steamcommunity.com/openid/id/76561197960265729",
	})
	assert.Equal(t, "id_res", values.Get("openid.mode"))
	assert.Equal(t, "https://steamcommunity.com/openid/id/76561197960265729", values.Get("openid.claimed_id"))
}

func TestSteamIDFromUint64RejectsZero(t *testing.T) {
	_, err := steamIDFromUint64(0)
	require.Error(t, err)
}

func TestSteamIDFromUint64AcceptsValid(t *testing.T) {
	id, err := steamIDFromUint64(76561197960265729)
	require.NoError(t, err)
	assert.NotEmpty(t, id.String())
}
