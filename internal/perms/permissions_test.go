package perms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-go/kz-api/internal/perms"
)

func TestContains(t *testing.T) {
	f := perms.Maps | perms.Servers
	assert.True(t, f.Contains(perms.Maps))
	assert.True(t, f.Contains(perms.Maps|perms.Servers))
	assert.False(t, f.Contains(perms.Admin))
}

func TestDecodeRejectsUnknownBits(t *testing.T) {
	_, err := perms.Decode(1 << 31)
	require.ErrorIs(t, err, perms.ErrUnknownBit)
}

func TestNameRoundTrip(t *testing.T) {
	f := perms.Bans | perms.Maps | perms.Admin
	names := f.Names()
	decoded, err := perms.FromNames(names)
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestFromNamesRejectsUnknown(t *testing.T) {
	_, err := perms.FromNames([]string{"maps", "wizard"})
	require.ErrorIs(t, err, perms.ErrUnknownBit)
}

func TestJSONRoundTrip(t *testing.T) {
	f := perms.Records | perms.Servers
	data, err := f.MarshalJSON()
	require.NoError(t, err)

	var decoded perms.Flags
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, f, decoded)
}

func TestStringNone(t *testing.T) {
	assert.Equal(t, "none", perms.Flags(0).String())
}
