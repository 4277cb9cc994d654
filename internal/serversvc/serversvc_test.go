package serversvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kz-go/kz-api/internal/models"
)

func TestNextStatusAliveStaysAliveBeforeThreshold(t *testing.T) {
	got := nextStatus(models.ServerAlive, 14*time.Minute)
	assert.Equal(t, models.ServerAlive, got)
}

func TestNextStatusAliveBecomesDeadAtThreshold(t *testing.T) {
	got := nextStatus(models.ServerAlive, aliveToDeadThreshold)
	assert.Equal(t, models.ServerDead, got)
}

func TestNextStatusNeverJumpsAliveToVeryDead(t *testing.T) {
	// Even if the observed gap already exceeds the very-dead threshold, a
	// server starting from alive must pass through dead first.
	got := nextStatus(models.ServerAlive, 7*time.Hour)
	assert.Equal(t, models.ServerDead, got)
}

func TestNextStatusDeadStaysDeadBeforeThreshold(t *testing.T) {
	got := nextStatus(models.ServerDead, 5*time.Hour)
	assert.Equal(t, models.ServerDead, got)
}

func TestNextStatusDeadBecomesVeryDeadAtThreshold(t *testing.T) {
	got := nextStatus(models.ServerDead, deadToVeryDeadThreshold)
	assert.Equal(t, models.ServerVeryDead, got)
}

func TestNextStatusVeryDeadIsTerminal(t *testing.T) {
	got := nextStatus(models.ServerVeryDead, 1000*time.Hour)
	assert.Equal(t, models.ServerVeryDead, got)
}

func TestRandomAPIKeyLooksLikeUUID(t *testing.T) {
	key, err := randomAPIKey()
	if err != nil {
		t.Fatalf("randomAPIKey: %v", err)
	}
	assert.Len(t, key, 36)
}
