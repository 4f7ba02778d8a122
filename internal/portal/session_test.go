package portal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/config"
)

func TestBlockCooldownFloor(t *testing.T) {
	assert.Equal(t, 3*time.Minute, blockCooldown(0))
	assert.Equal(t, 3*time.Minute, blockCooldown(60), "sub-floor values are raised")
	assert.Equal(t, 3*time.Minute, blockCooldown(180))
	assert.Equal(t, 5*time.Minute, blockCooldown(300))
}

func TestCooldownOnBlockHonorsCancellation(t *testing.T) {
	n := NewNavigator(nil, config.PortalConfig{CaptchaCooldownSecs: 600})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.CooldownOnBlock(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
