package powermust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownCommand(t *testing.T) {
	tests := []struct {
		delay, restore time.Duration
		want           string
	}{
		{30 * time.Second, 0, "S.5"},
		{0, 0, "S.2"},
		{3 * time.Minute, 0, "S03"},
		{3 * time.Minute, time.Hour, "S03R0060"},
		{10 * time.Minute, 30 * time.Second, "S10R0001"},
	}
	for _, tt := range tests {
		got, err := ShutdownCommand(tt.delay, tt.restore)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ShutdownCommand(11*time.Minute, 0)
	assert.Error(t, err)
	_, err = ShutdownCommand(-time.Second, 0)
	assert.Error(t, err)
	_, err = ShutdownCommand(time.Minute, 10000*time.Minute)
	assert.Error(t, err)
}

func TestTestCommand(t *testing.T) {
	got, err := TestCommand(10)
	require.NoError(t, err)
	assert.Equal(t, "T10", got)

	got, err = TestCommand(5)
	require.NoError(t, err)
	assert.Equal(t, "T05", got)

	_, err = TestCommand(0)
	assert.Error(t, err)
	_, err = TestCommand(100)
	assert.Error(t, err)
}

func TestSwitchCommand(t *testing.T) {
	cmd, ok := SwitchCommand(QuickTestSwitch, true)
	assert.True(t, ok)
	assert.Equal(t, "T", cmd)

	cmd, _ = SwitchCommand(DeepTestSwitch, false)
	assert.Equal(t, "CT", cmd)

	cmd, _ = SwitchCommand(ShutdownRestoreSwitch, true)
	assert.Equal(t, "S01R0001", cmd)

	cmd, _ = SwitchCommand(BeeperSwitch, false)
	assert.Equal(t, "Q", cmd)

	_, ok = SwitchCommand(CancelShutdownSwitch, false)
	assert.False(t, ok)
}
