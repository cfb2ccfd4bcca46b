package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())

	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusDownloading.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeOriginal))
	assert.True(t, ValidMode(ModeWithSubtitle))
	assert.True(t, ValidMode(ModeRepeatTwice))
	assert.True(t, ValidMode(ModeSlow))

	assert.False(t, ValidMode(ProcessingMode("reverse")))
	assert.False(t, ValidMode(ProcessingMode("")))
}

func TestUserTierNormalize(t *testing.T) {
	assert.Equal(t, TierBasic, TierBasic.Normalize())
	assert.Equal(t, TierFree, UserTier("gold").Normalize())
	assert.Equal(t, TierFree, UserTier("").Normalize())
}

func TestTierLimitsAllowsMode(t *testing.T) {
	limits := TierLimits{AllowedModes: []ProcessingMode{ModeOriginal, ModeSlow}}

	assert.True(t, limits.AllowsMode(ModeOriginal))
	assert.True(t, limits.AllowsMode(ModeSlow))
	assert.False(t, limits.AllowsMode(ModeRepeatTwice))
}

func TestMetadataMapRoundTrip(t *testing.T) {
	m := MetadataMap{"format": "720p", "duration": float64(90)}

	value, err := m.Value()
	require.NoError(t, err)

	var scanned MetadataMap
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, m, scanned)
}

func TestMetadataMapEmptyValuesAreNull(t *testing.T) {
	var m MetadataMap
	value, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	var scanned MetadataMap
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	require.NoError(t, scanned.Scan("null"))
	assert.Nil(t, scanned)
}
